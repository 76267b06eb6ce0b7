package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

// Policy selects the engine's behavior when interpretation fails after its
// single retry.
type Policy string

const (
	// PolicyFallback degrades to the deterministic zero-delta adjustments
	// and still succeeds. Default: the rendering layer has no graceful way
	// to show "AI down" mid-roster.
	PolicyFallback Policy = "fallback"

	// PolicyStrict fails the request with a descriptive error instead of
	// degrading.
	PolicyStrict Policy = "strict"
)

const praConsistencyTolerance = 1.01

// InterpretRequest carries everything the interpreter sends to the external
// text-generation service in its single roster-wide call.
type InterpretRequest struct {
	GameID       int64
	ModelVersion string
	Notes        string
	Roster       []models.RosterEntry
	Features     map[int64]models.PlayerGameFeature
	Baselines    map[int64]models.BaselinePacket

	// RequireProjections turns on the stricter per-player projection
	// validation used by the strict route.
	RequireProjections bool
}

// ContextInterpreter sends baselines plus free-text notes to the external
// text-generation collaborator and validates the structural shape of what
// comes back. The call is fallible and non-deterministic; on any failure it
// issues exactly one retry carrying the specific validation error, then
// reports failure to the caller.
type ContextInterpreter struct {
	generator TextGenerator
	logger    *logrus.Logger
}

func NewContextInterpreter(generator TextGenerator, logger *logrus.Logger) *ContextInterpreter {
	return &ContextInterpreter{generator: generator, logger: logger}
}

// Interpret performs the single roster-wide call plus at most one retry.
func (ci *ContextInterpreter) Interpret(ctx context.Context, req InterpretRequest) ([]models.AdjustmentDelta, error) {
	systemPrompt := ci.buildSystemPrompt()
	userPrompt := ci.buildUserPrompt(req)

	text, err := ci.generator.Generate(ctx, systemPrompt, userPrompt)
	if err == nil {
		adjustments, validationErr := ci.parseAndValidate(text, req)
		if validationErr == nil {
			return adjustments, nil
		}
		err = validationErr
		// Retry carries the prior response so the second attempt can
		// self-correct against it.
		userPrompt = ci.buildRetryPrompt(userPrompt, text, validationErr)
	}

	ci.logger.WithFields(logrus.Fields{
		"game_id": req.GameID,
		"error":   err.Error(),
	}).Warn("First interpreter attempt failed, retrying once")

	retryText, retryErr := ci.generator.Generate(ctx, systemPrompt, userPrompt)
	if retryErr != nil {
		return nil, fmt.Errorf("interpreter retry call failed: %w", retryErr)
	}

	adjustments, validationErr := ci.parseAndValidate(retryText, req)
	if validationErr != nil {
		return nil, fmt.Errorf("interpreter retry failed validation: %w", validationErr)
	}

	return adjustments, nil
}

func (ci *ContextInterpreter) buildSystemPrompt() string {
	return "You are an NBA statistical analyst. You receive pre-computed baseline projections " +
		"for every player in one game plus free-text contextual notes (injuries, minutes limits, " +
		"pace). You respond with small bounded numeric adjustments only, as strict JSON matching " +
		"the requested schema. Never invent players, never omit players, never exceed the stated " +
		"delta bounds, and justify every adjustment with at least three concrete reasons."
}

func (ci *ContextInterpreter) buildUserPrompt(req InterpretRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "GAME: id=%d model_version=%s\n\n", req.GameID, req.ModelVersion)

	b.WriteString("PLAYERS (baseline projections with supporting recency numbers):\n")
	for _, player := range req.Roster {
		baseline := req.Baselines[player.PlayerID]
		fmt.Fprintf(&b, "- player_id=%d %s (%s): minutes_base=%.1f pts=%s reb=%s ast=%s pra=%s confidence=%.2f\n",
			player.PlayerID, player.PlayerName, player.TeamAbbr,
			baseline.MinutesBase,
			formatBlend(baseline.PtsBlend), formatBlend(baseline.RebBlend),
			formatBlend(baseline.AstBlend), formatBlend(baseline.PraBlend),
			baseline.Confidence)

		if features, ok := req.Features[player.PlayerID]; ok {
			fmt.Fprintf(&b, "  recent: pts l5=%s l10=%s season=%s | min l10=%s season=%s\n",
				formatBlend(features.PtsL5), formatBlend(features.PtsL10), formatBlend(features.PtsSeasonAvg),
				formatBlend(features.MinL10), formatBlend(features.MinSeasonAvg))
			if schedule := formatSchedule(features); schedule != "" {
				fmt.Fprintf(&b, "  schedule: %s\n", schedule)
			}
		}
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = "(none)"
	}
	fmt.Fprintf(&b, "\nCONTEXT NOTES:\n%s\n", notes)

	b.WriteString(`
OUTPUT SCHEMA (respond with this JSON object and nothing else):
{
  "game_id": <must equal the game id above>,
  "model_version": "<must equal the model version above>",
  "adjustments": [
    {
      "player_id": <id>,
      "minutes_delta": <integer, -6 to 6>,
      "pts_delta": <number, -8 to 8>,
      "reb_delta": <number, -4 to 4>,
      "ast_delta": <number, -4 to 4>,
      "tags": ["<short tag>", ...],
      "reasons": ["<reason>", "<reason>", "<reason>"],
      "confidence_override": <number 0.2-0.95 or null>`)

	if req.RequireProjections {
		b.WriteString(`,
      "projection": {
        "minutes": <0 to 42>,
        "pts": <number >= 0>,
        "reb": <number >= 0>,
        "ast": <number >= 0>,
        "pra": <pts + reb + ast>,
        "confidence": "High" | "Medium" | "Low"
      }`)
	}

	b.WriteString(`
    }
  ]
}
Include exactly one adjustments entry per listed player_id. All four deltas are required; use 0 when the notes do not affect a player. Provide at least 3 reasons per player.
`)

	return b.String()
}

func (ci *ContextInterpreter) buildRetryPrompt(original, priorResponse string, validationErr error) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYour previous response failed validation: ")
	b.WriteString(validationErr.Error())
	b.WriteString("\nPrevious response was:\n")
	b.WriteString(priorResponse)
	b.WriteString("\nReturn a corrected JSON object only.\n")
	return b.String()
}

// Raw shapes for validation: pointers distinguish a present zero from an
// absent field, which the acceptance contract requires.
type rawInterpreterResponse struct {
	GameID       *int64          `json:"game_id"`
	ModelVersion *string         `json:"model_version"`
	Adjustments  []rawAdjustment `json:"adjustments"`
}

type rawAdjustment struct {
	PlayerID           *int64         `json:"player_id"`
	MinutesDelta       *float64       `json:"minutes_delta"`
	PtsDelta           *float64       `json:"pts_delta"`
	RebDelta           *float64       `json:"reb_delta"`
	AstDelta           *float64       `json:"ast_delta"`
	Tags               []string       `json:"tags"`
	Reasons            []string       `json:"reasons"`
	ConfidenceOverride *float64       `json:"confidence_override"`
	Projection         *rawProjection `json:"projection"`
}

type rawProjection struct {
	Minutes    *float64 `json:"minutes"`
	Pts        *float64 `json:"pts"`
	Reb        *float64 `json:"reb"`
	Ast        *float64 `json:"ast"`
	Pra        *float64 `json:"pra"`
	Confidence *string  `json:"confidence"`
}

func (ci *ContextInterpreter) parseAndValidate(text string, req InterpretRequest) ([]models.AdjustmentDelta, error) {
	payload := extractJSON(text)

	var raw rawInterpreterResponse
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %v", err)
	}

	if raw.GameID == nil || *raw.GameID != req.GameID {
		return nil, fmt.Errorf("game_id mismatch: expected %d, got %v", req.GameID, derefInt(raw.GameID))
	}
	if raw.ModelVersion == nil || *raw.ModelVersion != req.ModelVersion {
		return nil, fmt.Errorf("model_version mismatch: expected %q, got %q", req.ModelVersion, derefString(raw.ModelVersion))
	}

	byPlayer := make(map[int64]rawAdjustment, len(raw.Adjustments))
	for _, adj := range raw.Adjustments {
		if adj.PlayerID == nil {
			return nil, fmt.Errorf("adjustment entry missing player_id")
		}
		// Extras are ignored; duplicates overwrite, which is harmless
		// since only requested ids are read back out.
		byPlayer[*adj.PlayerID] = adj
	}

	adjustments := make([]models.AdjustmentDelta, 0, len(req.Roster))
	for _, player := range req.Roster {
		adj, ok := byPlayer[player.PlayerID]
		if !ok {
			return nil, fmt.Errorf("missing adjustment entry for player_id %d", player.PlayerID)
		}

		if adj.MinutesDelta == nil || adj.PtsDelta == nil || adj.RebDelta == nil || adj.AstDelta == nil {
			return nil, fmt.Errorf("player_id %d: all four deltas must be present", player.PlayerID)
		}
		if len(adj.Reasons) < 3 {
			return nil, fmt.Errorf("player_id %d: at least 3 reasons required, got %d", player.PlayerID, len(adj.Reasons))
		}

		if req.RequireProjections {
			if err := validateProjection(adj.Projection); err != nil {
				return nil, fmt.Errorf("player_id %d: %w", player.PlayerID, err)
			}
		}

		adjustments = append(adjustments, models.AdjustmentDelta{
			PlayerID:           player.PlayerID,
			MinutesDelta:       int(math.Round(*adj.MinutesDelta)),
			PtsDelta:           *adj.PtsDelta,
			RebDelta:           *adj.RebDelta,
			AstDelta:           *adj.AstDelta,
			Tags:               adj.Tags,
			Reasons:            adj.Reasons,
			ConfidenceOverride: adj.ConfidenceOverride,
		})
	}

	return adjustments, nil
}

func validateProjection(p *rawProjection) error {
	if p == nil {
		return fmt.Errorf("projection entry is required")
	}
	if p.Minutes == nil || p.Pts == nil || p.Reb == nil || p.Ast == nil || p.Pra == nil {
		return fmt.Errorf("projection entry has missing stat values")
	}
	if *p.Minutes < 0 || *p.Minutes > maxMinutes {
		return fmt.Errorf("projection minutes %.1f out of [0,42]", *p.Minutes)
	}
	if *p.Pts < 0 || *p.Reb < 0 || *p.Ast < 0 || *p.Pra < 0 {
		return fmt.Errorf("projection stat values must be non-negative")
	}
	if math.Abs(*p.Pts+*p.Reb+*p.Ast-*p.Pra) > praConsistencyTolerance {
		return fmt.Errorf("projection pra %.2f inconsistent with pts+reb+ast", *p.Pra)
	}
	if p.Confidence == nil {
		return fmt.Errorf("projection confidence is required")
	}
	switch *p.Confidence {
	case "High", "Medium", "Low":
	default:
		return fmt.Errorf("projection confidence %q not one of High/Medium/Low", *p.Confidence)
	}
	return nil
}

// extractJSON strips markdown code fences and surrounding prose, keeping the
// outermost JSON object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}

// formatSchedule renders the schedule context the feature store carries for a
// player. Flags pass through the normalizer so a raw store value that is not
// a real boolean simply disappears from the packet.
func formatSchedule(features models.PlayerGameFeature) string {
	var parts []string
	if flag := ToBool(features.IsBackToBack); flag != nil && *flag {
		parts = append(parts, "back-to-back")
	}
	if flag := ToBool(features.Is3In4); flag != nil && *flag {
		parts = append(parts, "3-in-4")
	}
	if flag := ToBool(features.Is4In6); flag != nil && *flag {
		parts = append(parts, "4-in-6")
	}
	if flag := ToBool(features.IsHome); flag != nil {
		if *flag {
			parts = append(parts, "home")
		} else {
			parts = append(parts, "away")
		}
	}
	if features.DaysRest != nil {
		parts = append(parts, fmt.Sprintf("days_rest=%d", *features.DaysRest))
	}
	if features.OpponentTeamID != nil {
		parts = append(parts, fmt.Sprintf("opponent_team_id=%d", *features.OpponentTeamID))
	}
	return strings.Join(parts, " ")
}

func formatBlend(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}

func derefInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
