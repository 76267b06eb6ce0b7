package services

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

// Declared delta bounds. The interpreter's instruction states these; the
// composer re-clamps anyway, since an external response's numeric bounds are
// never trusted without re-checking.
const (
	maxMinutesDelta = 6
	maxPtsDelta     = 8.0
	maxRebDelta     = 4.0
	maxAstDelta     = 4.0

	minFinalConfidence = 0.2
	maxFinalConfidence = 0.95
)

// Composer applies adjustment deltas to baselines and enforces every output
// invariant. It is the last line of defense: bounds and PRA consistency are
// re-derived here even when upstream data already looks valid.
type Composer struct {
	logger *logrus.Logger
}

func NewComposer(logger *logrus.Logger) *Composer {
	return &Composer{logger: logger}
}

// Compose produces the final stat line for one player. rawNotes is the
// original (un-normalized) user text; hard overrides are detected from it
// after delta application.
func (c *Composer) Compose(
	player models.RosterEntry,
	baseline models.BaselinePacket,
	adjustment models.AdjustmentDelta,
	rawNotes string,
) models.PlayerProjection {
	clamped := clampAdjustment(adjustment)

	minutes := clamp(math.Round(baseline.MinutesBase+float64(clamped.MinutesDelta)), 0, maxMinutes)
	pts := math.Max(0, valueOrZero(baseline.PtsBlend)+clamped.PtsDelta)
	reb := math.Max(0, valueOrZero(baseline.RebBlend)+clamped.RebDelta)
	ast := math.Max(0, valueOrZero(baseline.AstBlend)+clamped.AstDelta)

	// Hard text-derived overrides, applied after deltas: minutes limit
	// first, then an explicit out ruling which zeroes the whole line.
	if limit, ok := DetectMinutesLimit(rawNotes, player.PlayerName); ok {
		minutes = math.Min(minutes, float64(limit))
	}
	if DetectOut(rawNotes, player.PlayerName) {
		minutes, pts, reb, ast = 0, 0, 0, 0
	}

	// Always derived, never taken from the interpreter.
	pra := pts + reb + ast

	confidence := baseline.Confidence
	if clamped.ConfidenceOverride != nil {
		confidence = clamp(*clamped.ConfidenceOverride, minFinalConfidence, maxFinalConfidence)
	}

	final := models.StatLine{
		Minutes:    minutes,
		Pts:        pts,
		Reb:        reb,
		Ast:        ast,
		Pra:        pra,
		Confidence: confidence,
	}

	c.logger.WithFields(logrus.Fields{
		"player_id": player.PlayerID,
		"minutes":   final.Minutes,
		"pra":       final.Pra,
	}).Debug("Composed final projection")

	return models.PlayerProjection{
		PlayerID:     player.PlayerID,
		PlayerName:   player.PlayerName,
		TeamAbbr:     player.TeamAbbr,
		Baseline:     baseline,
		Adjustments:  clamped,
		Final:        final,
		Explanations: clamped.Reasons,
	}
}

// clampAdjustment defensively re-clamps every delta to its declared range.
func clampAdjustment(adj models.AdjustmentDelta) models.AdjustmentDelta {
	if adj.MinutesDelta > maxMinutesDelta {
		adj.MinutesDelta = maxMinutesDelta
	}
	if adj.MinutesDelta < -maxMinutesDelta {
		adj.MinutesDelta = -maxMinutesDelta
	}
	adj.PtsDelta = clamp(adj.PtsDelta, -maxPtsDelta, maxPtsDelta)
	adj.RebDelta = clamp(adj.RebDelta, -maxRebDelta, maxRebDelta)
	adj.AstDelta = clamp(adj.AstDelta, -maxAstDelta, maxAstDelta)
	return adj
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
