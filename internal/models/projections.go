package models

import (
	"encoding/json"
	"time"
)

// BaselinePacket is the pre-adjustment projection for one player, computed
// purely from historical form, optional ML means and stored baselines.
// PraBlend is always the arithmetic sum of the three stat blends.
type BaselinePacket struct {
	MinutesBase float64  `json:"minutes_base"`
	PtsBlend    *float64 `json:"pts_blend"`
	RebBlend    *float64 `json:"reb_blend"`
	AstBlend    *float64 `json:"ast_blend"`
	PraBlend    *float64 `json:"pra_blend"`
	Confidence  float64  `json:"confidence"`
}

// AdjustmentDelta is a bounded per-player adjustment, produced either by the
// context interpreter or by the deterministic fallback. The two are
// indistinguishable downstream except via Tags.
type AdjustmentDelta struct {
	PlayerID           int64    `json:"player_id"`
	MinutesDelta       int      `json:"minutes_delta"`
	PtsDelta           float64  `json:"pts_delta"`
	RebDelta           float64  `json:"reb_delta"`
	AstDelta           float64  `json:"ast_delta"`
	Tags               []string `json:"tags"`
	Reasons            []string `json:"reasons"`
	ConfidenceOverride *float64 `json:"confidence_override,omitempty"`
}

// TagBaselineOnly marks an adjustment produced by the deterministic fallback.
const TagBaselineOnly = "baseline_only"

// StatLine is the final composed stat line. Pra is always recomputed as
// Pts+Reb+Ast, never taken from upstream.
type StatLine struct {
	Minutes    float64 `json:"minutes"`
	Pts        float64 `json:"pts"`
	Reb        float64 `json:"reb"`
	Ast        float64 `json:"ast"`
	Pra        float64 `json:"pra"`
	Confidence float64 `json:"confidence"`
}

// PlayerProjection is the per-player element of the projection response.
type PlayerProjection struct {
	PlayerID     int64           `json:"player_id"`
	PlayerName   string          `json:"player_name"`
	TeamAbbr     string          `json:"team_abbr"`
	Baseline     BaselinePacket  `json:"baseline"`
	Adjustments  AdjustmentDelta `json:"llm_adjustments"`
	Final        StatLine        `json:"final"`
	Explanations []string        `json:"explanations"`
}

// ProjectionResponse is the full payload returned to the caller and stored in
// the result cache. Immutable once composed.
type ProjectionResponse struct {
	GameID       int64              `json:"game_id"`
	ModelVersion string             `json:"model_version"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Players      []PlayerProjection `json:"players"`
}

// AIProjectionLog is the append-only audit row written after every computed
// (non-cached) projection run.
type AIProjectionLog struct {
	ID             uint            `gorm:"primaryKey"`
	GameID         int64           `gorm:"column:game_id"`
	ModelVersion   string          `gorm:"column:model_version"`
	NotesHash      string          `gorm:"column:notes_hash"`
	RequestID      string          `gorm:"column:request_id"`
	FallbackUsed   bool            `gorm:"column:fallback_used"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	ResponseTimeMs int64           `gorm:"column:response_time_ms"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (AIProjectionLog) TableName() string { return "ai_projection_log" }
