package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

// FallbackBuilder produces the deterministic safe adjustment set used when
// the interpreter call or its validation fails, and as the baseline-only
// path. All deltas are zero and the reasons cite the player's own computed
// numbers, never fabricated ones, so the output is valid by construction and
// representable in the same schema as an interpreter-sourced adjustment.
type FallbackBuilder struct {
	logger *logrus.Logger
}

func NewFallbackBuilder(logger *logrus.Logger) *FallbackBuilder {
	return &FallbackBuilder{logger: logger}
}

// Build returns one zero-delta adjustment per roster player, tagged
// baseline_only. The composer cannot distinguish these from interpreter
// output except via the tag.
func (f *FallbackBuilder) Build(roster []models.RosterEntry, baselines map[int64]models.BaselinePacket) []models.AdjustmentDelta {
	adjustments := make([]models.AdjustmentDelta, 0, len(roster))
	for _, player := range roster {
		baseline := baselines[player.PlayerID]

		ptsLine := "No scoring form data available; projection rests on defaults."
		if baseline.PtsBlend != nil {
			ptsLine = fmt.Sprintf("Blended scoring form of %.1f points carried through unchanged.", *baseline.PtsBlend)
		}

		adjustments = append(adjustments, models.AdjustmentDelta{
			PlayerID: player.PlayerID,
			Tags:     []string{models.TagBaselineOnly},
			Reasons: []string{
				fmt.Sprintf("Contextual interpretation unavailable; holding %s at the computed baseline.", player.PlayerName),
				fmt.Sprintf("Projected minutes stay at the %.1f minute baseline figure.", baseline.MinutesBase),
				ptsLine,
			},
		})
	}

	f.logger.WithField("players", len(adjustments)).Debug("Built deterministic fallback adjustments")
	return adjustments
}
