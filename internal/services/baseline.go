package services

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/courtsight/projection-service/internal/models"
)

const (
	// Minutes blend weights when both windows exist.
	minutesL10Weight    = 0.6
	minutesSeasonWeight = 0.4

	// Configured default when no minutes figure exists at all.
	defaultMinutesBase = 20.0

	maxMinutes = 42.0

	baseConfidence        = 0.75
	thinSeasonPenalty     = 0.15
	missingStatPenalty    = 0.10
	restrictionPenalty    = 0.10
	minBaselineConfidence = 0.2
	maxBaselineConfidence = 0.9

	thinSeasonGames = 5
)

// BaselineAssembler builds per-player baseline packets from feature rows and
// optional ML estimates.
type BaselineAssembler struct {
	logger *logrus.Logger
}

func NewBaselineAssembler(logger *logrus.Logger) *BaselineAssembler {
	return &BaselineAssembler{logger: logger}
}

// Assemble produces the baseline packet for one player. The feature row may
// be nil when the store has no row for the player; every observation then
// propagates as absent and confidence is penalized accordingly.
func (a *BaselineAssembler) Assemble(
	player models.RosterEntry,
	features *models.PlayerGameFeature,
	estimates map[models.StatType]models.MLEstimate,
	notesRestricted bool,
) models.BaselinePacket {
	packet := models.BaselinePacket{}

	// Every figure from the hosted feature store passes through the
	// normalizer: a NaN or Inf in a nullable column reaches the blend math
	// as absent, never as a poisoned value.
	var minL10, minSeason *float64
	var ptsForm, rebForm, astForm *float64
	if features != nil {
		minL10 = ToNumber(features.MinL10)
		minSeason = ToNumber(features.MinSeasonAvg)
		ptsForm = a.statForm(features.PtsSeasonAvg, features.PtsL10, features.PtsL5, estimates, models.StatPTS, features.PtsBaseline)
		rebForm = a.statForm(features.RebSeasonAvg, features.RebL10, features.RebL5, estimates, models.StatREB, features.RebBaseline)
		astForm = a.statForm(features.AstSeasonAvg, features.AstL10, features.AstL5, estimates, models.StatAST, features.AstBaseline)
	}

	packet.MinutesBase = minutesBase(minL10, minSeason)
	packet.PtsBlend = BlendWithML(ptsForm, mlMean(estimates, models.StatPTS))
	packet.RebBlend = BlendWithML(rebForm, mlMean(estimates, models.StatREB))
	packet.AstBlend = BlendWithML(astForm, mlMean(estimates, models.StatAST))

	// PRA is the sum of the three blends, never independently estimated.
	// The invariant is enforced here, not downstream.
	if packet.PtsBlend != nil && packet.RebBlend != nil && packet.AstBlend != nil {
		pra := *packet.PtsBlend + *packet.RebBlend + *packet.AstBlend
		packet.PraBlend = &pra
	}

	packet.Confidence = a.confidence(features, packet, notesRestricted)

	a.logger.WithFields(logrus.Fields{
		"player_id":    player.PlayerID,
		"minutes_base": packet.MinutesBase,
		"confidence":   packet.Confidence,
		"has_features": features != nil,
	}).Debug("Assembled baseline packet")

	return packet
}

// statForm resolves the form estimate for one stat: rolling-window blend
// first, then the explicit model mean, then the stored per-player baseline
// figure, before accepting nil.
func (a *BaselineAssembler) statForm(
	season, l10, l5 *float64,
	estimates map[models.StatType]models.MLEstimate,
	stat models.StatType,
	storedBaseline *float64,
) *float64 {
	if form := BlendForm(ToNumber(season), ToNumber(l10), ToNumber(l5)); form != nil {
		return form
	}
	if ml := mlMean(estimates, stat); ml != nil {
		v := *ml
		return &v
	}
	if baseline := ToNumber(storedBaseline); baseline != nil {
		return baseline
	}
	return nil
}

func (a *BaselineAssembler) confidence(features *models.PlayerGameFeature, packet models.BaselinePacket, notesRestricted bool) float64 {
	confidence := baseConfidence

	thinSeason := features == nil || features.SeasonGamesPlayed == nil || *features.SeasonGamesPlayed < thinSeasonGames
	if thinSeason {
		confidence -= thinSeasonPenalty
	}

	if packet.PtsBlend == nil || packet.RebBlend == nil || packet.AstBlend == nil {
		confidence -= missingStatPenalty
	}

	if notesRestricted {
		confidence -= restrictionPenalty
	}

	return clamp(confidence, minBaselineConfidence, maxBaselineConfidence)
}

// minutesBase blends recent and season minutes into the pre-adjustment
// minutes figure. With only one window present that window stands alone;
// with neither, the configured default applies.
func minutesBase(minL10, minSeason *float64) float64 {
	if minL10 == nil && minSeason == nil {
		return defaultMinutesBase
	}
	l10 := firstPresent(minL10, minSeason)
	season := firstPresent(minSeason, minL10)
	return clamp(minutesL10Weight*(*l10)+minutesSeasonWeight*(*season), 0, maxMinutes)
}

func mlMean(estimates map[models.StatType]models.MLEstimate, stat models.StatType) *float64 {
	if estimates == nil {
		return nil
	}
	est, ok := estimates[stat]
	if !ok {
		return nil
	}
	return ToNumber(est.Mean)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
