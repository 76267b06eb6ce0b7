package models

import "time"

// StatType identifies a projected statistic.
type StatType string

const (
	StatPTS StatType = "PTS"
	StatREB StatType = "REB"
	StatAST StatType = "AST"
	StatPRA StatType = "PRA"
	StatMIN StatType = "MIN"
)

// RosterEntry is a row from game_rosters: one active player on a game's slate.
type RosterEntry struct {
	GameID     int64  `gorm:"column:game_id" json:"game_id"`
	PlayerID   int64  `gorm:"column:player_id" json:"player_id"`
	PlayerName string `gorm:"column:player_name" json:"player_name"`
	TeamAbbr   string `gorm:"column:team_abbr" json:"team_abbr"`
	Active     bool   `gorm:"column:active" json:"active"`
}

func (RosterEntry) TableName() string { return "game_rosters" }

// PlayerGameFeature is a row from player_game_features. Rolling-window columns
// are nullable in the store; absence must reach the blend math as nil, never
// as a zero-fill.
type PlayerGameFeature struct {
	GameID   int64     `gorm:"column:game_id"`
	PlayerID int64     `gorm:"column:player_id"`
	Season   string    `gorm:"column:season"`
	GameDate time.Time `gorm:"column:game_date"`

	MinL5        *float64 `gorm:"column:min_l5"`
	MinL10       *float64 `gorm:"column:min_l10"`
	MinSeasonAvg *float64 `gorm:"column:min_season_avg"`

	PtsL5        *float64 `gorm:"column:pts_l5"`
	PtsL10       *float64 `gorm:"column:pts_l10"`
	PtsSeasonAvg *float64 `gorm:"column:pts_season_avg"`

	RebL5        *float64 `gorm:"column:reb_l5"`
	RebL10       *float64 `gorm:"column:reb_l10"`
	RebSeasonAvg *float64 `gorm:"column:reb_season_avg"`

	AstL5        *float64 `gorm:"column:ast_l5"`
	AstL10       *float64 `gorm:"column:ast_l10"`
	AstSeasonAvg *float64 `gorm:"column:ast_season_avg"`

	PraL5        *float64 `gorm:"column:pra_l5"`
	PraL10       *float64 `gorm:"column:pra_l10"`
	PraSeasonAvg *float64 `gorm:"column:pra_season_avg"`

	// Stored baseline figures from the nightly pipeline, third priority in
	// the stat fallback chain after form and ML means.
	PtsBaseline *float64 `gorm:"column:pts_baseline"`
	RebBaseline *float64 `gorm:"column:reb_baseline"`
	AstBaseline *float64 `gorm:"column:ast_baseline"`
	PraBaseline *float64 `gorm:"column:pra_baseline"`
	MinBaseline *float64 `gorm:"column:min_baseline"`

	SeasonGamesPlayed *int `gorm:"column:season_games_played"`

	DaysRest       *int   `gorm:"column:days_rest"`
	IsBackToBack   *bool  `gorm:"column:is_back_to_back"`
	Is3In4         *bool  `gorm:"column:is_3_in_4"`
	Is4In6         *bool  `gorm:"column:is_4_in_6"`
	IsHome         *bool  `gorm:"column:is_home"`
	OpponentTeamID *int64 `gorm:"column:opponent_team_id"`
}

func (PlayerGameFeature) TableName() string { return "player_game_features" }

// MLPrediction is a row from ml_predictions: an optional per player/stat
// model estimate for a given model version.
type MLPrediction struct {
	GameID        int64    `gorm:"column:game_id"`
	PlayerID      int64    `gorm:"column:player_id"`
	StatType      StatType `gorm:"column:stat_type"`
	ProjectedMean *float64 `gorm:"column:projected_mean"`
	ProjectedStd  *float64 `gorm:"column:projected_std"`
	ModelVersion  string   `gorm:"column:model_version"`
}

func (MLPrediction) TableName() string { return "ml_predictions" }

// MLEstimate is the typed (mean, std) pair handed to the blend math.
type MLEstimate struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// ModelRegistryEntry is a row from ml_model_registry.
type ModelRegistryEntry struct {
	ModelVersion string `gorm:"column:model_version;primaryKey"`
	Notes        string `gorm:"column:notes"`
}

func (ModelRegistryEntry) TableName() string { return "ml_model_registry" }
