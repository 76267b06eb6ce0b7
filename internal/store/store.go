package store

import (
	"context"

	"github.com/courtsight/projection-service/internal/models"
)

// FeatureStore reads roster and rolling-window feature rows for a game.
// Implementations are read-only from the engine's perspective.
type FeatureStore interface {
	// ActiveRoster returns the active players for a game. Must resolve
	// before any per-player feature lookup is issued.
	ActiveRoster(ctx context.Context, gameID int64) ([]models.RosterEntry, error)

	// GameFeatures returns the feature row for each requested player.
	// Players without a row are simply absent from the map.
	GameFeatures(ctx context.Context, gameID int64, playerIDs []int64) (map[int64]models.PlayerGameFeature, error)
}

// ModelStore reads versioned ML estimates and the model registry.
type ModelStore interface {
	// ModelVersionExists reports whether the registry knows this version.
	ModelVersionExists(ctx context.Context, modelVersion string) (bool, error)

	// Estimates returns per-player, per-stat model means for a game and
	// model version. Presence is independent per stat.
	Estimates(ctx context.Context, gameID int64, modelVersion string, playerIDs []int64) (map[int64]map[models.StatType]models.MLEstimate, error)
}

// ProjectionLog appends audit rows for computed projection runs.
type ProjectionLog interface {
	Record(ctx context.Context, entry *models.AIProjectionLog) error
}
