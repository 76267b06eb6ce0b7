package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsight/projection-service/internal/models"
	"github.com/courtsight/projection-service/internal/services"
)

type fakeFeatureStore struct {
	roster      []models.RosterEntry
	features    map[int64]models.PlayerGameFeature
	rosterErr   error
	featuresErr error
}

func (f *fakeFeatureStore) ActiveRoster(_ context.Context, _ int64) ([]models.RosterEntry, error) {
	return f.roster, f.rosterErr
}

func (f *fakeFeatureStore) GameFeatures(_ context.Context, _ int64, _ []int64) (map[int64]models.PlayerGameFeature, error) {
	return f.features, f.featuresErr
}

type fakeModelStore struct {
	knownVersions map[string]bool
	estimates     map[int64]map[models.StatType]models.MLEstimate
	registryErr   error
}

func (f *fakeModelStore) ModelVersionExists(_ context.Context, version string) (bool, error) {
	return f.knownVersions[version], f.registryErr
}

func (f *fakeModelStore) Estimates(_ context.Context, _ int64, _ string, _ []int64) (map[int64]map[models.StatType]models.MLEstimate, error) {
	return f.estimates, nil
}

type fakeCache struct {
	entries map[string]*models.ProjectionResponse
	gets    int
	puts    int
	getErr  error
	putErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.ProjectionResponse)}
}

func (f *fakeCache) key(gameID int64, modelVersion, variant, notesHash string) string {
	return fmt.Sprintf("%d|%s|%s|%s", gameID, modelVersion, variant, notesHash)
}

func (f *fakeCache) GetProjections(_ context.Context, gameID int64, modelVersion, variant, notesHash string) (*models.ProjectionResponse, bool, error) {
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	payload, ok := f.entries[f.key(gameID, modelVersion, variant, notesHash)]
	return payload, ok, nil
}

func (f *fakeCache) PutProjections(_ context.Context, gameID int64, modelVersion, variant, notesHash string, payload *models.ProjectionResponse) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[f.key(gameID, modelVersion, variant, notesHash)] = payload
	return nil
}

type fakeAuditLog struct {
	entries []*models.AIProjectionLog
}

func (f *fakeAuditLog) Record(_ context.Context, entry *models.AIProjectionLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeBroadcaster struct {
	calls      int
	lastGameID int64
}

func (f *fakeBroadcaster) BroadcastProjections(gameID int64, _ *models.ProjectionResponse) {
	f.calls++
	f.lastGameID = gameID
}

type engineFixture struct {
	engine    *services.ProjectionEngine
	features  *fakeFeatureStore
	mlStore   *fakeModelStore
	cache     *fakeCache
	generator *scriptedGenerator
	audit     *fakeAuditLog
	broadcast *fakeBroadcaster
}

func newEngineFixture(generator *scriptedGenerator) *engineFixture {
	logger := testLogger()
	features := &fakeFeatureStore{
		roster: []models.RosterEntry{
			{GameID: 1001, PlayerID: 23, PlayerName: "Jordan Smith", TeamAbbr: "DEN", Active: true},
			{GameID: 1001, PlayerID: 45, PlayerName: "Marcus Lee", TeamAbbr: "LAL", Active: true},
		},
		features: map[int64]models.PlayerGameFeature{
			23: *fullFeatureRow(),
		},
	}
	mlStore := &fakeModelStore{knownVersions: map[string]bool{"v2.1": true}}
	cache := newFakeCache()
	audit := &fakeAuditLog{}
	broadcast := &fakeBroadcaster{}

	interpreter := services.NewContextInterpreter(generator, logger)
	engine := services.NewProjectionEngine(features, mlStore, cache, interpreter, logger)
	engine.SetAuditLog(audit)
	engine.SetBroadcaster(broadcast)

	return &engineFixture{
		engine:    engine,
		features:  features,
		mlStore:   mlStore,
		cache:     cache,
		generator: generator,
		audit:     audit,
		broadcast: broadcast,
	}
}

func engineRequest() services.ProjectionRequest {
	return services.ProjectionRequest{
		GameID:       1001,
		ModelVersion: "v2.1",
		Notes:        "Smith on a minutes limit of 24",
	}
}

func validEngineResponse(t *testing.T) string {
	return responseJSON(t, 1001, "v2.1", validAdjustment(23), validAdjustment(45))
}

func TestGenerateProjectionsHappyPath(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})

	result, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)

	assert.False(t, result.CacheHit)
	assert.False(t, result.FallbackUsed)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, 1, fx.generator.calls)

	payload := result.Payload
	require.NotNil(t, payload)
	assert.Equal(t, int64(1001), payload.GameID)
	assert.Equal(t, "v2.1", payload.ModelVersion)
	require.Len(t, payload.Players, 2)

	// Roster order is preserved in the output.
	assert.Equal(t, int64(23), payload.Players[0].PlayerID)
	assert.Equal(t, int64(45), payload.Players[1].PlayerID)

	// Player 23 has a full feature row; its final line reflects blend + delta.
	smith := payload.Players[0]
	assert.Equal(t, -2, smith.Adjustments.MinutesDelta)
	assert.InDelta(t, smith.Final.Pts+smith.Final.Reb+smith.Final.Ast, smith.Final.Pra, 1e-9)

	// Side effects: cache written, audit recorded, payload broadcast.
	assert.Equal(t, 1, fx.cache.puts)
	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, int64(1001), fx.audit.entries[0].GameID)
	assert.False(t, fx.audit.entries[0].FallbackUsed)
	assert.Equal(t, 1, fx.broadcast.calls)
	assert.Equal(t, int64(1001), fx.broadcast.lastGameID)
}

func TestGenerateProjectionsCacheHit(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})

	first, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	// Same inputs, notes reworded only in formatting: same hash, no second
	// external call.
	req := engineRequest()
	req.Notes = "  SMITH on a\nminutes   limit of 24 "
	second, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, fx.generator.calls)
	assert.Equal(t, first.Payload.GameID, second.Payload.GameID)
	assert.Equal(t, len(first.Payload.Players), len(second.Payload.Players))

	// Cached responses are returned verbatim, not re-audited.
	assert.Len(t, fx.audit.entries, 1)
}

func TestGenerateProjectionsDifferentNotesMissCache(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{
		validEngineResponse(t), validEngineResponse(t),
	}})

	_, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)

	req := engineRequest()
	req.Notes = "Smith cleared to play full minutes"
	second, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, second.CacheHit)
	assert.Equal(t, 2, fx.generator.calls)
}

func TestGenerateProjectionsCacheReadFailureRecomputes(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})
	fx.cache.getErr = errors.New("redis down")

	result, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Equal(t, 1, fx.generator.calls)
}

func TestGenerateProjectionsCacheWriteFailureStillSucceeds(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})
	fx.cache.putErr = errors.New("redis down")

	result, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	require.NotNil(t, result.Payload)
}

func TestGenerateProjectionsInputValidation(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{})

	req := engineRequest()
	req.GameID = 0
	_, err := fx.engine.GenerateProjections(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	req = engineRequest()
	req.ModelVersion = ""
	_, err = fx.engine.GenerateProjections(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	assert.Zero(t, fx.generator.calls)
}

func TestGenerateProjectionsUnknownModelVersion(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{})

	req := engineRequest()
	req.ModelVersion = "v0.0-unknown"
	_, err := fx.engine.GenerateProjections(context.Background(), req)
	assert.ErrorIs(t, err, services.ErrUnknownModelVersion)
	assert.Zero(t, fx.generator.calls)
}

func TestGenerateProjectionsUpstreamFailures(t *testing.T) {
	t.Run("empty roster", func(t *testing.T) {
		fx := newEngineFixture(&scriptedGenerator{})
		fx.features.roster = nil
		_, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
		assert.ErrorIs(t, err, services.ErrUpstreamData)
	})

	t.Run("roster query error", func(t *testing.T) {
		fx := newEngineFixture(&scriptedGenerator{})
		fx.features.rosterErr = errors.New("connection refused")
		_, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
		assert.ErrorIs(t, err, services.ErrUpstreamData)
	})

	t.Run("feature query error", func(t *testing.T) {
		fx := newEngineFixture(&scriptedGenerator{})
		fx.features.featuresErr = errors.New("connection refused")
		_, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
		assert.ErrorIs(t, err, services.ErrUpstreamData)
	})

	t.Run("registry query error", func(t *testing.T) {
		fx := newEngineFixture(&scriptedGenerator{})
		fx.mlStore.registryErr = errors.New("connection refused")
		_, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
		assert.ErrorIs(t, err, services.ErrUpstreamData)
	})
}

func TestGenerateProjectionsFallbackPolicy(t *testing.T) {
	// Both interpreter attempts return garbage; the default policy degrades
	// to the deterministic baseline-only adjustments and still succeeds.
	fx := newEngineFixture(&scriptedGenerator{responses: []string{"garbage", "more garbage"}})

	result, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 2, fx.generator.calls)
	require.Len(t, result.Payload.Players, 2)

	for _, player := range result.Payload.Players {
		assert.Contains(t, player.Adjustments.Tags, models.TagBaselineOnly)
		assert.Zero(t, player.Adjustments.MinutesDelta)
		assert.GreaterOrEqual(t, len(player.Explanations), 3)
	}

	// Degraded runs are audited as fallback but never cached.
	assert.Zero(t, fx.cache.puts)
	require.Len(t, fx.audit.entries, 1)
	assert.True(t, fx.audit.entries[0].FallbackUsed)
}

func TestGenerateProjectionsDegradedRunIsNotPinned(t *testing.T) {
	// A degraded run must not be cached: the next identical request consults
	// the interpreter again and gets real adjustments once it recovers.
	fx := newEngineFixture(&scriptedGenerator{responses: []string{
		"garbage", "more garbage", validEngineResponse(t),
	}})

	first, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	assert.True(t, first.FallbackUsed)

	second, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.False(t, second.FallbackUsed)
	assert.Equal(t, 3, fx.generator.calls)
}

func TestGenerateProjectionsStrictNotServedDegradedPayload(t *testing.T) {
	// A default-policy run that degraded to fallback must not satisfy a
	// later strict request for the same game, model and notes.
	fx := newEngineFixture(&scriptedGenerator{responses: []string{
		"garbage", "more garbage", "garbage", "more garbage",
	}})

	first, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	require.True(t, first.FallbackUsed)

	req := engineRequest()
	req.Policy = services.PolicyStrict
	_, err = fx.engine.GenerateProjections(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInterpreter)
	assert.Equal(t, 4, fx.generator.calls)
}

func TestGenerateProjectionsAIRouteNotServedBaselinePayload(t *testing.T) {
	// A baseline-only run must not satisfy a later AI-route request for the
	// same game, model and notes; the interpreter is still consulted.
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})

	baselineReq := engineRequest()
	baselineReq.BaselineOnly = true
	first, err := fx.engine.GenerateProjections(context.Background(), baselineReq)
	require.NoError(t, err)
	require.True(t, first.FallbackUsed)
	require.Zero(t, fx.generator.calls)

	second, err := fx.engine.GenerateProjections(context.Background(), engineRequest())
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.False(t, second.FallbackUsed)
	assert.Equal(t, 1, fx.generator.calls)
	assert.NotContains(t, second.Payload.Players[0].Adjustments.Tags, models.TagBaselineOnly)
}

func TestGenerateProjectionsBaselineRunsAreCached(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{})

	req := engineRequest()
	req.BaselineOnly = true
	first, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, fx.cache.puts)
}

func TestGenerateProjectionsStrictPolicy(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{"garbage", "more garbage"}})

	req := engineRequest()
	req.Policy = services.PolicyStrict
	_, err := fx.engine.GenerateProjections(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInterpreter)
	assert.Equal(t, 2, fx.generator.calls)

	// A failed strict run neither caches nor audits anything.
	assert.Zero(t, fx.cache.puts)
	assert.Empty(t, fx.audit.entries)
	assert.Zero(t, fx.broadcast.calls)
}

func TestGenerateProjectionsBaselineOnly(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{})

	req := engineRequest()
	req.BaselineOnly = true
	result, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Zero(t, fx.generator.calls)
	require.Len(t, result.Payload.Players, 2)
	assert.Contains(t, result.Payload.Players[0].Adjustments.Tags, models.TagBaselineOnly)
}

func TestGenerateProjectionsOutOverrideEndToEnd(t *testing.T) {
	fx := newEngineFixture(&scriptedGenerator{responses: []string{validEngineResponse(t)}})

	req := engineRequest()
	req.Notes = "Jordan Smith has been ruled out for tonight"
	result, err := fx.engine.GenerateProjections(context.Background(), req)
	require.NoError(t, err)

	smith := result.Payload.Players[0]
	assert.Zero(t, smith.Final.Minutes)
	assert.Zero(t, smith.Final.Pra)

	// The uninvolved player keeps a live projection.
	lee := result.Payload.Players[1]
	assert.NotZero(t, lee.Final.Minutes)
}
