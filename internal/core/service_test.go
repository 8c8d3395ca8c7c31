package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/cache"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/core/orchestrator"
	"github.com/agenthands/bioguard/internal/core/provider"
	"github.com/agenthands/bioguard/internal/llm"
	"github.com/agenthands/bioguard/internal/storage"
	"github.com/agenthands/bioguard/internal/storage/graph"
	"github.com/agenthands/bioguard/internal/storage/relational"
	"github.com/agenthands/bioguard/internal/storage/vector"
)

type harness struct {
	service *Service
	gemini  *MockProvider
	records *relational.Store
	graph   *graph.Memory
}

func newHarness(t *testing.T, environ []string, embedder llm.EmbedderClient) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.Load("", append([]string{"GEMINI_API_KEY=test"}, environ...), logger)
	require.NoError(t, err)
	cfg.ProviderTimeout = time.Second

	rs, err := relational.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "bioguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	vs, err := vector.NewSQLite(ctx, rs.DB())
	require.NoError(t, err)
	g := graph.NewMemory()

	gemini := &MockProvider{
		ProviderName: "gemini",
		Findings: model.Findings{
			Product:     "Cola",
			HealthScore: 22,
			Tier:        4,
			Verdict:     model.VerdictDanger,
			Warnings:    []string{"High sugar"},
			Ingredients: []string{"Carbonated water", "Sugar", "Caramel color"},
		},
	}
	providers := map[string]provider.Provider{"gemini": gemini}
	orch := orchestrator.New(cfg, providers, cache.NewMemory(), logger, nil)
	if embedder == nil {
		embedder = llm.NewHashEmbedder(64)
	}
	manager := storage.NewManager(cfg, rs, vs, g, embedder, logger, nil)

	return &harness{
		service: NewService(cfg, orch, manager, rs, nil, logger),
		gemini:  gemini,
		records: rs,
		graph:   g,
	}
}

func foodRequest(user string, profile *model.MedicalProfile) *model.Request {
	return model.NewRequest(user, model.KindFood, []byte("\x89PNG fake image"), "image/png", profile)
}

func TestService_AnalyzePersists(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	a, err := h.service.Analyze(ctx, foodRequest("u1", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, a.RecordID)
	assert.Equal(t, "gemini", a.Result.Provider)
	assert.False(t, a.Result.Degraded)

	rec, err := h.records.GetRecord(ctx, a.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "Cola", rec.Subject)
	assert.Equal(t, 22, rec.HealthScore)
	assert.Equal(t, model.VerdictDanger, rec.Verdict)
}

func TestService_CacheHitSkipsProviders(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	first, err := h.service.Analyze(ctx, foodRequest("u1", nil))
	require.NoError(t, err)
	second, err := h.service.Analyze(ctx, foodRequest("u1", nil))
	require.NoError(t, err)

	assert.EqualValues(t, 1, h.gemini.Calls.Load())
	assert.False(t, first.Result.FromCache)
	assert.True(t, second.Result.FromCache)
	assert.Equal(t, first.Result.Findings, second.Result.Findings)
	assert.NotEqual(t, first.RecordID, second.RecordID)
}

func TestService_ConflictsForProfile(t *testing.T) {
	h := newHarness(t, nil, nil)

	a, err := h.service.Analyze(context.Background(), foodRequest("u1", &model.MedicalProfile{Conditions: []string{"Diabetes"}}))
	require.NoError(t, err)
	assert.Equal(t, []model.Conflict{
		{Ingredient: "Sugar", Condition: "diabetes", Relation: "increases_risk", Severity: "high"},
	}, a.Result.Conflicts)

	a, err = h.service.Analyze(context.Background(), foodRequest("u1", nil))
	require.NoError(t, err)
	assert.Empty(t, a.Result.Conflicts)
}

func TestService_ConflictsNeedKnowledgeGraph(t *testing.T) {
	h := newHarness(t, []string{"BIOGUARD_FEATURE_KNOWLEDGE_GRAPH=false"}, nil)

	a, err := h.service.Analyze(context.Background(), foodRequest("u1", &model.MedicalProfile{Conditions: []string{"diabetes"}}))
	require.NoError(t, err)
	assert.Empty(t, a.Result.Conflicts)
}

func TestService_AllProvidersFailDegrades(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.gemini.Err = &faults.ProviderError{Provider: "gemini", Kind: faults.KindRejected, Err: errors.New("quota exceeded")}

	a, err := h.service.Analyze(context.Background(), foodRequest("u1", nil))
	require.NoError(t, err)
	assert.True(t, a.Result.Degraded)
	assert.Equal(t, provider.OfflineName, a.Result.Provider)
	require.Len(t, a.Result.Errors, 1)
	assert.Equal(t, faults.KindRejected, a.Result.Errors[0].Kind)

	rec, err := h.records.GetRecord(context.Background(), a.RecordID)
	require.NoError(t, err)
	assert.True(t, rec.Degraded)
}

func TestService_ValidationError(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.service.Analyze(context.Background(), model.NewRequest("", model.KindChat, []byte("hi"), "", nil))
	var ve *faults.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Zero(t, h.gemini.Calls.Load())
}

func TestService_HistoryDefaultLimit(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		req := model.NewRequest("u1", model.KindChat, []byte("question "+string(rune('a'+i))), "", nil)
		_, err := h.service.Analyze(ctx, req)
		require.NoError(t, err)
	}

	recs, err := h.service.GetUserHistory(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 10)

	recs, err = h.service.GetUserHistory(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestService_GetClustersAndSimilar(t *testing.T) {
	// Every record embeds identically, so all of a user's records link up.
	h := newHarness(t, nil, &MockEmbedder{Vector: []float32{0.6, 0.8}})
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		a, err := h.service.Analyze(ctx, model.NewRequest("u1", model.KindChat, []byte(text), "", nil))
		require.NoError(t, err)
		ids = append(ids, a.RecordID)
	}

	clusters, err := h.service.GetClusters(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Records, 3)

	similar, err := h.service.GetSimilar(ctx, ids[0], 5)
	require.NoError(t, err)
	assert.Len(t, similar, 2)
	for _, s := range similar {
		assert.NotEqual(t, ids[0], s.Record.ID)
	}

	clusters, err = h.service.GetClusters(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestService_DeleteRecord(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	a, err := h.service.Analyze(ctx, foodRequest("u1", nil))
	require.NoError(t, err)
	require.NoError(t, h.service.DeleteRecord(ctx, a.RecordID))

	recs, err := h.service.GetUserHistory(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.ErrorIs(t, h.service.DeleteRecord(ctx, a.RecordID), relational.ErrNotFound)
	assert.Zero(t, h.graph.Len())
}

func TestService_FederatedUpdates(t *testing.T) {
	off := newHarness(t, nil, nil)
	_, err := off.service.SaveFederatedUpdate(context.Background(), "c1", json.RawMessage(`[0.1]`), 0.9)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	on := newHarness(t, []string{"BIOGUARD_FEATURE_FEDERATED_LEARNING=true"}, nil)
	id, err := on.service.SaveFederatedUpdate(context.Background(), "c1", json.RawMessage(`{"w":[0.1,0.2]}`), 0.9)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = on.service.SaveFederatedUpdate(context.Background(), "c1", json.RawMessage(`{`), 0.9)
	var ve *faults.ValidationError
	assert.True(t, errors.As(err, &ve))

	ups, err := on.records.FederatedUpdates(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

func TestService_ChainAndFeatures(t *testing.T) {
	h := newHarness(t, nil, nil)
	assert.Equal(t, []string{"gemini", "offline"}, h.service.Chain())
	assert.True(t, h.service.Features()["knowledge_graph"])
	assert.False(t, h.service.Features()["digital_twin"])
}
