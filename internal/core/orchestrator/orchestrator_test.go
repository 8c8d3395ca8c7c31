package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/cache"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/core/provider"
)

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.Load("", nil, nil)
	require.NoError(t, err)
	cfg.ProviderTimeout = 50 * time.Millisecond
	return cfg
}

func chainOf(names ...string) []provider.Descriptor {
	var chain []provider.Descriptor
	for i, n := range names {
		chain = append(chain, provider.Descriptor{Name: n, Capabilities: model.Kinds, Priority: i})
	}
	return append(chain, provider.Offline)
}

func newOrchestrator(t *testing.T, c cache.Cache, providers ...provider.Provider) *Orchestrator {
	m := map[string]provider.Provider{}
	for _, p := range providers {
		m[p.Name()] = p
	}
	return New(testConfig(t), m, c, nil, nil)
}

func chatRequest(text string) *model.Request {
	return model.NewRequest("user-1", model.KindChat, []byte(text), "", nil)
}

func TestAnalyze_FirstProviderWins(t *testing.T) {
	a := &MockProvider{ProviderName: "a", Findings: &model.Findings{Product: "A", HealthScore: 90}}
	b := &MockProvider{ProviderName: "b", Findings: &model.Findings{Product: "B"}}
	o := newOrchestrator(t, cache.NewMemory(), a, b)

	res, agg, err := o.Analyze(context.Background(), chatRequest("hello"), chainOf("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, "a", res.Provider)
	assert.Equal(t, "A", res.Findings.Product)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, agg.Len())
	assert.Equal(t, int32(0), b.Calls.Load(), "later providers are not touched")
}

func TestAnalyze_FallsThroughToSecond(t *testing.T) {
	a := &MockProvider{ProviderName: "a", Err: errors.New("connection refused")}
	b := &MockProvider{ProviderName: "b", Findings: &model.Findings{Product: "B"}}
	o := newOrchestrator(t, cache.NewMemory(), a, b)

	res, agg, err := o.Analyze(context.Background(), chatRequest("hello"), chainOf("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, "b", res.Provider)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Errors, "errors before a success are for logs only")
	require.Equal(t, 1, agg.Len())
	assert.Equal(t, faults.KindTransport, agg.Entries()[0].Kind)
}

func TestAnalyze_AllFailDegradesWithTwoErrors(t *testing.T) {
	providers := []provider.Provider{
		&MockProvider{ProviderName: "a", Block: true},
		&MockProvider{ProviderName: "b", Err: errors.New("EOF")},
		&MockProvider{ProviderName: "c", Err: fmt.Errorf("bad json: %w", faults.ErrMalformed)},
		&MockProvider{ProviderName: "d", Err: fmt.Errorf("quota: %w", faults.ErrRejected)},
	}
	c := cache.NewMemory()
	o := newOrchestrator(t, c, providers...)

	req := chatRequest("hello")
	res, agg, err := o.Analyze(context.Background(), req, chainOf("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, provider.OfflineName, res.Provider)
	assert.Equal(t, 4, agg.Len())
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "d", res.Errors[0].Source)
	assert.Equal(t, "c", res.Errors[1].Source)

	_, cached := c.Get(context.Background(), cache.Fingerprint(o.Secret, req))
	assert.False(t, cached, "degraded results are never cached")
}

func TestAnalyze_MissingCredentialAndTimeout(t *testing.T) {
	cfg := testConfig(t)
	table := []provider.Descriptor{
		{Name: "provider-a", CredentialKey: "A_KEY", Capabilities: model.Kinds, Priority: 1},
		{Name: "provider-b", CredentialKey: "B_KEY", Capabilities: model.Kinds, Priority: 2},
	}
	chain := provider.BuildOrderFrom(table, cfg.Features, map[string]bool{"B_KEY": true})
	require.Equal(t, []string{"provider-b", "offline"}, provider.Names(chain))

	b := &MockProvider{ProviderName: "provider-b", Block: true}
	o := New(cfg, map[string]provider.Provider{"provider-b": b}, cache.NewMemory(), nil, nil)

	res, _, err := o.Analyze(context.Background(), chatRequest("hello"), chain)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, provider.OfflineName, res.Provider)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "provider-b", res.Errors[0].Source)
	assert.Equal(t, faults.KindTimeout, res.Errors[0].Kind)
}

func TestAnalyze_TimeoutEnforcedForStubbornProvider(t *testing.T) {
	s := &StubbornProvider{Release: make(chan struct{})}
	defer close(s.Release)
	o := newOrchestrator(t, nil, s)

	start := time.Now()
	res, _, err := o.Analyze(context.Background(), chatRequest("hello"), chainOf("stubborn"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Degraded)
	assert.Equal(t, faults.KindTimeout, res.Errors[0].Kind)
}

func TestAnalyze_SkipsUnsupportedKinds(t *testing.T) {
	foodOnly := &MockProvider{ProviderName: "food-only", Findings: &model.Findings{Product: "x"}}
	o := newOrchestrator(t, nil, foodOnly)
	chain := []provider.Descriptor{
		{Name: "food-only", Capabilities: []model.Kind{model.KindFood}},
		provider.Offline,
	}

	res, agg, err := o.Analyze(context.Background(), chatRequest("hello"), chain)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, agg.Len())
	assert.Equal(t, int32(0), foodOnly.Calls.Load())
}

func TestAnalyze_FoodImageSkipsTextOnlyProvidersSilently(t *testing.T) {
	cfg := testConfig(t)
	chain := provider.BuildOrderFrom(provider.Registry, cfg.Features, map[string]bool{
		"ANTHROPIC_API_KEY":        true,
		"OPENFOODFACTS_USER_AGENT": true,
		"USDA_API_KEY":             true,
		"EDAMAM_APP_KEY":           true,
	})
	require.Equal(t, []string{"claude", "openfoodfacts", "fooddata", "edamam", "offline"}, provider.Names(chain))

	claude := &MockProvider{ProviderName: "claude", Findings: &model.Findings{Product: "x"}}
	off := &MockProvider{ProviderName: "openfoodfacts", Findings: &model.Findings{Product: "x"}}
	fooddata := &MockProvider{ProviderName: "fooddata", Findings: &model.Findings{Product: "x"}}
	edamam := &MockProvider{ProviderName: "edamam", Err: fmt.Errorf("quota: %w", faults.ErrRejected)}
	o := New(cfg, map[string]provider.Provider{
		"claude": claude, "openfoodfacts": off, "fooddata": fooddata, "edamam": edamam,
	}, nil, nil, nil)

	img := []byte{0x89, 'P', 'N', 'G'}
	res, agg, err := o.Analyze(context.Background(), model.NewRequest("user-1", model.KindFood, img, "image/png", nil), chain)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, 1, agg.Len())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "edamam", res.Errors[0].Source)
	assert.Equal(t, int32(1), edamam.Calls.Load())
	assert.Zero(t, claude.Calls.Load())
	assert.Zero(t, off.Calls.Load())
	assert.Zero(t, fooddata.Calls.Load())

	// a scanned document reaches no text-only model and records nothing
	res, agg, err = o.Analyze(context.Background(), model.NewRequest("user-1", model.KindDocument, img, "image/png", nil), chain)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, agg.Len())
	assert.Zero(t, claude.Calls.Load())
}

func TestAnalyze_CacheHitSkipsProviders(t *testing.T) {
	a := &MockProvider{ProviderName: "a", Findings: &model.Findings{Product: "A"}}
	o := newOrchestrator(t, cache.NewMemory(), a)
	chain := chainOf("a")

	first, _, err := o.Analyze(context.Background(), chatRequest("Is salt bad?"), chain)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, _, err := o.Analyze(context.Background(), chatRequest("is  salt bad?"), chain)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, int32(1), a.Calls.Load())
}

func TestAnalyze_CanceledContextFallsToOffline(t *testing.T) {
	a := &MockProvider{ProviderName: "a", Findings: &model.Findings{Product: "A"}}
	o := newOrchestrator(t, nil, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, _, err := o.Analyze(ctx, chatRequest("hello"), chainOf("a"))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, int32(0), a.Calls.Load())
}

func TestAnalyze_UnconfiguredProviderIsUnavailable(t *testing.T) {
	o := newOrchestrator(t, nil)
	res, _, err := o.Analyze(context.Background(), chatRequest("hello"), chainOf("ghost"))
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, faults.KindUnavailable, res.Errors[0].Kind)
}

func TestAnalyze_ValidationBeforeProviders(t *testing.T) {
	a := &MockProvider{ProviderName: "a", Findings: &model.Findings{}}
	o := newOrchestrator(t, nil, a)
	o.MaxContentBytes = 10

	var verr *faults.ValidationError

	_, _, err := o.Analyze(context.Background(), chatRequest(strings.Repeat("x", 11)), chainOf("a"))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Content", verr.Field)

	_, _, err = o.Analyze(context.Background(), model.NewRequest("", model.KindChat, []byte("hi"), "", nil), chainOf("a"))
	require.True(t, errors.As(err, &verr))

	_, _, err = o.Analyze(context.Background(), model.NewRequest("u", "video", []byte("hi"), "", nil), chainOf("a"))
	require.True(t, errors.As(err, &verr))

	_, _, err = o.Analyze(context.Background(), model.NewRequest("u", model.KindChat, nil, "", nil), chainOf("a"))
	require.True(t, errors.As(err, &verr))

	assert.Equal(t, int32(0), a.Calls.Load())
}
