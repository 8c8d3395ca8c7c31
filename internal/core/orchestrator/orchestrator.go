// Package orchestrator runs a request through a provider chain, one provider
// at a time, until one succeeds.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/cache"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/core/provider"
	"github.com/agenthands/bioguard/internal/metrics"
)

// MaxSurfacedErrors bounds the errors attached to a degraded result.
const MaxSurfacedErrors = 2

type Orchestrator struct {
	Providers       map[string]provider.Provider
	Cache           cache.Cache
	Timeout         time.Duration
	CacheTTL        time.Duration
	MaxContentBytes int64
	Secret          string
	Logger          *slog.Logger
	Metrics         *metrics.Metrics

	validate *validator.Validate
	offline  provider.Provider
}

func New(cfg *config.Config, providers map[string]provider.Provider, c cache.Cache, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	offline, ok := providers[provider.OfflineName]
	if !ok {
		offline = provider.NewOffline()
	}
	return &Orchestrator{
		Providers:       providers,
		Cache:           c,
		Timeout:         cfg.ProviderTimeout,
		CacheTTL:        cfg.CacheTTL,
		MaxContentBytes: cfg.MaxContentBytes,
		Secret:          cfg.SecretKey,
		Logger:          logger,
		Metrics:         m,
		validate:        validator.New(),
		offline:         offline,
	}
}

// Validate rejects malformed or oversized requests.
func (o *Orchestrator) Validate(req *model.Request) error {
	if req == nil {
		return &faults.ValidationError{Reason: "empty request"}
	}
	if err := o.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &faults.ValidationError{Field: verrs[0].Field(), Reason: "failed " + verrs[0].Tag() + " check"}
		}
		return &faults.ValidationError{Reason: err.Error()}
	}
	if o.MaxContentBytes > 0 && int64(len(req.Content)) > o.MaxContentBytes {
		return &faults.ValidationError{
			Field:  "Content",
			Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(req.Content), o.MaxContentBytes),
		}
	}
	return nil
}

// Analyze validates req, consults the cache and then walks chain in order.
// The returned aggregator holds every provider failure for logging; only a
// degraded result carries (at most two of) them to the caller. A non-nil
// error is always a *faults.ValidationError.
func (o *Orchestrator) Analyze(ctx context.Context, req *model.Request, chain []provider.Descriptor) (*model.Result, *faults.Aggregator, error) {
	if err := o.Validate(req); err != nil {
		return nil, nil, err
	}

	fp := cache.Fingerprint(o.Secret, req)
	if o.Cache != nil {
		if res, ok := o.Cache.Get(ctx, fp); ok {
			o.Metrics.CacheLookup(true)
			res.FromCache = true
			return res, faults.NewAggregator(), nil
		}
		o.Metrics.CacheLookup(false)
	}

	agg := faults.NewAggregator()
	for _, d := range chain {
		if d.IsOffline() {
			break
		}
		if !d.Accepts(req) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		p, ok := o.Providers[d.Name]
		if !ok {
			agg.Add(d.Name, fmt.Errorf("%w: not configured", faults.ErrUnavailable))
			continue
		}

		start := time.Now()
		findings, err := o.call(ctx, p, req)
		latency := time.Since(start)
		if err != nil {
			e := agg.Add(d.Name, err)
			o.Metrics.ObserveProvider(d.Name, string(e.Kind), latency)
			o.Logger.Warn("provider failed", "provider", d.Name, "kind", e.Kind, "error", e.Message, "latency", latency)
			continue
		}
		o.Metrics.ObserveProvider(d.Name, "ok", latency)

		res := &model.Result{
			Provider:    d.Name,
			Findings:    *findings,
			Latency:     latency,
			Fingerprint: fp,
		}
		if o.Cache != nil {
			if err := o.Cache.Put(ctx, fp, res, o.CacheTTL); err != nil {
				o.Logger.Warn("cache write failed", "fingerprint", fp, "error", err)
			}
		}
		return res, agg, nil
	}

	return o.degrade(req, fp, agg), agg, nil
}

// call runs one provider under the per-call timeout. The deadline is enforced
// here even if the provider ignores its context.
func (o *Orchestrator) call(ctx context.Context, p provider.Provider, req *model.Request) (*model.Findings, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	type outcome struct {
		findings *model.Findings
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		f, err := p.Analyze(callCtx, req)
		done <- outcome{f, err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.findings == nil {
			return nil, fmt.Errorf("%w: empty findings", faults.ErrMalformed)
		}
		return out.findings, out.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}

func (o *Orchestrator) degrade(req *model.Request, fp string, agg *faults.Aggregator) *model.Result {
	start := time.Now()
	findings, err := o.offline.Analyze(context.Background(), req)
	if err != nil || findings == nil {
		findings, _ = provider.NewOffline().Analyze(context.Background(), req)
	}
	o.Metrics.Degraded()
	if agg.Len() > 0 {
		o.Logger.Warn("all providers failed, returning offline result", "errors", agg.String())
	}
	return &model.Result{
		Provider:    provider.OfflineName,
		Findings:    *findings,
		Latency:     time.Since(start),
		Fingerprint: fp,
		Degraded:    true,
		Errors:      agg.Top(MaxSurfacedErrors),
	}
}
