// Package core wires the analysis pipeline: provider orchestration,
// knowledge-graph checks and hybrid persistence, plus the read-only query
// interface over stored records.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/community"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/knowledge"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/core/orchestrator"
	"github.com/agenthands/bioguard/internal/core/provider"
	"github.com/agenthands/bioguard/internal/storage"
	"github.com/agenthands/bioguard/internal/storage/relational"
)

var ErrFeatureDisabled = errors.New("feature disabled")

// maxClusterRecords bounds how many of a user's records take part in
// clustering.
const maxClusterRecords = 500

type FederatedStore interface {
	SaveFederatedUpdate(ctx context.Context, u relational.FederatedUpdate) error
}

// Analysis is the outcome of a persisted analysis.
type Analysis struct {
	RecordID string        `json:"record_id"`
	Result   *model.Result `json:"result"`
}

type Cluster struct {
	Records []model.Record `json:"records"`
}

type Service struct {
	cfg          *config.Config
	orchestrator *orchestrator.Orchestrator
	storage      *storage.Manager
	federated    FederatedStore
	knowledge    *knowledge.Base
	detector     community.Detector
	chain        []provider.Descriptor
	logger       *slog.Logger
}

func NewService(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	store *storage.Manager,
	federated FederatedStore,
	kb *knowledge.Base,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if kb == nil {
		kb = knowledge.Default()
	}
	return &Service{
		cfg:          cfg,
		orchestrator: orch,
		storage:      store,
		federated:    federated,
		knowledge:    kb,
		detector:     community.NewDetector(),
		chain:        provider.BuildOrder(cfg.Features, cfg.Credentials.Present()),
		logger:       logger,
	}
}

// Chain returns the provider names tried for every request, in order.
func (s *Service) Chain() []string { return provider.Names(s.chain) }

func (s *Service) Features() map[string]bool { return s.cfg.Features.All() }

// Analyze runs req through the provider chain and persists the outcome.
// Errors are a *faults.ValidationError for bad input or a
// *faults.StorageError when the record could not be stored.
func (s *Service) Analyze(ctx context.Context, req *model.Request) (*Analysis, error) {
	res, agg, err := s.orchestrator.Analyze(ctx, req, s.chain)
	if err != nil {
		return nil, err
	}
	if agg.Len() > 0 {
		s.logger.Warn("providers failed before result",
			"user_id", req.UserID, "kind", req.Kind, "provider", res.Provider,
			"degraded", res.Degraded, "errors", agg.String())
	}

	if s.cfg.Features.Enabled(config.FlagKnowledgeGraph) && req.Profile != nil {
		terms := append(append([]string(nil), req.Profile.Conditions...), req.Profile.Allergies...)
		res.Conflicts = s.knowledge.FindConflicts(res.Findings.Ingredients, terms)
	}

	rec := model.NewRecord(req, res)
	// A client that went away still gets its analysis recorded.
	id, err := s.storage.Persist(context.WithoutCancel(ctx), rec)
	if err != nil {
		s.logger.Error("failed to persist analysis", "user_id", req.UserID, "error", err)
		return nil, err
	}

	s.logger.Info("analysis stored",
		"record_id", id, "user_id", req.UserID, "kind", req.Kind,
		"provider", res.Provider, "from_cache", res.FromCache, "latency", res.Latency)
	return &Analysis{RecordID: id, Result: res}, nil
}

// GetUserHistory returns the user's most recent records. A non-positive
// limit uses the configured default.
func (s *Service) GetUserHistory(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.storage.Query(ctx, userID, limit)
}

func (s *Service) GetSimilar(ctx context.Context, recordID string, k int) ([]storage.Similar, error) {
	if k <= 0 {
		k = s.cfg.Storage.SimilarNeighbors
	}
	return s.storage.SimilarTo(ctx, recordID, k)
}

// GetClusters groups the user's records that are linked by similarity
// edges. Records without a similar neighbour are left out.
func (s *Service) GetClusters(ctx context.Context, userID string) ([]Cluster, error) {
	recs, err := s.storage.Query(ctx, userID, maxClusterRecords)
	if err != nil {
		return nil, err
	}

	byNode := make(map[string]model.Record, len(recs))
	nodes := make([]string, 0, len(recs))
	var edges []model.Relation
	for _, r := range recs {
		node := model.RecordNode(r.ID)
		byNode[node] = r
		nodes = append(nodes, node)

		rels, err := s.storage.Related(ctx, node, model.RelSimilarTo)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			// Each edge is seen from both ends; keep one copy.
			if rel.From == node {
				edges = append(edges, rel)
			}
		}
	}

	groups, err := s.detector.Detect(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("detect clusters: %w", err)
	}
	clusters := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		c := Cluster{Records: make([]model.Record, 0, len(g))}
		for _, node := range g {
			c.Records = append(c.Records, byNode[node])
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func (s *Service) DeleteRecord(ctx context.Context, recordID string) error {
	return s.storage.Delete(ctx, recordID)
}

// SaveFederatedUpdate logs a client's model update. It requires the
// federated_learning flag.
func (s *Service) SaveFederatedUpdate(ctx context.Context, clientID string, weights json.RawMessage, accuracy float64) (string, error) {
	if !s.cfg.Features.Enabled(config.FlagFederatedLearning) {
		return "", fmt.Errorf("%w: %s", ErrFeatureDisabled, config.FlagFederatedLearning)
	}
	switch {
	case clientID == "":
		return "", &faults.ValidationError{Field: "client_id", Reason: "required"}
	case !json.Valid(weights):
		return "", &faults.ValidationError{Field: "model_weights", Reason: "not valid JSON"}
	case accuracy < 0 || accuracy > 1:
		return "", &faults.ValidationError{Field: "accuracy", Reason: "must be within [0, 1]"}
	}

	u := relational.FederatedUpdate{
		ID:           ulid.Make().String(),
		ClientID:     clientID,
		ModelWeights: weights,
		Accuracy:     accuracy,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.federated.SaveFederatedUpdate(ctx, u); err != nil {
		return "", &faults.StorageError{Store: "relational", Op: "save federated update", Err: err}
	}
	return u.ID, nil
}
