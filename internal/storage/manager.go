// Package storage keeps an analysis record consistent across the relational,
// vector and graph stores. The relational store is the source of truth;
// vector and graph entries are derived enrichment that is retried in the
// background when a write fails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/llm"
	"github.com/agenthands/bioguard/internal/metrics"
	"github.com/agenthands/bioguard/internal/storage/graph"
	"github.com/agenthands/bioguard/internal/storage/relational"
	"github.com/agenthands/bioguard/internal/storage/vector"
)

// RecordStore is the part of relational.Store the manager depends on.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Record, error)
	GetRecords(ctx context.Context, ids []string) ([]model.Record, error)
	DeleteRecord(ctx context.Context, id string) error

	EnqueueTask(ctx context.Context, t relational.Task) error
	DueTasks(ctx context.Context, now time.Time, limit int) ([]relational.Task, error)
	UpdateTask(ctx context.Context, t relational.Task) error
	DeletePendingTasks(ctx context.Context, recordID string) error
}

// Similar is a stored record with its cosine similarity to a query.
type Similar struct {
	Record model.Record `json:"record"`
	Score  float64      `json:"score"`
}

type Manager struct {
	records  RecordStore
	vectors  vector.Store
	graph    graph.Store
	embedder llm.EmbedderClient

	neighbors   int
	threshold   float64
	ingredients bool
	backoff     time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	locks   *keyedMutex
	now     func() time.Time
}

func NewManager(
	cfg *config.Config,
	records RecordStore,
	vectors vector.Store,
	g graph.Store,
	embedder llm.EmbedderClient,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		records:     records,
		vectors:     vectors,
		graph:       g,
		embedder:    embedder,
		neighbors:   cfg.Storage.SimilarNeighbors,
		threshold:   cfg.Storage.SimilarThreshold,
		ingredients: cfg.Features.Enabled(config.FlagKnowledgeGraph),
		backoff:     cfg.Reconcile.BaseBackoff,
		logger:      logger,
		metrics:     m,
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Persist writes rec to the relational store and then enriches the vector
// and graph stores. Only the relational write can fail the call; enrichment
// failures are queued for the reconciler. Degraded records never reach the
// vector store.
func (m *Manager) Persist(ctx context.Context, rec *model.Record) (string, error) {
	unlock := m.locks.Lock(rec.ID)
	defer unlock()

	if err := m.records.InsertRecord(ctx, rec); err != nil {
		return "", &faults.StorageError{Store: "relational", Op: "insert", Err: err}
	}

	if !rec.Degraded {
		if err := m.writeVector(ctx, rec); err != nil {
			m.enqueue(ctx, rec.ID, relational.TaskVector, err)
		}
	}
	if err := m.writeGraph(ctx, rec); err != nil {
		m.enqueue(ctx, rec.ID, relational.TaskGraph, err)
	}
	return rec.ID, nil
}

func (m *Manager) writeVector(ctx context.Context, rec *model.Record) error {
	if len(rec.Embedding) == 0 {
		vec, err := m.embedder.Embed(ctx, rec.EmbeddingText())
		if err != nil {
			return fmt.Errorf("embed record: %w", err)
		}
		rec.Embedding = vec
	}
	return m.vectors.Upsert(ctx, rec.ID, rec.Embedding, rec.CreatedAt)
}

func (m *Manager) writeGraph(ctx context.Context, rec *model.Record) error {
	recNode := model.RecordNode(rec.ID)
	rels := []model.Relation{
		{From: model.UserNode(rec.UserID), To: recNode, Type: model.RelOwns, Weight: 1},
		{From: recNode, To: model.CategoryNode(rec.Category()), Type: model.RelClassifiedAs, Weight: 1},
	}
	if m.ingredients {
		for _, ing := range rec.Ingredients {
			if model.NormalizeTerm(ing) == "" {
				continue
			}
			rels = append(rels, model.Relation{From: recNode, To: model.IngredientNode(ing), Type: model.RelContains, Weight: 1})
		}
	}

	similar, err := m.similarEdges(ctx, rec)
	if err != nil {
		return err
	}
	rels = append(rels, similar...)

	for _, rel := range rels {
		if err := m.graph.Relate(ctx, rel); err != nil {
			return fmt.Errorf("relate %s: %w", rel.Key(), err)
		}
	}
	return nil
}

// similarEdges links rec to its nearest stored neighbours scoring at least
// the threshold. Records without a stored vector get no such edges.
func (m *Manager) similarEdges(ctx context.Context, rec *model.Record) ([]model.Relation, error) {
	if rec.Degraded || m.neighbors <= 0 {
		return nil, nil
	}
	vec := rec.Embedding
	if len(vec) == 0 {
		stored, err := m.vectors.Get(ctx, rec.ID)
		if errors.Is(err, vector.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		vec = stored
	}

	matches, err := m.vectors.Search(ctx, vec, m.neighbors+1)
	if err != nil {
		return nil, fmt.Errorf("similar records: %w", err)
	}
	var rels []model.Relation
	for _, match := range matches {
		if match.ID == rec.ID || match.Score < m.threshold {
			continue
		}
		rels = append(rels, model.Relation{
			From:       model.RecordNode(rec.ID),
			To:         model.RecordNode(match.ID),
			Type:       model.RelSimilarTo,
			Weight:     match.Score,
			Properties: map[string]string{"score": strconv.FormatFloat(match.Score, 'f', 4, 64)},
		})
		if len(rels) == m.neighbors {
			break
		}
	}
	return rels, nil
}

func (m *Manager) enqueue(ctx context.Context, recordID string, kind relational.TaskKind, cause error) {
	m.metrics.EnrichmentFailed(string(kind))
	m.logger.Warn("enrichment failed, queued for retry", "record_id", recordID, "task", kind, "error", cause)

	task := relational.Task{
		ID:            ulid.Make().String(),
		RecordID:      recordID,
		Kind:          kind,
		Attempts:      1,
		NextAttemptAt: m.now().Add(m.backoff),
		LastError:     cause.Error(),
		CreatedAt:     m.now(),
	}
	// The request context may already be done; the task must still land.
	if err := m.records.EnqueueTask(context.WithoutCancel(ctx), task); err != nil {
		m.logger.Error("failed to queue enrichment task", "record_id", recordID, "task", kind, "error", err)
	}
}

// Query returns a user's records, most recent first.
func (m *Manager) Query(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	recs, err := m.records.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, &faults.StorageError{Store: "relational", Op: "query", Err: err}
	}
	return recs, nil
}

func (m *Manager) Get(ctx context.Context, recordID string) (*model.Record, error) {
	rec, err := m.records.GetRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return nil, err
		}
		return nil, &faults.StorageError{Store: "relational", Op: "get", Err: err}
	}
	return rec, nil
}

// FindSimilar returns the ids of the k stored vectors closest to embedding.
func (m *Manager) FindSimilar(ctx context.Context, embedding []float32, k int) ([]vector.Match, error) {
	matches, err := m.vectors.Search(ctx, embedding, k)
	if err != nil {
		return nil, &faults.StorageError{Store: "vector", Op: "search", Err: err}
	}
	return matches, nil
}

// SimilarTo returns up to k records similar to recordID, excluding itself.
// Records missing from the vector store are embedded on the fly.
func (m *Manager) SimilarTo(ctx context.Context, recordID string, k int) ([]Similar, error) {
	rec, err := m.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	vec, err := m.vectors.Get(ctx, recordID)
	if errors.Is(err, vector.ErrNotFound) {
		vec, err = m.embedder.Embed(ctx, rec.EmbeddingText())
	}
	if err != nil {
		return nil, &faults.StorageError{Store: "vector", Op: "get", Err: err}
	}

	matches, err := m.FindSimilar(ctx, vec, k+1)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(matches))
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.ID == recordID {
			continue
		}
		scores[match.ID] = match.Score
		ids = append(ids, match.ID)
	}
	if len(ids) > k {
		ids = ids[:k]
	}

	recs, err := m.records.GetRecords(ctx, ids)
	if err != nil {
		return nil, &faults.StorageError{Store: "relational", Op: "get", Err: err}
	}
	out := make([]Similar, 0, len(recs))
	for _, r := range recs {
		out = append(out, Similar{Record: r, Score: scores[r.ID]})
	}
	return out, nil
}

// Related returns the graph edges of type relType touching nodeID.
func (m *Manager) Related(ctx context.Context, nodeID string, relType model.RelationType) ([]model.Relation, error) {
	rels, err := m.graph.Neighbors(ctx, nodeID, relType)
	if err != nil {
		return nil, &faults.StorageError{Store: "graph", Op: "neighbors", Err: err}
	}
	return rels, nil
}

// Delete removes the record together with its vector and graph node. Pending
// enrichment for the record is dropped; derived entries that cannot be
// removed now are purged by the reconciler.
func (m *Manager) Delete(ctx context.Context, recordID string) error {
	unlock := m.locks.Lock(recordID)
	defer unlock()

	if err := m.records.DeleteRecord(ctx, recordID); err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return err
		}
		return &faults.StorageError{Store: "relational", Op: "delete", Err: err}
	}
	if err := m.records.DeletePendingTasks(ctx, recordID); err != nil {
		m.logger.Warn("failed to drop pending tasks", "record_id", recordID, "error", err)
	}
	if err := m.purge(ctx, recordID); err != nil {
		m.enqueue(ctx, recordID, relational.TaskPurge, err)
	}
	return nil
}

func (m *Manager) purge(ctx context.Context, recordID string) error {
	return errors.Join(
		m.vectors.Delete(ctx, recordID),
		m.graph.DeleteNode(ctx, model.RecordNode(recordID)),
	)
}
