package relational

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/bioguard/internal/core/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, user string, at time.Time) *model.Record {
	return &model.Record{
		ID:          id,
		UserID:      user,
		Kind:        model.KindFood,
		Subject:     "Oat Bar",
		HealthScore: 81,
		Tier:        3,
		Verdict:     model.VerdictSafe,
		Summary:     "fine",
		Warnings:    []string{"High sugar"},
		Ingredients: []string{"oats", "sugar"},
		Provider:    "gemini",
		Fingerprint: "fp-" + id,
		CreatedAt:   at,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, s.InsertRecord(ctx, record("r1", "u1", at)))

	got, err := s.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 81, got.HealthScore)
	assert.Equal(t, 3, got.Tier)
	assert.Equal(t, model.VerdictSafe, got.Verdict)
	assert.Equal(t, []string{"oats", "sugar"}, got.Ingredients)
	assert.True(t, got.CreatedAt.Equal(at))

	_, err = s.GetRecord(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_CorruptListColumnsAreErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertRecord(ctx, record("r1", "u1", time.Now())))

	_, err := s.DB().Exec(`UPDATE analysis_records SET ingredients = '{not json' WHERE id = 'r1'`)
	require.NoError(t, err)

	_, err = s.GetRecord(ctx, "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode ingredients of record r1")

	_, err = s.ListByUser(ctx, "u1", 10)
	assert.Error(t, err)
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(context.Background(), "sqlite", filepath.Join(blocker, "sub", "test.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create db dir")
}

func TestStore_ScoreCoercion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var good, bad model.Findings
	require.NoError(t, json.Unmarshal([]byte(`{"health_score":"87"}`), &good))
	require.NoError(t, json.Unmarshal([]byte(`{"health_score":"n/a"}`), &bad))

	r1 := record("r1", "u1", time.Now())
	r1.HealthScore = int(good.HealthScore)
	r2 := record("r2", "u1", time.Now())
	r2.HealthScore = int(bad.HealthScore)
	require.NoError(t, s.InsertRecord(ctx, r1))
	require.NoError(t, s.InsertRecord(ctx, r2))

	var raw1, raw2 any
	require.NoError(t, s.DB().QueryRow(`SELECT health_score FROM analysis_records WHERE id = 'r1'`).Scan(&raw1))
	require.NoError(t, s.DB().QueryRow(`SELECT health_score FROM analysis_records WHERE id = 'r2'`).Scan(&raw2))
	assert.Equal(t, int64(87), raw1)
	assert.Equal(t, int64(0), raw2)
}

func TestStore_ListByUserNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.InsertRecord(ctx, record("a", "u1", base.Add(-2*time.Hour))))
	require.NoError(t, s.InsertRecord(ctx, record("b", "u1", base)))
	require.NoError(t, s.InsertRecord(ctx, record("c", "u1", base.Add(-time.Hour))))
	require.NoError(t, s.InsertRecord(ctx, record("d", "u2", base)))

	recs, err := s.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	recs, err = s.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStore_GetRecordsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertRecord(ctx, record("a", "u1", time.Now())))
	require.NoError(t, s.InsertRecord(ctx, record("b", "u1", time.Now())))

	recs, err := s.GetRecords(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, "a", recs[1].ID)

	require.NoError(t, s.DeleteRecord(ctx, "a"))
	assert.True(t, errors.Is(s.DeleteRecord(ctx, "a"), ErrNotFound))
}

func TestStore_Tasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.EnqueueTask(ctx, Task{ID: "t1", RecordID: "r1", Kind: TaskVector, Attempts: 1, NextAttemptAt: now.Add(-time.Second)}))
	require.NoError(t, s.EnqueueTask(ctx, Task{ID: "t2", RecordID: "r1", Kind: TaskGraph, Attempts: 1, NextAttemptAt: now.Add(time.Hour)}))

	due, err := s.DueTasks(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "t1", due[0].ID)
	assert.Equal(t, TaskPending, due[0].Status)

	due[0].Status = TaskDone
	require.NoError(t, s.UpdateTask(ctx, due[0]))
	due, err = s.DueTasks(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.DeletePendingTasks(ctx, "r1"))
	tasks, err := s.TasksForRecord(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskDone, tasks[0].Status)
}

func TestStore_FederatedUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.SaveFederatedUpdate(ctx, FederatedUpdate{ID: "1", ClientID: "c", ModelWeights: json.RawMessage(`[0.1]`), Accuracy: 0.7, CreatedAt: base}))
	require.NoError(t, s.SaveFederatedUpdate(ctx, FederatedUpdate{ID: "2", ClientID: "c", ModelWeights: json.RawMessage(`[0.2]`), Accuracy: 0.8, CreatedAt: base.Add(time.Minute)}))

	ups, err := s.FederatedUpdates(ctx, "c", 10)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, "2", ups[0].ID)
	assert.JSONEq(t, `[0.2]`, string(ups[0].ModelWeights))
}

func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", Postgres.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", SQLite.rebind("a = ?"))
}

func TestDialect_MySQLSchemaInlinesIndexes(t *testing.T) {
	for _, stmt := range MySQL.schema() {
		assert.NotContains(t, stmt, "CREATE INDEX")
	}
	var sawIndex bool
	for _, stmt := range Postgres.schema() {
		if len(stmt) > 12 && stmt[:12] == "CREATE INDEX" {
			sawIndex = true
		}
	}
	assert.True(t, sawIndex)
}
