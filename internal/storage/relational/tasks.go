package relational

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type TaskKind string

const (
	TaskVector TaskKind = "vector"
	TaskGraph  TaskKind = "graph"
	// TaskPurge removes derived vector and graph entries of a deleted record.
	TaskPurge TaskKind = "purge"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// Task is a queued enrichment write that failed and awaits a retry.
type Task struct {
	ID            string
	RecordID      string
	Kind          TaskKind
	Status        TaskStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

func (s *Store) EnqueueTask(ctx context.Context, t Task) error {
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO enrichment_tasks
		(id, record_id, kind, status, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RecordID, string(t.Kind), string(t.Status), t.Attempts,
		t.NextAttemptAt.UnixNano(), truncate(t.LastError, 1000), t.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// DueTasks returns pending tasks whose next attempt is at or before now,
// oldest first.
func (s *Store) DueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	rows, err := s.query(ctx, `SELECT id, record_id, kind, status, attempts, next_attempt_at, last_error, created_at
		FROM enrichment_tasks
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at, id
		LIMIT ?`, string(TaskPending), now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	return scanTasks(rows)
}

// TasksForRecord lists every task of a record regardless of status.
func (s *Store) TasksForRecord(ctx context.Context, recordID string) ([]Task, error) {
	rows, err := s.query(ctx, `SELECT id, record_id, kind, status, attempts, next_attempt_at, last_error, created_at
		FROM enrichment_tasks WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("tasks for record: %w", err)
	}
	return scanTasks(rows)
}

func (s *Store) UpdateTask(ctx context.Context, t Task) error {
	_, err := s.exec(ctx, `UPDATE enrichment_tasks
		SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ?`,
		string(t.Status), t.Attempts, t.NextAttemptAt.UnixNano(), truncate(t.LastError, 1000), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	return nil
}

// DeletePendingTasks drops pending vector and graph tasks for a record.
func (s *Store) DeletePendingTasks(ctx context.Context, recordID string) error {
	_, err := s.exec(ctx, `DELETE FROM enrichment_tasks WHERE record_id = ? AND status = ? AND kind <> ?`,
		recordID, string(TaskPending), string(TaskPurge))
	if err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var (
			t             Task
			kind, status  string
			next, created int64
			lastErr       sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.RecordID, &kind, &status, &t.Attempts, &next, &lastErr, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Kind = TaskKind(kind)
		t.Status = TaskStatus(status)
		t.NextAttemptAt = time.Unix(0, next).UTC()
		t.CreatedAt = time.Unix(0, created).UTC()
		t.LastError = lastErr.String
		out = append(out, t)
	}
	return out, rows.Err()
}
