// Package relational is the source-of-truth record store. It speaks SQLite,
// PostgreSQL and MySQL through database/sql.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/agenthands/bioguard/internal/core/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, dialect, err := OpenDB(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB opens and pings a database handle. For sqlite the DSN is a file
// path; WAL mode and a busy timeout let concurrent writers queue instead of
// failing.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	dialect := Dialect(driver)
	switch dialect {
	case SQLite:
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, "", err
		}
	case Postgres, MySQL:
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}
	if dialect != SQLite {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return db, dialect, nil
}

// New wraps an open database and migrates it.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) (string, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstWords(stmt), err)
		}
	}
	return nil
}

func firstWords(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) > 6 {
		fields = fields[:6]
	}
	return strings.Join(fields, " ")
}

// DB exposes the handle so a co-located vector store can share it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

const recordColumns = `id, user_id, kind, subject, health_score, tier, verdict, summary,
	warnings, ingredients, provider, degraded, fingerprint, created_at`

func (s *Store) InsertRecord(ctx context.Context, rec *model.Record) error {
	warnings, err := json.Marshal(nonNil(rec.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	ingredients, err := json.Marshal(nonNil(rec.Ingredients))
	if err != nil {
		return fmt.Errorf("encode ingredients: %w", err)
	}
	degraded := 0
	if rec.Degraded {
		degraded = 1
	}
	verdict := rec.Verdict
	if verdict == "" {
		verdict = model.VerdictUnknown
	}

	_, err = s.exec(ctx, `INSERT INTO analysis_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Kind), truncate(rec.Subject, 255),
		rec.HealthScore, rec.Tier, string(verdict), rec.Summary,
		string(warnings), string(ingredients), rec.Provider, degraded,
		rec.Fingerprint, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM analysis_records WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return &recs[0], nil
}

// ListByUser returns a user's records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM analysis_records
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return scanRecords(rows)
}

// GetRecords loads the given ids. Missing ids are skipped; order follows ids.
func (s *Store) GetRecords(ctx context.Context, ids []string) ([]model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM analysis_records WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]model.Record, 0, len(recs))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM analysis_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		var (
			r                     model.Record
			kind, verdict         string
			summary               sql.NullString
			warnings, ingredients sql.NullString
			degraded              int
			createdAt             int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &kind, &r.Subject, &r.HealthScore, &r.Tier,
			&verdict, &summary, &warnings, &ingredients, &r.Provider, &degraded,
			&r.Fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Kind = model.Kind(kind)
		r.Verdict = model.Verdict(verdict)
		r.Summary = summary.String
		r.Degraded = degraded != 0
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings of record %s: %w", r.ID, err)
			}
		}
		if ingredients.Valid && ingredients.String != "" {
			if err := json.Unmarshal([]byte(ingredients.String), &r.Ingredients); err != nil {
				return nil, fmt.Errorf("decode ingredients of record %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
