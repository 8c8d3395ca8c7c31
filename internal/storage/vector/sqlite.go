package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// SQLite keeps vectors as little-endian float32 blobs and scans them all on
// search. It suits the single-node deployment where the record store is
// SQLite too.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS record_vectors (
		id         TEXT PRIMARY KEY,
		dims       INTEGER NOT NULL,
		vector     BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrate vectors: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Upsert(ctx context.Context, id string, vec []float32, createdAt time.Time) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO record_vectors (id, dims, vector, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dims = excluded.dims, vector = excluded.vector, created_at = excluded.created_at`,
		id, len(vec), encode(vec), createdAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, vec []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, created_at FROM record_vectors WHERE dims = ?`, len(vec))
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id      string
			blob    []byte
			created int64
		)
		if err := rows.Scan(&id, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		matches = append(matches, Match{
			ID:        id,
			Score:     Cosine(vec, decode(blob)),
			CreatedAt: time.Unix(0, created).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Rank(matches, k), nil
}

func (s *SQLite) Get(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM record_vectors WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vector %s: %w", id, err)
	}
	return decode(blob), nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM record_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	return nil
}

func encode(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decode(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
