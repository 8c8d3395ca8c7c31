// Package vector stores record embeddings and answers nearest-neighbour
// queries by cosine similarity.
package vector

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

var ErrNotFound = errors.New("vector not found")

type Match struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Upsert(ctx context.Context, id string, vec []float32, createdAt time.Time) error
	// Search returns up to k matches, most similar first; equal scores put
	// the most recently created record first.
	Search(ctx context.Context, vec []float32, k int) ([]Match, error)
	Get(ctx context.Context, id string) ([]float32, error)
	Delete(ctx context.Context, id string) error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank orders matches by score, then recency, then id, and keeps k.
func Rank(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
