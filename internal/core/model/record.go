package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is the durable form of an analysis. The relational store owns it;
// the vector and graph entries are derived from it.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        Kind      `json:"kind"`
	Subject     string    `json:"subject"`
	HealthScore int       `json:"health_score"`
	Tier        int       `json:"tier"`
	Verdict     Verdict   `json:"verdict"`
	Summary     string    `json:"summary"`
	Warnings    []string  `json:"warnings"`
	Ingredients []string  `json:"ingredients"`
	Provider    string    `json:"provider"`
	Degraded    bool      `json:"degraded"`
	Fingerprint string    `json:"fingerprint"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewRecord(req *Request, res *Result) *Record {
	f := res.Findings
	subject := f.Product
	if subject == "" && req.Kind != KindFood {
		subject = firstLine(req.Text(), 80)
	}
	return &Record{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Kind:        req.Kind,
		Subject:     subject,
		HealthScore: int(f.HealthScore),
		Tier:        int(f.Tier),
		Verdict:     f.Verdict,
		Summary:     f.Summary,
		Warnings:    append([]string(nil), f.Warnings...),
		Ingredients: append([]string(nil), f.Ingredients...),
		Provider:    res.Provider,
		Degraded:    res.Degraded,
		Fingerprint: res.Fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
}

// Category is the classification node a record belongs to, e.g. "food/warning".
func (r *Record) Category() string {
	verdict := r.Verdict
	if verdict == "" {
		verdict = VerdictUnknown
	}
	return string(r.Kind) + "/" + strings.ToLower(string(verdict))
}

// EmbeddingText is the text embedded into the vector store.
func (r *Record) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", r.Subject)
	fmt.Fprintf(&b, "Health Score: %d\n", r.HealthScore)
	fmt.Fprintf(&b, "Ingredients: %s\n", strings.Join(r.Ingredients, ", "))
	fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(r.Warnings, ", "))
	if r.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", r.Summary)
	}
	return b.String()
}

func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return strings.TrimSpace(s)
}
