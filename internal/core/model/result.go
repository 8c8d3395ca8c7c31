package model

import (
	"time"

	"github.com/agenthands/bioguard/internal/core/faults"
)

// Result is the successful outcome of an analysis. Errors is only populated
// on degraded results.
type Result struct {
	Provider    string         `json:"provider"`
	Findings    Findings       `json:"findings"`
	Latency     time.Duration  `json:"latency_ns"`
	Fingerprint string         `json:"fingerprint"`
	Degraded    bool           `json:"degraded"`
	FromCache   bool           `json:"from_cache"`
	Errors      []faults.Entry `json:"errors,omitempty"`
	Conflicts   []Conflict     `json:"conflicts,omitempty"`
}

func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Findings = r.Findings.Clone()
	out.Errors = append([]faults.Entry(nil), r.Errors...)
	out.Conflicts = append([]Conflict(nil), r.Conflicts...)
	return &out
}

// Conflict is a known ingredient to health-condition interaction found for a
// user's medical profile.
type Conflict struct {
	Ingredient string `json:"ingredient"`
	Condition  string `json:"condition"`
	Relation   string `json:"relation"`
	Severity   string `json:"severity"`
}
