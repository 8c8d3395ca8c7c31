// Package faults collects and ranks failures from several sources so that
// only the most useful ones reach the end user.
package faults

import (
	"context"
	"errors"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxMessageLen bounds every message kept by the aggregator.
const MaxMessageLen = 180

type Kind string

const (
	KindRejected    Kind = "rejected"
	KindMalformed   Kind = "malformed"
	KindTransport   Kind = "transport"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindCanceled    Kind = "canceled"
)

// rank orders kinds by how much they tell an operator about the root cause.
var rank = map[Kind]int{
	KindRejected:    0,
	KindMalformed:   1,
	KindTransport:   2,
	KindUnavailable: 3,
	KindTimeout:     4,
	KindCanceled:    5,
}

type Entry struct {
	Source  string `json:"source"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e Entry) String() string {
	return e.Source + ": " + string(e.Kind) + ": " + e.Message
}

type Aggregator struct {
	mu      sync.Mutex
	entries []Entry
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add classifies err and records it under source. Nil errors are ignored.
func (a *Aggregator) Add(source string, err error) Entry {
	if err == nil {
		return Entry{}
	}
	e := Entry{
		Source:  source,
		Kind:    Classify(err),
		Message: Truncate(Redact(err.Error()), MaxMessageLen),
	}
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return e
}

func (a *Aggregator) Len() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Entries returns a copy of every entry in insertion order.
func (a *Aggregator) Entries() []Entry {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Top returns at most n entries, most informative first. Entries of the same
// kind keep the order in which they were added.
func (a *Aggregator) Top(n int) []Entry {
	entries := a.Entries()
	if n <= 0 || len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return rank[entries[i].Kind] < rank[entries[j].Kind]
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func (a *Aggregator) String() string {
	entries := a.Entries()
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// Classify maps an error to a Kind. Explicit ProviderError kinds win, then
// sentinels, then context and network errors. Everything else is transport.
func Classify(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

var secretParam = regexp.MustCompile(`(?i)\b((?:app_|api_|access_)?key|token|secret|password)=[^&\s"']+`)

// Redact masks credential-looking query parameters in s.
func Redact(s string) string {
	return secretParam.ReplaceAllString(s, "${1}=REDACTED")
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
