package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/storage/vector"
)

var errInjected = errors.New("injected failure")

// FlakyVectors fails writes while Fail is set.
type FlakyVectors struct {
	vector.Store

	mu      sync.Mutex
	Fail    bool
	Upserts int
}

func (f *FlakyVectors) SetFail(v bool) {
	f.mu.Lock()
	f.Fail = v
	f.mu.Unlock()
}

func (f *FlakyVectors) Upsert(ctx context.Context, id string, vec []float32, createdAt time.Time) error {
	f.mu.Lock()
	f.Upserts++
	fail := f.Fail
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.Upsert(ctx, id, vec, createdAt)
}

// FailingRecords fails every record insert.
type FailingRecords struct {
	RecordStore
}

func (FailingRecords) InsertRecord(context.Context, *model.Record) error {
	return errInjected
}

type MockEmbedder struct {
	Vector []float32
	Err    error
	Calls  int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}
