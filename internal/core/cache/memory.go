package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/bioguard/internal/core/model"
)

type memoryEntry struct {
	result  *model.Result
	expires time.Time
}

// Memory is a process-local cache. Each key is updated independently.
type Memory struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (*model.Result, bool) {
	v, ok := m.entries.Load(fingerprint)
	if !ok {
		return nil, false
	}
	e := v.(*memoryEntry)
	if !m.now().Before(e.expires) {
		m.entries.CompareAndDelete(fingerprint, e)
		return nil, false
	}
	return e.result.Clone(), true
}

func (m *Memory) Put(_ context.Context, fingerprint string, res *model.Result, ttl time.Duration) error {
	if ttl <= 0 || res == nil {
		return nil
	}
	m.entries.Store(fingerprint, &memoryEntry{result: res.Clone(), expires: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Close() error { return nil }
