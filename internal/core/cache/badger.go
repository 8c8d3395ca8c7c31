package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/agenthands/bioguard/internal/core/model"
)

const keyPrefix = "result:"

type badgerEntry struct {
	Result    *model.Result `json:"result"`
	ExpiresAt int64         `json:"expires_at"`
}

// Badger keeps results on disk so they survive restarts. The expiry is
// stored with the value and compared on every read; badger's own TTL only
// reclaims space.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenBadger opens a cache at path, or an in-memory one when path is empty.
func OpenBadger(path string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Badger{db: db, logger: logger, now: time.Now}, nil
}

func (b *Badger) Get(_ context.Context, fingerprint string) (*model.Result, bool) {
	var entry badgerEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.logger.Warn("cache read failed", "fingerprint", fingerprint, "error", err)
		}
		return nil, false
	}
	if entry.Result == nil || b.now().UnixNano() >= entry.ExpiresAt {
		return nil, false
	}
	return entry.Result, true
}

func (b *Badger) Put(_ context.Context, fingerprint string, res *model.Result, ttl time.Duration) error {
	if ttl <= 0 || res == nil {
		return nil
	}
	val, err := json.Marshal(badgerEntry{Result: res, ExpiresAt: b.now().Add(ttl).UnixNano()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+fingerprint), val).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
