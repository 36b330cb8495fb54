package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one persisted JSON blob plus its generation marker.
type Record struct {
	Key       string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// RecordStore is the persistence port. WriteRecord succeeds only when
// expectedVersion matches the stored version (0 for a record that does not
// exist yet) and returns the new version.
type RecordStore interface {
	ReadRecord(ctx context.Context, key string) (Record, error)
	WriteRecord(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error)
	ListRecords(ctx context.Context, prefix string) ([]Record, error)
	Close() error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) ReadRecord(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, nil
}

func (m *MemoryStore) WriteRecord(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.records[key].Version
	if current != expectedVersion {
		return 0, ErrVersionConflict
	}
	next := current + 1
	m.records[key] = Record{
		Key:       key,
		Data:      append([]byte(nil), data...),
		Version:   next,
		UpdatedAt: m.now(),
	}
	return next, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, prefix string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for key, rec := range m.records {
		if strings.HasPrefix(key, prefix) {
			rec.Data = append([]byte(nil), rec.Data...)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// validator is implemented by documents that check their own shape after decoding.
type validator interface {
	validate() error
}

// readJSON loads and decodes key. A missing record yields the zero value and version 0.
func readJSON[T any](ctx context.Context, store RecordStore, key string) (T, int64, error) {
	var doc T
	rec, err := store.ReadRecord(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return doc, 0, nil
	}
	if err != nil {
		return doc, 0, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, key, err)
	}
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return doc, 0, fmt.Errorf("%w: decode %s: %v", ErrCorruptRecord, key, err)
	}
	if v, ok := any(&doc).(validator); ok {
		if err := v.validate(); err != nil {
			return doc, 0, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
		}
	}
	return doc, rec.Version, nil
}

// recordUpdater performs read-modify-write cycles against a RecordStore.
// Each attempt re-reads the full snapshot and re-applies the mutation, and
// the write is rejected by the store if the snapshot moved underneath it.
type recordUpdater struct {
	store       RecordStore
	maxAttempts int
	logger      *slog.Logger
}

func newRecordUpdater(store RecordStore, maxAttempts int, logger *slog.Logger) *recordUpdater {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &recordUpdater{store: store, maxAttempts: maxAttempts, logger: logger}
}

// updateJSON applies fn to the document stored at key and writes it back.
// fn must only touch the document it is given: it runs once per attempt.
// Returning errUnchanged from fn skips the write and reports success.
func updateJSON[T any](ctx context.Context, u *recordUpdater, key string, fn func(*T) error) (T, error) {
	var zero T
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		doc, version, err := readJSON[T](ctx, u.store, key)
		if err != nil {
			return zero, err
		}
		if err := fn(&doc); err != nil {
			if errors.Is(err, errUnchanged) {
				return doc, nil
			}
			return zero, err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return zero, fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = u.store.WriteRecord(ctx, key, data, version)
		if errors.Is(err, ErrVersionConflict) {
			u.logger.Debug("record changed during update, retrying", "key", key, "attempt", attempt)
			continue
		}
		if err != nil {
			u.logger.Error("record write failed", "key", key, "error", err)
			return zero, fmt.Errorf("%w: write %s: %w", ErrStorageUnavailable, key, err)
		}
		return doc, nil
	}
	return zero, fmt.Errorf("%w: %s after %d attempts: %w", ErrStorageUnavailable, key, u.maxAttempts, ErrVersionConflict)
}
