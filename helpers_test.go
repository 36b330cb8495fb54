package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// faultyStore wraps a RecordStore and lets a test fail or interleave writes.
type faultyStore struct {
	RecordStore

	mu          sync.Mutex
	failWrites  int
	conflicts   int
	beforeWrite func(key string)
	writes      int
}

var errDiskFull = errors.New("disk full")

func (f *faultyStore) WriteRecord(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	f.mu.Lock()
	hook := f.beforeWrite
	f.beforeWrite = nil
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return 0, ErrVersionConflict
	}
	if f.failWrites > 0 {
		f.failWrites--
		f.mu.Unlock()
		return 0, errDiskFull
	}
	f.writes++
	f.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return f.RecordStore.WriteRecord(ctx, key, data, version)
}

type recordedEvent struct {
	userID    string
	eventType string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(userID, eventType string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, eventType: eventType})
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.eventType == eventType {
			c++
		}
	}
	return c
}

func newTestRewards(t *testing.T, store RecordStore, opts RewardsOptions) *Rewards {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Now == nil {
		opts.Now = testClock
	}
	r := NewRewards(store, opts)
	_, err := r.Catalog().Seed(context.Background(), defaultRewards)
	require.NoError(t, err)
	return r
}

func requireReconciled(t *testing.T, r *Rewards, userID string) {
	t.Helper()
	require.NoError(t, r.Reconcile(context.Background(), userID))
	history, err := r.GetTransactionHistory(context.Background(), userID, 0)
	require.NoError(t, err)
	progress, err := r.GetProgress(context.Background(), userID)
	require.NoError(t, err)
	sum := 0
	for _, tx := range history {
		sum += tx.Amount
	}
	require.Equal(t, progress.TotalPoints, sum)
}
