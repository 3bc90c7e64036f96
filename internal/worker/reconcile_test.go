package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/metrics"
)

type fakeReconcileStore struct {
	mu            sync.Mutex
	reconcileErr  error
	repaired      int64
	reconcileRuns int
	topScores     map[string]int64
	topErr        error
}

func (f *fakeReconcileStore) ReconcileAggregates(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileRuns++
	return f.repaired, f.reconcileErr
}

func (f *fakeReconcileStore) TopBestScores(ctx context.Context, n int) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topScores, f.topErr
}

func (f *fakeReconcileStore) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconcileRuns
}

type fakeRebuilder struct {
	mu       sync.Mutex
	rebuilds int
	last     map[string]int64
	err      error
}

func (f *fakeRebuilder) Rebuild(ctx context.Context, scores map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	f.last = scores
	return f.err
}

func testReconciler(store ReconcileStore, mirror MirrorRebuilder, interval time.Duration) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.ReconcileConfig{Interval: interval, Enabled: true}
	return NewReconciler(store, mirror, cfg, 10, metrics.New(), logger)
}

func TestReconcilerRunOnce(t *testing.T) {
	t.Run("repairs and rebuilds mirror", func(t *testing.T) {
		store := &fakeReconcileStore{
			repaired:  3,
			topScores: map[string]int64{"a": 80, "b": 50},
		}
		mirror := &fakeRebuilder{}
		r := testReconciler(store, mirror, time.Hour)

		r.RunOnce(context.Background())

		assert.Equal(t, 1, store.runs())
		assert.Equal(t, 1, mirror.rebuilds)
		assert.Equal(t, int64(80), mirror.last["a"])
	})

	t.Run("works without a mirror", func(t *testing.T) {
		store := &fakeReconcileStore{repaired: 1}
		r := testReconciler(store, nil, time.Hour)

		r.RunOnce(context.Background())

		assert.Equal(t, 1, store.runs())
	})

	t.Run("store failure skips mirror rebuild", func(t *testing.T) {
		store := &fakeReconcileStore{reconcileErr: errors.New("db down")}
		mirror := &fakeRebuilder{}
		r := testReconciler(store, mirror, time.Hour)

		r.RunOnce(context.Background())

		assert.Equal(t, 0, mirror.rebuilds)
	})

	t.Run("mirror failure does not panic", func(t *testing.T) {
		store := &fakeReconcileStore{topScores: map[string]int64{"a": 1}}
		mirror := &fakeRebuilder{err: errors.New("redis down")}
		r := testReconciler(store, mirror, time.Hour)

		r.RunOnce(context.Background())

		assert.Equal(t, 1, mirror.rebuilds)
	})
}

func TestReconcilerStartStop(t *testing.T) {
	store := &fakeReconcileStore{}
	r := testReconciler(store, nil, 10*time.Millisecond)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRunning())

	// starting twice is a no-op
	require.NoError(t, r.Start(context.Background()))

	// let the ticker fire at least once
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())
	assert.GreaterOrEqual(t, store.runs(), 1)

	// stopping again is a no-op
	require.NoError(t, r.Stop())
}
