package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tapi-backend/internal/config"
	"github.com/tapi-backend/internal/metrics"
)

// ReconcileStore is the storage surface the reconciler needs
type ReconcileStore interface {
	ReconcileAggregates(ctx context.Context) (int64, error)
	TopBestScores(ctx context.Context, n int) (map[string]int64, error)
}

// MirrorRebuilder replaces the live mirror with a fresh snapshot
type MirrorRebuilder interface {
	Rebuild(ctx context.Context, scores map[string]int64) error
}

// Reconciler periodically recomputes the leaderboard aggregates from the
// game record stream. Record ingestion writes the record and the aggregate
// without a cross-table transaction, so a crash between the two writes can
// leave an aggregate behind its records; each cycle repairs that drift and
// refreshes the Redis mirror from the repaired table.
type Reconciler struct {
	store   ReconcileStore
	mirror  MirrorRebuilder
	config  *config.ReconcileConfig
	topN    int
	metrics *metrics.Metrics
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReconciler creates a new reconciler. mirror may be nil when the live
// feed is disabled.
func NewReconciler(
	store ReconcileStore,
	mirror MirrorRebuilder,
	cfg *config.ReconcileConfig,
	topN int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		store:   store,
		mirror:  mirror,
		config:  cfg,
		topN:    topN,
		metrics: m,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background reconcile loop
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("reconciler started", "interval", r.config.Interval)

	go r.run(ctx)
	return nil
}

// Stop stops the background reconcile loop
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info("reconciler stopped")
	return nil
}

// run is the main worker loop
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single reconcile cycle
func (r *Reconciler) RunOnce(ctx context.Context) {
	startTime := time.Now()

	repaired, err := r.store.ReconcileAggregates(ctx)
	if err != nil {
		r.logger.Error("failed to reconcile aggregates", "error", err)
		return
	}

	r.metrics.ReconcileRuns.Inc()
	r.metrics.ReconcileRepaired.Add(float64(repaired))

	if r.mirror != nil {
		scores, err := r.store.TopBestScores(ctx, r.topN)
		if err != nil {
			r.logger.Error("failed to load best scores for mirror", "error", err)
		} else if err := r.mirror.Rebuild(ctx, scores); err != nil {
			r.logger.Error("failed to rebuild mirror", "error", err)
		}
	}

	r.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"repaired_rows", repaired,
	)
}

// IsRunning returns whether the worker is currently running
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
