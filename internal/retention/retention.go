package retention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/db"
)

// Worker periodically deletes request events older than the configured max
// age so the event store does not grow without bound.
type Worker struct {
	dbProvider   db.Provider
	interval     time.Duration
	runTimeout   time.Duration
	eventsMaxAge time.Duration

	runDuration *prometheus.HistogramVec
}

func NewWorker(store db.Provider, cfg *config.Config, reg prometheus.Registerer) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Retention.Interval <= 0 {
		return nil, fmt.Errorf("retention.interval must be positive (got: %v)", cfg.Retention.Interval)
	}

	if cfg.Retention.RunTimeout <= 0 {
		return nil, fmt.Errorf("retention.run_timeout must be positive (got: %v)", cfg.Retention.RunTimeout)
	}

	if cfg.Retention.EventsMaxAge <= 0 {
		return nil, fmt.Errorf("retention.events_max_age must be positive (got: %v)", cfg.Retention.EventsMaxAge)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	w := &Worker{
		dbProvider:   store,
		interval:     cfg.Retention.Interval,
		runTimeout:   cfg.Retention.RunTimeout,
		eventsMaxAge: cfg.Retention.EventsMaxAge,
	}

	w.runDuration = promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netlens_retention_run_duration_seconds",
		Help:    "Duration of retention runs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	return w, nil
}

func (w *Worker) RunLeaderless(ctx context.Context) {
	w.runLoop(ctx)
}

func (w *Worker) runLoop(ctx context.Context) {
	// Jitter the interval by up to 20% so replicas do not run in lockstep.
	jitterBase := w.interval / 5
	if jitterBase == 0 {
		jitterBase = 1
	}
	jitter := time.Duration(rand.Int63n(int64(jitterBase)))
	ticker := time.NewTicker(w.interval + jitter)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-w.eventsMaxAge)
	deleted, err := w.dbProvider.DeleteEventsBefore(runCtx, cutoff)
	if err != nil {
		slog.Error("retention: failed to delete old request events", "err", err, "cutoff", cutoff)
		w.runDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		return
	}

	slog.Info("retention: cleanup complete", "deleted", deleted, "cutoff", cutoff)
	w.runDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
}
