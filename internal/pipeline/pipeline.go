// Package pipeline keeps a controller's snapshot fresh in the background and
// optionally forwards each new snapshot to a sink.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/observability"
	"github.com/couchcryptid/quake-globe/internal/viewer"
)

const initialBackoff = 2 * time.Second

// Refresher replaces a snapshot on demand. *viewer.Controller satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, w domain.Window) error
	Snapshot() viewer.Snapshot
}

// SnapshotSink receives every successfully refreshed snapshot.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, w domain.Window, generation uint64, events []domain.Event) error
}

// Pipeline periodically refreshes a window. Relative windows ("last n days")
// are re-anchored to today before every refresh.
type Pipeline struct {
	refresher      Refresher
	sink           SnapshotSink
	window         domain.Window
	interval       time.Duration
	initialBackoff time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
	ready          atomic.Bool
}

// New creates a Pipeline. sink may be nil.
func New(r Refresher, sink SnapshotSink, window domain.Window, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		refresher:      r,
		sink:           sink,
		window:         window,
		interval:       interval,
		initialBackoff: min(initialBackoff, interval),
		logger:         logger,
		metrics:        metrics,
	}
}

// CheckReadiness returns nil once a snapshot has been loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no earthquake snapshot loaded yet")
	}
	return nil
}

// Run refreshes immediately, then every interval, until the context is
// cancelled. Failed refreshes are retried with exponential backoff capped at
// the interval.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("refresher started", "window", p.window.String(), "interval", p.interval)

	backoff := p.initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.interval
		if err := p.refreshOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = retry.NextBackoff(backoff, p.interval)
		} else {
			backoff = p.initialBackoff
		}

		if !retry.SleepWithContext(ctx, wait) {
			p.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// refreshOnce replaces the snapshot and publishes it. Publish failures are
// counted and logged but do not fail the refresh.
func (p *Pipeline) refreshOnce(ctx context.Context) error {
	w, err := p.window.Current()
	if err != nil {
		return err
	}
	if err := p.refresher.Refresh(ctx, w); err != nil {
		return err
	}
	p.ready.Store(true)

	if p.sink == nil {
		return nil
	}
	snap := p.refresher.Snapshot()
	if err := p.sink.PublishSnapshot(ctx, snap.Window, snap.Generation, snap.Events.Events()); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("snapshot publish failed", "error", err, "generation", snap.Generation)
		return nil
	}
	p.metrics.SnapshotsPublished.Inc()
	return nil
}
