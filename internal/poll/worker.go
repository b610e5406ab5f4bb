package poll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nowplaying/internal/fetch"
	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

// worker polls one connection at its configured interval. Ticks are consumed
// inline in the loop goroutine, so a cycle never overlaps the previous one:
// ticks that fire while a slow cycle is running are dropped by the ticker.
type worker struct {
	connectionID uuid.UUID
	interval     time.Duration

	repo    repository.Repository
	fetcher fetch.Doer
	rec     *Recorder
	log     *zap.Logger
	timeout time.Duration
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First cycle fires immediately; a freshly enabled connection should not
	// wait a full interval for its first data point.
	holdUntil := w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(holdUntil) {
				continue
			}
			holdUntil = w.cycle(ctx)
		}
	}
}

// cycle loads a fresh snapshot, runs one poll, and persists the outcome. The
// returned time is the earliest the next tick may run (zero unless the feed
// reported a track duration and the connection opted into duration polling).
func (w *worker) cycle(ctx context.Context) time.Time {
	snap, ok := w.loadSnapshot(ctx)
	if !ok {
		return time.Time{}
	}

	out := RunCycle(ctx, w.fetcher, snap, w.timeout, time.Now())
	if err := w.rec.Persist(ctx, snap, out); err != nil {
		w.log.Error("persist poll outcome",
			zap.String("connection_id", w.connectionID.String()),
			zap.Error(err))
		return time.Time{}
	}

	if out.Status == models.StatusError {
		w.log.Warn("poll failed",
			zap.String("connection_id", w.connectionID.String()),
			zap.Stringp("error", out.Error))
	} else {
		w.log.Debug("poll ok",
			zap.String("connection_id", w.connectionID.String()),
			zap.Int("events", len(out.Events)))
	}

	if out.DurationHint > 0 {
		return out.PolledAt.Add(out.DurationHint)
	}
	return time.Time{}
}

// loadSnapshot re-reads the connection at tick start so edits land on the
// next cycle without a scheduler restart. A connection deleted or disabled
// mid-flight skips the tick; the scheduler reaps the worker on reconcile.
func (w *worker) loadSnapshot(ctx context.Context) (Snapshot, bool) {
	conn, err := w.repo.GetConnection(ctx, w.connectionID)
	if err != nil {
		w.log.Error("load connection",
			zap.String("connection_id", w.connectionID.String()),
			zap.Error(err))
		return Snapshot{}, false
	}
	if conn == nil || !conn.Enabled {
		return Snapshot{}, false
	}

	var rules *models.PayloadMapping
	if conn.PayloadMappingID != nil {
		rules, err = w.repo.GetMapping(ctx, *conn.PayloadMappingID)
		if err != nil {
			w.log.Error("load mapping",
				zap.String("connection_id", w.connectionID.String()),
				zap.Error(err))
			return Snapshot{}, false
		}
	}
	return SnapshotFrom(conn, rules), true
}
