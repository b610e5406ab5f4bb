package poll

import (
	"context"

	"go.uber.org/zap"

	"nowplaying/internal/repository"
)

// Recorder persists poll outcomes: raw events plus the connection status
// update, atomically via the repository. With Dedup on, an outcome whose
// payload hash matches the connection's latest stored event updates status
// only.
type Recorder struct {
	Repo  repository.Repository
	Log   *zap.Logger
	Dedup bool
}

func (r *Recorder) Persist(ctx context.Context, snap Snapshot, out Outcome) error {
	events := out.Events
	if r.Dedup && len(events) > 0 {
		latest, err := r.Repo.LatestEvent(ctx, snap.ConnectionID)
		if err != nil {
			r.Log.Warn("dedup lookup failed, storing anyway",
				zap.String("connection_id", snap.ConnectionID.String()),
				zap.Error(err))
		} else if latest != nil && latest.PayloadHash == events[0].PayloadHash {
			r.Log.Debug("payload unchanged, skipping insert",
				zap.String("connection_id", snap.ConnectionID.String()))
			events = nil
		}
	}

	return r.Repo.RecordPollResult(ctx, repository.StatusUpdate{
		ConnectionID: snap.ConnectionID,
		PolledAt:     out.PolledAt,
		Status:       out.Status,
		Error:        out.Error,
	}, events)
}
