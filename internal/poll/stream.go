package poll

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"nowplaying/internal/fetch"
	"nowplaying/internal/mapping"
	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

const (
	streamMinBackoff = time.Second
	streamMaxBackoff = time.Minute
)

// stream is the persistent ws_json mode: one long-lived socket per
// connection, every pushed message recorded as it arrives. Reconnects with
// jittered exponential backoff; each reconnect reloads the connection config.
type stream struct {
	connectionID uuid.UUID
	repo         repository.Repository
	rec          *Recorder
	log          *zap.Logger
}

func (st *stream) run(ctx context.Context) {
	backoff := streamMinBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		snap, ok := st.loadSnapshot(ctx)
		if !ok {
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		err := st.listen(ctx, snap)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			st.log.Warn("stream disconnected",
				zap.String("connection_id", st.connectionID.String()),
				zap.Error(err))
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// listen holds one socket open and records every message until it drops.
func (st *stream) listen(ctx context.Context, snap Snapshot) error {
	conn, _, err := websocket.Dial(ctx, snap.URL, nil)
	if err != nil {
		st.persistError(ctx, snap, err)
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(2 << 20)

	if frame := fetch.SubscribeFrame(snap.Headers); frame != "" {
		if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			st.persistError(ctx, snap, err)
			return err
		}
	}

	st.log.Info("stream connected", zap.String("connection_id", st.connectionID.String()))
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		st.record(ctx, snap, data)
	}
}

func (st *stream) record(ctx context.Context, snap Snapshot, data []byte) {
	now := time.Now().UTC()
	out := Outcome{PolledAt: now}

	records, err := mapping.Evaluate(data, "application/json", snap.ConnectionType, snap.Rules)
	if err != nil {
		out = errorOutcome(out, err)
		out.Events = []models.RawEvent{buildEvent(snap, wsResult(data), mapping.Record{}, now)}
	} else {
		out.Status = models.StatusOK
		for _, rec := range records {
			out.Events = append(out.Events, buildEvent(snap, wsResult(data), rec, now))
		}
	}

	if err := st.rec.Persist(ctx, snap, out); err != nil {
		st.log.Error("persist stream message",
			zap.String("connection_id", st.connectionID.String()),
			zap.Error(err))
	}
}

func (st *stream) persistError(ctx context.Context, snap Snapshot, err error) {
	msg := err.Error()
	out := Outcome{
		PolledAt: time.Now().UTC(),
		Status:   models.StatusError,
		Error:    &msg,
	}
	if perr := st.rec.Persist(ctx, snap, out); perr != nil {
		st.log.Error("persist stream error",
			zap.String("connection_id", st.connectionID.String()),
			zap.Error(perr))
	}
}

func (st *stream) loadSnapshot(ctx context.Context) (Snapshot, bool) {
	conn, err := st.repo.GetConnection(ctx, st.connectionID)
	if err != nil || conn == nil || !conn.Enabled {
		return Snapshot{}, false
	}
	var rules *models.PayloadMapping
	if conn.PayloadMappingID != nil {
		rules, err = st.repo.GetMapping(ctx, *conn.PayloadMappingID)
		if err != nil {
			return Snapshot{}, false
		}
	}
	return SnapshotFrom(conn, rules), true
}

func wsResult(data []byte) fetch.Result {
	return fetch.Result{Status: 200, ContentType: "application/json", Body: data}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles up to the cap with ±20% jitter so a fleet of streams
// does not reconnect in lockstep.
func nextBackoff(curr time.Duration) time.Duration {
	next := curr * 2
	if next > streamMaxBackoff {
		next = streamMaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(next) / 5))
	if rand.Intn(2) == 0 {
		return next - jitter
	}
	return next + jitter
}
