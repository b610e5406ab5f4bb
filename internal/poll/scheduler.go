package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nowplaying/internal/fetch"
	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

// Options tunes the scheduler; zero values get sane defaults.
type Options struct {
	// ReconcileInterval is how often the worker set is compared against the
	// enabled connections in the database.
	ReconcileInterval time.Duration
	// FetchTimeout bounds a single fetch (further clamped below each
	// connection's poll interval).
	FetchTimeout time.Duration
	// WSPersistent routes ws_json connections to a long-lived listener
	// instead of the connect-read-close poll cycle.
	WSPersistent bool
}

// Scheduler owns one goroutine per enabled connection and reconciles that set
// against the database on a fixed cadence, or sooner when Kick is called
// after an API change.
type Scheduler struct {
	repo    repository.Repository
	fetcher fetch.Doer
	rec     *Recorder
	log     *zap.Logger
	opts    Options

	mu      sync.Mutex
	workers map[uuid.UUID]*handle
	kick    chan struct{}
	wg      sync.WaitGroup
}

type handle struct {
	key    string
	cancel context.CancelFunc
}

func NewScheduler(repo repository.Repository, fetcher fetch.Doer, rec *Recorder, log *zap.Logger, opts Options) *Scheduler {
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Scheduler{
		repo:    repo,
		fetcher: fetcher,
		rec:     rec,
		log:     log,
		opts:    opts,
		workers: map[uuid.UUID]*handle{},
		kick:    make(chan struct{}, 1),
	}
}

// Kick requests an immediate reconcile. Safe from any goroutine; coalesces
// while a reconcile is pending.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled, then stops every worker and waits for
// in-flight cycles to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ReconcileInterval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.wg.Wait()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.kick:
			s.reconcile(ctx)
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	conns, err := s.repo.ListEnabledConnections(ctx)
	if err != nil {
		s.log.Error("list enabled connections", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(conns))
	for i := range conns {
		conn := &conns[i]
		seen[conn.ID] = true
		key := workerKey(conn, s.opts)
		if h, ok := s.workers[conn.ID]; ok {
			if h.key == key {
				continue
			}
			// Config changed in a way the per-tick snapshot cannot absorb
			// (interval, type, ws mode); restart the worker.
			h.cancel()
			delete(s.workers, conn.ID)
		}
		s.start(ctx, conn, key)
	}

	for id, h := range s.workers {
		if !seen[id] {
			h.cancel()
			delete(s.workers, id)
			s.log.Info("worker stopped", zap.String("connection_id", id.String()))
		}
	}
}

func (s *Scheduler) start(ctx context.Context, conn *models.Connection, key string) {
	wctx, cancel := context.WithCancel(ctx)
	s.workers[conn.ID] = &handle{key: key, cancel: cancel}

	if s.opts.WSPersistent && conn.ConnectionType == models.TypeWSJSON {
		st := &stream{
			connectionID: conn.ID,
			repo:         s.repo,
			rec:          s.rec,
			log:          s.log,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			st.run(wctx)
		}()
		s.log.Info("stream started",
			zap.String("connection_id", conn.ID.String()),
			zap.String("url", conn.URL))
		return
	}

	w := &worker{
		connectionID: conn.ID,
		interval:     pollInterval(conn),
		repo:         s.repo,
		fetcher:      s.fetcher,
		rec:          s.rec,
		log:          s.log,
		timeout:      s.opts.FetchTimeout,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(wctx)
	}()
	s.log.Info("worker started",
		zap.String("connection_id", conn.ID.String()),
		zap.String("type", conn.ConnectionType),
		zap.Duration("interval", w.interval))
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.workers {
		h.cancel()
		delete(s.workers, id)
	}
}

// workerKey captures the fields whose change requires a worker restart.
// Everything else (url, headers, mapping) is picked up by the per-tick
// snapshot.
func workerKey(conn *models.Connection, opts Options) string {
	mode := "poll"
	if opts.WSPersistent && conn.ConnectionType == models.TypeWSJSON {
		mode = "stream"
	}
	return fmt.Sprintf("%s|%d|%s", mode, conn.PollIntervalSecs, conn.ConnectionType)
}

func pollInterval(conn *models.Connection) time.Duration {
	if conn.PollIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(conn.PollIntervalSecs) * time.Second
}
