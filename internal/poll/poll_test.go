package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nowplaying/internal/fetch"
	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

type stubFetcher struct {
	fn func(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

func (f *stubFetcher) Do(ctx context.Context, req fetch.Request, _ time.Duration) (fetch.Result, error) {
	return f.fn(ctx, req)
}

// stubRepo implements the slices of the repository the poll package touches;
// anything else panics via the embedded nil interface.
type stubRepo struct {
	repository.Repository

	mu      sync.Mutex
	conn    *models.Connection
	mapping *models.PayloadMapping
	updates []repository.StatusUpdate
	events  []models.RawEvent
	latest  *models.RawEvent
}

func (r *stubRepo) GetConnection(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.ID != id {
		return nil, nil
	}
	copied := *r.conn
	return &copied, nil
}

func (r *stubRepo) GetMapping(ctx context.Context, id uuid.UUID) (*models.PayloadMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mapping, nil
}

func (r *stubRepo) ListEnabledConnections(ctx context.Context) ([]models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || !r.conn.Enabled {
		return nil, nil
	}
	return []models.Connection{*r.conn}, nil
}

func (r *stubRepo) RecordPollResult(ctx context.Context, update repository.StatusUpdate, events []models.RawEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	r.events = append(r.events, events...)
	return nil
}

func (r *stubRepo) LatestEvent(ctx context.Context, connectionID uuid.UUID) (*models.RawEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, nil
}

func (r *stubRepo) setEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn.Enabled = enabled
}

func (r *stubRepo) snapshot() ([]repository.StatusUpdate, []models.RawEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repository.StatusUpdate{}, r.updates...), append([]models.RawEvent{}, r.events...)
}

func testConnection() *models.Connection {
	return &models.Connection{
		ID:               uuid.New(),
		StationID:        uuid.New(),
		Name:             "test feed",
		ConnectionType:   models.TypeHTTPJSON,
		URL:              "http://example.test/now",
		PollIntervalSecs: 1,
		Enabled:          true,
	}
}

func testRecorder(repo repository.Repository, dedup bool) *Recorder {
	return &Recorder{Repo: repo, Log: zap.NewNop(), Dedup: dedup}
}

func TestRunCycleTransportError(t *testing.T) {
	repo := &stubRepo{conn: testConnection()}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{}, &fetch.Error{Kind: fetch.KindTransport, Err: errors.New("connection refused")}
	}}

	snap := SnapshotFrom(repo.conn, nil)
	out := RunCycle(context.Background(), fetcher, snap, time.Second, time.Now())

	if out.Status != models.StatusError {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Error == nil {
		t.Fatal("expected error message")
	}
	if len(out.Events) != 0 {
		t.Fatalf("transport failure must not produce events, got %d", len(out.Events))
	}
}

func TestRunCycleParseError(t *testing.T) {
	repo := &stubRepo{conn: testConnection()}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 200, ContentType: "application/json", Body: []byte("<html>not json")}, nil
	}}

	snap := SnapshotFrom(repo.conn, nil)
	out := RunCycle(context.Background(), fetcher, snap, time.Second, time.Now())

	if out.Status != models.StatusError {
		t.Fatalf("status = %q", out.Status)
	}
	if len(out.Events) != 1 {
		t.Fatalf("parse failure keeps the payload as one event, got %d", len(out.Events))
	}
	event := out.Events[0]
	if event.ReportedArtist != nil || event.ReportedTitle != nil {
		t.Fatal("parse failure must not carry extracted fields")
	}
	if len(event.RawPayload) == 0 {
		t.Fatal("raw payload missing")
	}
}

func TestRunCycleListMapping(t *testing.T) {
	conn := testConnection()
	rules := &models.PayloadMapping{
		ListPath:   "songs",
		ArtistPath: "artist",
		TitlePath:  "title",
	}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		body := []byte(`{"songs":[{"artist":"A","title":"One"},{"artist":"B","title":"Two"}]}`)
		return fetch.Result{Status: 200, ContentType: "application/json", Body: body}, nil
	}}

	snap := SnapshotFrom(conn, rules)
	out := RunCycle(context.Background(), fetcher, snap, time.Second, time.Now())

	if out.Status != models.StatusOK {
		t.Fatalf("status = %q (error: %v)", out.Status, out.Error)
	}
	if len(out.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(out.Events))
	}
	if *out.Events[0].ReportedArtist != "A" || *out.Events[1].ReportedArtist != "B" {
		t.Fatal("list order lost")
	}
	for _, event := range out.Events {
		if event.StationID != conn.StationID || event.ConnectionID != conn.ID {
			t.Fatal("event not bound to connection")
		}
		if event.PayloadHash == "" {
			t.Fatal("payload hash missing")
		}
	}
}

func TestRunCycleNon2xxStatus(t *testing.T) {
	conn := testConnection()
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 503, ContentType: "text/html", Body: []byte("overloaded")}, nil
	}}

	out := RunCycle(context.Background(), fetcher, SnapshotFrom(conn, nil), time.Second, time.Now())

	if out.Status != models.StatusError {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Error == nil {
		t.Fatal("expected error message")
	}
	if len(out.Events) != 1 {
		t.Fatalf("body should be kept for audit, got %d events", len(out.Events))
	}
	if out.Events[0].HTTPStatus == nil || *out.Events[0].HTTPStatus != 503 {
		t.Fatalf("http status = %v", out.Events[0].HTTPStatus)
	}
}

func TestRunCycleDurationHint(t *testing.T) {
	conn := testConnection()
	conn.UseDurationPolling = true
	rules := &models.PayloadMapping{TitlePath: "title", DurationPath: "duration"}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 200, Body: []byte(`{"title":"Song","duration":180}`)}, nil
	}}

	out := RunCycle(context.Background(), fetcher, SnapshotFrom(conn, rules), time.Second, time.Now())

	if out.DurationHint != 182*time.Second {
		t.Fatalf("duration hint = %v", out.DurationHint)
	}
}

func TestClampTimeout(t *testing.T) {
	cases := []struct {
		name     string
		timeout  time.Duration
		interval time.Duration
		want     time.Duration
	}{
		{"default below long interval", 15 * time.Second, time.Minute, 15 * time.Second},
		{"clamped under interval", 15 * time.Second, 10 * time.Second, 9 * time.Second},
		{"one second interval", 15 * time.Second, time.Second, 500 * time.Millisecond},
		{"two second interval", 15 * time.Second, 2 * time.Second, time.Second},
		{"zero timeout gets default then clamps", 0, 5 * time.Second, 4 * time.Second},
		{"no interval leaves timeout alone", 30 * time.Second, 0, 30 * time.Second},
	}
	for _, tc := range cases {
		got := clampTimeout(tc.timeout, tc.interval)
		if got != tc.want {
			t.Errorf("%s: clampTimeout(%v, %v) = %v, want %v", tc.name, tc.timeout, tc.interval, got, tc.want)
		}
		if tc.interval > 0 && got >= tc.interval {
			t.Errorf("%s: timeout %v not below interval %v", tc.name, got, tc.interval)
		}
	}
}

func TestWorkerNoOverlap(t *testing.T) {
	conn := testConnection()
	repo := &stubRepo{conn: conn}

	var inFlight, maxInFlight atomic.Int32
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		curr := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if curr <= prev || maxInFlight.CompareAndSwap(prev, curr) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		return fetch.Result{Status: 200, Body: []byte(`{"title":"x"}`)}, nil
	}}

	w := &worker{
		connectionID: conn.ID,
		interval:     5 * time.Millisecond,
		repo:         repo,
		fetcher:      fetcher,
		rec:          testRecorder(repo, false),
		log:          zap.NewNop(),
		timeout:      time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.run(ctx)

	if got := maxInFlight.Load(); got != 1 {
		t.Fatalf("cycles overlapped: max in flight = %d", got)
	}
	updates, _ := repo.snapshot()
	if len(updates) == 0 {
		t.Fatal("no cycles recorded")
	}
}

func TestWorkerSkipsWhenDisabled(t *testing.T) {
	conn := testConnection()
	repo := &stubRepo{conn: conn}
	var calls atomic.Int32
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		calls.Add(1)
		return fetch.Result{Status: 200, Body: []byte(`{"title":"x"}`)}, nil
	}}

	w := &worker{
		connectionID: conn.ID,
		interval:     10 * time.Millisecond,
		repo:         repo,
		fetcher:      fetcher,
		rec:          testRecorder(repo, false),
		log:          zap.NewNop(),
		timeout:      time.Second,
	}

	repo.setEnabled(false)
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	w.run(ctx)

	if got := calls.Load(); got != 0 {
		t.Fatalf("disabled connection was fetched %d times", got)
	}
}

func TestRecorderDedupSkipsUnchangedPayload(t *testing.T) {
	conn := testConnection()
	repo := &stubRepo{conn: conn}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 200, Body: []byte(`{"title":"Same Song"}`)}, nil
	}}

	snap := SnapshotFrom(conn, nil)
	rec := testRecorder(repo, true)

	out := RunCycle(context.Background(), fetcher, snap, time.Second, time.Now())
	if err := rec.Persist(context.Background(), snap, out); err != nil {
		t.Fatalf("persist: %v", err)
	}
	repo.mu.Lock()
	repo.latest = &repo.events[0]
	repo.mu.Unlock()

	out = RunCycle(context.Background(), fetcher, snap, time.Second, time.Now())
	if err := rec.Persist(context.Background(), snap, out); err != nil {
		t.Fatalf("persist: %v", err)
	}

	updates, events := repo.snapshot()
	if len(events) != 1 {
		t.Fatalf("unchanged payload stored twice: %d events", len(events))
	}
	if len(updates) != 2 {
		t.Fatalf("status must still be recorded per cycle, got %d updates", len(updates))
	}
}

func TestTesterDryRun(t *testing.T) {
	conn := testConnection()
	repo := &stubRepo{conn: conn}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 200, ContentType: "application/json", Body: []byte(`{"artist":"CAN","title":"Vitamin C"}`)}, nil
	}}

	tester := &Tester{Repo: repo, Fetcher: fetcher, Log: zap.NewNop(), Timeout: time.Second}
	result, err := tester.Run(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != models.StatusOK {
		t.Fatalf("status = %q (error: %v)", result.Status, result.Error)
	}
	if len(result.Records) != 1 || result.Records[0].Artist == nil || *result.Records[0].Artist != "CAN" {
		t.Fatalf("records = %+v", result.Records)
	}
	updates, events := repo.snapshot()
	if len(updates) != 0 || len(events) != 0 {
		t.Fatal("dry run must not persist anything")
	}
}

func TestTesterPersistStatusOnly(t *testing.T) {
	conn := testConnection()
	repo := &stubRepo{conn: conn}
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{}, &fetch.Error{Kind: fetch.KindTransport, Err: errors.New("refused")}
	}}

	tester := &Tester{Repo: repo, Fetcher: fetcher, Log: zap.NewNop(), Timeout: time.Second, PersistStatus: true}
	result, err := tester.Run(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != models.StatusError {
		t.Fatalf("status = %q", result.Status)
	}

	updates, events := repo.snapshot()
	if len(updates) != 1 || updates[0].Status != models.StatusError {
		t.Fatalf("updates = %+v", updates)
	}
	if len(events) != 0 {
		t.Fatal("tests must never write raw events")
	}
}

func TestTesterEmptyListStillReturnsPayload(t *testing.T) {
	conn := testConnection()
	mappingID := uuid.New()
	conn.PayloadMappingID = &mappingID
	repo := &stubRepo{
		conn:    conn,
		mapping: &models.PayloadMapping{ID: mappingID, ListPath: "songs", TitlePath: "title"},
	}
	body := `{"songs":[]}`
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{Status: 200, ContentType: "application/json", Body: []byte(body)}, nil
	}}

	tester := &Tester{Repo: repo, Fetcher: fetcher, Log: zap.NewNop(), Timeout: time.Second}
	result, err := tester.Run(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != models.StatusOK {
		t.Fatalf("status = %q (error: %v)", result.Status, result.Error)
	}
	if len(result.Records) != 0 {
		t.Fatalf("records = %+v", result.Records)
	}
	if result.RawPayload == nil || *result.RawPayload != body {
		t.Fatalf("raw payload = %v", result.RawPayload)
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != 200 {
		t.Fatalf("http status = %v", result.HTTPStatus)
	}
	if result.ContentType == nil || *result.ContentType != "application/json" {
		t.Fatalf("content type = %v", result.ContentType)
	}
}

func TestTesterUnknownConnection(t *testing.T) {
	repo := &stubRepo{}
	tester := &Tester{Repo: repo, Fetcher: &stubFetcher{fn: nil}, Log: zap.NewNop()}
	_, err := tester.Run(context.Background(), uuid.New())
	if !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestSchedulerReconcileStartsAndStops(t *testing.T) {
	conn := testConnection()
	conn.PollIntervalSecs = 3600 // only the immediate first cycle fires
	repo := &stubRepo{conn: conn}
	var calls atomic.Int32
	fetcher := &stubFetcher{fn: func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		calls.Add(1)
		return fetch.Result{Status: 200, Body: []byte(`{"title":"x"}`)}, nil
	}}

	s := NewScheduler(repo, fetcher, testRecorder(repo, false), zap.NewNop(), Options{
		ReconcileInterval: 10 * time.Millisecond,
		FetchTimeout:      time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	repo.setEnabled(false)
	s.Kick()
	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	remaining := len(s.workers)
	s.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("disabled connection still has %d workers", remaining)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not shut down")
	}
}
