package poll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nowplaying/internal/fetch"
	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

var ErrConnectionNotFound = errors.New("connection not found")

// Tester runs a one-shot poll cycle for the admin API without touching the
// scheduler. Nothing is stored unless PersistStatus is on, in which case only
// the connection's last_* columns are updated; raw events are never written
// by a test.
type Tester struct {
	Repo          repository.Repository
	Fetcher       fetch.Doer
	Log           *zap.Logger
	Timeout       time.Duration
	PersistStatus bool
}

// TestResult is the API-facing outcome of a dry-run poll.
type TestResult struct {
	Status      string       `json:"status"`
	Error       *string      `json:"error,omitempty"`
	HTTPStatus  *int         `json:"http_status,omitempty"`
	ContentType *string      `json:"content_type,omitempty"`
	Records     []TestRecord `json:"records"`
	RawPayload  *string      `json:"raw_payload,omitempty"`
}

// TestRecord mirrors the extracted fields so operators can see exactly what a
// mapping produces before enabling the connection.
type TestRecord struct {
	Artist          *string    `json:"artist"`
	Title           *string    `json:"title"`
	Album           *string    `json:"album"`
	ReportedAt      *time.Time `json:"reported_at"`
	DurationSeconds *int64     `json:"duration_seconds"`
}

func (t *Tester) Run(ctx context.Context, connectionID uuid.UUID) (TestResult, error) {
	conn, err := t.Repo.GetConnection(ctx, connectionID)
	if err != nil {
		return TestResult{}, err
	}
	if conn == nil {
		return TestResult{}, ErrConnectionNotFound
	}
	var rules *models.PayloadMapping
	if conn.PayloadMappingID != nil {
		rules, err = t.Repo.GetMapping(ctx, *conn.PayloadMappingID)
		if err != nil {
			return TestResult{}, err
		}
	}

	snap := SnapshotFrom(conn, rules)
	out := RunCycle(ctx, t.Fetcher, snap, t.Timeout, time.Now())

	if t.PersistStatus {
		if perr := t.Repo.RecordPollResult(ctx, repository.StatusUpdate{
			ConnectionID: snap.ConnectionID,
			PolledAt:     out.PolledAt,
			Status:       out.Status,
			Error:        out.Error,
		}, nil); perr != nil {
			t.Log.Warn("persist test status",
				zap.String("connection_id", connectionID.String()),
				zap.Error(perr))
		}
	}

	return buildTestResult(out), nil
}

func buildTestResult(out Outcome) TestResult {
	result := TestResult{
		Status:  out.Status,
		Error:   out.Error,
		Records: make([]TestRecord, 0, len(out.Records)),
	}
	for _, rec := range out.Records {
		result.Records = append(result.Records, TestRecord{
			Artist:          rec.Artist,
			Title:           rec.Title,
			Album:           rec.Album,
			ReportedAt:      rec.ReportedAt,
			DurationSeconds: rec.DurationSeconds,
		})
	}
	// The payload comes from the exchange itself, not the stored events: a
	// fetch that yields zero records (empty list, item-less feed) still gives
	// the operator something to debug the mapping against.
	if out.Result.Status > 0 {
		status := out.Result.Status
		result.HTTPStatus = &status
		if out.Result.ContentType != "" {
			ct := out.Result.ContentType
			result.ContentType = &ct
		}
		payload := string(out.Result.Body)
		result.RawPayload = &payload
	}
	return result
}
