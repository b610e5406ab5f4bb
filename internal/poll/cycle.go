// Package poll runs the per-connection polling engine: one worker goroutine
// per enabled connection, a scheduler reconciling workers against the
// database, and a one-shot tester for the admin API.
package poll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nowplaying/internal/fetch"
	"nowplaying/internal/mapping"
	"nowplaying/internal/models"
)

// Snapshot is the frozen view of a connection taken at tick start. Config
// edits made while a cycle is in flight are only seen by the next cycle.
type Snapshot struct {
	ConnectionID       uuid.UUID
	StationID          uuid.UUID
	ConnectionType     string
	URL                string
	Headers            map[string]string
	Rules              *mapping.Rules
	PollInterval       time.Duration
	UseDurationPolling bool
}

// SnapshotFrom freezes conn (and its optional mapping) into a Snapshot.
func SnapshotFrom(conn *models.Connection, rules *models.PayloadMapping) Snapshot {
	snap := Snapshot{
		ConnectionID:       conn.ID,
		StationID:          conn.StationID,
		ConnectionType:     conn.ConnectionType,
		URL:                conn.URL,
		Headers:            decodeHeaders(conn.Headers),
		Rules:              mapping.RulesFrom(rules),
		PollInterval:       time.Duration(conn.PollIntervalSecs) * time.Second,
		UseDurationPolling: conn.UseDurationPolling,
	}
	if snap.PollInterval <= 0 {
		snap.PollInterval = time.Minute
	}
	return snap
}

func decodeHeaders(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil
	}
	return headers
}

// Outcome is the complete result of one poll cycle, ready to persist.
type Outcome struct {
	PolledAt time.Time
	Status   string
	Error    *string
	Events   []models.RawEvent
	Records  []mapping.Record
	// Result is the raw exchange, kept whenever the fetch completed (even
	// with a bad status or unparseable body) so the tester can always show
	// operators what came back.
	Result fetch.Result
	// DurationHint is set when the payload reported a track duration and the
	// connection opted into duration polling; the worker defers the next
	// cycle until the track should be over.
	DurationHint time.Duration
}

// RunCycle performs one fetch+extract pass for snap. Fetch failures yield an
// ERROR outcome with no events; parse failures yield ERROR with one event
// carrying the raw payload and absent extracted fields. Extraction gaps
// (paths that do not resolve) are not failures.
func RunCycle(ctx context.Context, fetcher fetch.Doer, snap Snapshot, timeout time.Duration, now time.Time) Outcome {
	out := Outcome{PolledAt: now.UTC()}

	res, err := fetcher.Do(ctx, fetch.Request{
		URL:            snap.URL,
		ConnectionType: snap.ConnectionType,
		Headers:        snap.Headers,
		SubscribeFrame: subscribeFrame(snap),
	}, clampTimeout(timeout, snap.PollInterval))
	if err != nil {
		return errorOutcome(out, err)
	}
	out.Result = res
	if res.Status < 200 || res.Status >= 300 {
		out = errorOutcome(out, &fetch.Error{
			Kind: fetch.KindProtocol,
			Err:  fmt.Errorf("unexpected HTTP status %d", res.Status),
		})
		// Keep the body for audit even though the exchange failed.
		if len(res.Body) > 0 {
			out.Events = []models.RawEvent{buildEvent(snap, res, mapping.Record{}, out.PolledAt)}
		}
		return out
	}

	records, err := mapping.Evaluate(res.Body, res.ContentType, snap.ConnectionType, snap.Rules)
	if err != nil {
		out = errorOutcome(out, err)
		out.Events = []models.RawEvent{buildEvent(snap, res, mapping.Record{}, out.PolledAt)}
		return out
	}

	out.Status = models.StatusOK
	out.Records = records
	out.Events = make([]models.RawEvent, 0, len(records))
	for _, rec := range records {
		out.Events = append(out.Events, buildEvent(snap, res, rec, out.PolledAt))
	}
	if snap.UseDurationPolling {
		out.DurationHint = durationHint(records)
	}
	return out
}

func errorOutcome(out Outcome, err error) Outcome {
	out.Status = models.StatusError
	msg := err.Error()
	out.Error = &msg
	return out
}

func subscribeFrame(snap Snapshot) string {
	if snap.ConnectionType != models.TypeWSJSON {
		return ""
	}
	return fetch.SubscribeFrame(snap.Headers)
}

// clampTimeout keeps a fetch strictly shorter than its own poll interval, so
// one hung exchange can never span multiple ticks. Short intervals fall back
// to half the interval rather than losing the margin entirely.
func clampTimeout(timeout, interval time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if interval <= 0 {
		return timeout
	}
	ceiling := interval - time.Second
	if ceiling <= 0 {
		ceiling = interval / 2
	}
	if timeout > ceiling {
		timeout = ceiling
	}
	return timeout
}

func buildEvent(snap Snapshot, res fetch.Result, rec mapping.Record, observedAt time.Time) models.RawEvent {
	payload := mapping.StorageValue(res.Body, snap.ConnectionType)
	event := models.RawEvent{
		ID:               uuid.New(),
		StationID:        snap.StationID,
		ConnectionID:     snap.ConnectionID,
		ObservedAt:       observedAt,
		ReportedAt:       rec.ReportedAt,
		ReportedArtist:   rec.Artist,
		ReportedTitle:    rec.Title,
		ReportedAlbum:    rec.Album,
		ReportedDuration: rec.DurationSeconds,
		RawPayload:       payload,
		PayloadHash:      payloadHash(snap.StationID, snap.ConnectionID, payload),
	}
	if res.Status > 0 {
		status := res.Status
		event.HTTPStatus = &status
	}
	if res.ContentType != "" {
		ct := res.ContentType
		event.ContentType = &ct
	}
	return event
}

// payloadHash keys deduplication: same station, connection and normalized
// payload means the feed has not changed since the last observation.
func payloadHash(stationID, connectionID uuid.UUID, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(stationID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(connectionID.String()))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// durationHint picks the first reported duration, padded so the next poll
// lands just after the track should have ended.
func durationHint(records []mapping.Record) time.Duration {
	for _, rec := range records {
		if rec.DurationSeconds != nil && *rec.DurationSeconds > 0 {
			return time.Duration(*rec.DurationSeconds)*time.Second + 2*time.Second
		}
	}
	return 0
}
