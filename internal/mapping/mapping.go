// Package mapping turns raw feed payloads into normalized track records.
// Everything in here is pure: no I/O, no clocks, no storage.
package mapping

import (
	"time"

	"nowplaying/internal/models"
)

// Rules is the extraction rule set evaluated against a payload. Empty path
// strings mean "not mapped"; a nil *Rules means "use per-type defaults".
type Rules struct {
	ListPath       string
	ArtistPath     string
	TitlePath      string
	AlbumPath      string
	ReportedAtPath string
	DurationPath   string
}

// RulesFrom adapts a stored PayloadMapping row.
func RulesFrom(m *models.PayloadMapping) *Rules {
	if m == nil {
		return nil
	}
	return &Rules{
		ListPath:       m.ListPath,
		ArtistPath:     m.ArtistPath,
		TitlePath:      m.TitlePath,
		AlbumPath:      m.AlbumPath,
		ReportedAtPath: m.ReportedAtPath,
		DurationPath:   m.DurationPath,
	}
}

// Record is one normalized observation. Every field is optional: an
// unresolvable path omits the field rather than failing the record.
type Record struct {
	Artist          *string
	Title           *string
	Album           *string
	ReportedAt      *time.Time
	DurationSeconds *int64
}

func (r Record) Empty() bool {
	return r.Artist == nil && r.Title == nil && r.Album == nil &&
		r.ReportedAt == nil && r.DurationSeconds == nil
}

// ParseError reports a body that could not be parsed per the declared type.
// It surfaces as the connection's last_error; the raw payload is still kept.
type ParseError struct {
	ConnectionType string
	Err            error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	msg := "unparseable body"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return "parse " + e.ConnectionType + ": " + msg
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
