package mapping

import (
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order for string timestamps. RFC3339 first; the
// bare layout shows up in shoutcast-style status pages.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02 Jan 2006 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseReportedAt turns a resolved timestamp value into UTC. Strings are
// tried against known layouts, then as epoch numbers. Anything unparseable is
// an absent reported_at, not an error.
func ParseReportedAt(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(int64(n))
	}
	return nil
}

// epochTime interprets an epoch number, guessing the unit from magnitude:
// values past 1e11 cannot be seconds this side of year 5138, so they are
// milliseconds.
func epochTime(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 100_000_000_000 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

// parseDurationValue handles the shapes durations arrive in: JSON numbers,
// numeric strings, and ISO-8601-ish "PT3M45S" strings.
func parseDurationValue(val any) *int64 {
	switch v := val.(type) {
	case float64:
		return normalizeDuration(int64(v))
	case string:
		return parseDurationString(v)
	}
	return nil
}

func parseDurationString(raw string) *int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "PT") {
		return parseISODuration(s)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return normalizeDuration(int64(n))
	}
	// "3:45" style track lengths.
	if parts := strings.Split(s, ":"); len(parts) == 2 || len(parts) == 3 {
		var total int64
		for _, part := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || n < 0 {
				return nil
			}
			total = total*60 + n
		}
		if total > 0 {
			return &total
		}
	}
	return nil
}

// normalizeDuration guesses the unit from magnitude: nanoseconds past 1e9,
// milliseconds past 1e5, seconds otherwise. Non-positive values are absent.
func normalizeDuration(n int64) *int64 {
	switch {
	case n <= 0:
		return nil
	case n > 1_000_000_000:
		n /= 1_000_000_000
	case n > 100_000:
		n /= 1000
	}
	if n <= 0 {
		return nil
	}
	return &n
}

// parseISODuration handles the PT#H#M#S subset feeds actually emit.
func parseISODuration(s string) *int64 {
	rest := strings.TrimPrefix(s, "PT")
	var total int64
	var num strings.Builder
	for _, r := range rest {
		if r >= '0' && r <= '9' {
			num.WriteRune(r)
			continue
		}
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			return nil
		}
		num.Reset()
		switch r {
		case 'H':
			total += n * 3600
		case 'M':
			total += n * 60
		case 'S':
			total += n
		default:
			return nil
		}
	}
	if num.Len() > 0 || total <= 0 {
		return nil
	}
	return &total
}
