package mapping

import (
	"testing"
	"time"
)

func TestParseReportedAt(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T12:00:00Z", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01T14:00:00+02:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"01 Mar 2026 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"1772366400", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"1772366400000", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got := ParseReportedAt(c.in)
		if got == nil {
			t.Fatalf("%q: no parse", c.in)
		}
		if !got.Equal(c.want) {
			t.Fatalf("%q: got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseReportedAtRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "soon", "0", "-12"} {
		if got := ParseReportedAt(in); got != nil {
			t.Fatalf("%q: expected nil, got %v", in, got)
		}
	}
}

func TestParseDurationString(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"245", 245},
		{"245000", 245},          // milliseconds
		{"245000000000", 245},    // nanoseconds
		{"3:45", 225},
		{"1:02:03", 3723},
		{"PT3M45S", 225},
		{"PT1H2M3S", 3723},
	}
	for _, c := range cases {
		got := parseDurationString(c.in)
		if got == nil || *got != c.want {
			t.Fatalf("%q: got %v, want %d", c.in, got, c.want)
		}
	}
}

func TestParseDurationStringRejects(t *testing.T) {
	for _, in := range []string{"", "0", "-3", "PT", "abc", "3:xx"} {
		if got := parseDurationString(in); got != nil {
			t.Fatalf("%q: expected nil, got %d", in, *got)
		}
	}
}
