package compose

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAddBusinessDaysSkipsWeekends(t *testing.T) {
	cases := []struct {
		start string
		n     int
		want  string
	}{
		{"2024-01-01", 1, "2024-01-02"},
		{"2024-01-05", 1, "2024-01-08"},
		{"2024-01-05", 5, "2024-01-12"},
		{"2024-01-06", 1, "2024-01-08"},
		{"2024-01-03", 0, "2024-01-03"},
	}
	for _, c := range cases {
		if got := AddBusinessDays(date(c.start), c.n).Format(DateLayout); got != c.want {
			t.Fatalf("AddBusinessDays(%s, %d) = %s, want %s", c.start, c.n, got, c.want)
		}
	}
}

func TestNextBusinessDay(t *testing.T) {
	if got := NextBusinessDay(date("2024-01-06")).Format(DateLayout); got != "2024-01-08" {
		t.Fatalf("saturday should move to monday, got %s", got)
	}
	if got := NextBusinessDay(date("2024-01-03")).Format(DateLayout); got != "2024-01-03" {
		t.Fatalf("weekday should be kept, got %s", got)
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	if got := BusinessDaysBetween(date("2024-01-01"), date("2024-01-08")); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := BusinessDaysBetween(date("2024-01-01"), date("2024-01-01")); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestDurationDays(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 480: 1, 481: 2, 960: 2, 2400: 5}
	for minutes, want := range cases {
		if got := DurationDays(minutes, 480); got != want {
			t.Fatalf("DurationDays(%d) = %d, want %d", minutes, got, want)
		}
	}
}

func TestDayTruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	got := Day(time.Date(2024, 2, 29, 23, 30, 0, 0, loc))
	if got.Format(time.RFC3339) != "2024-02-29T00:00:00Z" {
		t.Fatalf("unexpected day %s", got.Format(time.RFC3339))
	}
}
