package compose

import (
	"math"
	"time"
)

const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay returns t if it is a business day, otherwise the following Monday.
func NextBusinessDay(t time.Time) time.Time {
	for !IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances one calendar day at a time, counting only weekdays.
func AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if IsBusinessDay(t) {
			n--
		}
	}
	return t
}

// BusinessDaysBetween counts the business days in (from, to].
func BusinessDaysBetween(from, to time.Time) int {
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// DurationDays converts an effort estimate into whole business days, at least one.
func DurationDays(minutes, minutesPerDay int) int {
	if minutesPerDay <= 0 {
		minutesPerDay = 8 * 60
	}
	days := int(math.Ceil(float64(minutes) / float64(minutesPerDay)))
	if days < 1 {
		return 1
	}
	return days
}
