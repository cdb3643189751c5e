package refresh

import (
	"fmt"
	"time"
)

// Window is the inclusive date range a refresh fetches.
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window covers no days. This happens off-season,
// when the resolved season start lies after today.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}

// ShouldRun reports whether enough whole days have passed since the
// watermark. A dataset without a watermark always refreshes.
func ShouldRun(watermark time.Time, hasWatermark bool, minDays int, today time.Time) bool {
	if !hasWatermark {
		return true
	}
	return daysBetween(watermark, today) >= minDays
}

// ComputeWindow derives the fetch window: lookbackDays before the watermark
// (clamped to the season start) through today. Without a watermark the
// window opens at the season start for a full initial load.
func ComputeWindow(watermark time.Time, hasWatermark bool, seasonStart time.Time, lookbackDays int, today time.Time) Window {
	start := dateOf(seasonStart)
	if hasWatermark {
		if s := dateOf(watermark).AddDate(0, 0, -lookbackDays); s.After(start) {
			start = s
		}
	}
	return Window{Start: start, End: dateOf(today)}
}

// ResolveSeasonStart parses a season start setting: either "MM-DD", resolved
// against today's year, or a full "YYYY-MM-DD" date.
func ResolveSeasonStart(value string, today time.Time) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return dateOf(t), nil
	}
	t, err := time.Parse("01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("refresh: invalid season start %q (want MM-DD or YYYY-MM-DD)", value)
	}
	return time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// dateOf truncates t to its calendar date, normalized to UTC so arithmetic
// against dataset dates (parsed as UTC midnights) never drifts.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from one date to another.
func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)) / (24 * time.Hour))
}
