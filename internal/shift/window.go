// Package shift splits worked time into standard and overtime minutes
// against a configured daily shift window.
package shift

import (
	"fmt"
	"time"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

// Window is the standard working window, expressed as offsets from local midnight.
type Window struct {
	start time.Duration
	end   time.Duration
	loc   *time.Location
}

// Split is the accounting of worked minutes for one card or one day.
type Split struct {
	Total     int
	Standard  int
	MorningOt int
	EveningOt int
}

// NewWindow parses HH:MM boundaries. The end must be later than the start.
func NewWindow(start, end string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("invalid shift start %q: %w", start, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("invalid shift end %q: %w", end, err)
	}
	if e <= s {
		return Window{}, fmt.Errorf("shift end %s must be after start %s", end, start)
	}
	return Window{start: s, end: e, loc: loc}, nil
}

// Location returns the timezone the window is evaluated in.
func (w Window) Location() *time.Location {
	return w.loc
}

// Date returns local midnight of the calendar day containing t.
func (w Window) Date(t time.Time) time.Time {
	local := t.In(w.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
}

// Bounds returns the shift start and end instants on the calendar day of t.
func (w Window) Bounds(t time.Time) (time.Time, time.Time) {
	day := w.Date(t)
	return ParseTimeOnDate(day, w.start), ParseTimeOnDate(day, w.end)
}

// ParseTimeOnDate places a time-of-day offset on the given local midnight.
func ParseTimeOnDate(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// SplitInterval divides a card's workMinutes between morning overtime, standard
// time and evening overtime in proportion to how much of [start, end] fell before,
// inside and after the shift window. Intervals spanning midnight are walked day by day.
func (w Window) SplitInterval(start, end time.Time, workMinutes int) Split {
	split := Split{Total: workMinutes, Standard: workMinutes}
	elapsed := end.Sub(start)
	if workMinutes <= 0 || elapsed <= 0 {
		return split
	}

	var before, after time.Duration
	for day := w.Date(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		shiftStart, shiftEnd := ParseTimeOnDate(day, w.start), ParseTimeOnDate(day, w.end)
		before += overlap(start, end, day, shiftStart)
		after += overlap(start, end, shiftEnd, day.AddDate(0, 0, 1))
	}

	split.MorningOt = int(int64(before) * int64(workMinutes) / int64(elapsed))
	split.EveningOt = int(int64(after) * int64(workMinutes) / int64(elapsed))
	split.Standard = workMinutes - split.MorningOt - split.EveningOt
	return split
}

// Aggregate folds every interval that lies wholly inside [dayStart, dayEnd] into one
// day split. The total is capped at the elapsed day span, trimming standard
// time first and then evening and morning overtime.
func (w Window) Aggregate(intervals []models.WorkInterval, dayStart, dayEnd time.Time) Split {
	var day Split
	for _, iv := range intervals {
		if iv.StartTime.Before(dayStart) || iv.EndTime.After(dayEnd) {
			continue
		}
		s := w.SplitInterval(iv.StartTime, iv.EndTime, iv.WorkMinutes)
		day.Total += s.Total
		day.Standard += s.Standard
		day.MorningOt += s.MorningOt
		day.EveningOt += s.EveningOt
	}

	limit := int(dayEnd.Sub(dayStart) / time.Minute)
	if limit < 0 {
		limit = 0
	}
	if excess := day.Total - limit; excess > 0 {
		excess = trim(&day.Standard, excess)
		excess = trim(&day.EveningOt, excess)
		trim(&day.MorningOt, excess)
		day.Total = limit
	}
	return day
}

func trim(bucket *int, excess int) int {
	if *bucket >= excess {
		*bucket -= excess
		return 0
	}
	excess -= *bucket
	*bucket = 0
	return excess
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func parseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
