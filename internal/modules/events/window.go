package events

import (
	"fmt"
	"time"
)

// Window is a time-of-day range in the reference time zone. Both boundaries
// are inclusive at minute granularity: with 06:00-18:00, an event at 05:59
// falls outside, 06:00 and 18:00 fall inside, 18:01 falls outside.
type Window struct {
	startMin int // minutes since midnight
	endMin   int
}

// ParseWindow parses "HH:MM" boundaries.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseMinutes(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if e < s {
		return Window{}, fmt.Errorf("window end %s before start %s", end, start)
	}
	return Window{startMin: s, endMin: e}, nil
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM): %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t's time of day falls inside the window. The
// caller converts t to the reference zone first.
func (w Window) Contains(t time.Time) bool {
	min := t.Hour()*60 + t.Minute()
	return min >= w.startMin && min <= w.endMin
}
