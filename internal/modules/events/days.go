package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/houseofmisfits/willow/internal/store"
)

// Day indices are 0=Monday .. 6=Sunday, matching the day-schedule table.
var dayNames = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var longDayNames = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

// dayIndex converts a time.Weekday (Sunday=0) to a schedule index.
func dayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// parseDay resolves a user-typed day name to a schedule index.
func parseDay(s string) (int, error) {
	name := strings.ToLower(s)
	for i, n := range dayNames {
		if name == n {
			return i, nil
		}
	}
	if i, ok := longDayNames[name]; ok {
		return i, nil
	}
	return 0, fmt.Errorf("unknown day %q, use one of %s", s, strings.Join(dayNames, ", "))
}

// resolveDate resolves a user-typed day name or YYYY-MM-DD string to a
// concrete date, relative to today in the reference zone. A day name means
// the most recent such day, today included.
func resolveDate(s string, today time.Time) (string, error) {
	if day, err := parseDay(s); err == nil {
		delta := (dayIndex(today.Weekday()) - day + 7) % 7
		return today.AddDate(0, 0, -delta).Format(store.DateLayout), nil
	}
	t, err := time.ParseInLocation(store.DateLayout, s, today.Location())
	if err != nil {
		return "", fmt.Errorf("unknown day or date %q, use mon..sun or YYYY-MM-DD", s)
	}
	return t.Format(store.DateLayout), nil
}
