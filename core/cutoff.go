package core

import (
	"fmt"
	"time"
)

// ResolveCutoff turns an HH:MM market-time cutoff into an instant on the day of now
func ResolveCutoff(now time.Time, loc *time.Location, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("want HH:MM, got %q", hhmm)
	}
	lt := now.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
