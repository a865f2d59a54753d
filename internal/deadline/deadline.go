// Package deadline computes the check-in window for a calendar day: the
// scheduled instant and the deadline instant after the grace period. Pure
// functions, no collaborators.
package deadline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// Window maps a time of day, grace period, and timezone onto concrete
// instants for one calendar day. The time of day is interpreted in tz on
// that day, so the same "09:00" lands correctly across zone changes and DST
// shifts. A graceMinutes of 0 or less uses the service default.
func Window(timeOfDay string, graceMinutes int, tz string, day pruuf.Date) (scheduled, deadline time.Time, err error) {
	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown timezone %q", pruuf.ErrInvalidConfiguration, tz)
	}

	base, err := time.Parse(pruuf.DateLayout, day.String())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid day %q", pruuf.ErrInvalidConfiguration, day)
	}

	if graceMinutes <= 0 {
		graceMinutes = config.DefaultGraceMinutes
	}

	scheduled = time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, loc)
	deadline = scheduled.Add(time.Duration(graceMinutes) * time.Minute)
	return scheduled, deadline, nil
}

// parseTimeOfDay accepts "HH:MM" on a 24-hour clock.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid time of day %q", pruuf.ErrInvalidConfiguration, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", pruuf.ErrInvalidConfiguration, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", pruuf.ErrInvalidConfiguration, s)
	}
	return hour, minute, nil
}
