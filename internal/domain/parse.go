package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationKind is the normalized form of the portal's free-text duration.
type DurationKind int

const (
	DurationUnknown DurationKind = iota
	DurationFullDay
	DurationHalfDay
)

// ParseDurationKind normalizes strings like "Full Day", "Half Day AM",
// "FULL DAY (7:45 AM - 3:05 PM)". A string containing both patterns counts
// as half day; containing neither is unknown.
func ParseDurationKind(s string) DurationKind {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "half day"):
		return DurationHalfDay
	case strings.Contains(s, "full day"):
		return DurationFullDay
	}
	return DurationUnknown
}

var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006-01-02",
}

// ParseJobDate parses a portal date string into a date in loc. A leading
// weekday name ("Monday, 9/15/2025" or "Mon 9/15/2025") is tolerated.
func ParseJobDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	// Strip a leading weekday-name prefix, comma-separated or space-separated.
	if i := strings.Index(s, ","); i >= 0 && isWeekdayName(s[:i]) {
		s = strings.TrimSpace(s[i+1:])
	} else if i := strings.IndexByte(s, ' '); i >= 0 && isWeekdayName(s[:i]) {
		s = strings.TrimSpace(s[i+1:])
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

func isWeekdayName(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"mon", "tue", "tues", "wed", "thu", "thur", "thurs", "fri", "sat", "sun":
		return true
	}
	return false
}

// DaysAhead returns the number of whole calendar days between now and the
// job's first date, both taken in loc. Unparsable dates degrade to -1,
// which disqualifies auto-booking rather than erroring.
//
// The subtraction happens on civil dates pinned to UTC: local days are not
// uniformly 24h (DST transitions make them 23h or 25h), so subtracting local
// midnights and dividing by 24h would drop a day across a spring-forward.
func DaysAhead(j Job, now time.Time, loc *time.Location) int {
	d, err := ParseJobDate(j.FirstDate(), loc)
	if err != nil {
		return -1
	}
	ln := now.In(loc)
	target := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(ln.Year(), ln.Month(), ln.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today) / (24 * time.Hour))
}

// ParseActiveWindow parses "HH:MM–HH:MM" or "HH:MM-HH:MM" into minutes since midnight.
func ParseActiveWindow(s string) (fromM, toM int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, errors.New("empty window")
	}
	sep := "–"
	if strings.Contains(s, "-") && !strings.Contains(s, "–") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, errors.New("expected format HH:MM-HH:MM")
	}
	fromM, err = parseHHMM(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("from: %w", err)
	}
	toM, err = parseHHMM(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("to: %w", err)
	}
	return fromM, toM, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.New("invalid minute")
	}
	return h*60 + m, nil
}

// InWindow returns true if local time (minutes since midnight) is inside the
// active window. Supports wrap-around windows like 22:00–02:00 (fromM > toM).
func InWindow(localM, fromM, toM int) bool {
	if fromM == toM {
		return false // zero-length window
	}
	if fromM < toM {
		return localM >= fromM && localM < toM
	}
	// wrap: [from..1440) U [0..to)
	return localM >= fromM || localM < toM
}

// MinuteOfDay returns minutes since midnight for t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
