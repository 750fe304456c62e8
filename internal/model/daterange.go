package model

import (
	"time"
)

// DefaultTimezone is the zone every job resolves "today" in unless its
// descriptor says otherwise. Jobs run unattended on hosts that may sit in
// a different zone than the data they describe.
const DefaultTimezone = "America/Lima"

// DateRange is a resolved inclusive calendar-date pair, start <= end.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// String renders both bounds as ISO calendar dates.
func (r DateRange) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}

// RangeSpec carries the four optional date-range fields of a job. At most
// one resolution branch fires; zero values mean "not set".
type RangeSpec struct {
	Start     string
	End       string
	Days      int
	Threshold int
}

// Resolve turns the spec into a concrete date pair. Branches, first match
// wins:
//  1. both bounds explicit
//  2. start explicit, end = today
//  3. trailing day count: today-N .. today
//  4. month threshold: day-of-month <= threshold starts the range at the
//     previous month's first day, otherwise at the current month's first
//     day; end = today
//  5. nothing set: yesterday .. today
//
// "today" is evaluated against now's location, never the host zone.
func (s RangeSpec) Resolve(now time.Time) (DateRange, error) {
	loc := now.Location()
	today := midnight(now)

	switch {
	case s.Start != "" && s.End != "":
		start, err := parseDate(s.Start, loc)
		if err != nil {
			return DateRange{}, err
		}
		end, err := parseDate(s.End, loc)
		if err != nil {
			return DateRange{}, err
		}
		if start.After(end) {
			return DateRange{}, Configf("fecha_ini %s is after fecha_fin %s", s.Start, s.End)
		}
		return DateRange{Start: start, End: end}, nil

	case s.Start != "":
		start, err := parseDate(s.Start, loc)
		if err != nil {
			return DateRange{}, err
		}
		if start.After(today) {
			return DateRange{}, Configf("fecha_ini %s is after today", s.Start)
		}
		return DateRange{Start: start, End: today}, nil

	case s.Days > 0:
		return DateRange{Start: today.AddDate(0, 0, -s.Days), End: today}, nil

	case s.Threshold > 0:
		if s.Threshold > 31 {
			return DateRange{}, Configf("fecha_threshold must be a day of month, got %d", s.Threshold)
		}
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		if today.Day() <= s.Threshold {
			first = first.AddDate(0, -1, 0)
		}
		return DateRange{Start: first, End: today}, nil
	}

	return DateRange{Start: today.AddDate(0, 0, -1), End: today}, nil
}

// dateLayouts are the accepted explicit-bound formats.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return midnight(t), nil
		}
	}
	return time.Time{}, &DateParseError{Input: value}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
