// Package recurrence computes the next trigger instant for a recurring
// reminder. It is a pure calculation over the recurrence spec and a
// reference instant; callers own all state.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reminder-service/internal/models"
)

// Reference picks the instant the next advance starts from: the last fire if
// there was one, otherwise the schedule's start date, otherwise now.
func Reference(rec *models.Recurrence, now time.Time) time.Time {
	if rec.LastTriggered != nil {
		return *rec.LastTriggered
	}
	if rec.StartDate != nil {
		return *rec.StartDate
	}
	return now
}

// Next advances reference by one recurrence step and applies the configured
// time of day to the resulting date. It returns ok=false when the computed
// trigger would fall past EndDate, which the caller must treat as expiry
// rather than clamping.
func Next(rec *models.Recurrence, reference time.Time) (time.Time, bool) {
	interval := rec.Interval
	if interval < 1 {
		interval = 1
	}

	var candidate time.Time
	switch rec.Frequency {
	case models.FrequencyDaily:
		candidate = reference.AddDate(0, 0, interval)
	case models.FrequencyWeekly:
		candidate = reference.AddDate(0, 0, 7*interval)
	case models.FrequencyMonthly:
		candidate = addMonthsClamped(reference, interval)
	case models.FrequencyCustom:
		if len(rec.DaysOfWeek) == 0 {
			// No weekday constraint: plain weekly behavior.
			candidate = reference.AddDate(0, 0, 7*interval)
		} else {
			candidate = reference.AddDate(0, 0, interval)
		}
	default:
		return time.Time{}, false
	}

	if len(rec.DaysOfWeek) > 0 &&
		(rec.Frequency == models.FrequencyWeekly || rec.Frequency == models.FrequencyCustom) {
		candidate = nextMatchingWeekday(candidate, rec.DaysOfWeek, 7*interval)
	}

	candidate = applyTimeOfDay(candidate, rec.TimeOfDay)

	if rec.EndDate != nil && candidate.After(*rec.EndDate) {
		return time.Time{}, false
	}

	return candidate, true
}

// ParseTimeOfDay validates an HH:MM string and returns its components.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day %q is not in HH:MM format", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q has invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q has invalid minute", s)
	}
	return hour, minute, nil
}

// nextMatchingWeekday scans forward day by day until the date's weekday is
// in days, giving up after maxDays and returning the candidate unchanged.
func nextMatchingWeekday(candidate time.Time, days []int, maxDays int) time.Time {
	allowed := make(map[int]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}
	scan := candidate
	for i := 0; i <= maxDays; i++ {
		if allowed[int(scan.Weekday())] {
			return scan
		}
		scan = scan.AddDate(0, 0, 1)
	}
	return candidate
}

func applyTimeOfDay(candidate time.Time, timeOfDay string) time.Time {
	if timeOfDay == "" {
		return candidate
	}
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return candidate
	}
	return time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
		hour, minute, 0, 0, candidate.Location())
}

// addMonthsClamped adds calendar months, clamping an overflowing day of
// month to the last valid day of the target month (Jan 31 + 1 month lands on
// Feb 28/29, never Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	day := t.Day()
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
