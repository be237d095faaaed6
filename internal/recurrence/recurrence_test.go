package recurrence

import (
	"testing"
	"time"

	"reminder-service/internal/models"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}

func TestNextBasicFrequencies(t *testing.T) {
	testCases := []struct {
		name      string
		frequency models.Frequency
		interval  int
		timeOfDay string
		reference string
		expected  string
	}{
		{"daily interval 1", models.FrequencyDaily, 1, "09:00", "2025-03-10T09:00:00Z", "2025-03-11T09:00:00Z"},
		{"daily interval 3", models.FrequencyDaily, 3, "21:30", "2025-03-10T21:30:00Z", "2025-03-13T21:30:00Z"},
		{"weekly interval 1", models.FrequencyWeekly, 1, "08:00", "2025-03-10T08:00:00Z", "2025-03-17T08:00:00Z"},
		{"weekly interval 2 is 14 days", models.FrequencyWeekly, 2, "08:00", "2025-03-10T08:00:00Z", "2025-03-24T08:00:00Z"},
		{"monthly interval 1", models.FrequencyMonthly, 1, "12:00", "2025-03-15T12:00:00Z", "2025-04-15T12:00:00Z"},
		{"time of day overrides reference clock", models.FrequencyDaily, 1, "09:00", "2025-03-10T17:45:00Z", "2025-03-11T09:00:00Z"},
		{"zero interval treated as one", models.FrequencyDaily, 0, "09:00", "2025-03-10T09:00:00Z", "2025-03-11T09:00:00Z"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &models.Recurrence{
				Enabled:   true,
				Frequency: tc.frequency,
				Interval:  tc.interval,
				TimeOfDay: tc.timeOfDay,
			}
			next, ok := Next(rec, mustTime(t, tc.reference))
			if !ok {
				t.Fatalf("expected a next trigger, got expiry")
			}
			if expected := mustTime(t, tc.expected); !next.Equal(expected) {
				t.Errorf("expected %s, got %s", expected, next)
			}
		})
	}
}

func TestNextMonthlyClampsToShortMonth(t *testing.T) {
	testCases := []struct {
		name      string
		reference string
		interval  int
		expected  string
	}{
		{"jan 31 lands on last day of feb", "2025-01-31T09:00:00Z", 1, "2025-02-28T09:00:00Z"},
		{"jan 31 leap year lands on feb 29", "2024-01-31T09:00:00Z", 1, "2024-02-29T09:00:00Z"},
		{"mar 31 lands on apr 30", "2025-03-31T09:00:00Z", 1, "2025-04-30T09:00:00Z"},
		{"jan 31 skipping two months keeps day", "2025-01-31T09:00:00Z", 2, "2025-03-31T09:00:00Z"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &models.Recurrence{
				Enabled:   true,
				Frequency: models.FrequencyMonthly,
				Interval:  tc.interval,
				TimeOfDay: "09:00",
			}
			next, ok := Next(rec, mustTime(t, tc.reference))
			if !ok {
				t.Fatalf("expected a next trigger, got expiry")
			}
			if expected := mustTime(t, tc.expected); !next.Equal(expected) {
				t.Errorf("expected %s, got %s", expected, next)
			}
		})
	}
}

func TestNextCustomDaysOfWeek(t *testing.T) {
	// 2025-03-10 is a Monday.
	reference := mustTime(t, "2025-03-10T09:00:00Z")

	t.Run("scans forward to the next allowed weekday", func(t *testing.T) {
		rec := &models.Recurrence{
			Enabled:    true,
			Frequency:  models.FrequencyCustom,
			Interval:   1,
			DaysOfWeek: []int{3, 5}, // Wednesday, Friday
			TimeOfDay:  "09:00",
		}
		next, ok := Next(rec, reference)
		if !ok {
			t.Fatalf("expected a next trigger, got expiry")
		}
		if expected := mustTime(t, "2025-03-12T09:00:00Z"); !next.Equal(expected) {
			t.Errorf("expected Wednesday %s, got %s", expected, next)
		}
	})

	t.Run("weekly variant constrains to the weekday after the advance", func(t *testing.T) {
		rec := &models.Recurrence{
			Enabled:    true,
			Frequency:  models.FrequencyWeekly,
			Interval:   1,
			DaysOfWeek: []int{4}, // Thursday
			TimeOfDay:  "09:00",
		}
		next, ok := Next(rec, reference)
		if !ok {
			t.Fatalf("expected a next trigger, got expiry")
		}
		// Advance lands on Monday the 17th, then scans to Thursday the 20th.
		if expected := mustTime(t, "2025-03-20T09:00:00Z"); !next.Equal(expected) {
			t.Errorf("expected Thursday %s, got %s", expected, next)
		}
	})

	t.Run("empty set falls back to plain weekly", func(t *testing.T) {
		rec := &models.Recurrence{
			Enabled:   true,
			Frequency: models.FrequencyCustom,
			Interval:  2,
			TimeOfDay: "09:00",
		}
		next, ok := Next(rec, reference)
		if !ok {
			t.Fatalf("expected a next trigger, got expiry")
		}
		if expected := mustTime(t, "2025-03-24T09:00:00Z"); !next.Equal(expected) {
			t.Errorf("expected %s, got %s", expected, next)
		}
	})
}

func TestNextSignalsExpiryPastEndDate(t *testing.T) {
	endDate := mustTime(t, "2025-03-12T00:00:00Z")
	rec := &models.Recurrence{
		Enabled:   true,
		Frequency: models.FrequencyDaily,
		Interval:  5,
		TimeOfDay: "09:00",
		EndDate:   &endDate,
	}

	if next, ok := Next(rec, mustTime(t, "2025-03-10T09:00:00Z")); ok {
		t.Errorf("expected expiry, got next trigger %s", next)
	}
}

func TestNextUnknownFrequency(t *testing.T) {
	rec := &models.Recurrence{Enabled: true, Frequency: "hourly", Interval: 1}
	if next, ok := Next(rec, time.Now()); ok {
		t.Errorf("expected no trigger for unknown frequency, got %s", next)
	}
}

func TestReferencePrecedence(t *testing.T) {
	now := mustTime(t, "2025-03-10T10:00:00Z")
	start := mustTime(t, "2025-01-01T00:00:00Z")
	last := mustTime(t, "2025-03-01T09:00:00Z")

	testCases := []struct {
		name     string
		rec      *models.Recurrence
		expected time.Time
	}{
		{"last triggered wins", &models.Recurrence{LastTriggered: &last, StartDate: &start}, last},
		{"start date when never triggered", &models.Recurrence{StartDate: &start}, start},
		{"now when nothing else", &models.Recurrence{}, now},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reference(tc.rec, now); !got.Equal(tc.expected) {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestFirstTriggerFromStartDate(t *testing.T) {
	// A daily 09:00 schedule starting 2025-01-01 with no prior fire must
	// first trigger at 2025-01-02T09:00: advance from the reference, then
	// apply the time of day.
	start := mustTime(t, "2025-01-01T00:00:00Z")
	rec := &models.Recurrence{
		Enabled:   true,
		Frequency: models.FrequencyDaily,
		Interval:  1,
		TimeOfDay: "09:00",
		StartDate: &start,
	}

	next, ok := Next(rec, Reference(rec, mustTime(t, "2025-01-01T00:00:00Z")))
	if !ok {
		t.Fatalf("expected a next trigger, got expiry")
	}
	if expected := mustTime(t, "2025-01-02T09:00:00Z"); !next.Equal(expected) {
		t.Errorf("expected first trigger %s, got %s", expected, next)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	testCases := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"23:59", 23, 59, false},
		{"0:5", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			hour, minute, err := ParseTimeOfDay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hour != tc.hour || minute != tc.minute {
				t.Errorf("expected %02d:%02d, got %02d:%02d", tc.hour, tc.minute, hour, minute)
			}
		})
	}
}
