package timeutils

import (
	"testing"
	"time"
)

func TestClockTimePeriodAbsolutePeriod(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load london tz: %v", err)
	}

	sixToTenAm := ClockTimePeriod{
		Start: ClockTime{Hour: 6, Location: london},
		End:   ClockTime{Hour: 10, Location: london},
	}

	sixTo10AmAbsolute := Period{
		Start: time.Date(2023, 8, 22, 6, 0, 0, 0, london),
		End:   time.Date(2023, 8, 22, 10, 0, 0, 0, london),
	}

	subTests := []struct {
		name           string
		period         ClockTimePeriod
		t              time.Time
		expectedPeriod Period
		expectedOK     bool
	}{
		{"before start", sixToTenAm, time.Date(2023, 8, 22, 0, 0, 0, 0, london), Period{}, false},
		{"after end", sixToTenAm, time.Date(2023, 8, 22, 11, 0, 0, 0, london), Period{}, false},
		{"on start boundary", sixToTenAm, time.Date(2023, 8, 22, 6, 0, 0, 0, london), sixTo10AmAbsolute, true},
		{"on end boundary is excluded", sixToTenAm, time.Date(2023, 8, 22, 10, 0, 0, 0, london), Period{}, false},
		{"inside", sixToTenAm, time.Date(2023, 8, 22, 9, 40, 0, 0, london), sixTo10AmAbsolute, true},
	}
	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			period, ok := subTest.period.AbsolutePeriod(subTest.t)
			if ok != subTest.expectedOK {
				t.Fatalf("ok got %t, expected %t", ok, subTest.expectedOK)
			}
			if ok && !period.Equal(subTest.expectedPeriod) {
				t.Errorf("period got %v, expected %v", period, subTest.expectedPeriod)
			}
		})
	}
}

func TestClockTimeNextOccurrence(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load london tz: %v", err)
	}
	restartAt := ClockTime{Hour: 3, Location: london}

	subTests := []struct {
		name     string
		after    time.Time
		expected time.Time
	}{
		{
			name:     "hour not yet passed today",
			after:    time.Date(2024, 1, 1, 1, 0, 0, 0, london),
			expected: time.Date(2024, 1, 1, 3, 0, 0, 0, london),
		},
		{
			name:     "hour already passed today rolls to tomorrow",
			after:    time.Date(2024, 1, 1, 4, 0, 0, 0, london),
			expected: time.Date(2024, 1, 2, 3, 0, 0, 0, london),
		},
	}
	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			got := restartAt.NextOccurrence(subTest.after)
			if !got.Equal(subTest.expected) {
				t.Errorf("got %v, expected %v", got, subTest.expected)
			}
		})
	}
}
