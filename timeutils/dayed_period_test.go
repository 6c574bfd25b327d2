package timeutils

import (
	"testing"
	"time"
)

func TestDayedPeriodIsOnDay(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load london tz: %v", err)
	}

	ctPeriod := ClockTimePeriod{
		Start: ClockTime{Hour: 17, Location: london},
		End:   ClockTime{Hour: 20, Location: london},
	}

	saturday := time.Date(2023, 10, 21, 18, 0, 0, 0, london) // a Saturday
	monday := time.Date(2023, 10, 23, 18, 0, 0, 0, london)   // a Monday

	subTests := []struct {
		name     string
		days     Days
		t        time.Time
		expected bool
	}{
		{"all days, weekday", AllDays, monday, true},
		{"all days, weekend", AllDays, saturday, true},
		{"weekdays only, weekday", WeekdayDays, monday, true},
		{"weekdays only, weekend", WeekdayDays, saturday, false},
		{"weekends only, weekday", WeekendDays, monday, false},
		{"weekends only, weekend", WeekendDays, saturday, true},
	}
	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			d := DayedPeriod{ClockTimePeriod: ctPeriod, Days: subTest.days}
			if got := d.IsOnDay(subTest.t); got != subTest.expected {
				t.Errorf("got %t, expected %t", got, subTest.expected)
			}
		})
	}
}
