package timeutils

import "time"

// ClockTimePeriod is a period of time-of-day, e.g. "4pm to 6pm", with no
// associated date. It does not support spanning over a midnight boundary.
type ClockTimePeriod struct {
	Start ClockTime
	End   ClockTime
}

// AbsolutePeriod returns the concrete Period on the same date as `t`, and
// true, if `t` falls within the period (inclusive of Start, exclusive of
// End). Otherwise it returns false.
func (p ClockTimePeriod) AbsolutePeriod(t time.Time) (Period, bool) {
	year, month, day := t.In(p.Start.Location).Date()

	startDateTime := p.Start.OnDate(year, month, day)
	endDateTime := p.End.OnDate(year, month, day)

	if t.Before(startDateTime) || !t.Before(endDateTime) {
		return Period{}, false
	}

	return Period{Start: startDateTime, End: endDateTime}, true
}

// Contains returns true if t falls within the clock-time period on its own
// date (inclusive of Start, exclusive of End).
func (p ClockTimePeriod) Contains(t time.Time) bool {
	_, ok := p.AbsolutePeriod(t)
	return ok
}
