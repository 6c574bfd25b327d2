package limiter

import (
	"time"

	"github.com/balcony-power/dpc/external"
	"github.com/balcony-power/dpc/timeutils"
)

// restartScheduler asks the inverter to restart at a configured wall-clock
// hour, daily (§4.6: "periodic restart").
type restartScheduler struct {
	hour   int // -1 disables
	nextAt time.Time
	armed  bool
}

func (r *restartScheduler) clockTime() timeutils.ClockTime {
	return timeutils.ClockTime{Hour: r.hour, Location: time.Local}
}

func (r *restartScheduler) maybeRestart(now time.Time, inv external.Inverter, logger interface {
	Info(msg string, args ...any)
}) {
	if r.hour < 0 || inv == nil {
		return
	}

	if !r.armed {
		r.nextAt = r.clockTime().NextOccurrence(now)
		r.armed = true
		return
	}

	if now.Before(r.nextAt) {
		return
	}

	logger.Info("periodic inverter restart")
	_ = inv.SendRestartControl()
	r.nextAt = r.clockTime().NextOccurrence(now)
}
