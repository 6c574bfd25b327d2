package invcoord

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/balcony-power/dpc/external"
	"github.com/balcony-power/dpc/wraptime"
)

const (
	ticketTimeout            = 30 * time.Second
	restartAtTimeoutCount    = 10
	processRestartAtTimeouts = 20
	limitDeviationTolerance  = 0.02
)

// Coordinator owns the transition logic for exactly one inverter. The
// caller (the dynamic power limiter, G) calls Request to set a desired
// target and Tick once per scheduler cycle until it returns false.
type Coordinator struct {
	inv    external.Inverter
	logger *slog.Logger

	ticket        InverterCommandTicket
	pending       bool
	timeoutCount  int
	restartIssued bool

	// baseline*Ms are the inverter's own telemetry counter, snapshotted at
	// the moment a command was sent. A telemetry reading is "fresh" only
	// once its timestamp is strictly newer than the baseline (§4.3).
	powerCmdBaselineMs uint32
	limitCmdBaselineMs uint32

	processRestartRequested bool
}

func New(inv external.Inverter, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		inv:    inv,
		logger: logger.With("component", "invcoord", "inverter", inv.Serial()),
	}
}

// Request sets the desired on/off and limit targets, replacing any
// previous pending request. It is idempotent: calling it repeatedly with
// the same targets has no extra effect. A request arriving mid-transition
// keeps the existing ticket's deadline (§4.3: "does not reset the timeout
// deadline").
func (c *Coordinator) Request(desiredOn bool, desiredLimitW float64) {
	if !c.pending {
		c.ticket = InverterCommandTicket{
			ID:       uuid.New(),
			OpenedAt: time.Now(),
		}
		c.pending = true
	}

	c.ticket.HasOnOff = true
	c.ticket.DesiredOn = desiredOn
	c.ticket.HasLimit = desiredOn
	c.ticket.DesiredLimitW = desiredLimitW
}

// Clear drops any pending request without sending further commands.
func (c *Coordinator) Clear() {
	c.pending = false
	c.ticket = InverterCommandTicket{}
}

// LastCommandMs reports the inverter's own telemetry timestamp at the
// moment the most recent command was sent, for callers (the dynamic power
// limiter, G) that need to gate on fresh telemetry themselves (§4.6 step 7).
func (c *Coordinator) LastCommandMs() uint32 {
	if wraptime.After(c.limitCmdBaselineMs, c.powerCmdBaselineMs) {
		return c.limitCmdBaselineMs
	}
	return c.powerCmdBaselineMs
}

// ProcessRestartRequested reports whether the timeout counter has reached
// the process-restart threshold. The caller is expected to check this
// after Tick and exit the process if true; it is never cleared internally.
func (c *Coordinator) ProcessRestartRequested() bool {
	return c.processRestartRequested
}

// Tick runs one cycle of the algorithm in §4.3 and reports whether a state
// change is still in flight.
func (c *Coordinator) Tick() bool {
	if !c.pending {
		c.timeoutCount = 0
		return false
	}

	if time.Since(c.ticket.OpenedAt) > ticketTimeout {
		c.timeoutCount++
		c.logger.Warn("inverter command ticket timed out", "ticket", c.ticket.ID, "count", c.timeoutCount)
		c.abandon()

		if c.timeoutCount == restartAtTimeoutCount {
			c.logger.Error("inverter unresponsive, issuing restart")
			if err := c.inv.SendRestartControl(); err != nil {
				c.logger.Error("restart command failed", "err", err)
			}
		}
		if c.timeoutCount == processRestartAtTimeouts {
			c.logger.Error("inverter still unresponsive after restart, requesting process restart")
			c.processRestartRequested = true
		}

		return false
	}

	// Ordering guarantee: off-before-limit-before-on.
	if c.ticket.HasOnOff && !c.ticket.DesiredOn {
		if c.stepPower(false) {
			return true
		}
	}
	if c.ticket.HasLimit {
		if c.stepLimit() {
			return true
		}
	}
	if c.ticket.HasOnOff && c.ticket.DesiredOn {
		if c.stepPower(true) {
			return true
		}
	}

	c.pending = false
	return false
}

func (c *Coordinator) abandon() {
	c.pending = false
	c.ticket = InverterCommandTicket{}
}

// stepPower drives the on/off part of the ticket toward `on`, returning
// true while the transition is still in flight.
func (c *Coordinator) stepPower(on bool) bool {
	if c.freshTelemetry(c.powerCmdBaselineMs) && c.inv.IsProducing() == on {
		c.ticket.HasOnOff = false
		return false
	}

	if err := c.inv.SendPowerControl(on); err != nil {
		c.logger.Warn("power command failed", "on", on, "err", err)
	}
	c.powerCmdBaselineMs = c.inv.StatsLastUpdateMs()

	return true
}

// stepLimit drives the limit part of the ticket, returning true while the
// commit is still in flight.
func (c *Coordinator) stepLimit() bool {
	if c.limitCmdBaselineMs == 0 {
		c.sendLimit()
		return true
	}

	switch c.inv.LastLimitCommandSuccess() {
	case external.CommandOK:
		if !c.freshTelemetry(c.limitCmdBaselineMs) {
			return true
		}

		reportedW := float64(c.inv.LimitPercent()) / 100 * float64(c.inv.MaxPowerW())
		if c.ticket.DesiredLimitW != 0 {
			deviation := absF(reportedW-c.ticket.DesiredLimitW) / absF(c.ticket.DesiredLimitW)
			if deviation > limitDeviationTolerance {
				c.logger.Warn("inverter limit deviates from request",
					"requested_w", c.ticket.DesiredLimitW, "reported_w", reportedW, "deviation", deviation)
			}
		}

		c.ticket.HasLimit = false
		return false

	case external.CommandFailed:
		c.sendLimit()
		return true

	default: // CommandPending
		return true
	}
}

func (c *Coordinator) sendLimit() {
	percent := float32(0)
	if max := c.inv.MaxPowerW(); max > 0 {
		percent = float32(c.ticket.DesiredLimitW / float64(max) * 100)
	}

	if err := c.inv.SendActivePowerControl(percent, false); err != nil {
		c.logger.Warn("limit command failed", "percent", percent, "err", err)
	}
	c.limitCmdBaselineMs = c.inv.StatsLastUpdateMs()
}

// freshTelemetry reports whether the inverter's most recent telemetry is
// strictly newer than baseline, handling millis() wrap-around (§4.3).
func (c *Coordinator) freshTelemetry(baselineMs uint32) bool {
	if baselineMs == 0 {
		return false
	}
	return wraptime.After(c.inv.StatsLastUpdateMs(), baselineMs)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
