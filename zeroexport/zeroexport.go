// Package zeroexport biases a fleet of secondary inverters with an
// independent proportional+integral regulator, keeping grid draw near a
// configured setpoint (§4.7). It runs separately from the dynamic power
// limiter (G) and round-robins one secondary inverter per tick.
package zeroexport

import (
	"log/slog"
	"math"
	"time"

	"github.com/balcony-power/dpc/external"
)

// Config holds the regulator's tunables (§6: "MaxGrid, MinimumLimit,
// PowerHysteresis, Tn").
type Config struct {
	MaxGridW           float64
	MinimumLimitPct    float64
	PowerHysteresisPct float64
	TnSeconds          float64
}

// PidState is the regulator's integrator state, carried between ticks.
type PidState struct {
	PreviousIntegralTerm   float64
	PreviousTimestamp      time.Time
	PreviousPayloadPercent float64

	lastRequestedPercent float64
	haveRequested        bool
}

// inverterState tracks the once-per-run bookkeeping for a single selected
// inverter: whether its max power has been folded into totalMaxPower yet,
// and its own backoff/PID state.
type inverterState struct {
	countedMaxPower bool
	pid             PidState
	backoffMs       int64
	lastCalc        time.Time
	initialized     bool
}

const (
	backoffDefaultMs = 128
	backoffMaxMs     = 1024
)

// Regulator drives a round-robin selection of secondary inverters toward a
// shared grid-power setpoint.
type Regulator struct {
	cfg    Config
	logger *slog.Logger

	serials []string
	states  map[string]*inverterState

	totalMaxPowerW float64
	nextIndex      int
}

func New(cfg Config, serials []string, logger *slog.Logger) *Regulator {
	states := make(map[string]*inverterState, len(serials))
	for _, s := range serials {
		states[s] = &inverterState{}
	}
	return &Regulator{
		cfg:     cfg,
		logger:  logger.With("component", "zeroexport"),
		serials: serials,
		states:  states,
	}
}

// StatusCode mirrors the closed status set the regulator reports (§7).
type StatusCode int

const (
	Initializing StatusCode = iota
	DisabledByConfig
	WaitingForValidTimestamp
	PowerMeterDisabled
	PowerMeterTimeout
	PowerMeterPending
	InverterInvalid
	InverterOffline
	InverterCommandsDisabled
	InverterLimitPending
	InverterStatsPending
	Settling
	Stable
)

// Result is the regulator's outcome for one Tick call.
type Result struct {
	Status   StatusCode
	Serial   string
	LimitPct float64
	Updated  bool
}

// NextSerial reports which serial the next Tick call will evaluate, so the
// caller can resolve it to a live external.Inverter.
func (r *Regulator) NextSerial() string {
	if len(r.serials) == 0 {
		return ""
	}
	return r.serials[r.nextIndex]
}

// Tick advances the round-robin by exactly one selected inverter and
// returns the outcome of evaluating it. The caller supplies the selected
// inverter (resolved externally from the serial at the current index) and
// the whole-house power meter reading.
func (r *Regulator) Tick(now time.Time, inv external.Inverter, meter external.PowerMeter) Result {
	if len(r.serials) == 0 {
		return Result{Status: InverterInvalid}
	}
	serial := r.serials[r.nextIndex]
	defer r.advance()

	if inv == nil {
		return Result{Status: InverterInvalid, Serial: serial}
	}
	if !inv.IsReachable() {
		return Result{Status: InverterOffline, Serial: serial}
	}
	if !inv.CommandsEnabled() {
		return Result{Status: InverterCommandsDisabled, Serial: serial}
	}
	if inv.LastLimitCommandSuccess() == external.CommandPending {
		return Result{Status: InverterLimitPending, Serial: serial}
	}
	if inv.MaxPowerW() == 0 {
		return Result{Status: InverterInvalid, Serial: serial}
	}

	st := r.states[serial]
	if !st.countedMaxPower {
		r.totalMaxPowerW += float64(inv.MaxPowerW())
		st.countedMaxPower = true
	}

	if meter == nil || !meter.IsDataValid() {
		return Result{Status: PowerMeterDisabled, Serial: serial}
	}

	if !st.initialized {
		st.lastCalc = now
		st.initialized = true
		return Result{Status: Stable, Serial: serial}
	}

	backoffDue := now.Sub(st.lastCalc) < time.Duration(st.backoffMs)*time.Millisecond
	if st.backoffMs > 0 && backoffDue {
		return Result{Status: Stable, Serial: serial}
	}

	newLimit := r.pid(st, now, meter.PowerTotal())

	diff := math.Abs(newLimit - st.pid.lastRequestedPercent)
	if st.pid.haveRequested && diff < r.cfg.PowerHysteresisPct {
		st.backoffMs = minI64(st.backoffMs*2, backoffMaxMs)
		if st.backoffMs == 0 {
			st.backoffMs = backoffDefaultMs
		}
		st.lastCalc = now
		return Result{Status: Stable, Serial: serial, LimitPct: st.pid.lastRequestedPercent}
	}

	commitPowerLimit(inv, newLimit)
	st.pid.lastRequestedPercent = newLimit
	st.pid.haveRequested = true
	st.backoffMs = backoffDefaultMs
	st.lastCalc = now

	return Result{Status: Stable, Serial: serial, LimitPct: newLimit, Updated: true}
}

// pid computes the new limit percentage from the proportional and integral
// terms (§4.7 steps 2-5), applying anti-windup on saturation.
func (r *Regulator) pid(st *inverterState, now time.Time, meterPowerW float64) float64 {
	p := 100 * (meterPowerW + r.cfg.MaxGridW) / r.totalMaxPowerW

	dt := now.Sub(st.pid.PreviousTimestamp)
	if st.pid.PreviousTimestamp.IsZero() {
		dt = 0
	}

	integralTerm := p * dt.Seconds() / r.cfg.TnSeconds
	payload := st.pid.PreviousPayloadPercent + p + integralTerm

	switch {
	case payload > 100:
		payload = 100
		integralTerm = st.pid.PreviousIntegralTerm
	case payload < r.cfg.MinimumLimitPct:
		payload = r.cfg.MinimumLimitPct
		integralTerm = st.pid.PreviousIntegralTerm
	}

	st.pid.PreviousIntegralTerm = integralTerm
	st.pid.PreviousTimestamp = now
	st.pid.PreviousPayloadPercent = payload

	return payload
}

// commitPowerLimit sends the relative, non-persistent limit, starting or
// stopping the inverter around it exactly as the coordinator does: stop
// before a zero limit, start only after the new limit is in place (§4.3).
func commitPowerLimit(inv external.Inverter, limitPct float64) {
	if limitPct <= 0 && inv.IsProducing() {
		_ = inv.SendPowerControl(false)
	}

	_ = inv.SendActivePowerControl(float32(limitPct), true)

	if limitPct > 0 && !inv.IsProducing() {
		_ = inv.SendPowerControl(true)
	}
}

func (r *Regulator) advance() {
	r.nextIndex++
	if r.nextIndex >= len(r.serials) {
		r.nextIndex = 0
	}
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
