package charger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/balcony-power/dpc/external"
)

// Flavor selects the charger's wire protocol.
type Flavor int

const (
	FlavorPSU Flavor = iota
	FlavorHuawei
)

// Phase is the charger's on/off state machine (§4.2).
type Phase int

const (
	PhaseOff Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseOff:
		return "off"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config holds the engine's tunables (§6: "charger model limits... hysteresis").
type Config struct {
	Flavor       Flavor
	DeviceID     uint8
	Model        string // reported by the PSU itself; pinned for Huawei
	PollInterval time.Duration
	Hysteresis   float64

	// ImmediateChargeRecoveryOffsetPercent is how far below DPL.start_threshold
	// SoC must recover before an immediate-charge override is dropped
	// (SPEC_FULL.md §3; default 10).
	ImmediateChargeRecoveryOffsetPercent float64

	ResponseTimeout time.Duration
}

// Engine mirrors RectifierState from the charger and runs the automatic
// charge algorithm. It owns exactly one physical charger.
type Engine struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	bms       external.Bms
	inverters []external.Inverter
	meter     external.PowerMeter
	dayPeriod external.DayPeriod

	state  RectifierState
	limits Limits

	phase          Phase
	phaseEnteredAt time.Time

	autoMode bool

	pollRotation int

	consecutiveFailures int
	eepromFatal         bool
	fatalLogged         bool

	chargeImmediateLatched bool

	setupDone bool

	startThresholdPercent float64 // DPL.start_threshold, set by the owner each tick
}

func NewEngine(transport Transport, cfg Config, bms external.Bms, inverters []external.Inverter, meter external.PowerMeter, dayPeriod external.DayPeriod, logger *slog.Logger) *Engine {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = 500 * time.Millisecond
	}
	if cfg.ImmediateChargeRecoveryOffsetPercent == 0 {
		cfg.ImmediateChargeRecoveryOffsetPercent = 10
	}

	return &Engine{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "charger"),
		bms:       bms,
		inverters: inverters,
		meter:     meter,
		dayPeriod: dayPeriod,
		limits:    ModelLimits(cfg.Model),
		phase:     PhaseOff,
	}
}

// State returns a consistent snapshot of the mirrored rectifier state.
func (e *Engine) State() RectifierState {
	return e.state
}

func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) EepromFatal() bool {
	return e.eepromFatal
}

func (e *Engine) SetAutoMode(on bool) {
	e.autoMode = on
}

// SetStartThreshold feeds the dynamic power limiter's SoC start threshold
// into the immediate-charge override calculation.
func (e *Engine) SetStartThreshold(percent float64) {
	e.startThresholdPercent = percent
}

// Setup runs the five-step once-off sequence (§4.2). It is a no-op once
// completed, or permanently if the charger has latched an EEPROM fault.
func (e *Engine) Setup() error {
	if e.eepromFatal {
		return fmt.Errorf("charger: setup skipped, eeprom fault latched")
	}
	if e.setupDone {
		return nil
	}

	e.logger.Info("running charger setup sequence")

	// 1. Force operation OFF.
	if err := e.writeOperation(false); err != nil {
		return fmt.Errorf("charger setup: force off: %w", err)
	}

	// 2. Read identification, derive limits from model.
	if err := e.readIdentification(); err != nil {
		return fmt.Errorf("charger setup: identification: %w", err)
	}
	if e.cfg.Flavor == FlavorPSU && e.state.Identification.Model != "" {
		e.limits = ModelLimits(e.state.Identification.Model)
		e.cfg.Model = e.state.Identification.Model
	}

	// 3. Write initial V, I, CC, CV, FV, TC; always with min_current to soft-start.
	minC := e.limits.MinCurrent
	if err := e.writeVoltage(e.limits.MinVoltage); err != nil {
		return fmt.Errorf("charger setup: voltage: %w", err)
	}
	if err := e.writeCurrent(minC); err != nil {
		return fmt.Errorf("charger setup: current: %w", err)
	}
	if err := e.writeCurveCC(minC); err != nil {
		return fmt.Errorf("charger setup: curve cc: %w", err)
	}
	if err := e.writeCurveCV(e.limits.MinVoltage); err != nil {
		return fmt.Errorf("charger setup: curve cv: %w", err)
	}
	if err := e.writeCurveFV(e.limits.MinVoltage); err != nil {
		return fmt.Errorf("charger setup: curve fv: %w", err)
	}
	if err := e.writeCurveTC(minC); err != nil {
		return fmt.Errorf("charger setup: curve tc: %w", err)
	}

	// 4. Write CURVE_CONFIG: customised, -3mV/degC/cell, 3-stage, function disabled.
	if err := e.writeCurveConfig(CurveConfig{Preset: 0, TempCompStage: 1, TwoStage: false, FunctionEnable: false}); err != nil {
		return fmt.Errorf("charger setup: curve config: %w", err)
	}

	// 5. Write SYSTEM_CONFIG: power-on initial behaviour = OFF.
	if err := e.send(cmdSystemConfig, []byte{0x00, 0x00}); err != nil {
		return fmt.Errorf("charger setup: system config: %w", err)
	}

	e.setupDone = true
	e.logger.Info("charger setup complete", "limits", e.limits.String())

	return nil
}

// Tick runs one poll cycle: the rotating read, the two fast reads, and (in
// auto mode) the automatic charge algorithm. Call once per PollInterval.
func (e *Engine) Tick() {
	e.drainResponses()

	if e.eepromFatal {
		if !e.fatalLogged {
			e.logger.Error("charger halted: eeprom fault latched, power-cycle required")
			e.fatalLogged = true
		}
		return
	}

	e.runPollRotation()

	if e.state.SystemStatus.EEPER {
		e.eepromFatal = true
		e.logger.Error("charger eeprom fault detected, halting commands")
		return
	}

	if e.autoMode {
		e.runAutomaticCharge()
	}

	e.advancePhase()
}

func (e *Engine) runPollRotation() {
	rotating := []uint16{cmdReadVin, cmdSystemStatus, cmdReadTemp1, cmdChgStatus, cmdOperation, cmdFaultStatus}

	_ = e.send(rotating[e.pollRotation], nil)
	e.pollRotation = (e.pollRotation + 1) % len(rotating)

	_ = e.send(cmdReadVout, nil)
	_ = e.send(cmdReadIout, nil)

	e.drainResponses()
}

// drainResponses pulls every currently-buffered frame off the transport
// and dispatches it; non-blocking per §4.1.
func (e *Engine) drainResponses() {
	for {
		frame, ok, err := e.transport.PollFrame()
		if err != nil {
			e.logger.Warn("charger poll error", "err", err)
			return
		}
		if !ok {
			return
		}

		switch e.cfg.Flavor {
		case FlavorPSU:
			if cmd, value, ok := decodePsuFrame(frame, e.cfg.DeviceID); ok {
				applyPsuUpdate(&e.state, cmd, value, e.cfg.Model)
			}
		case FlavorHuawei:
			if msgID, value, ok := decodeHuaweiFrame(frame); ok {
				applyHuaweiUpdate(&e.state, msgID, value)
			}
		}
	}
}

func (e *Engine) send(cmd uint16, payload []byte) error {
	var id uint32
	var data []byte

	switch e.cfg.Flavor {
	case FlavorPSU:
		id, data = encodePsuReadOrWrite(e.cfg.DeviceID, cmd, payload)
	case FlavorHuawei:
		// Huawei has no command-code read/write model; reads are a
		// broadcast request, writes target specific parameters. Engine
		// callers route Huawei writes through writeVoltage/writeCurrent
		// directly rather than through send().
		id, data = encodeHuaweiRequest()
	}

	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}

	e.consecutiveFailures = 0

	return nil
}

func (e *Engine) recordFailure() {
	e.consecutiveFailures++
	if e.consecutiveFailures >= 2 {
		e.phase = PhaseOff
		e.logger.Error("charger: two consecutive CAN failures, forcing off")
		e.consecutiveFailures = 0
	}
}

func (e *Engine) readIdentification() error {
	if e.cfg.Flavor != FlavorPSU {
		return nil // Huawei reports no identification strings
	}

	for _, cmd := range []uint16{cmdMfrIDLo, cmdMfrIDHi, cmdMfrModelLo, cmdMfrModelHi, cmdMfrRevLo, cmdMfrLocation, cmdMfrDate, cmdMfrSerialLo, cmdMfrSerialHi} {
		if err := e.send(cmd, nil); err != nil {
			return err
		}
		e.drainResponses()
	}

	return nil
}

func (e *Engine) writeOperation(on bool) error {
	id, data := encodePsuWriteBool(e.cfg.DeviceID, cmdOperation, on)
	if e.cfg.Flavor == FlavorHuawei {
		return e.transport.SendFrame(huaweiWriteID, true, mustHuaweiOperationFrame(on))
	}
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdOperation, nil)
}

func mustHuaweiOperationFrame(on bool) []byte {
	var v uint16
	if on {
		v = 1024
	}
	_, data := encodeHuaweiWrite(0x80, v)
	return data
}

func (e *Engine) writeVoltage(v float64) error {
	v = e.limits.ClampVoltage(v)
	if e.cfg.Flavor == FlavorHuawei {
		_, data := encodeHuaweiWrite(0x00, uint16(v*1024))
		return e.transport.SendFrame(huaweiWriteID, true, data)
	}
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdVoutSet, v, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdVoutSet, nil)
}

func (e *Engine) writeCurrent(a float64) error {
	a = e.limits.ClampCurrent(a)
	if e.cfg.Flavor == FlavorHuawei {
		_, data := encodeHuaweiWrite(0x01, uint16(a*1024))
		return e.transport.SendFrame(huaweiWriteID, true, data)
	}
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdIoutSet, a, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdIoutSet, nil)
}

func (e *Engine) writeCurveCC(a float64) error {
	if e.cfg.Flavor != FlavorPSU {
		return nil
	}
	a = e.limits.ClampCurrent(a)
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdCurveCC, a, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdCurveCC, nil)
}

func (e *Engine) writeCurveCV(v float64) error {
	if e.cfg.Flavor != FlavorPSU {
		return nil
	}
	v = e.limits.ClampVoltage(v)
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdCurveCV, v, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdCurveCV, nil)
}

func (e *Engine) writeCurveFV(v float64) error {
	if e.cfg.Flavor != FlavorPSU {
		return nil
	}
	v = e.limits.ClampFloatVoltage(v, e.state.CurveCV)
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdCurveFV, v, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdCurveFV, nil)
}

func (e *Engine) writeCurveTC(a float64) error {
	if e.cfg.Flavor != FlavorPSU {
		return nil
	}
	a = e.limits.ClampTaperCurrent(a)
	id, data := encodePsuWriteScaled(e.cfg.DeviceID, cmdCurveTC, a, 0.01)
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdCurveTC, nil)
}

func (e *Engine) writeCurveConfig(cfg CurveConfig) error {
	if e.cfg.Flavor != FlavorPSU {
		return nil
	}
	var payload [2]byte
	raw := cfg.encode()
	payload[0] = byte(raw)
	payload[1] = byte(raw >> 8)
	id, data := encodePsuReadOrWrite(e.cfg.DeviceID, cmdCurveConfig, payload[:])
	if err := e.transport.SendFrame(id, true, data); err != nil {
		e.recordFailure()
		return err
	}
	e.drainResponses()
	return e.send(cmdCurveConfig, nil)
}

func (e *Engine) advancePhase() {
	switch e.phase {
	case PhaseStarting:
		if e.state.Operation {
			e.phase = PhaseRunning
			e.phaseEnteredAt = time.Now()
			e.logger.Info("charger running")
		}
	case PhaseStopping:
		if !e.state.Operation {
			e.phase = PhaseOff
			e.phaseEnteredAt = time.Now()
			e.logger.Info("charger off")
		}
	}
}

func (e *Engine) startCharging() {
	e.phase = PhaseStarting
	e.phaseEnteredAt = time.Now()

	minC := e.limits.MinCurrent
	recommendedV, _ := e.recommendedChargeVoltage()

	_ = e.writeCurveConfig(CurveConfig{Preset: 0, TempCompStage: 1, TwoStage: false, FunctionEnable: true})
	_ = e.writeCurrent(minC)
	_ = e.writeCurveCC(minC)
	_ = e.writeCurveCV(recommendedV - 0.25)
	_ = e.writeCurveFV(recommendedV - 0.30)
	_ = e.writeVoltage(recommendedV - 0.25)
	_ = e.writeOperation(true)

	e.logger.Info("charger starting")
}

func (e *Engine) stopCharging(reason string) {
	if e.phase == PhaseOff || e.phase == PhaseStopping {
		return
	}
	e.phase = PhaseStopping
	e.phaseEnteredAt = time.Now()

	_ = e.writeCurveConfig(CurveConfig{Preset: 0, TempCompStage: 1, TwoStage: false, FunctionEnable: false})
	_ = e.writeCurrent(0)
	_ = e.writeCurveCC(0)
	_ = e.writeOperation(false)

	e.logger.Info("charger stopping", "reason", reason)
}

func (e *Engine) recommendedChargeVoltage() (float64, bool) {
	if e.bms == nil {
		return 0, false
	}
	return e.bms.RecommendedChargeVoltage(), true
}
