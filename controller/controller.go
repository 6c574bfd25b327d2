// Package controller wires together every DPC component into the running
// appliance: the automatic charger, the inverter command coordinator, the
// signal aggregator, the DC power switch sequencer, the threshold/mode
// logic, the dynamic power limiter, the zero-export regulator, and the
// scheduler that drives them all (§5).
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/balcony-power/dpc/aggregator"
	"github.com/balcony-power/dpc/charger"
	"github.com/balcony-power/dpc/dcswitch"
	"github.com/balcony-power/dpc/external"
	"github.com/balcony-power/dpc/gpio"
	"github.com/balcony-power/dpc/invcoord"
	"github.com/balcony-power/dpc/limiter"
	"github.com/balcony-power/dpc/modelogic"
	"github.com/balcony-power/dpc/scheduler"
	"github.com/balcony-power/dpc/zeroexport"
)

// controlPeriod is how often F and G are evaluated (§5: "main thread...
// 1Hz" cadence for the logic and limiter loops).
const controlPeriod = time.Second

// Collaborators bundles every external dependency the Dpc needs, resolved
// by the caller (main) from the radio library, serial/CAN buses, and GPIO
// lines before construction.
type Collaborators struct {
	Bms             external.Bms
	Mppt            external.Mppt
	DayPeriod       external.DayPeriod
	Meter           external.PowerMeter
	PrimaryInverter external.Inverter
	SecondaryInverters map[string]external.Inverter // serial -> inverter, for H
	ChargerTransport   charger.Transport             // nil if the charger is disabled
	Lines              gpio.Lines
}

// Config bundles the per-component configuration structs this package
// needs to construct its collaborators (mirrors config.Config's shape
// without importing it directly, so controller stays free of the JSON
// concern).
type Config struct {
	Charger    charger.Config
	Threshold  modelogic.Thresholds
	DcSwitch   dcswitch.Config
	Limiter    limiter.Config
	ZeroExport zeroexport.Config

	ZeroExportSerials []string
}

// Dpc is the root aggregate owning every component instance for one
// appliance.
type Dpc struct {
	cfg    Config
	logger *slog.Logger

	collab Collaborators

	chargerEngine *charger.Engine
	coord         *invcoord.Coordinator
	agg           *aggregator.Aggregator
	seq           *dcswitch.Sequencer
	logic         *modelogic.Logic
	lim           *limiter.Limiter
	zeroExport    *zeroexport.Regulator

	sched *scheduler.Scheduler

	mode               modelogic.OperatorMode
	externallyDisabled bool

	limiterStatus *scheduler.StatusAnnouncer[limiter.StatusCode]
}

// New wires every component together. Any collaborator left nil in collab
// simply disables the component that depends on it (e.g. a nil
// ChargerTransport means no charger engine is constructed).
func New(cfg Config, collab Collaborators, logger *slog.Logger) *Dpc {
	d := &Dpc{
		cfg:    cfg,
		logger: logger.With("component", "dpc"),
		collab: collab,
		mode:   modelogic.ModeNormal,
	}

	if collab.ChargerTransport != nil {
		d.chargerEngine = charger.NewEngine(
			collab.ChargerTransport,
			cfg.Charger,
			collab.Bms,
			allInverters(collab),
			collab.Meter,
			collab.DayPeriod,
			d.logger,
		)
	}

	d.agg = aggregator.New(1.0)
	d.logic = modelogic.New(cfg.Threshold)

	if collab.PrimaryInverter != nil {
		d.coord = invcoord.New(collab.PrimaryInverter, d.logger)
		d.seq = dcswitch.New(collab.Lines, d.coord, collab.PrimaryInverter, cfg.DcSwitch, d.logger)
		d.lim = limiter.New(cfg.Limiter, d.coord, d.logger)
	}

	if len(cfg.ZeroExportSerials) > 0 {
		d.zeroExport = zeroexport.New(cfg.ZeroExport, cfg.ZeroExportSerials, d.logger)
	}

	d.sched = scheduler.New(d.logger)
	d.limiterStatus = scheduler.NewStatusAnnouncer[limiter.StatusCode](d.logger, 30*time.Second)

	return d
}

func allInverters(collab Collaborators) []external.Inverter {
	invs := make([]external.Inverter, 0, 1+len(collab.SecondaryInverters))
	if collab.PrimaryInverter != nil {
		invs = append(invs, collab.PrimaryInverter)
	}
	for _, inv := range collab.SecondaryInverters {
		invs = append(invs, inv)
	}
	return invs
}

// SetMode changes the operator mode, taking effect on the next tick.
func (d *Dpc) SetMode(mode modelogic.OperatorMode) {
	d.mode = mode
}

// SetExternallyDisabled mirrors an out-of-band disable signal (e.g. MQTT)
// that the limiter must respect (§4.6 step 3).
func (d *Dpc) SetExternallyDisabled(disabled bool) {
	d.externallyDisabled = disabled
}

// Run registers every component's periodic task and blocks until ctx is
// cancelled (§5).
func (d *Dpc) Run(ctx context.Context) {
	if d.chargerEngine != nil {
		d.sched.Register(scheduler.Task{
			Name:   "charger",
			Period: d.cfg.Charger.PollInterval,
			Fn:     func(time.Time) { d.chargerEngine.Tick() },
		})
	}

	if d.lim != nil {
		d.sched.Register(scheduler.Task{
			Name:   "control",
			Period: controlPeriod,
			Fn:     d.tickControl,
		})
	}

	if d.zeroExport != nil {
		d.sched.Register(scheduler.Task{
			Name:   "zero-export",
			Period: controlPeriod,
			Fn:     d.tickZeroExport,
		})
	}

	d.sched.Run(ctx)
}

// tickControl runs one cycle of D, E, F, and G: aggregate the battery
// signal, evaluate the threshold/mode logic, drive the DC switch, and feed
// the result into the dynamic power limiter.
func (d *Dpc) tickControl(now time.Time) {
	inverters := allInverters(d.collab)

	loadCorrectedV, _ := d.agg.LoadCorrectedVoltage(d.collab.Bms, d.collab.Mppt, inverters, d.currentAcPowerW())
	soc, socValid := d.agg.TrustedSoc(d.collab.Bms)

	snapshot := external.SnapshotBms(d.collab.Bms)

	solarW := 0.0
	if d.collab.Mppt != nil && d.collab.Mppt.IsDataValid() {
		solarW = float64(d.collab.Mppt.OutputPowerW())
	}

	result := d.logic.Evaluate(modelogic.Input{
		Mode:                 d.mode,
		SocValid:             socValid,
		Soc:                  soc,
		LoadCorrectedVoltage: loadCorrectedV,
		SolarPowerW:          solarW,
		Now:                  now,
		Alarms: modelogic.BatteryAlarms{
			OverVoltage:      snapshot.Alarms.OverVoltage,
			OverTemperature:  snapshot.Alarms.OverTemperature,
			UnderTemperature: snapshot.Alarms.UnderTemperature,
		},
	})

	wantConnected := result.DischargePermitted || result.FullSolarPassthrough
	connected := false
	if d.seq != nil {
		connected = d.seq.Tick(wantConnected)
	}

	var lastCommandMs uint32
	if d.coord != nil {
		lastCommandMs = d.coord.LastCommandMs()
	}

	chargerRunning := false
	if d.chargerEngine != nil {
		chargerRunning = d.chargerEngine.Phase() == charger.PhaseRunning
	}

	decision := d.lim.Evaluate(limiter.Input{
		Now:                       now,
		Mode:                      d.mode,
		ExternallyDisabled:        d.externallyDisabled,
		Threshold:                 result,
		BatteryInitialized:        snapshot.Initialized,
		DischargeTemperatureValid: snapshot.ChargeTemperatureValid,
		InverterConnected:         connected,
		Inverter:                  d.collab.PrimaryInverter,
		LastCommandMs:             lastCommandMs,
		Meter:                     d.collab.Meter,
		MpptOutputPowerW:          solarW,
		ChargerRunning:            chargerRunning,
	})

	d.limiterStatus.Announce(now, decision.Status, "limiter status", "status", decision.Status.String(), "limit_w", decision.NewLimitW, "reason", decision.Reason)
}

// currentAcPowerW reads the primary inverter's AC output, used by the
// aggregator's load-voltage correction.
func (d *Dpc) currentAcPowerW() float64 {
	if d.collab.PrimaryInverter == nil || !d.collab.PrimaryInverter.IsProducing() {
		return 0
	}
	return d.collab.PrimaryInverter.ChannelFieldValue(external.ChannelTypeAC, 0, external.FieldPAC)
}

// tickZeroExport advances the round-robin regulator by one secondary
// inverter.
func (d *Dpc) tickZeroExport(now time.Time) {
	serial := d.zeroExport.NextSerial()
	inv := d.collab.SecondaryInverters[serial]
	d.zeroExport.Tick(now, inv, d.collab.Meter)
}
