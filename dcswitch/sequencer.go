// Package dcswitch sequences the two high-side MOSFETs that connect the
// inverter's DC terminals to the battery: a pre-charge path through a
// current-limiting element, and a main full-power path.
package dcswitch

import (
	"log/slog"
	"time"

	"github.com/balcony-power/dpc/external"
	"github.com/balcony-power/dpc/gpio"
	"github.com/balcony-power/dpc/invcoord"
)

// Phase is the sequencer's state machine (§4.4).
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreDisconnect
	PhasePrecharge
	PhaseMainOn
	PhaseSettle
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreDisconnect:
		return "pre_disconnect"
	case PhasePrecharge:
		return "precharge"
	case PhaseMainOn:
		return "main_on"
	case PhaseSettle:
		return "settle"
	default:
		return "unknown"
	}
}

// Config holds the phase dwell times, all defaulted per §4.4.
type Config struct {
	Cooldown              time.Duration // minimum time in IDLE before reconnecting
	PreDisconnectMaxDwell time.Duration
	PrechargeDwell        time.Duration
	MainOnDwell           time.Duration
}

func defaultConfig(cfg Config) Config {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.PreDisconnectMaxDwell == 0 {
		cfg.PreDisconnectMaxDwell = 60 * time.Second
	}
	if cfg.PrechargeDwell == 0 {
		cfg.PrechargeDwell = 5 * time.Second
	}
	if cfg.MainOnDwell == 0 {
		cfg.MainOnDwell = 60 * time.Second
	}
	return cfg
}

// Sequencer drives the precharge/main MOSFET pair through the connect and
// disconnect sequence and reports "connected" only once SETTLE is reached.
type Sequencer struct {
	lines  gpio.Lines
	coord  *invcoord.Coordinator
	inv    external.Inverter
	cfg    Config
	logger *slog.Logger

	phase          Phase
	phaseEnteredAt time.Time
	lastDisconnect time.Time
}

func New(lines gpio.Lines, coord *invcoord.Coordinator, inv external.Inverter, cfg Config, logger *slog.Logger) *Sequencer {
	s := &Sequencer{
		lines:  lines,
		coord:  coord,
		inv:    inv,
		cfg:    defaultConfig(cfg),
		logger: logger.With("component", "dcswitch"),
	}
	s.phaseEnteredAt = time.Now()
	s.setBothOff()
	return s
}

func (s *Sequencer) Phase() Phase {
	return s.phase
}

// Tick advances the sequencer and reports whether the inverter is connected
// (in SETTLE) this cycle. wantConnected is the caller's standing request;
// a disconnect may be asserted from any phase and takes effect within this
// call (§4.4).
func (s *Sequencer) Tick(wantConnected bool) bool {
	if !wantConnected && s.phase != PhasePreDisconnect && s.phase != PhaseIdle {
		s.enterPreDisconnect()
		return false
	}

	switch s.phase {
	case PhaseIdle:
		s.setBothOff()
		if wantConnected && time.Since(s.lastDisconnect) >= s.cfg.Cooldown {
			s.transition(PhasePrecharge)
			s.lines.Precharge.Set(true)
			s.lines.Main.Set(false)
		}

	case PhasePreDisconnect:
		if time.Since(s.phaseEnteredAt) >= s.cfg.PreDisconnectMaxDwell || !s.isProducing() {
			s.lastDisconnect = time.Now()
			s.transition(PhaseIdle)
		}

	case PhasePrecharge:
		if time.Since(s.phaseEnteredAt) >= s.cfg.PrechargeDwell {
			s.transition(PhaseMainOn)
			s.lines.Precharge.Set(false)
			s.lines.Main.Set(true)
		}

	case PhaseMainOn:
		if time.Since(s.phaseEnteredAt) >= s.cfg.MainOnDwell {
			s.transition(PhaseSettle)
		}

	case PhaseSettle:
		// remains connected until a disconnect is requested, handled above.
	}

	return s.phase == PhaseSettle
}

func (s *Sequencer) enterPreDisconnect() {
	s.setBothOff()
	if s.coord != nil {
		s.coord.Request(false, 0)
	}
	s.logger.Info("disconnecting", "from_phase", s.phase)
	s.transition(PhasePreDisconnect)
}

func (s *Sequencer) setBothOff() {
	s.lines.Precharge.Set(false)
	s.lines.Main.Set(false)
}

func (s *Sequencer) transition(next Phase) {
	s.logger.Info("phase transition", "from", s.phase, "to", next)
	s.phase = next
	s.phaseEnteredAt = time.Now()
}

func (s *Sequencer) isProducing() bool {
	if s.inv == nil {
		return false
	}
	return s.inv.IsProducing()
}
