// Package external defines the capability interfaces that the DPC consumes
// from collaborators it does not own: the grid-tied inverter's radio
// transport, the whole-house power meter, the battery BMS, and the solar
// MPPT charge controller. Only what each component of the DPC actually
// needs is exposed, following the "capability interface" replacement for
// dynamic-inheritance style provider hierarchies.
package external

// ChannelFieldType selects whether a per-channel telemetry field is read on
// the inverter's AC or DC side.
type ChannelFieldType int

const (
	ChannelTypeAC ChannelFieldType = iota
	ChannelTypeDC
)

// ChannelField identifies one telemetry value within a channel.
type ChannelField int

const (
	FieldPAC ChannelField = iota // active power, watts
	FieldUAC                     // voltage, volts
	FieldIAC                     // current, amps
	FieldPDC
	FieldUDC
	FieldIDC
	FieldEFF // efficiency, percent
	FieldF   // frequency, Hz
)

// CommandStatus reflects whether the inverter has acknowledged the last
// limit command sent to it.
type CommandStatus int

const (
	CommandOK CommandStatus = iota
	CommandPending
	CommandFailed
)

// Inverter is the subset of a radio-transport inverter client that the
// command coordinator (C) and the dynamic power limiter (G) need.
type Inverter interface {
	// Serial uniquely identifies the inverter, used by H to select secondary
	// inverters and by logging throughout.
	Serial() string

	IsReachable() bool
	IsProducing() bool
	CommandsEnabled() bool

	// StatsLastUpdateMs is the millisecond uptime counter timestamp of the
	// most recent telemetry update from this inverter.
	StatsLastUpdateMs() uint32

	// ChannelFieldValue reads one telemetry field from one channel. Channel
	// indices are 0-based.
	ChannelFieldValue(fieldType ChannelFieldType, channel int, field ChannelField) float64
	NumChannels(fieldType ChannelFieldType) int

	MaxPowerW() uint32

	LastLimitCommandSuccess() CommandStatus
	LastLimitCommandTsMs() uint32
	LimitPercent() float32

	SendActivePowerControl(percent float32, nonPersistent bool) error
	SendPowerControl(on bool) error
	SendRestartControl() error
}
