// Package gpio defines the narrow output-line capability that the DC power
// switch sequencer (E) drives directly: the precharge and main contactor
// MOSFETs, and the optional charger-power enable line. Polarity (active-low
// wiring) is a concern of the concrete Line implementation, not of the
// sequencer, which only ever asks for the logical on/off state.
package gpio

// Line is a single GPIO output line. Set is idempotent and must not block.
type Line interface {
	Set(on bool)
	Get() bool
}

// Lines groups the three lines that dcswitch owns. Charger is optional; a
// nil value means the appliance has no charger-power enable line and the
// charger is always considered powered.
type Lines struct {
	Precharge Line
	Main      Line
	Charger   Line
}
