package charger

import "github.com/balcony-power/dpc/bus"

// Transport is the subset of bus.CanBus that the engine needs, accepted as
// an interface so tests can substitute a fake bus.
type Transport interface {
	SendFrame(id uint32, extended bool, payload []byte) error
	PollFrame() (bus.Frame, bool, error)
}
