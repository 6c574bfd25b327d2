// Package invcoord drives a single inverter toward a requested (on/off,
// power-limit) state without reentrancy and without racing the inverter's
// own telemetry, with bounded recovery when the inverter stops responding.
package invcoord

import (
	"time"

	"github.com/google/uuid"
)

// InverterCommandTicket is the coordinator's record of an in-flight
// request. Its ID exists purely for log correlation across a single
// transition.
type InverterCommandTicket struct {
	ID uuid.UUID

	HasOnOff  bool
	DesiredOn bool

	HasLimit      bool
	DesiredLimitW float64

	OpenedAt time.Time
}
