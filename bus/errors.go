package bus

import "errors"

// Transient bus errors. The driver never retries internally; the caller
// decides whether and when to retry (§7: "transient errors are counted and
// surfaced; the caller decides retry").
var (
	ErrBusOff        = errors.New("bus: controller bus-off")
	ErrTxTimeout     = errors.New("bus: transmit timeout")
	ErrTimeout       = errors.New("bus: response timeout")
	ErrFramingError  = errors.New("bus: framing error")
	ErrCrcError      = errors.New("bus: crc mismatch")
	ErrUnexpectedLen = errors.New("bus: unexpected response length")
)

// Stats counts the transient failures seen by a bus since it was created.
// Counting only; no automatic retry lives here.
type Stats struct {
	BusOff        uint64
	TxTimeout     uint64
	Timeout       uint64
	FramingErrors uint64
	CrcErrors     uint64
}

func (s *Stats) record(err error) {
	switch {
	case errors.Is(err, ErrBusOff):
		s.BusOff++
	case errors.Is(err, ErrTxTimeout):
		s.TxTimeout++
	case errors.Is(err, ErrTimeout):
		s.Timeout++
	case errors.Is(err, ErrFramingError), errors.Is(err, ErrUnexpectedLen):
		s.FramingErrors++
	case errors.Is(err, ErrCrcError):
		s.CrcErrors++
	}
}
