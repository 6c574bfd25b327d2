package charger

import "github.com/balcony-power/dpc/bus"

// fakeTransport is an in-memory Transport double: writes are recorded, and
// a queued response (if any) can be dequeued by the next PollFrame.
type fakeTransport struct {
	sent      []sentFrame
	responses []bus.Frame
	sendErr   error
}

type sentFrame struct {
	id       uint32
	extended bool
	payload  []byte
}

func (f *fakeTransport) SendFrame(id uint32, extended bool, payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentFrame{id, extended, append([]byte(nil), payload...)})
	return nil
}

func (f *fakeTransport) PollFrame() (bus.Frame, bool, error) {
	if len(f.responses) == 0 {
		return bus.Frame{}, false, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, true, nil
}
