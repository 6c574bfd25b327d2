package bus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakePort is an in-memory stand-in for the serial device, recording writes
// and serving a pre-loaded response to reads.
type fakePort struct {
	written  bytes.Buffer
	response bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakePort) Read(p []byte) (int, error)  { return f.response.Read(p) }
func (f *fakePort) Close() error                { return nil }

func newTestRs485Bus(port *fakePort) *Rs485Bus {
	return &Rs485Bus{
		port:            port,
		responseTimeout: time.Second,
		turnaround:      0,
	}
}

func TestRs485ExchangeVerifiesCrc(t *testing.T) {
	payload := []byte{0x01, 0x03, 0x02, 0x00, 0x64}
	crc := Crc16Modbus(payload)
	var crcBytes [2]byte
	binary.LittleEndian.PutUint16(crcBytes[:], crc)

	port := &fakePort{}
	port.response.Write(payload)
	port.response.Write(crcBytes[:])

	b := newTestRs485Bus(port)

	resp, err := b.Exchange([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, len(payload)+2, FramingCrc16Modbus, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(resp[:len(payload)], payload) {
		t.Errorf("got %v, expected %v", resp[:len(payload)], payload)
	}
}

func TestRs485ExchangeRejectsBadCrc(t *testing.T) {
	payload := []byte{0x01, 0x03, 0x02, 0x00, 0x64}

	port := &fakePort{}
	port.response.Write(payload)
	port.response.Write([]byte{0xDE, 0xAD})

	b := newTestRs485Bus(port)

	_, err := b.Exchange([]byte{0x01}, len(payload)+2, FramingCrc16Modbus, 0)
	if !errors.Is(err, ErrCrcError) {
		t.Errorf("expected ErrCrcError, got %v", err)
	}
	if b.Stats.CrcErrors != 1 {
		t.Errorf("expected 1 crc error counted, got %d", b.Stats.CrcErrors)
	}
}

func TestRs485ExchangeVerifiesBcc(t *testing.T) {
	payload := []byte{0x02, 0x03, 0x05}
	bcc := Bcc(payload)

	port := &fakePort{}
	port.response.Write(payload)
	port.response.Write([]byte{bcc})

	b := newTestRs485Bus(port)

	resp, err := b.Exchange([]byte{0x02}, len(payload)+1, FramingBcc, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(resp[:len(payload)], payload) {
		t.Errorf("got %v, expected %v", resp[:len(payload)], payload)
	}
}

func TestRs485ExchangeRejectsShortResponse(t *testing.T) {
	port := &fakePort{}
	port.response.Write([]byte{0x01, 0x02})

	b := newTestRs485Bus(port)

	_, err := b.Exchange([]byte{0x01}, 10, FramingCrc16Modbus, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout from short read, got %v", err)
	}
}
