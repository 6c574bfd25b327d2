package bus

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

// FramingKind selects which checksum scheme terminates a response frame.
type FramingKind int

const (
	FramingCrc16Modbus FramingKind = iota
	FramingBcc
)

// Rs485Bus is a half-duplex RS-485 UART. The driver-enable line is toggled
// by the serial port's RTS-based half-duplex support rather than a
// separate GPIO line, so no gpio.Line is needed here.
type Rs485Bus struct {
	mu sync.Mutex

	port io.ReadWriteCloser

	responseTimeout time.Duration
	turnaround      time.Duration

	Stats Stats
}

// Rs485Config describes the serial parameters for one RS-485 bus.
type Rs485Config struct {
	Device          string
	BaudRate        int
	DataBits        int
	StopBits        int
	Parity          string // "N", "E", "O"
	ResponseTimeout time.Duration
	Turnaround      time.Duration
}

// NewRs485Bus opens the serial device with RTS-keyed half-duplex framing:
// the driver-enable line is asserted before the first TX byte and released
// at least (transmission_time + 1ms) after the last (§4.1).
func NewRs485Bus(cfg Rs485Config) (*Rs485Bus, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ResponseTimeout,
		RS485: serial.RS485Config{
			Enabled:           true,
			RtsHighDuringSend: true,
			RtsHighAfterSend:  false,
			DelayRtsAfterSend: 1 * time.Millisecond,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open rs485 device %s: %w", cfg.Device, err)
	}

	responseTimeout := cfg.ResponseTimeout
	if responseTimeout == 0 {
		responseTimeout = 500 * time.Millisecond
	}
	turnaround := cfg.Turnaround
	if turnaround == 0 {
		turnaround = 200 * time.Millisecond
	}

	return &Rs485Bus{
		port:            port,
		responseTimeout: responseTimeout,
		turnaround:      turnaround,
	}, nil
}

func (b *Rs485Bus) Close() error {
	return b.port.Close()
}

// Exchange writes tx_bytes and reads exactly expectedLen bytes back,
// validating the trailing checksum per framing. maxResponseMs of zero uses
// the bus's configured default.
func (b *Rs485Bus) Exchange(txBytes []byte, expectedLen int, framing FramingKind, maxResponseMs int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	timeout := b.responseTimeout
	if maxResponseMs > 0 {
		timeout = time.Duration(maxResponseMs) * time.Millisecond
	}

	if deadliner, ok := b.port.(interface{ SetDeadline(time.Time) error }); ok {
		_ = deadliner.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := b.port.Write(txBytes); err != nil {
		b.Stats.record(ErrTxTimeout)
		return nil, fmt.Errorf("%w: %v", ErrTxTimeout, err)
	}

	resp := make([]byte, expectedLen)
	n, err := io.ReadFull(b.port, resp)
	if err != nil {
		b.Stats.record(ErrTimeout)
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if n != expectedLen {
		b.Stats.record(ErrUnexpectedLen)
		return nil, ErrUnexpectedLen
	}

	if err := b.verifyFraming(resp, framing); err != nil {
		b.Stats.record(err)
		return nil, err
	}

	time.Sleep(b.turnaround)

	return resp, nil
}

func (b *Rs485Bus) verifyFraming(resp []byte, framing FramingKind) error {
	switch framing {
	case FramingCrc16Modbus:
		if len(resp) < 2 {
			return ErrFramingError
		}
		payload := resp[:len(resp)-2]
		got := binary.LittleEndian.Uint16(resp[len(resp)-2:])
		want := Crc16Modbus(payload)
		if got != want {
			return ErrCrcError
		}
	case FramingBcc:
		if len(resp) < 1 {
			return ErrFramingError
		}
		payload := resp[:len(resp)-1]
		if resp[len(resp)-1] != Bcc(payload) {
			return ErrCrcError
		}
	default:
		return ErrFramingError
	}

	return nil
}
