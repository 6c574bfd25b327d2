package bus

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// CanBus is a single CAN controller reached over Linux SocketCAN. It serves
// both the telecom-rectifier and PSU charger flavours; the charger engine
// decides which identifiers and payload layout to use.
type CanBus struct {
	mu sync.Mutex

	fd     int
	ifName string

	minInterFrameGap time.Duration
	lastRxAt         time.Time

	Stats Stats
}

// NewCanBus opens and binds a raw CAN socket on the named interface
// (e.g. "can0"). minInterFrameGap enforces the device firmware's lock-out
// window (§4.1: 5 ms default on the charger bus) between a response and
// the next request.
func NewCanBus(ifName string, minInterFrameGap time.Duration) (*CanBus, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("resolve can interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("open can socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind can socket to %s: %w", ifName, err)
	}

	return &CanBus{
		fd:               fd,
		ifName:           ifName,
		minInterFrameGap: minInterFrameGap,
	}, nil
}

// Close releases the underlying socket.
func (b *CanBus) Close() error {
	return unix.Close(b.fd)
}

// SendFrame transmits a single frame, honouring the minimum inter-frame gap
// since the last received frame. Returns ErrBusOff or ErrTxTimeout on
// failure; the driver does not retry.
func (b *CanBus) SendFrame(id uint32, extended bool, payload []byte) error {
	if len(payload) > canMaxDlen {
		return fmt.Errorf("bus: payload of %d bytes exceeds %d", len(payload), canMaxDlen)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if gap := b.minInterFrameGap - time.Since(b.lastRxAt); gap > 0 {
		time.Sleep(gap)
	}

	raw := encodeCanFrame(Frame{ID: id, Extended: extended, Data: payload})

	n, err := unix.Write(b.fd, raw[:])
	if err != nil {
		txErr := b.classifyWriteErr(err)
		b.Stats.record(txErr)
		return txErr
	}
	if n != canFrameSize {
		b.Stats.record(ErrTxTimeout)
		return ErrTxTimeout
	}

	return nil
}

func (b *CanBus) classifyWriteErr(err error) error {
	if err == unix.ENETDOWN || err == unix.ENOBUFS {
		return fmt.Errorf("%w: %v", ErrBusOff, err)
	}
	return fmt.Errorf("%w: %v", ErrTxTimeout, err)
}

// PollFrame returns at most one already-received frame, non-blocking. The
// second return is false when nothing was pending.
func (b *CanBus) PollFrame() (Frame, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, canFrameSize)

	n, err := unix.Read(b.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return Frame{}, false, nil
		}
		return Frame{}, false, fmt.Errorf("bus: can read: %w", err)
	}
	if n < canFrameSize {
		b.Stats.record(ErrUnexpectedLen)
		return Frame{}, false, ErrUnexpectedLen
	}

	frame, err := decodeCanFrame(buf[:n])
	if err != nil {
		b.Stats.record(err)
		return Frame{}, false, err
	}

	b.lastRxAt = time.Now()

	return frame, true, nil
}

// SetNonBlocking puts the socket in non-blocking mode so PollFrame never
// stalls the scheduler. SetReadBound sets the blocking bound used when a
// caller does want to wait briefly for a response (§5: 100 ms CAN read
// bound).
func (b *CanBus) SetNonBlocking() error {
	return unix.SetNonblock(b.fd, true)
}

func (b *CanBus) SetReadBound(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}
