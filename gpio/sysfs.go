package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SysfsLine drives a single Linux GPIO pin through the sysfs class
// interface, exported once at process start by the caller (or left
// pre-exported by a device-tree overlay). It keeps the export open for the
// lifetime of the process rather than re-exporting on every Set.
type SysfsLine struct {
	number    int
	activeLow bool

	valuePath string
}

const sysfsGpioRoot = "/sys/class/gpio"

// NewSysfsLine exports pin (if not already exported) and returns a Line
// that writes "1"/"0" to its value file. activeLow inverts the logical
// on/off state before it hits the wire, matching the MOSFET driver
// polarity described in §6.
func NewSysfsLine(pin int, activeLow bool) (*SysfsLine, error) {
	pinDir := filepath.Join(sysfsGpioRoot, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(sysfsGpioRoot, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}

	if err := os.WriteFile(filepath.Join(pinDir, "direction"), []byte("out"), 0o200); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}

	l := &SysfsLine{
		number:    pin,
		activeLow: activeLow,
		valuePath: filepath.Join(pinDir, "value"),
	}
	l.Set(false)
	return l, nil
}

func (l *SysfsLine) Set(on bool) {
	wire := on != l.activeLow
	b := []byte("0")
	if wire {
		b = []byte("1")
	}
	_ = os.WriteFile(l.valuePath, b, 0o200)
}

func (l *SysfsLine) Get() bool {
	raw, err := os.ReadFile(l.valuePath)
	if err != nil || len(raw) == 0 {
		return false
	}
	wire := raw[0] == '1'
	return wire != l.activeLow
}
