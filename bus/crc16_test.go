package bus

import "testing"

func TestCrc16ModbusEmptyIsInitialValue(t *testing.T) {
	if got := Crc16Modbus([]byte{}); got != 0xFFFF {
		t.Errorf("got 0x%04X, expected 0xFFFF", got)
	}
}

func TestCrc16ModbusDeterministic(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	first := Crc16Modbus(data)
	second := Crc16Modbus(data)
	if first != second {
		t.Errorf("crc not deterministic: 0x%04X != 0x%04X", first, second)
	}
}

func TestCrc16ModbusDetectsSingleBitFlip(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	want := Crc16Modbus(data)

	corrupted := append([]byte{}, data...)
	corrupted[2] ^= 0x01
	if got := Crc16Modbus(corrupted); got == want {
		t.Error("expected crc to change after single bit flip")
	}
}

func TestBcc(t *testing.T) {
	subTests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", []byte{}, 0x00},
		{"single byte", []byte{0x55}, 0x55},
		{"three bytes", []byte{0x01, 0x02, 0x03}, 0x00},
		{"asymmetric", []byte{0x02, 0x03, 0x05}, 0x04},
	}
	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			if got := Bcc(subTest.data); got != subTest.expected {
				t.Errorf("got 0x%02X, expected 0x%02X", got, subTest.expected)
			}
		})
	}
}
