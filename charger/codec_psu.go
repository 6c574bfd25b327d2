package charger

import (
	"encoding/binary"

	"github.com/balcony-power/dpc/bus"
)

// PSU-flavour command codes (16-bit, little-endian on the wire).
const (
	cmdOperation    uint16 = 0x0000
	cmdVoutSet      uint16 = 0x0020
	cmdIoutSet      uint16 = 0x0030
	cmdFaultStatus  uint16 = 0x0040
	cmdReadVin      uint16 = 0x0050
	cmdReadVout     uint16 = 0x0060
	cmdReadIout     uint16 = 0x0061
	cmdReadTemp1    uint16 = 0x0062
	cmdMfrIDLo      uint16 = 0x0080
	cmdMfrIDHi      uint16 = 0x0081
	cmdMfrModelLo   uint16 = 0x0082
	cmdMfrModelHi   uint16 = 0x0083
	cmdMfrRevLo     uint16 = 0x0084
	cmdMfrLocation  uint16 = 0x0085
	cmdMfrDate      uint16 = 0x0086
	cmdMfrSerialLo  uint16 = 0x0087
	cmdMfrSerialHi  uint16 = 0x0088
	cmdCurveCC      uint16 = 0x00B0
	cmdCurveCV      uint16 = 0x00B1
	cmdCurveFV      uint16 = 0x00B2
	cmdCurveTC      uint16 = 0x00B3
	cmdCurveConfig  uint16 = 0x00B4
	cmdCurveCCTmout uint16 = 0x00B5
	cmdCurveCVTmout uint16 = 0x00B6
	cmdCurveFVTmout uint16 = 0x00B7
	cmdChgStatus    uint16 = 0x00B8
	cmdScaleFactor  uint16 = 0x00C0
	cmdSystemStatus uint16 = 0x00C1
	cmdSystemConfig uint16 = 0x00C2
)

const (
	psuReceiveBase  = 0x000C0000
	psuTransmitBase = 0x000C0100
)

// encodePsuReadOrWrite builds the CAN frame for a PSU command. payload is
// the little-endian value bytes following the command code (0, 1, or 2
// bytes); a read uses an empty payload.
func encodePsuReadOrWrite(deviceID uint8, cmd uint16, payload []byte) (id uint32, data []byte) {
	id = psuTransmitBase | uint32(deviceID)

	data = make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(data[0:2], cmd)
	copy(data[2:], payload)

	return id, data
}

func encodePsuWriteScaled(deviceID uint8, cmd uint16, value float64, scale float64) (id uint32, data []byte) {
	raw := uint16(value / scale)
	var payload [2]byte
	binary.LittleEndian.PutUint16(payload[:], raw)
	return encodePsuReadOrWrite(deviceID, cmd, payload[:])
}

func encodePsuWriteBool(deviceID uint8, cmd uint16, on bool) (id uint32, data []byte) {
	var b byte
	if on {
		b = 1
	}
	return encodePsuReadOrWrite(deviceID, cmd, []byte{b})
}

// decodePsuFrame recognises a PSU response frame addressed to deviceID and
// returns its command code and value bytes.
func decodePsuFrame(f bus.Frame, deviceID uint8) (cmd uint16, value []byte, ok bool) {
	if !f.Extended {
		return 0, nil, false
	}
	if f.ID != psuReceiveBase|uint32(deviceID) {
		return 0, nil, false
	}
	if len(f.Data) < 2 {
		return 0, nil, false
	}

	cmd = binary.LittleEndian.Uint16(f.Data[0:2])
	value = f.Data[2:]

	return cmd, value, true
}

func readUint16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func readScaled(b []byte, scale float64) float64 {
	return float64(readUint16(b)) * scale
}

// applyPsuUpdate dispatches a decoded command onto exactly one
// RectifierState field (§4.2: "the engine dispatches on this code to
// update exactly one field").
func applyPsuUpdate(state *RectifierState, cmd uint16, value []byte, model string) {
	switch cmd {
	case cmdOperation:
		if len(value) >= 1 {
			state.Operation = value[0] != 0
		}
	case cmdVoutSet:
		state.SetVoltage = readScaled(value, 0.01)
	case cmdIoutSet:
		state.SetCurrent = readScaled(value, 0.01)
	case cmdFaultStatus:
		state.Fault = decodeFaultBits(readUint16(value))
	case cmdReadVin:
		state.InputVoltage = readScaled(value, 0.1)
	case cmdReadVout:
		state.OutputVoltage = readScaled(value, 0.01)
		recomputePsuPower(state, model)
	case cmdReadIout:
		state.OutputCurrent = readScaled(value, 0.01)
		recomputePsuPower(state, model)
	case cmdReadTemp1:
		state.InternalTempC = float64(int16(readUint16(value))) * 0.1
	case cmdCurveCC:
		state.CurveCC = readScaled(value, 0.01)
	case cmdCurveCV:
		state.CurveCV = readScaled(value, 0.01)
	case cmdCurveFV:
		state.CurveFV = readScaled(value, 0.01)
	case cmdCurveTC:
		state.CurveTC = readScaled(value, 0.01)
	case cmdCurveConfig:
		raw := readUint16(value)
		state.CurveConfig = CurveConfig{
			Preset:         uint8(raw & 0x03),
			TempCompStage:  uint8((raw >> 2) & 0x01),
			TwoStage:       raw&(1<<3) != 0,
			FunctionEnable: raw&(1<<4) != 0,
		}
	case cmdCurveCCTmout:
		state.CurveCCTimeoutMin = readUint16(value)
	case cmdCurveCVTmout:
		state.CurveCVTimeoutMin = readUint16(value)
	case cmdCurveFVTmout:
		state.CurveFVTimeoutMin = readUint16(value)
	case cmdChgStatus:
		state.ChargeStage = decodeChargeStageBits(readUint16(value))
	case cmdScaleFactor:
		// reported but not mirrored into RectifierState; no field owns it.
	case cmdSystemStatus:
		state.SystemStatus = decodeSystemStatusBits(readUint16(value))
	case cmdSystemConfig:
		// power-on behaviour; write-only in our usage, nothing to mirror.
	case cmdMfrIDLo:
		state.Identification.Manufacturer = appendIdentString(state.Identification.Manufacturer, value, 0)
	case cmdMfrIDHi:
		state.Identification.Manufacturer = appendIdentString(state.Identification.Manufacturer, value, 6)
	case cmdMfrModelLo:
		state.Identification.Model = appendIdentString(state.Identification.Model, value, 0)
	case cmdMfrModelHi:
		state.Identification.Model = appendIdentString(state.Identification.Model, value, 6)
	case cmdMfrRevLo:
		state.Identification.Firmware = appendIdentString(state.Identification.Firmware, value, 0)
	case cmdMfrLocation:
		state.Identification.Factory = appendIdentString(state.Identification.Factory, value, 0)
	case cmdMfrDate:
		state.Identification.Date = appendIdentString(state.Identification.Date, value, 0)
	case cmdMfrSerialLo:
		state.Identification.Serial = appendIdentString(state.Identification.Serial, value, 0)
	case cmdMfrSerialHi:
		state.Identification.Serial = appendIdentString(state.Identification.Serial, value, 6)
	}
}

// appendIdentString grows a fixed-offset identification string fragment by
// fragment, trimming trailing blanks as the original firmware does.
func appendIdentString(existing string, fragment []byte, offset int) string {
	buf := make([]byte, offset+len(fragment))
	copy(buf, existing)
	copy(buf[offset:], fragment)

	end := len(buf)
	for end > 0 && (buf[end-1] == ' ' || buf[end-1] == 0) {
		end--
	}

	return string(buf[:end])
}

func recomputePsuPower(state *RectifierState, model string) {
	state.OutputPower = state.OutputCurrent * state.OutputVoltage
	efficiency := efficiencyAt(state.OutputPower, model)
	if efficiency <= 0 {
		return
	}
	state.InputPower = state.OutputPower/efficiency + (0.75 * 240.0 / 1000.0)
	if state.InputPower > 0 {
		state.Efficiency = 100.0 * state.OutputPower / state.InputPower
	}
}
