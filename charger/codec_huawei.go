package charger

import (
	"encoding/binary"

	"github.com/balcony-power/dpc/bus"
)

// Huawei-flavour (telecom rectifier) CAN identifiers (§6).
const (
	huaweiReadID    uint32 = 0x1081407F
	huaweiWriteID   uint32 = 0x108180FE
	huaweiRequestID uint32 = 0x108040FE
)

// Huawei message-id byte (frame.Data[1]) to semantic field.
const (
	huaweiInputPower     = 0x70
	huaweiInputFreq      = 0x71
	huaweiInputCurrent   = 0x72
	huaweiOutputPower    = 0x73
	huaweiEfficiency     = 0x74
	huaweiOutputVoltage  = 0x75
	huaweiOutputCurrent  = 0x76
	huaweiInputVoltage   = 0x78
	huaweiOutputTemp     = 0x7F
	huaweiInputTemp      = 0x80
	huaweiOutputCurrent1 = 0x81
)

// decodeHuaweiFrame extracts the message id and big-endian value at
// offset 4, returning ok=false for frames that are not a Huawei read
// response.
func decodeHuaweiFrame(f bus.Frame) (msgID byte, value uint32, ok bool) {
	if !f.Extended || f.ID != huaweiReadID || len(f.Data) != 8 {
		return 0, 0, false
	}

	msgID = f.Data[1]
	value = binary.BigEndian.Uint32(f.Data[4:8])

	return msgID, value, true
}

// applyHuaweiUpdate mirrors a Huawei reading into RectifierState. Huawei
// values are fixed-point with a scale of 1/1024; voltage/current/power are
// reported, but the three-stage curve configuration that the PSU flavour
// exposes has no Huawei equivalent, so CurveConfig/CurveCC/CurveCV/CurveFV
// are not updated here and keep their zero values on this flavour.
func applyHuaweiUpdate(state *RectifierState, msgID byte, value uint32) {
	scaled := float64(value) / 1024.0

	switch {
	case msgID == huaweiInputPower:
		state.InputPower = scaled
	case msgID == huaweiOutputPower:
		state.OutputPower = scaled
	case msgID == huaweiEfficiency:
		state.Efficiency = scaled * 100.0
	case msgID == huaweiOutputVoltage:
		state.OutputVoltage = scaled
	case msgID == huaweiOutputCurrent, msgID == huaweiOutputCurrent1:
		state.OutputCurrent = scaled
	case msgID == huaweiInputVoltage:
		state.InputVoltage = scaled
	case msgID == huaweiOutputTemp:
		state.InternalTempC = scaled
	}
}

// encodeHuaweiWrite builds a setpoint-write frame. parameter identifies
// which setpoint (0 = voltage, 1 = current, per the original firmware's
// HUAWEI_OFFLINE_CURRENT table); raw is the 1024-scaled value.
func encodeHuaweiWrite(parameter byte, raw uint16) (id uint32, data []byte) {
	data = []byte{0x01, parameter, 0x00, 0x00, 0x00, 0x00, byte(raw >> 8), byte(raw)}
	return huaweiWriteID, data
}

func encodeHuaweiRequest() (id uint32, data []byte) {
	return huaweiRequestID, make([]byte, 8)
}
