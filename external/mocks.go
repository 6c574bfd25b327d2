package external

import (
	"sync"
	"time"
)

// BmsMock is a test double for Bms.
type BmsMock struct {
	Mu sync.Mutex

	InitializedValue bool

	VoltageValue float64
	VoltageAge   time.Duration
	SocValue     float64
	SocAge       time.Duration

	ChargeEnabledValue     bool
	AlarmsValue            BmsAlarms
	ChargeImmediatelyValue bool

	RecommendedVoltage float64
	RecommendedCurrent float64

	ChargeTemperatureValid bool
}

func (m *BmsMock) Initialized() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.InitializedValue
}

func (m *BmsMock) Voltage() (float64, time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.VoltageValue, m.VoltageAge
}

func (m *BmsMock) Soc() (float64, time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.SocValue, m.SocAge
}

func (m *BmsMock) ChargeEnabled() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.ChargeEnabledValue
}

func (m *BmsMock) Alarms() BmsAlarms {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.AlarmsValue
}

func (m *BmsMock) ChargeImmediately() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.ChargeImmediatelyValue
}

func (m *BmsMock) RecommendedChargeVoltage() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.RecommendedVoltage
}

func (m *BmsMock) RecommendedChargeCurrent() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.RecommendedCurrent
}

func (m *BmsMock) IsChargeTemperatureValid() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.ChargeTemperatureValid
}

// InverterMock is a test double for Inverter. Fields are read and written
// directly under Mu by callers; the production adaptors behind the real
// interface do their own locking internally.
type InverterMock struct {
	Mu sync.Mutex

	SerialValue           string
	Reachable             bool
	Producing             bool
	CommandsEnabledValue  bool
	StatsLastUpdate       uint32
	ACFields              map[int]map[ChannelField]float64
	DCFields              map[int]map[ChannelField]float64
	NumACChannels         int
	NumDCChannels         int
	MaxPower              uint32
	LimitCommandSuccess   CommandStatus
	LimitCommandTs        uint32
	Limit                 float32
	LastActivePowerCmd    float32
	LastActivePowerNonPer bool
	LastPowerControlOn    bool
	RestartRequested      bool
	NextSendErr           error
}

func NewInverterMock(serial string) *InverterMock {
	return &InverterMock{
		SerialValue: serial,
		ACFields:    map[int]map[ChannelField]float64{},
		DCFields:    map[int]map[ChannelField]float64{},
	}
}

func (m *InverterMock) Serial() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.SerialValue
}

func (m *InverterMock) IsReachable() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Reachable
}

func (m *InverterMock) IsProducing() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Producing
}

func (m *InverterMock) CommandsEnabled() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CommandsEnabledValue
}

func (m *InverterMock) StatsLastUpdateMs() uint32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.StatsLastUpdate
}

func (m *InverterMock) ChannelFieldValue(fieldType ChannelFieldType, channel int, field ChannelField) float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	table := m.ACFields
	if fieldType == ChannelTypeDC {
		table = m.DCFields
	}
	return table[channel][field]
}

func (m *InverterMock) NumChannels(fieldType ChannelFieldType) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if fieldType == ChannelTypeDC {
		return m.NumDCChannels
	}
	return m.NumACChannels
}

func (m *InverterMock) MaxPowerW() uint32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.MaxPower
}

func (m *InverterMock) LastLimitCommandSuccess() CommandStatus {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LimitCommandSuccess
}

func (m *InverterMock) LastLimitCommandTsMs() uint32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LimitCommandTs
}

func (m *InverterMock) LimitPercent() float32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Limit
}

func (m *InverterMock) SendActivePowerControl(percent float32, nonPersistent bool) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.NextSendErr != nil {
		return m.NextSendErr
	}
	m.LastActivePowerCmd = percent
	m.LastActivePowerNonPer = nonPersistent
	m.Limit = percent
	return nil
}

func (m *InverterMock) SendPowerControl(on bool) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.NextSendErr != nil {
		return m.NextSendErr
	}
	m.LastPowerControlOn = on
	return nil
}

func (m *InverterMock) SendRestartControl() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.NextSendErr != nil {
		return m.NextSendErr
	}
	m.RestartRequested = true
	return nil
}

// PowerMeterMock is a test double for PowerMeter.
type PowerMeterMock struct {
	Mu         sync.Mutex
	Total      float64
	House      float64
	LastUpdate uint32
	DataValid  bool
}

func (m *PowerMeterMock) PowerTotal() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Total
}

func (m *PowerMeterMock) HousePower() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.House
}

func (m *PowerMeterMock) LastUpdateMs() uint32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LastUpdate
}

func (m *PowerMeterMock) IsDataValid() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.DataValid
}

// MpptMock is a test double for Mppt.
type MpptMock struct {
	Mu        sync.Mutex
	DataValid bool
	Voltage   float64
	PowerW    uint32
}

func (m *MpptMock) IsDataValid() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.DataValid
}

func (m *MpptMock) OutputVoltage() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Voltage
}

func (m *MpptMock) OutputPowerW() uint32 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.PowerW
}

// DayPeriodMock is a test double for DayPeriod.
type DayPeriodMock struct {
	Mu    sync.Mutex
	IsDay bool
}

func (m *DayPeriodMock) IsDayPeriod() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.IsDay
}
