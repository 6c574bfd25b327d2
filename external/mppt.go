package external

// Mppt is the solar charge controller surface consumed by the signal
// aggregator (D) and the dynamic power limiter (G).
type Mppt interface {
	IsDataValid() bool
	OutputVoltage() float64
	OutputPowerW() uint32
}

// DayPeriod reports whether a point in time falls within the configured
// "day" window. Sunrise/sunset computation itself is an external
// collaborator (out of scope, §1); the DPC only consumes the boolean
// result.
type DayPeriod interface {
	IsDayPeriod() bool
}
