package external

// PowerMeter is the whole-house power meter surface consumed by the
// dynamic power limiter (G). Positive PowerTotal means the house is
// importing from the grid.
type PowerMeter interface {
	PowerTotal() float64
	HousePower() float64
	LastUpdateMs() uint32
	IsDataValid() bool
}
