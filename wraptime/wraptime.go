// Package wraptime compares millisecond counters that wrap around, such as
// the free-running uptime counters reported by peripheral firmware.
package wraptime

// After returns true if `a` represents a later point in time than `b`,
// treating both as 32-bit counters that may have wrapped. It compares
// (a - b) against half the modulus by relying on signed overflow, so it
// stays correct across a single wrap but cannot distinguish separations
// larger than 2^31ms (~24.8 days).
func After(a, b uint32) bool {
	return int32(a-b) > 0
}

// AtOrAfter is After, inclusive of equality.
func AtOrAfter(a, b uint32) bool {
	return int32(a-b) >= 0
}

// ElapsedSigned returns `to - from` as a signed value, negative if `to`
// appears to precede `from` once wraparound is taken into account.
func ElapsedSigned(from, to uint32) int32 {
	return int32(to - from)
}
