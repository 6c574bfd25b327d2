package timeutils

import "time"

// Period represents an absolute span between two instants, e.g.
// "2023/10/19 16:00:00 to 2023/10/19 18:00:00".
type Period struct {
	Start time.Time
	End   time.Time
}

// Equal returns true if both periods share the same start and end instants.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}
