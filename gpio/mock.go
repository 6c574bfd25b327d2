package gpio

// LineMock is an in-memory test double for Line.
type LineMock struct {
	on bool
}

func (m *LineMock) Set(on bool) { m.on = on }
func (m *LineMock) Get() bool   { return m.on }
