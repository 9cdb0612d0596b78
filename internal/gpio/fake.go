package gpio

import "sync"

// FakeDriver is an in-memory Driver for tests and desktop runs.
// Pins read back exactly what was last written. Safe for concurrent use.
type FakeDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	reads  int
	writes int
	closed bool

	// ReadError, if set, is returned by Read.
	ReadError error

	// WriteError, if set, is returned by Write and Setup.
	WriteError error
}

// NewFakeDriver creates a FakeDriver with no configured pins.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{levels: make(map[int]Level)}
}

// Setup records pin as configured at initial.
func (f *FakeDriver) Setup(pin int, initial Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.levels[pin] = initial
	return nil
}

// Read returns the last written level of pin.
func (f *FakeDriver) Read(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	l, ok := f.levels[pin]
	if !ok {
		return Low, ErrPinNotConfigured
	}
	return l, nil
}

// Write sets the level of pin.
func (f *FakeDriver) Write(pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.WriteError != nil {
		return f.WriteError
	}
	if _, ok := f.levels[pin]; !ok {
		return ErrPinNotConfigured
	}
	f.levels[pin] = level
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Force changes a pin level behind the driver user's back, as external
// wiring or another process would.
func (f *FakeDriver) Force(pin int, level Level) {
	f.mu.Lock()
	f.levels[pin] = level
	f.mu.Unlock()
}

// Level returns the current level of pin and whether it is configured.
func (f *FakeDriver) Level(pin int) (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.levels[pin]
	return l, ok
}

// Counts returns the number of Read and Write calls so far.
func (f *FakeDriver) Counts() (reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.writes
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
