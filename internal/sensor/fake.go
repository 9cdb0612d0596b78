package sensor

import (
	"errors"
	"sync"
)

// FakeSensor is a test double that returns scripted readings.
// Each call to Sense consumes the next reading; the last one repeats.
type FakeSensor struct {
	mu       sync.Mutex
	readings []Reading
	index    int
	calls    int
	closed   bool

	// Err, if set, is returned by Sense.
	Err error

	// Block, if set, makes Sense wait until it is closed.
	Block chan struct{}
}

// NewFakeSensor creates a FakeSensor with the given readings.
func NewFakeSensor(readings ...Reading) *FakeSensor {
	return &FakeSensor{readings: readings}
}

// Sense returns the next scripted reading.
func (f *FakeSensor) Sense() (Reading, error) {
	f.mu.Lock()
	block := f.Block
	f.calls++
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return Reading{}, f.Err
	}
	if len(f.readings) == 0 {
		return Reading{}, errors.New("no readings configured")
	}
	r := f.readings[f.index]
	if f.index < len(f.readings)-1 {
		f.index++
	}
	return r, nil
}

// SetErr sets the error returned by Sense.
func (f *FakeSensor) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Calls returns the number of Sense calls.
func (f *FakeSensor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// FakeThermometer returns a fixed temperature or error.
type FakeThermometer struct {
	C   float64
	Err error
}

// Temperature returns the configured value.
func (f FakeThermometer) Temperature() (float64, error) {
	return f.C, f.Err
}
