package state

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeHardware struct {
	mu     sync.Mutex
	states map[int]State
	err    error
	reads  int
}

func (f *fakeHardware) ReadActual(ch int) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return "", f.err
	}
	return f.states[ch], nil
}

func (f *fakeHardware) set(ch int, s State) {
	f.mu.Lock()
	f.states[ch] = s
	f.mu.Unlock()
}

func testChannels() []Channel {
	return []Channel{
		{ID: 1, Label: "Luz Central", Pin: 5},
		{ID: 2, Label: "Luz Habitacion", Pin: 12},
		{ID: 3, Label: "Alacenas", Pin: 14},
	}
}

func newTestStore(t *testing.T) (*Store, *fakeHardware) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStore(testChannels(), Auxiliary{ExteriorTemp: "29.1"}, start)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	hw := &fakeHardware{states: map[int]State{1: Off, 2: Off, 3: Off}}
	s.AttachHardware(hw)
	return s, hw
}

func TestNewStoreDefaults(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStore(testChannels(), Auxiliary{}, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No hardware attached: cached defaults are reported.
	relays, err := s.AllRelayStates()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range relays {
		if r.State != Off {
			t.Errorf("channel %d: got %s, want OFF", r.ID, r.State)
		}
	}

	snap := s.SensorSnapshot()
	if snap.Valid {
		t.Error("expected sensor unavailable at startup")
	}
	if snap.Temperature() != Sentinel || snap.Pressure() != Sentinel || snap.Altitude() != Sentinel {
		t.Errorf("expected sentinels, got %q %q %q", snap.Temperature(), snap.Pressure(), snap.Altitude())
	}
}

func TestNewStoreRejectsBadChannels(t *testing.T) {
	if _, err := NewStore(nil, Auxiliary{}, time.Now()); err == nil {
		t.Error("expected error for no channels")
	}
	bad := []Channel{{ID: 1, Pin: 5}, {ID: 3, Pin: 12}}
	if _, err := NewStore(bad, Auxiliary{}, time.Now()); err == nil {
		t.Error("expected error for non-contiguous ids")
	}
}

func TestRelayStateRefreshesFromHardware(t *testing.T) {
	s, hw := newTestStore(t)

	// Hardware changed outside the store's knowledge.
	hw.set(2, On)

	st, err := s.RelayState(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != On {
		t.Errorf("got %s, want ON (hardware is ground truth)", st)
	}
}

func TestAllRelayStatesReadsEveryChannel(t *testing.T) {
	s, hw := newTestStore(t)
	hw.set(3, On)

	relays, err := s.AllRelayStates()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relays) != 3 {
		t.Fatalf("expected 3 relays, got %d", len(relays))
	}
	want := []State{Off, Off, On}
	for i, r := range relays {
		if r.ID != i+1 {
			t.Errorf("relay %d: id %d", i, r.ID)
		}
		if r.State != want[i] {
			t.Errorf("relay %d: got %s, want %s", r.ID, r.State, want[i])
		}
	}
	if hw.reads != 3 {
		t.Errorf("expected 3 hardware reads, got %d", hw.reads)
	}
}

func TestRelayStateHardwareError(t *testing.T) {
	s, hw := newTestStore(t)
	hw.err = errors.New("bus fault")

	if _, err := s.RelayState(1); err == nil {
		t.Error("expected error")
	}
	if _, err := s.AllRelayStates(); err == nil {
		t.Error("expected error")
	}
}

func TestInvalidChannel(t *testing.T) {
	s, hw := newTestStore(t)

	for _, ch := range []int{-1, 0, 4, 100} {
		if _, err := s.RelayState(ch); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("RelayState(%d): expected ErrInvalidChannel, got %v", ch, err)
		}
		called := false
		_, err := s.Update(ch, func(State) (State, error) {
			called = true
			return On, nil
		})
		if !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("Update(%d): expected ErrInvalidChannel, got %v", ch, err)
		}
		if called {
			t.Errorf("Update(%d): fn must not run for invalid channel", ch)
		}
	}
	if hw.reads != 0 {
		t.Errorf("expected no hardware reads, got %d", hw.reads)
	}
}

func TestUpdateKeepsCacheOnError(t *testing.T) {
	start := time.Now()
	s, _ := NewStore(testChannels(), Auxiliary{}, start)

	if _, err := s.Update(1, func(State) (State, error) { return On, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := s.Update(1, func(State) (State, error) { return Off, errors.New("write failed") })
	if err == nil {
		t.Fatal("expected error")
	}

	st, _ := s.RelayState(1)
	if st != On {
		t.Errorf("cache should keep ON after failed update, got %s", st)
	}
}

func TestUpdateIsExclusivePerChannel(t *testing.T) {
	start := time.Now()
	s, _ := NewStore(testChannels(), Auxiliary{}, start)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(2, func(cur State) (State, error) {
				return cur.Invert(), nil
			})
		}()
	}
	wg.Wait()

	st, _ := s.RelayState(2)
	if st != Off {
		t.Errorf("even number of inversions should leave OFF, got %s", st)
	}
}

func TestSetSensorReplacesWholeSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	at := time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)

	s.SetSensor(SensorSnapshot{Valid: true, TemperatureC: 22.5, PressureHPa: 1013, AltitudeM: 120, SampledAt: at})
	snap := s.SensorSnapshot()
	if !snap.Valid || snap.TemperatureC != 22.5 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	s.SetSensor(UnavailableSnapshot(at.Add(2 * time.Second)))
	snap = s.SensorSnapshot()
	if snap.Valid {
		t.Error("expected unavailable snapshot")
	}
	if snap.Temperature() != Sentinel {
		t.Errorf("expected sentinel, got %q", snap.Temperature())
	}
}

func TestAuxiliaryIsCopied(t *testing.T) {
	start := time.Now()
	aux := Auxiliary{Tanks: []Tank{{Name: "Blancas", Level: 74}}}
	s, _ := NewStore(testChannels(), aux, start)

	got := s.Auxiliary()
	got.Tanks[0].Level = 0

	if s.Auxiliary().Tanks[0].Level != 74 {
		t.Error("mutating a returned Auxiliary must not change the store")
	}
	aux.Tanks[0].Level = 1
	if s.Auxiliary().Tanks[0].Level != 74 {
		t.Error("mutating the constructor argument must not change the store")
	}
}

func TestSetExteriorTemperature(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetExteriorTemperature("18.4")
	if got := s.Auxiliary().ExteriorTemp; got != "18.4" {
		t.Errorf("ExteriorTemp: got %q, want 18.4", got)
	}
}

func TestStatusAggregate(t *testing.T) {
	s, hw := newTestStore(t)
	hw.set(1, On)
	s.SetMQTTConnected(true)
	fixed := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	st, err := s.Status()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Relays[0].State != On {
		t.Errorf("relay 1: got %s, want ON", st.Relays[0].State)
	}
	if !st.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	if st.Uptime() != time.Minute {
		t.Errorf("uptime: got %v, want 1m", st.Uptime())
	}
	if st.Auxiliary.ExteriorTemp != "29.1" {
		t.Errorf("ExteriorTemp: got %q", st.Auxiliary.ExteriorTemp)
	}
}

func TestConcurrentSnapshotAccess(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetSensor(SensorSnapshot{Valid: true, TemperatureC: float64(i), PressureHPa: 1000, AltitudeM: 100})
		}(i)
		go func() {
			defer wg.Done()
			snap := s.SensorSnapshot()
			if snap.Valid && snap.PressureHPa != 1000 {
				t.Errorf("torn snapshot: %+v", snap)
			}
		}()
	}
	wg.Wait()
}

func TestStateHelpers(t *testing.T) {
	if On.Invert() != Off || Off.Invert() != On {
		t.Error("Invert broken")
	}
	if On.Flag() != 1 || Off.Flag() != 0 {
		t.Error("Flag broken")
	}
	if State("MAYBE").Valid() {
		t.Error("MAYBE should not be valid")
	}
	for in, want := range map[string]State{"ON": On, "off": Off, "1": On, "0": Off} {
		got, err := ParseState(in)
		if err != nil || got != want {
			t.Errorf("ParseState(%q): got %s, %v", in, got, err)
		}
	}
	if _, err := ParseState("toggle"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
