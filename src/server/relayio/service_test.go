package relayio

import (
	"fmt"
	"testing"

	"relaymate-utils/src/server/config"
	"relaymate-utils/src/server/relay"
)

// fakeQuadTransport emulates a four-channel toggle board well enough for
// service-level tests.
type fakeQuadTransport struct {
	states  [5]bool
	version byte
	closed  bool
}

func (f *fakeQuadTransport) Write(cmd []byte) error {
	if len(cmd) != 1 {
		return fmt.Errorf("unexpected command %v", cmd)
	}
	b := cmd[0]
	switch {
	case b >= 0x01 && b <= 0x04:
		f.states[b] = !f.states[b]
	case b == 0x0A:
		for i := 1; i <= 4; i++ {
			f.states[i] = false
		}
	case b == 0x0B:
		for i := 1; i <= 4; i++ {
			f.states[i] = true
		}
	case b == 0x0C:
		for i := 1; i <= 4; i++ {
			f.states[i] = !f.states[i]
		}
	default:
		return fmt.Errorf("unsupported command 0x%02X", b)
	}
	return nil
}

func (f *fakeQuadTransport) ReadByte(reg byte) (byte, error) {
	if reg == 0x04 {
		return f.version, nil
	}
	if reg >= 0x05 && reg <= 0x08 {
		if f.states[int(reg-0x04)] {
			return 0x01, nil
		}
		return 0x00, nil
	}
	return 0, fmt.Errorf("unsupported register 0x%02X", reg)
}

func (f *fakeQuadTransport) Close() error {
	f.closed = true
	return nil
}

func quadConfig() config.RelayConfig {
	return config.RelayConfig{
		Transport:    "i2c",
		Address:      0x6D,
		Board:        "quad",
		Verification: "strict",
		ProbeRelay:   1,
	}
}

func newTestService(t *testing.T) (*Service, *fakeQuadTransport) {
	t.Helper()
	board := &fakeQuadTransport{version: 0x17}

	origOpen, origPersist := openTransport, persistPreset
	openTransport = func(rc config.RelayConfig) (relay.Transport, error) { return board, nil }
	persistPreset = func(name string) error { return nil }
	t.Cleanup(func() {
		openTransport, persistPreset = origOpen, origPersist
	})

	s, err := NewService(quadConfig())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s, board
}

func TestServiceStatus(t *testing.T) {
	s, board := newTestService(t)
	board.states[2] = true

	st, err := s.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Online {
		t.Error("service should be online")
	}
	if st.Board.Model != relay.QuadRelay {
		t.Errorf("board model: got %s", st.Board.Model)
	}
	want := []bool{false, true, false, false}
	for i, w := range want {
		if st.States[i] != w {
			t.Errorf("relay %d: got %v want %v", i+1, st.States[i], w)
		}
	}
	if st.Firmware != 0x17 {
		t.Errorf("firmware: got 0x%02X want 0x17", st.Firmware)
	}
	if st.Verification != relay.Strict {
		t.Errorf("verification: got %s want strict", st.Verification)
	}
}

func TestServiceSetRelayNotifies(t *testing.T) {
	s, board := newTestService(t)

	var pushed []Status
	s.SetStateChangeCallback(func(st Status) { pushed = append(pushed, st) })

	if err := s.SetRelay(3, true); err != nil {
		t.Fatalf("SetRelay failed: %v", err)
	}
	if !board.states[3] {
		t.Error("relay 3 should be on")
	}
	if len(pushed) != 1 {
		t.Fatalf("change callbacks: got %d want 1", len(pushed))
	}
	if !pushed[0].States[2] {
		t.Error("pushed snapshot should show relay 3 on")
	}
}

func TestServiceBulk(t *testing.T) {
	s, board := newTestService(t)

	if err := s.SetAllOn(); err != nil {
		t.Fatalf("SetAllOn failed: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if !board.states[i] {
			t.Errorf("relay %d should be on", i)
		}
	}

	if err := s.SetAllOff(); err != nil {
		t.Fatalf("SetAllOff failed: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if board.states[i] {
			t.Errorf("relay %d should be off", i)
		}
	}
}

func TestServiceCalibratePersistsPreset(t *testing.T) {
	s, _ := newTestService(t)

	var persisted string
	persistPreset = func(name string) error {
		persisted = name
		return nil
	}

	adopted, err := s.Calibrate(1)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	// The fake board switches instantly, so the fastest candidate wins.
	if adopted.Name != "aggressive" {
		t.Errorf("adopted profile: got %q want aggressive", adopted.Name)
	}
	if persisted != adopted.Name {
		t.Errorf("persisted preset: got %q want %q", persisted, adopted.Name)
	}
}

func TestServiceOffline(t *testing.T) {
	origOpen := openTransport
	openTransport = func(rc config.RelayConfig) (relay.Transport, error) {
		return nil, fmt.Errorf("no board at 0x%02X", rc.Address)
	}
	defer func() { openTransport = origOpen }()

	if _, err := NewService(quadConfig()); err == nil {
		t.Fatal("NewService should fail when the transport cannot open")
	}

	s := InitializeService()
	if s.Available() {
		t.Error("offline service must not report available")
	}
	if s.Err() == nil {
		t.Error("offline service must expose the startup error")
	}
	if err := s.SetRelay(1, true); err == nil {
		t.Error("writes against an offline service must fail")
	}
}

func TestServiceClose(t *testing.T) {
	s, board := newTestService(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !board.closed {
		t.Error("transport should be closed")
	}
	if s.Available() {
		t.Error("closed service must not report available")
	}
	if err := s.SetRelay(1, true); err == nil {
		t.Error("writes after close must fail")
	}
}
