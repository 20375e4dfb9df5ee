package relay

import (
	"fmt"
	"time"
)

// fakeBoard is a behaviorally faithful in-memory relay board. Multi-relay
// models honor the toggle-only protocol (a toggle flips, it does not set);
// the single-relay model takes direct writes. Counters record bus traffic
// so tests can assert exact transaction sequences.
type fakeBoard struct {
	spec    fakeSpec
	states  [5]bool // 1-based relay states
	version byte

	// dropToggles silently ignores the next N state-changing writes,
	// simulating relays that did not switch.
	dropToggles int

	writeErr error
	readErr  error

	toggleWrites int
	directWrites int
	bulkWrites   int
	statusReads  int
	otherWrites  [][]byte
}

type fakeSpec int

const (
	fakeSingle fakeSpec = 1
	fakeQuad   fakeSpec = 4
)

func newFakeQuad() *fakeBoard {
	return &fakeBoard{spec: fakeQuad, version: 0x17}
}

func newFakeSingle() *fakeBoard {
	return &fakeBoard{spec: fakeSingle, version: 0x17}
}

func (f *fakeBoard) Write(cmd []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if len(cmd) == 2 && cmd[0] == 0xC7 {
		f.otherWrites = append(f.otherWrites, cmd)
		return nil
	}
	if len(cmd) != 1 {
		return fmt.Errorf("fake board: unexpected %d-byte command %v", len(cmd), cmd)
	}

	b := cmd[0]
	if f.spec == fakeSingle {
		switch b {
		case 0x00, 0x01:
			f.directWrites++
			if f.dropToggles > 0 {
				f.dropToggles--
				return nil
			}
			f.states[1] = b == 0x01
			return nil
		}
		return fmt.Errorf("fake board: unsupported single-relay command 0x%02X", b)
	}

	switch {
	case b >= 0x01 && b <= 0x04:
		f.toggleWrites++
		if f.dropToggles > 0 {
			f.dropToggles--
			return nil
		}
		f.states[b] = !f.states[b]
	case b == 0x0A:
		f.bulkWrites++
		for i := 1; i <= int(f.spec); i++ {
			f.states[i] = false
		}
	case b == 0x0B:
		f.bulkWrites++
		for i := 1; i <= int(f.spec); i++ {
			f.states[i] = true
		}
	case b == 0x0C:
		f.bulkWrites++
		for i := 1; i <= int(f.spec); i++ {
			f.states[i] = !f.states[i]
		}
	default:
		return fmt.Errorf("fake board: unsupported command 0x%02X", b)
	}
	return nil
}

func (f *fakeBoard) ReadByte(reg byte) (byte, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.spec == fakeSingle {
		switch reg {
		case 0x04:
			return f.version, nil
		case 0x05:
			f.statusReads++
			return boolByte(f.states[1]), nil
		}
		return 0, fmt.Errorf("fake board: unsupported single-relay register 0x%02X", reg)
	}
	if reg == 0x04 {
		return f.version, nil
	}
	if reg >= 0x05 && reg <= 0x08 {
		f.statusReads++
		return boolByte(f.states[int(reg-0x04)]), nil
	}
	return 0, fmt.Errorf("fake board: unsupported register 0x%02X", reg)
}

func (f *fakeBoard) Close() error { return nil }

func boolByte(on bool) byte {
	if on {
		return 0x01
	}
	return 0x00
}

// fastStrict is a strict policy with delays shrunk for tests.
func fastStrict() VerificationPolicy {
	return VerificationPolicy{
		Mode:              Strict,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
		VerificationDelay: time.Millisecond,
		Timeout:           5 * time.Second,
	}
}

// fastTiming keeps profile sleeps negligible in tests.
func fastTiming() TimingProfile {
	return TimingProfile{Name: "test", WriteDelay: time.Microsecond, StateChangeDelay: time.Millisecond, InitDelay: 0}
}
