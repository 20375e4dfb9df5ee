package relay

import (
	"fmt"
	"time"
)

// TimingProfile bundles the delays that pace bus operations for one board.
// WriteDelay follows every bus write, StateChangeDelay follows writes that
// change relay state (settle time before the reported state can be
// trusted), InitDelay is the power-up wait.
type TimingProfile struct {
	Name             string        `json:"name" yaml:"name"`
	WriteDelay       time.Duration `json:"writeDelay" yaml:"write_delay"`
	StateChangeDelay time.Duration `json:"stateChangeDelay" yaml:"state_change_delay"`
	InitDelay        time.Duration `json:"initDelay" yaml:"init_delay"`
}

// Preset profiles, fastest to slowest. Standard suits the stock boards;
// the ends of the ladder exist for short solid-state setups and for long,
// capacitive buses with slow mechanical relays.
func AggressiveTiming() TimingProfile {
	return TimingProfile{Name: "aggressive", WriteDelay: 2 * time.Microsecond, StateChangeDelay: 2 * time.Millisecond, InitDelay: 100 * time.Millisecond}
}

func SolidStateTiming() TimingProfile {
	return TimingProfile{Name: "solid_state", WriteDelay: 5 * time.Microsecond, StateChangeDelay: 5 * time.Millisecond, InitDelay: 100 * time.Millisecond}
}

func StandardTiming() TimingProfile {
	return TimingProfile{Name: "standard", WriteDelay: 10 * time.Microsecond, StateChangeDelay: 10 * time.Millisecond, InitDelay: 200 * time.Millisecond}
}

func MechanicalTiming() TimingProfile {
	return TimingProfile{Name: "mechanical", WriteDelay: 15 * time.Microsecond, StateChangeDelay: 20 * time.Millisecond, InitDelay: 200 * time.Millisecond}
}

func ConservativeTiming() TimingProfile {
	return TimingProfile{Name: "conservative", WriteDelay: 25 * time.Microsecond, StateChangeDelay: 30 * time.Millisecond, InitDelay: 300 * time.Millisecond}
}

// TimingPresets returns the calibration ladder, fastest first.
func TimingPresets() []TimingProfile {
	return []TimingProfile{
		AggressiveTiming(),
		SolidStateTiming(),
		StandardTiming(),
		MechanicalTiming(),
		ConservativeTiming(),
	}
}

// TimingPreset resolves a preset by name.
func TimingPreset(name string) (TimingProfile, error) {
	for _, p := range TimingPresets() {
		if p.Name == name {
			return p, nil
		}
	}
	return TimingProfile{}, &ConfigError{Reason: fmt.Sprintf("unknown timing preset %q", name)}
}

// DefaultTiming picks the preset matching the board's relay technology.
func DefaultTiming(spec BoardSpec) TimingProfile {
	if spec.SolidState {
		return SolidStateTiming()
	}
	return StandardTiming()
}

// Validate checks the profile against the board it will drive. Mechanical
// relays need real settle time; solid-state boards may run near zero.
func (p TimingProfile) Validate(spec BoardSpec) error {
	if p.WriteDelay < 0 || p.StateChangeDelay < 0 || p.InitDelay < 0 {
		return &ConfigError{Reason: "timing delays must be non-negative"}
	}
	if !spec.SolidState && p.StateChangeDelay == 0 {
		return &ConfigError{Reason: fmt.Sprintf("board %s has mechanical relays and requires a nonzero state change delay", spec.Model)}
	}
	return nil
}
