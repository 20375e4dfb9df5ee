package relay

import (
	"sync"
	"time"
)

// Settle time after a change-address command before the board responds at
// the new address.
const addressChangeSettle = 100 * time.Millisecond

// Config is the runtime configuration owned by a Controller. It is swapped
// wholesale under the controller lock, never partially mutated while an
// operation is in flight.
type Config struct {
	Board        BoardModel
	Timing       TimingProfile
	Verification VerificationPolicy
}

// Controller owns one relay board: the transport handle plus the active
// configuration. All public operations are blocking and strictly
// sequential; the toggle protocol's read-then-conditionally-write sequence
// is not atomic at the hardware level, so the lock spans whole verified
// operations, not individual byte transfers.
type Controller struct {
	mu     sync.Mutex
	tr     Transport
	spec   BoardSpec
	timing TimingProfile
	policy VerificationPolicy
}

// NewController validates the configuration and binds it to the transport.
// A zero Timing falls back to the board's default preset; a zero
// Verification falls back to the strict policy.
func NewController(tr Transport, cfg Config) (*Controller, error) {
	spec, err := LookupBoard(cfg.Board)
	if err != nil {
		return nil, err
	}
	timing := cfg.Timing
	if timing == (TimingProfile{}) {
		timing = DefaultTiming(spec)
	}
	if err := timing.Validate(spec); err != nil {
		return nil, err
	}
	policy := cfg.Verification
	if policy.Mode == "" {
		policy = StrictPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Controller{tr: tr, spec: spec, timing: timing, policy: policy}, nil
}

// Init waits out the board's power-up settle time.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	time.Sleep(c.timing.InitDelay)
	return nil
}

// Spec returns the configured board's hardware description.
func (c *Controller) Spec() BoardSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// Timing returns the active timing profile.
func (c *Controller) Timing() TimingProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timing
}

// Policy returns the active verification policy.
func (c *Controller) Policy() VerificationPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// SetTiming swaps the timing profile. Waits for any in-flight operation.
func (c *Controller) SetTiming(p TimingProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := p.Validate(c.spec); err != nil {
		return err
	}
	c.timing = p
	return nil
}

// SetPolicy swaps the verification policy. Waits for any in-flight operation.
func (c *Controller) SetPolicy(p VerificationPolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := p.Validate(); err != nil {
		return err
	}
	c.policy = p
	return nil
}

// Reconfigure replaces the whole configuration at once. The board model
// must stay within the same transport's address, so callers normally only
// change timing and verification here.
func (c *Controller) Reconfigure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	spec, err := LookupBoard(cfg.Board)
	if err != nil {
		return err
	}
	timing := cfg.Timing
	if timing == (TimingProfile{}) {
		timing = DefaultTiming(spec)
	}
	if err := timing.Validate(spec); err != nil {
		return err
	}
	policy := cfg.Verification
	if policy.Mode == "" {
		policy = StrictPolicy()
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	c.spec, c.timing, c.policy = spec, timing, policy
	return nil
}

// SetRelay drives one relay to the desired state and, unless verification
// is disabled, confirms the hardware actually reached it.
func (c *Controller) SetRelay(relay int, on bool) error {
	op := "set relay off"
	if on {
		op = "set relay on"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(relay, on, op)
}

// SetRelayOn turns one relay on, verified per the active policy.
func (c *Controller) SetRelayOn(relay int) error {
	return c.SetRelay(relay, true)
}

// SetRelayOff turns one relay off, verified per the active policy.
func (c *Controller) SetRelayOff(relay int) error {
	return c.SetRelay(relay, false)
}

// RelayState reads the current state of one relay.
func (c *Controller) RelayState(relay int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.spec.ValidRelay(relay) {
		return false, &InvalidRelayError{Relay: relay, Count: c.spec.RelayCount}
	}
	return c.readState(relay)
}

// RelayStates reads every relay on the board, index 0 holding relay 1.
func (c *Controller) RelayStates() ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make([]bool, c.spec.RelayCount)
	for i := range states {
		s, err := c.readState(i + 1)
		if err != nil {
			return nil, err
		}
		states[i] = s
	}
	return states, nil
}

// SetAllOn issues the board's bulk all-on command. The write is
// unconditional; callers wanting per-relay confirmation read back states
// afterward.
func (c *Controller) SetAllOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBulk(Command{Kind: CmdWriteAllOn}, "set all relays on")
}

// SetAllOff issues the board's bulk all-off command, unconditionally.
func (c *Controller) SetAllOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBulk(Command{Kind: CmdWriteAllOff}, "set all relays off")
}

// ToggleAll flips every relay on multi-relay boards.
func (c *Controller) ToggleAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBulk(Command{Kind: CmdToggleAll}, "toggle all relays")
}

// FirmwareVersion reads the board's firmware version register.
func (c *Controller) FirmwareVersion() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, err := Resolve(c.spec, Command{Kind: CmdReadVersion})
	if err != nil {
		return 0, err
	}
	v, err := c.tr.ReadByte(cmd[0])
	if err != nil {
		return 0, &TransportError{Op: "read firmware version", Err: err}
	}
	return v, nil
}

// ChangeAddress permanently moves the board to a new I2C address. The
// address is validated before any bus transaction: a write to an illegal
// address could strand the board unreachable. After success the existing
// transport still points at the old address and must be reopened.
func (c *Controller) ChangeAddress(newAddr byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, err := Resolve(c.spec, Command{Kind: CmdChangeAddress, Addr: newAddr})
	if err != nil {
		return err
	}
	if err := c.busWrite(cmd, "change address"); err != nil {
		return err
	}
	time.Sleep(addressChangeSettle)
	return nil
}

// applyLocked is the verification engine: a bounded-retry, deadline-bounded
// confirmation loop around one semantic state transition. Retry count and
// deadline are two independent guards so callers can tell "ran out of
// attempts" from "ran out of time"; the deadline is authoritative when both
// would allow another attempt.
func (c *Controller) applyLocked(relay int, desired bool, op string) error {
	if !c.spec.ValidRelay(relay) {
		return &InvalidRelayError{Relay: relay, Count: c.spec.RelayCount}
	}
	policy := c.policy
	start := time.Now()
	deadline := start.Add(policy.Timeout)

	for attempt := 0; ; attempt++ {
		if err := c.writeDesired(relay, desired); err != nil {
			return err
		}
		if policy.Mode == Disabled {
			return nil
		}

		time.Sleep(policy.VerificationDelay)
		actual, err := c.readState(relay)
		if err != nil {
			return err
		}
		if actual == desired {
			return nil
		}

		if !time.Now().Before(deadline) {
			return &TimeoutError{Relay: relay, Op: op, Elapsed: time.Since(start)}
		}
		if attempt >= policy.MaxRetries {
			return &VerificationError{Relay: relay, Expected: desired, Actual: actual, Attempts: attempt + 1}
		}
		time.Sleep(policy.RetryDelay)
	}
}

// writeDesired performs exactly one semantic state transition. Single-relay
// boards take the literal state. Toggle-only boards are read first: when the
// relay already matches, no write goes out, since an unconditional toggle on
// an already-correct relay would invert it.
func (c *Controller) writeDesired(relay int, desired bool) error {
	if c.spec.RelayCount == 1 {
		cmd, err := Resolve(c.spec, Command{Kind: CmdWriteDirect, State: desired})
		if err != nil {
			return err
		}
		return c.writeStateChange(cmd, "write relay state")
	}

	current, err := c.readState(relay)
	if err != nil {
		return err
	}
	if current == desired {
		return nil
	}
	cmd, err := Resolve(c.spec, Command{Kind: CmdToggleRelay, Relay: relay})
	if err != nil {
		return err
	}
	return c.writeStateChange(cmd, "toggle relay")
}

// readState decodes one relay's status byte: nonzero means energized.
func (c *Controller) readState(relay int) (bool, error) {
	cmd, err := Resolve(c.spec, Command{Kind: CmdReadState, Relay: relay})
	if err != nil {
		return false, err
	}
	v, err := c.tr.ReadByte(cmd[0])
	if err != nil {
		return false, &TransportError{Op: "read relay state", Err: err}
	}
	return v != 0, nil
}

func (c *Controller) writeBulk(command Command, op string) error {
	cmd, err := Resolve(c.spec, command)
	if err != nil {
		return err
	}
	return c.writeStateChange(cmd, op)
}

// writeStateChange sends a state-changing command and waits out the
// board's settle time before the caller touches the bus again.
func (c *Controller) writeStateChange(cmd []byte, op string) error {
	if err := c.busWrite(cmd, op); err != nil {
		return err
	}
	time.Sleep(c.timing.StateChangeDelay)
	return nil
}

// busWrite is the single exit point for write transactions; every write is
// followed by the profile's write delay to respect bus stabilization.
func (c *Controller) busWrite(cmd []byte, op string) error {
	if err := c.tr.Write(cmd); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	time.Sleep(c.timing.WriteDelay)
	return nil
}
