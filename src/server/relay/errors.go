package relay

import (
	"fmt"
	"time"
)

// TransportError wraps a bus-level failure (no ack, bus busy, I/O fault).
// It is fatal for the operation that hit it and is never retried by the
// verification loop.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidRelayError reports a relay index outside the configured board's
// relay count. Raised before any bus transaction.
type InvalidRelayError struct {
	Relay int
	Count int
}

func (e *InvalidRelayError) Error() string {
	return fmt.Sprintf("invalid relay %d: board has %d relay(s)", e.Relay, e.Count)
}

// ConfigError reports a configuration parameter that violates a documented
// constraint (address range, timing, policy, unsupported command for the
// board model). Raised before any bus transaction.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// VerificationError reports that retries were exhausted while the hardware
// state still disagreed with the commanded state.
type VerificationError struct {
	Relay    int
	Expected bool
	Actual   bool
	Attempts int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("state verification failed for relay %d: expected %s, got %s after %d attempt(s)",
		e.Relay, stateName(e.Expected), stateName(e.Actual), e.Attempts)
}

// TimeoutError reports that the wall-clock deadline expired before the
// commanded state was observed or retries ran out.
type TimeoutError struct {
	Relay   int
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s for relay %d: exceeded %s", e.Op, e.Relay, e.Elapsed)
}

func stateName(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
