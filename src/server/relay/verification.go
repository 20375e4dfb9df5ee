package relay

import "time"

// VerificationMode selects how hard the controller works to confirm that a
// commanded state change actually happened.
type VerificationMode string

const (
	// Strict verifies every state change and fails when it cannot be
	// confirmed within the retry and deadline bounds.
	Strict VerificationMode = "strict"
	// Lenient verifies with more retries and longer delays, for
	// electrically noisy setups.
	Lenient VerificationMode = "lenient"
	// Disabled skips the verification read entirely: maximum speed,
	// no guarantee.
	Disabled VerificationMode = "disabled"
)

// VerificationPolicy bounds the confirm-after-write loop. Both MaxRetries
// and Timeout are enforced independently; whichever triggers first wins.
type VerificationPolicy struct {
	Mode              VerificationMode `json:"mode" yaml:"mode"`
	MaxRetries        int              `json:"maxRetries" yaml:"max_retries"`
	RetryDelay        time.Duration    `json:"retryDelay" yaml:"retry_delay"`
	VerificationDelay time.Duration    `json:"verificationDelay" yaml:"verification_delay"`
	Timeout           time.Duration    `json:"timeout" yaml:"timeout"`
}

func StrictPolicy() VerificationPolicy {
	return VerificationPolicy{
		Mode:              Strict,
		MaxRetries:        3,
		RetryDelay:        50 * time.Millisecond,
		VerificationDelay: 20 * time.Millisecond,
		Timeout:           time.Second,
	}
}

func LenientPolicy() VerificationPolicy {
	return VerificationPolicy{
		Mode:              Lenient,
		MaxRetries:        5,
		RetryDelay:        100 * time.Millisecond,
		VerificationDelay: 50 * time.Millisecond,
		Timeout:           2 * time.Second,
	}
}

func DisabledPolicy() VerificationPolicy {
	return VerificationPolicy{Mode: Disabled}
}

// PolicyForMode resolves a mode name to its default policy.
func PolicyForMode(mode VerificationMode) (VerificationPolicy, error) {
	switch mode {
	case Strict:
		return StrictPolicy(), nil
	case Lenient:
		return LenientPolicy(), nil
	case Disabled:
		return DisabledPolicy(), nil
	default:
		return VerificationPolicy{}, &ConfigError{Reason: "unknown verification mode " + string(mode)}
	}
}

// Validate rejects policies whose bounds cannot work. A timeout at or below
// the verification delay would expire before the first check can happen.
func (p VerificationPolicy) Validate() error {
	switch p.Mode {
	case Strict, Lenient, Disabled:
	default:
		return &ConfigError{Reason: "unknown verification mode " + string(p.Mode)}
	}
	if p.Mode == Disabled {
		return nil
	}
	if p.MaxRetries < 0 {
		return &ConfigError{Reason: "max retries must be non-negative"}
	}
	if p.RetryDelay < 0 || p.VerificationDelay < 0 {
		return &ConfigError{Reason: "verification delays must be non-negative"}
	}
	if p.Timeout <= p.VerificationDelay {
		return &ConfigError{Reason: "verification timeout must exceed the verification delay"}
	}
	return nil
}
