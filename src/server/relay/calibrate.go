package relay

import (
	"log"

	"github.com/pkg/errors"
)

// ErrCalibrationFailed is returned when no candidate timing profile could
// verify a full on/off cycle on the probe relay.
var ErrCalibrationFailed = errors.New("timing calibration failed: no candidate profile verified")

// Calibrate searches the preset ladder, fastest to slowest, for a timing
// profile under which a verified on-then-off cycle of the probe relay
// succeeds, and adopts the first one that works. When no candidate works
// the previously active profile stays in effect. On every exit path the
// probe relay is driven back to its originally observed state, so
// calibration never leaves the board in an ambiguous state.
func (c *Controller) Calibrate(probeRelay int) (TimingProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.spec.ValidRelay(probeRelay) {
		return TimingProfile{}, &InvalidRelayError{Relay: probeRelay, Count: c.spec.RelayCount}
	}
	if c.policy.Mode == Disabled {
		return TimingProfile{}, &ConfigError{Reason: "timing calibration requires verification to be enabled"}
	}

	original, err := c.readState(probeRelay)
	if err != nil {
		return TimingProfile{}, err
	}
	prior := c.timing

	for _, candidate := range TimingPresets() {
		if candidate.Validate(c.spec) != nil {
			continue
		}
		c.timing = candidate

		if err := c.probeCycle(probeRelay); err != nil {
			var terr *TransportError
			if errors.As(err, &terr) {
				// The bus itself failed; slower timing won't fix that.
				c.timing = prior
				c.restoreProbe(probeRelay, original)
				return TimingProfile{}, err
			}
			continue
		}

		c.restoreProbe(probeRelay, original)
		return candidate, nil
	}

	c.timing = prior
	c.restoreProbe(probeRelay, original)
	return TimingProfile{}, ErrCalibrationFailed
}

// probeCycle runs one verified on-then-off transition of the probe relay
// under the currently installed profile.
func (c *Controller) probeCycle(relay int) error {
	if err := c.applyLocked(relay, true, "calibrate probe on"); err != nil {
		return err
	}
	return c.applyLocked(relay, false, "calibrate probe off")
}

// restoreProbe drives the probe relay back to the state observed before
// calibration started. Best effort: a failure here is logged, not returned,
// so it cannot mask the calibration outcome.
func (c *Controller) restoreProbe(relay int, original bool) {
	if err := c.applyLocked(relay, original, "calibrate restore"); err != nil {
		log.Printf("calibration: failed to restore relay %d to %s: %v", relay, stateName(original), err)
	}
}
