package relayio

import (
	"log"
	"sync"

	"github.com/pkg/errors"

	"relaymate-utils/src/server/config"
	"relaymate-utils/src/server/relay"
)

var errServiceClosed = errors.New("relay service is closed")

// Status is the externally visible snapshot of the board, shared by the
// HTTP API and the TCP push stream.
type Status struct {
	Online       bool                   `json:"online"`
	Board        relay.BoardSpec        `json:"board"`
	States       []bool                 `json:"states"`
	Timing       relay.TimingProfile    `json:"timing"`
	Verification relay.VerificationMode `json:"verification"`
	Firmware     byte                   `json:"firmware"`
}

// Factories, swappable in tests.
var (
	openTransport = func(rc config.RelayConfig) (relay.Transport, error) {
		switch rc.Transport {
		case "modbus":
			return relay.OpenModbusGateway(rc.Bus, rc.SlaveID, relay.DefaultGatewaySerial())
		default:
			return relay.OpenI2C(rc.Bus, rc.Address)
		}
	}
	persistPreset = config.SetTimingPreset
)

// Service owns the board controller and layers change notification and
// configuration persistence on top of it.
type Service struct {
	mu       sync.RWMutex
	ctrl     *relay.Controller
	tr       relay.Transport
	firmware byte
	lastErr  error
	onChange func(Status)
}

// InitializeService builds the service from the persisted configuration.
// A board that cannot be reached leaves the service offline rather than
// failing the whole process; Status reports the condition.
func InitializeService() *Service {
	s, err := NewService(config.GetRelayConfig())
	if err != nil {
		log.Printf("Relay: board unavailable: %v", err)
		return &Service{lastErr: err}
	}
	return s
}

// NewService opens the transport described by rc and binds a controller
// to it.
func NewService(rc config.RelayConfig) (*Service, error) {
	cfg, err := controllerConfig(rc)
	if err != nil {
		return nil, err
	}
	tr, err := openTransport(rc)
	if err != nil {
		return nil, err
	}
	ctrl, err := relay.NewController(tr, cfg)
	if err != nil {
		tr.Close()
		return nil, err
	}
	if err := ctrl.Init(); err != nil {
		tr.Close()
		return nil, err
	}
	fw, err := ctrl.FirmwareVersion()
	if err != nil {
		tr.Close()
		return nil, err
	}
	return &Service{ctrl: ctrl, tr: tr, firmware: fw}, nil
}

func controllerConfig(rc config.RelayConfig) (relay.Config, error) {
	cfg := relay.Config{Board: relay.BoardModel(rc.Board)}
	if rc.TimingPreset != "" {
		p, err := relay.TimingPreset(rc.TimingPreset)
		if err != nil {
			return cfg, err
		}
		cfg.Timing = p
	}
	if rc.Verification != "" {
		pol, err := relay.PolicyForMode(relay.VerificationMode(rc.Verification))
		if err != nil {
			return cfg, err
		}
		cfg.Verification = pol
	}
	return cfg, nil
}

// Available reports whether a board is attached and responding.
func (s *Service) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl != nil
}

// Err returns the startup error for an offline service.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SetStateChangeCallback registers a function invoked after every
// successful write, with the fresh board snapshot.
func (s *Service) SetStateChangeCallback(cb func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = cb
}

// Status reads the full board snapshot. Offline services report
// Online=false and the startup error.
func (s *Service) Status() (Status, error) {
	s.mu.RLock()
	ctrl, fw, lastErr := s.ctrl, s.firmware, s.lastErr
	s.mu.RUnlock()

	if ctrl == nil {
		return Status{}, lastErr
	}
	states, err := ctrl.RelayStates()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:       true,
		Board:        ctrl.Spec(),
		States:       states,
		Timing:       ctrl.Timing(),
		Verification: ctrl.Policy().Mode,
		Firmware:     fw,
	}, nil
}

// SetRelay drives one relay to the desired state, verified per the active
// policy, and pushes the new snapshot to the change callback.
func (s *Service) SetRelay(relayNum int, on bool) error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.SetRelay(relayNum, on); err != nil {
		return err
	}
	s.notify()
	return nil
}

// SetAllOn turns every relay on with the board's bulk command.
func (s *Service) SetAllOn() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.SetAllOn(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// SetAllOff turns every relay off with the board's bulk command.
func (s *Service) SetAllOff() error {
	ctrl, err := s.controller()
	if err != nil {
		return err
	}
	if err := ctrl.SetAllOff(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Calibrate probes the timing ladder and persists the adopted preset so
// the next start runs at the calibrated speed.
func (s *Service) Calibrate(probeRelay int) (relay.TimingProfile, error) {
	ctrl, err := s.controller()
	if err != nil {
		return relay.TimingProfile{}, err
	}
	adopted, err := ctrl.Calibrate(probeRelay)
	if err != nil {
		return relay.TimingProfile{}, err
	}
	if err := persistPreset(adopted.Name); err != nil {
		log.Printf("Relay: adopted profile %q but failed to persist it: %v", adopted.Name, err)
	}
	s.notify()
	return adopted, nil
}

// Close releases the bus.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr == nil {
		return nil
	}
	err := s.tr.Close()
	s.ctrl, s.tr = nil, nil
	return err
}

func (s *Service) controller() (*relay.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctrl == nil {
		if s.lastErr != nil {
			return nil, s.lastErr
		}
		return nil, &relay.TransportError{Op: "relay service", Err: errServiceClosed}
	}
	return s.ctrl, nil
}

func (s *Service) notify() {
	s.mu.RLock()
	cb := s.onChange
	s.mu.RUnlock()
	if cb == nil {
		return
	}
	st, err := s.Status()
	if err != nil {
		log.Printf("Relay: state change snapshot failed: %v", err)
		return
	}
	cb(st)
}
