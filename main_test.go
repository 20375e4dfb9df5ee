package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"relaymate-utils/src/server/relay"
	"relaymate-utils/src/server/relayio"
)

type mockRelayService struct {
	status      relayio.Status
	relayCalls  []string
	allOnCalls  int
	allOffCalls int
	setRelayErr error
	calibrated  relay.TimingProfile
}

func (m *mockRelayService) Status() (relayio.Status, error) { return m.status, nil }

func (m *mockRelayService) SetRelay(num int, on bool) error {
	if m.setRelayErr != nil {
		return m.setRelayErr
	}
	state := "off"
	if on {
		state = "on"
	}
	m.relayCalls = append(m.relayCalls, fmt.Sprintf("%s-%d", state, num))
	return nil
}

func (m *mockRelayService) SetAllOn() error  { m.allOnCalls++; return nil }
func (m *mockRelayService) SetAllOff() error { m.allOffCalls++; return nil }

func (m *mockRelayService) SetStateChangeCallback(cb func(relayio.Status)) {}

func (m *mockRelayService) Calibrate(probeRelay int) (relay.TimingProfile, error) {
	return m.calibrated, nil
}

func newTestApp() (*App, *mockRelayService) {
	svc := &mockRelayService{
		status: relayio.Status{
			Online: true,
			Board:  relay.BoardTable[relay.QuadRelay],
			States: []bool{false, true, false, false},
			Timing: relay.StandardTiming(),
		},
		calibrated: relay.SolidStateTiming(),
	}
	return &App{svc: svc}, svc
}

func TestHandlers(t *testing.T) {
	app, svc := newTestApp()
	router := newRouter(app)

	t.Run("Root", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Root handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		var out map[string]string
		if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if out["service"] != "relaymate-api" {
			t.Errorf("Expected service relaymate-api, got %s", out["service"])
		}
	})

	t.Run("Get relays", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/relays", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Relays handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		var out struct {
			Status       relayio.Status `json:"status"`
			TCPConnected bool           `json:"tcpConnected"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !out.Status.Online {
			t.Error("Expected online status")
		}
		if len(out.Status.States) != 4 || !out.Status.States[1] {
			t.Errorf("Unexpected states: %v", out.Status.States)
		}
		if out.TCPConnected {
			t.Error("No TCP server configured, should report disconnected")
		}
	})

	t.Run("Set relay on", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/relays/2/on", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Set relay returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		if len(svc.relayCalls) != 1 || svc.relayCalls[0] != "on-2" {
			t.Errorf("Expected one on-2 call, got %v", svc.relayCalls)
		}
	})

	t.Run("Set relay off", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/relays/4/off", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Set relay returned wrong status code: got %v", rr.Code)
		}
		if svc.relayCalls[len(svc.relayCalls)-1] != "off-4" {
			t.Errorf("Expected off-4 call, got %v", svc.relayCalls)
		}
	})

	t.Run("Invalid relay is a client error", func(t *testing.T) {
		svc.setRelayErr = &relay.InvalidRelayError{Relay: 9, Count: 4}
		defer func() { svc.setRelayErr = nil }()

		req, _ := http.NewRequest("POST", "/api/relays/9/on", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for invalid relay, got %v", rr.Code)
		}
	})

	t.Run("Hardware fault is a server error", func(t *testing.T) {
		svc.setRelayErr = &relay.VerificationError{Relay: 1, Expected: true, Actual: false, Attempts: 4}
		defer func() { svc.setRelayErr = nil }()

		req, _ := http.NewRequest("POST", "/api/relays/1/on", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500 for verification failure, got %v", rr.Code)
		}
	})

	t.Run("Bulk commands", func(t *testing.T) {
		for _, path := range []string{"/api/relays/all-on", "/api/relays/all-off"} {
			req, _ := http.NewRequest("POST", path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Errorf("%s returned wrong status code: got %v", path, rr.Code)
			}
		}
		if svc.allOnCalls != 1 || svc.allOffCalls != 1 {
			t.Errorf("Expected one all-on and one all-off call, got %d/%d", svc.allOnCalls, svc.allOffCalls)
		}
	})

	t.Run("Calibrate", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/relays/calibrate", strings.NewReader(`{"relay":2}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Calibrate returned wrong status code: got %v", rr.Code)
		}
		var out struct {
			Status  string              `json:"status"`
			Profile relay.TimingProfile `json:"profile"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if out.Profile.Name != "solid_state" {
			t.Errorf("Expected adopted profile solid_state, got %s", out.Profile.Name)
		}
	})
}
