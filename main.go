package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"relaymate-utils/src/server/config"
	"relaymate-utils/src/server/discovery"
	"relaymate-utils/src/server/relay"
	"relaymate-utils/src/server/relayio"
	"relaymate-utils/src/server/tcp"
	"relaymate-utils/src/server/util"

	"github.com/gorilla/mux"
)

const version = "1.0.0"

// relayService is the surface the HTTP handlers drive. *relayio.Service
// implements it; tests substitute a mock.
type relayService interface {
	tcp.RelayService
	Calibrate(probeRelay int) (relay.TimingProfile, error)
}

type App struct {
	svc       relayService
	tcpServer *tcp.TCPServer
}

func NewApp() *App {
	svc := relayio.InitializeService()
	tcpServer := tcp.NewTCPServer("9081", svc, version, config.GetConfig().ServeExternally)
	if err := tcpServer.Start(); err != nil {
		log.Printf("Warning: Failed to start TCP server: %v", err)
	}

	return &App{
		svc:       svc,
		tcpServer: tcpServer,
	}
}

func (app *App) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service":  "relaymate-api",
		"version":  version,
		"device":   discovery.GetDeviceType(),
		"deviceId": config.GetDeviceID(),
	})
}

func (app *App) getRelaysHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	tcpConnected := app.tcpServer != nil && app.tcpServer.IsConnected()

	st, err := app.svc.Status()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":        err.Error(),
			"tcpConnected": tcpConnected,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       st,
		"tcpConnected": tcpConnected,
	})
}

// writesBlocked rejects frontend writes while an automation client owns the
// board over TCP.
func (app *App) writesBlocked(w http.ResponseWriter) bool {
	if app.tcpServer != nil && app.tcpServer.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "TCP client is connected, frontend controls are disabled",
		})
		return true
	}
	return false
}

func (app *App) setRelayHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if app.writesBlocked(w) {
		return
	}

	vars := mux.Vars(r)
	num, err := strconv.Atoi(vars["num"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid relay number"})
		return
	}

	on := strings.HasSuffix(r.URL.Path, "/on")
	if err := app.svc.SetRelay(num, on); err != nil {
		w.WriteHeader(errorStatus(err))
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (app *App) bulkHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if app.writesBlocked(w) {
		return
	}

	var err error
	if strings.HasSuffix(r.URL.Path, "/all-on") {
		err = app.svc.SetAllOn()
	} else {
		err = app.svc.SetAllOff()
	}
	if err != nil {
		w.WriteHeader(errorStatus(err))
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (app *App) calibrateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if app.writesBlocked(w) {
		return
	}

	probe := config.GetRelayConfig().ProbeRelay
	if probe == 0 {
		probe = 1
	}
	var req struct {
		Relay int `json:"relay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Relay != 0 {
		probe = req.Relay
	}

	adopted, err := app.svc.Calibrate(probe)
	if err != nil {
		w.WriteHeader(errorStatus(err))
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"profile": adopted,
	})
}

// errorStatus maps relay errors onto HTTP codes: caller mistakes are 400,
// everything the hardware did wrong is 500.
func errorStatus(err error) int {
	var invalidRelay *relay.InvalidRelayError
	var badConfig *relay.ConfigError
	if errors.As(err, &invalidRelay) || errors.As(err, &badConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func newRouter(app *App) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", app.rootHandler).Methods("GET")
	r.HandleFunc("/api/relays", app.getRelaysHandler).Methods("GET")
	r.HandleFunc("/api/relays/all-on", app.bulkHandler).Methods("POST")
	r.HandleFunc("/api/relays/all-off", app.bulkHandler).Methods("POST")
	r.HandleFunc("/api/relays/calibrate", app.calibrateHandler).Methods("POST")
	r.HandleFunc("/api/relays/{num:[0-9]+}/on", app.setRelayHandler).Methods("POST")
	r.HandleFunc("/api/relays/{num:[0-9]+}/off", app.setRelayHandler).Methods("POST")

	return r
}

func main() {
	os.Args[0] = "relaymate-utils"

	app := NewApp()
	r := newRouter(app)

	port := "9080"
	if p := util.LoadEnvLocal("RELAYMATE_HTTP_PORT"); p != "" {
		port = p
	}

	fmt.Println("RelayMate Utils (relay API) starting on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
