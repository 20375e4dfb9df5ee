package tcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"relaymate-utils/src/server/relayio"
)

// RelayService is the slice of the relay service the TCP layer needs.
// Narrowed to an interface so tests can drive the server with a mock.
type RelayService interface {
	Status() (relayio.Status, error)
	SetRelay(relay int, on bool) error
	SetAllOn() error
	SetAllOff() error
	SetStateChangeCallback(cb func(relayio.Status))
}

// TCPServer streams relay state to a single automation client and accepts
// batched write commands from it.
type TCPServer struct {
	listener   net.Listener
	clientConn *ClientConnection
	mu         sync.RWMutex
	svc        RelayService
	stopChan   chan struct{}
	port       string
	version    string
	localOnly  bool // If true, only accept connections from localhost
}

// ClientConnection represents a connected TCP client
type ClientConnection struct {
	conn    net.Conn
	encoder *json.Encoder
	mu      sync.Mutex
}

// StateUpdateMessage is sent to TCP clients
type StateUpdateMessage struct {
	Type   string         `json:"type"`
	Status relayio.Status `json:"status"`
}

// WelcomeMessage is sent to clients when they connect
type WelcomeMessage struct {
	Type        string `json:"type"`
	Server      string `json:"server"`
	Version     string `json:"version,omitempty"`
	Protocol    string `json:"protocol"`
	Description string `json:"description"`
}

// WriteCommandItem represents a single command in the commands array
type WriteCommandItem struct {
	Type  string `json:"type"` // "relay-on", "relay-off", "all-on", "all-off"
	Relay int    `json:"relay,omitempty"`
}

// WriteCommand is received from TCP clients - always contains an array of commands
type WriteCommand struct {
	Type     string             `json:"type"`     // Always "write"
	Commands []WriteCommandItem `json:"commands"` // Array of individual commands
}

// CommandResult reports the outcome of one command in a batch.
type CommandResult struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// WriteResponse is sent back to TCP clients
type WriteResponse struct {
	Type        string          `json:"type"`                  // "write-response"
	Status      string          `json:"status"`                // "ok" or "error"
	Results     []CommandResult `json:"results,omitempty"`     // Results for each command
	Message     string          `json:"message,omitempty"`     // Error message if status is "error"
	FailedIndex int             `json:"failedIndex,omitempty"` // Index of failed command
}

// NewTCPServer creates a new TCP server instance
func NewTCPServer(port string, svc RelayService, version string, serveExternally bool) *TCPServer {
	return &TCPServer{
		svc:       svc,
		stopChan:  make(chan struct{}),
		port:      port,
		version:   version,
		localOnly: !serveExternally,
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	var addr string
	if s.localOnly {
		addr = "127.0.0.1:" + s.port
	} else {
		addr = "0.0.0.0:" + s.port
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server on %s: %v", addr, err)
	}

	s.listener = listener
	if s.localOnly {
		log.Printf("TCP server listening on %s (localhost only)", addr)
	} else {
		log.Printf("TCP server listening on %s (all interfaces)", addr)
	}

	// Push a fresh snapshot the moment any write lands
	s.svc.SetStateChangeCallback(s.onStateChange)

	go s.acceptLoop()
	go s.updateLoop()

	return nil
}

// onStateChange is called immediately after a successful relay write
func (s *TCPServer) onStateChange(st relayio.Status) {
	s.mu.RLock()
	clientConn := s.clientConn
	s.mu.RUnlock()

	if clientConn != nil {
		s.sendUpdate(clientConn, st)
	}
}

// Stop stops the TCP server
func (s *TCPServer) Stop() {
	close(s.stopChan)
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	if s.clientConn != nil {
		s.clientConn.conn.Close()
		s.clientConn = nil
	}
	s.mu.Unlock()
}

// IsConnected returns whether a TCP client is currently connected
func (s *TCPServer) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientConn != nil
}

// acceptLoop accepts incoming connections
func (s *TCPServer) acceptLoop() {
	for {
		select {
		case <-s.stopChan:
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.stopChan:
					return
				default:
					log.Printf("TCP accept error: %v", err)
					continue
				}
			}

			// Verify client is from localhost if localOnly is enabled
			remoteAddr := conn.RemoteAddr().(*net.TCPAddr)
			if s.localOnly {
				if !remoteAddr.IP.IsLoopback() && remoteAddr.IP.String() != "127.0.0.1" {
					log.Printf("TCP connection rejected: non-localhost IP %s", remoteAddr.IP.String())
					conn.Close()
					continue
				}
			}

			// Check if already have a client
			s.mu.Lock()
			if s.clientConn != nil {
				log.Printf("TCP connection rejected: client already connected")
				conn.Close()
				s.mu.Unlock()
				continue
			}

			// Accept the connection
			clientConn := &ClientConnection{
				conn:    conn,
				encoder: json.NewEncoder(conn),
			}
			s.clientConn = clientConn
			s.mu.Unlock()

			log.Printf("TCP client connected from %s", remoteAddr.String())

			// Send welcome message to identify server
			s.sendWelcomeMessage(clientConn)

			// Handle client in separate goroutine
			go s.handleClient(clientConn)
		}
	}
}

// handleClient handles communication with a connected client
func (s *TCPServer) handleClient(clientConn *ClientConnection) {
	defer func() {
		s.mu.Lock()
		wasConnected := s.clientConn == clientConn
		if wasConnected {
			s.clientConn = nil
		}
		s.mu.Unlock()
		clientConn.conn.Close()
		log.Printf("TCP client disconnected")

		// When the automation client disconnects, drop every relay to
		// its de-energized state
		if wasConnected {
			log.Printf("Automation client disconnected - switching all relays off")
			if err := s.svc.SetAllOff(); err != nil {
				log.Printf("Error switching relays to safe state: %v", err)
			}
		}
	}()

	scanner := bufio.NewScanner(clientConn.conn)
	for scanner.Scan() {
		var cmd WriteCommand
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			log.Printf("TCP: failed to parse command: %v", err)
			continue
		}

		// Process write command (always expects array of commands)
		if cmd.Type != "write" {
			log.Printf("TCP: unknown message type: %s", cmd.Type)
			continue
		}

		s.processWriteCommand(&cmd, clientConn)
	}

	if err := scanner.Err(); err != nil {
		log.Printf("TCP: client read error: %v", err)
	}
}

// processWriteCommand runs a batch of relay commands in order. A failure
// does not stop the batch: every command gets a result so the client can
// tell which ones landed.
func (s *TCPServer) processWriteCommand(cmd *WriteCommand, clientConn *ClientConnection) {
	if len(cmd.Commands) == 0 {
		response := WriteResponse{
			Type:    "write-response",
			Status:  "error",
			Message: "no commands in batch",
		}
		clientConn.sendMessage(response)
		return
	}

	results := make([]CommandResult, len(cmd.Commands))
	for i, item := range cmd.Commands {
		var err error
		switch item.Type {
		case "relay-on":
			err = s.svc.SetRelay(item.Relay, true)
		case "relay-off":
			err = s.svc.SetRelay(item.Relay, false)
		case "all-on":
			err = s.svc.SetAllOn()
		case "all-off":
			err = s.svc.SetAllOff()
		default:
			err = fmt.Errorf("unknown command type %q", item.Type)
		}

		if err != nil {
			results[i] = CommandResult{Index: i, Status: "error", Message: err.Error()}
		} else {
			results[i] = CommandResult{Index: i, Status: "ok"}
		}
	}

	response := WriteResponse{
		Type:    "write-response",
		Status:  "ok",
		Results: results,
	}

	// Check if any command failed
	for i, result := range results {
		if result.Status == "error" {
			response.Status = "error"
			response.FailedIndex = i
			response.Message = result.Message
			break
		}
	}

	clientConn.sendMessage(response)
}

// updateLoop sends periodic updates (500ms) with the full board snapshot.
// Immediate updates on writes are handled by the onStateChange callback.
func (s *TCPServer) updateLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.RLock()
			clientConn := s.clientConn
			s.mu.RUnlock()

			if clientConn == nil {
				continue
			}

			st, err := s.svc.Status()
			if err != nil {
				log.Printf("TCP: status read failed: %v", err)
				continue
			}
			s.sendUpdate(clientConn, st)
		}
	}
}

// sendWelcomeMessage sends a welcome/identification message to newly connected client
func (s *TCPServer) sendWelcomeMessage(clientConn *ClientConnection) {
	msg := WelcomeMessage{
		Type:        "welcome",
		Server:      "RelayMate TCP Server",
		Version:     s.version,
		Protocol:    "JSON",
		Description: "RelayMate relay board TCP server - sends state updates and accepts write commands",
	}

	if err := clientConn.sendMessage(msg); err != nil {
		log.Printf("TCP: failed to send welcome message: %v", err)
	}
}

// sendUpdate sends a board snapshot to the TCP client
func (s *TCPServer) sendUpdate(clientConn *ClientConnection, st relayio.Status) {
	msg := StateUpdateMessage{
		Type:   "state-update",
		Status: st,
	}

	if err := clientConn.sendMessage(msg); err != nil {
		log.Printf("TCP: failed to send update: %v", err)
	}
}

func (c *ClientConnection) sendMessage(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.Encode(msg)
}
