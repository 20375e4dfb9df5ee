// calibrate-timing walks the timing preset ladder against an attached relay
// board and prints the fastest profile that passes verified switching.
//
// Build (to dist/):
//   One-off command: mkdir -p dist && go build -o dist/calibrate-timing ./cmd/calibrate-timing
//
// Usage:
//   go run ./cmd/calibrate-timing -board=quad -addr=0x6D
//   go run ./cmd/calibrate-timing -transport=modbus -bus=/dev/ttyS7 -slave=1 -board=quad
//   dist/calibrate-timing -relay=2
//
// The adopted profile is printed but not persisted; copy it into the config
// file or run calibration through the daemon's API to persist it.

package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"relaymate-utils/src/server/relay"
)

func main() {
	transport := flag.String("transport", "i2c", "Transport: i2c or modbus")
	bus := flag.String("bus", "", "I2C bus name (empty = first available) or serial port for modbus")
	addr := flag.String("addr", "0x6D", "I2C address of the board (e.g. 0x6D)")
	slave := flag.Int("slave", 1, "Modbus slave ID of the RS-485 bridge")
	board := flag.String("board", "quad", "Board model: single, dual_solid_state, quad, quad_solid_state")
	mode := flag.String("verification", "strict", "Verification mode: strict or lenient")
	probe := flag.Int("relay", 1, "Relay to cycle during calibration")
	flag.Parse()

	address, err := parseAddr(*addr)
	if err != nil {
		log.Fatalf("addr: %v", err)
	}

	tr, err := openTransport(*transport, *bus, address, byte(*slave))
	if err != nil {
		log.Fatalf("open %s transport: %v", *transport, err)
	}
	defer tr.Close()

	policy, err := relay.PolicyForMode(relay.VerificationMode(*mode))
	if err != nil {
		log.Fatalf("verification: %v", err)
	}

	ctrl, err := relay.NewController(tr, relay.Config{
		Board:        relay.BoardModel(*board),
		Verification: policy,
	})
	if err != nil {
		log.Fatalf("controller: %v", err)
	}
	if err := ctrl.Init(); err != nil {
		log.Fatalf("init: %v", err)
	}

	start := time.Now()
	adopted, err := ctrl.Calibrate(*probe)
	if err != nil {
		log.Fatalf("calibration failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
	}

	fmt.Printf("Adopted profile %q in %s\n", adopted.Name, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  write delay:        %s\n", adopted.WriteDelay)
	fmt.Printf("  state change delay: %s\n", adopted.StateChangeDelay)
	fmt.Printf("  init delay:         %s\n", adopted.InitDelay)
	fmt.Printf("Set timing_preset: %s in the config file to keep it.\n", adopted.Name)
}

func openTransport(kind, bus string, addr uint16, slave byte) (relay.Transport, error) {
	switch kind {
	case "modbus":
		return relay.OpenModbusGateway(bus, slave, relay.DefaultGatewaySerial())
	case "i2c":
		return relay.OpenI2C(bus, addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func parseAddr(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(n), nil
}
