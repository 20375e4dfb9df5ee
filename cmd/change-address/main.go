// change-address permanently moves a relay board to a new I2C address.
// Use when stacking several boards on one bus so each gets a unique address.
//
// Build (to dist/):
//   One-off command: mkdir -p dist && go build -o dist/change-address ./cmd/change-address
//
// Usage:
//   go run ./cmd/change-address -addr=0x6D -new=0x6C -board=quad
//   dist/change-address -bus=1 -addr=0x18 -new=0x19 -board=single
//
// The change survives power cycles. Legal addresses are 0x07..0x78.

package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"

	"relaymate-utils/src/server/relay"
)

func main() {
	bus := flag.String("bus", "", "I2C bus name (empty = first available)")
	addr := flag.String("addr", "0x6D", "Current I2C address of the board")
	newAddr := flag.String("new", "", "New I2C address to assign (e.g. 0x6C)")
	board := flag.String("board", "quad", "Board model: single, dual_solid_state, quad, quad_solid_state")
	flag.Parse()

	if *newAddr == "" {
		log.Fatal("missing -new address")
	}

	current, err := parseAddr(*addr)
	if err != nil {
		log.Fatalf("addr: %v", err)
	}
	target, err := parseAddr(*newAddr)
	if err != nil {
		log.Fatalf("new: %v", err)
	}

	tr, err := relay.OpenI2C(*bus, current)
	if err != nil {
		log.Fatalf("open i2c: %v", err)
	}
	defer tr.Close()

	ctrl, err := relay.NewController(tr, relay.Config{Board: relay.BoardModel(*board)})
	if err != nil {
		log.Fatalf("controller: %v", err)
	}

	if err := ctrl.ChangeAddress(byte(target)); err != nil {
		log.Fatalf("change address: %v", err)
	}

	fmt.Printf("Board moved from 0x%02X to 0x%02X. Update the config file to match.\n", current, target)
}

func parseAddr(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(n), nil
}
