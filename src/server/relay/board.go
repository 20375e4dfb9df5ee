package relay

import "fmt"

// BoardModel identifies one of the supported Qwiic relay board families.
type BoardModel string

const (
	SingleRelay    BoardModel = "single"
	DualSolidState BoardModel = "dual_solid_state"
	QuadRelay      BoardModel = "quad"
	QuadSolidState BoardModel = "quad_solid_state"
)

// BoardSpec describes the fixed hardware characteristics of a board model.
type BoardSpec struct {
	Model      BoardModel `json:"model"`
	RelayCount int        `json:"relayCount"`
	SolidState bool       `json:"solidState"`
	// Addresses lists the I2C addresses the board can appear at
	// (default and jumper-closed).
	Addresses []uint16 `json:"addresses"`
}

var BoardTable = map[BoardModel]BoardSpec{
	SingleRelay:    {Model: SingleRelay, RelayCount: 1, SolidState: false, Addresses: []uint16{0x18, 0x19}},
	DualSolidState: {Model: DualSolidState, RelayCount: 2, SolidState: true, Addresses: []uint16{0x0A, 0x0B}},
	QuadRelay:      {Model: QuadRelay, RelayCount: 4, SolidState: false, Addresses: []uint16{0x6D, 0x6C}},
	QuadSolidState: {Model: QuadSolidState, RelayCount: 4, SolidState: true, Addresses: []uint16{0x08, 0x09}},
}

// LookupBoard resolves a model name to its spec.
func LookupBoard(model BoardModel) (BoardSpec, error) {
	spec, ok := BoardTable[model]
	if !ok {
		return BoardSpec{}, &ConfigError{Reason: fmt.Sprintf("unknown board model %q", model)}
	}
	return spec, nil
}

// HasAddress reports whether addr is one of the board's documented addresses.
func (s BoardSpec) HasAddress(addr uint16) bool {
	for _, a := range s.Addresses {
		if a == addr {
			return true
		}
	}
	return false
}

// ValidRelay reports whether n is a usable relay index on this board.
func (s BoardSpec) ValidRelay(n int) bool {
	return n >= 1 && n <= s.RelayCount
}
