package relay

import "fmt"

// Wire-level command and register values for the Qwiic relay protocol.
// These must be preserved bit-for-bit for hardware compatibility.
const (
	cmdToggleBase  byte = 0x00 // + relay number (multi-relay boards)
	cmdStatusBase  byte = 0x04 // + relay number (multi-relay boards)
	cmdAllOff      byte = 0x0A
	cmdAllOn       byte = 0x0B
	cmdToggleAll   byte = 0x0C
	cmdChangeAddr  byte = 0xC7
	regVersion     byte = 0x04
	regSingleState byte = 0x05
	// Single-relay boards take the literal desired state as the command.
	cmdSingleOff byte = 0x00
	cmdSingleOn  byte = 0x01
)

// Legal range for 7-bit I2C addresses accepted by the change-address command.
const (
	AddrMin = 0x07
	AddrMax = 0x78
)

// CommandKind is a semantic operation tag resolved against a board model.
type CommandKind int

const (
	CmdToggleRelay CommandKind = iota
	CmdReadState
	CmdReadStatus
	CmdReadVersion
	CmdWriteAllOn
	CmdWriteAllOff
	CmdToggleAll
	CmdChangeAddress
	CmdWriteDirect // single-relay boards only: literal on/off write
)

// Command pairs a kind with its parameters. Relay is 1-based where used;
// State applies to CmdWriteDirect; Addr to CmdChangeAddress.
type Command struct {
	Kind  CommandKind
	Relay int
	State bool
	Addr  byte
}

// Resolve maps a semantic command to the verbatim byte sequence to put on
// the bus for the given board model. Pure lookup: no side effects, no state.
// Read commands resolve to the single register byte to read from.
func Resolve(spec BoardSpec, cmd Command) ([]byte, error) {
	multi := spec.RelayCount > 1

	switch cmd.Kind {
	case CmdToggleRelay:
		if !multi {
			return nil, &ConfigError{Reason: "toggle command is not supported on single-relay boards"}
		}
		if !spec.ValidRelay(cmd.Relay) {
			return nil, &InvalidRelayError{Relay: cmd.Relay, Count: spec.RelayCount}
		}
		return []byte{cmdToggleBase + byte(cmd.Relay)}, nil

	case CmdWriteDirect:
		if multi {
			return nil, &ConfigError{Reason: "direct on/off write is not supported on toggle-only boards"}
		}
		if cmd.State {
			return []byte{cmdSingleOn}, nil
		}
		return []byte{cmdSingleOff}, nil

	case CmdReadState, CmdReadStatus:
		if !multi {
			return []byte{regSingleState}, nil
		}
		if !spec.ValidRelay(cmd.Relay) {
			return nil, &InvalidRelayError{Relay: cmd.Relay, Count: spec.RelayCount}
		}
		return []byte{cmdStatusBase + byte(cmd.Relay)}, nil

	case CmdReadVersion:
		return []byte{regVersion}, nil

	case CmdWriteAllOn:
		if !multi {
			return []byte{cmdSingleOn}, nil
		}
		return []byte{cmdAllOn}, nil

	case CmdWriteAllOff:
		if !multi {
			return []byte{cmdSingleOff}, nil
		}
		return []byte{cmdAllOff}, nil

	case CmdToggleAll:
		if !multi {
			return nil, &ConfigError{Reason: "toggle-all is not supported on single-relay boards"}
		}
		return []byte{cmdToggleAll}, nil

	case CmdChangeAddress:
		if cmd.Addr < AddrMin || cmd.Addr > AddrMax {
			return nil, &ConfigError{Reason: fmt.Sprintf("I2C address must be between 0x%02X and 0x%02X, got 0x%02X", AddrMin, AddrMax, cmd.Addr)}
		}
		return []byte{cmdChangeAddr, cmd.Addr}, nil

	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown command kind %d", cmd.Kind)}
	}
}
