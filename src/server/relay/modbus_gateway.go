package relay

import (
	"encoding/binary"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// Gateway register map. The RS-485 bridge mirrors the Qwiic byte protocol
// through a small holding-register window: command bytes are packed one per
// register starting at the command window; reads select the target register
// first, then fetch the value window.
const (
	gwCommandWindow uint16 = 0x0000
	gwReadSelect    uint16 = 0x0010
	gwReadValue     uint16 = 0x0011
)

// GatewaySerialConfig carries the RS-485 line parameters.
type GatewaySerialConfig struct {
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
}

// DefaultGatewaySerial matches the bridge's factory settings.
func DefaultGatewaySerial() GatewaySerialConfig {
	return GatewaySerialConfig{BaudRate: 9600, DataBits: 8, Parity: "N", StopBits: 1, Timeout: 500 * time.Millisecond}
}

// ModbusHandler extends modbus.ClientHandler with connection control, so
// tests can substitute a mock for the RTU handler.
type ModbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type gatewayClientFactory func(handler modbus.ClientHandler) modbus.Client
type gatewayHandlerFactory func(port string, slave byte, cfg GatewaySerialConfig) (ModbusHandler, error)

func defaultGatewayHandler(port string, slave byte, cfg GatewaySerialConfig) (ModbusHandler, error) {
	h := modbus.NewRTUClientHandler(port)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = slave
	h.Timeout = cfg.Timeout
	return h, nil
}

// ModbusGateway drives a relay board that hangs off an RS-485 register
// bridge instead of a directly attached I2C bus.
type ModbusGateway struct {
	handler ModbusHandler
	client  modbus.Client
}

// OpenModbusGateway connects to the bridge on the given serial port. The
// slave ID selects the bridge on a shared RS-485 line.
func OpenModbusGateway(port string, slave byte, cfg GatewaySerialConfig) (Transport, error) {
	return openModbusGateway(port, slave, cfg, defaultGatewayHandler, modbus.NewClient)
}

func openModbusGateway(port string, slave byte, cfg GatewaySerialConfig, hf gatewayHandlerFactory, cf gatewayClientFactory) (Transport, error) {
	h, err := hf(port, slave, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "create gateway handler for %s", port)
	}
	if err := h.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connect gateway on %s", port)
	}
	return &ModbusGateway{handler: h, client: cf(h)}, nil
}

func (g *ModbusGateway) Write(cmd []byte) error {
	// One command byte per register, big-endian low byte.
	buf := make([]byte, len(cmd)*2)
	for i, b := range cmd {
		binary.BigEndian.PutUint16(buf[i*2:i*2+2], uint16(b))
	}
	_, err := g.client.WriteMultipleRegisters(gwCommandWindow, uint16(len(cmd)), buf)
	return err
}

func (g *ModbusGateway) ReadByte(reg byte) (byte, error) {
	if _, err := g.client.WriteSingleRegister(gwReadSelect, uint16(reg)); err != nil {
		return 0, err
	}
	raw, err := g.client.ReadHoldingRegisters(gwReadValue, 1)
	if err != nil {
		return 0, err
	}
	if len(raw) < 2 {
		return 0, errors.Errorf("gateway returned short read (%d bytes)", len(raw))
	}
	return raw[1], nil
}

func (g *ModbusGateway) Close() error {
	return g.handler.Close()
}
