package relay

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Transport is the bus boundary the controller drives. Each method is one
// synchronous bus transaction; pacing between transactions is the
// controller's job, not the transport's.
type Transport interface {
	// Write sends the resolved command bytes verbatim.
	Write(cmd []byte) error
	// ReadByte reads one byte from the given register.
	ReadByte(reg byte) (byte, error)
	Close() error
}

// TransportFactory builds a transport for a bus path and board address.
// Overridable in tests.
type TransportFactory func(bus string, addr uint16) (Transport, error)

// I2CTransport talks to a board directly over a Linux I2C bus via periph.
type I2CTransport struct {
	bus i2c.BusCloser
	dev i2c.Dev
}

// OpenI2C opens the named bus ("1", "/dev/i2c-1", ...) and binds the board
// address. host.Init is safe to call more than once.
func OpenI2C(bus string, addr uint16) (Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %s", bus)
	}
	return &I2CTransport{bus: b, dev: i2c.Dev{Bus: b, Addr: addr}}, nil
}

func (t *I2CTransport) Write(cmd []byte) error {
	return t.dev.Tx(cmd, nil)
}

func (t *I2CTransport) ReadByte(reg byte) (byte, error) {
	var buf [1]byte
	if err := t.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (t *I2CTransport) Close() error {
	return t.bus.Close()
}
