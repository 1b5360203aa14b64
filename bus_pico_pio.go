//go:build pico && !nrfnopio

package nrf24

import (
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// PicoPins is the wiring of an nRF24L01 module to a Raspberry Pi Pico.
type PicoPins struct {
	SCK, SDO, SDI machine.Pin
	CE, CSN       machine.Pin
}

// DefaultPicoPins wires the module to the SPI0 pins of the Pico header.
var DefaultPicoPins = PicoPins{
	SCK: machine.GPIO18,
	SDO: machine.GPIO19,
	SDI: machine.GPIO16,
	CE:  machine.GPIO20,
	CSN: machine.GPIO17,
}

// NewPicoDevice returns a Device whose SPI bus is driven by a PIO state
// machine, leaving the hardware SPI peripherals free for other devices.
func NewPicoDevice(pins PicoPins, cfg Config) (*Device, error) {
	pins.CE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CSN.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pins.CE.Low()
	pins.CSN.High()
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	spi, err := piolib.NewSPI(sm, machine.SPIConfig{
		Frequency: 8_000_000,
		SCK:       pins.SCK,
		SDO:       pins.SDO,
		SDI:       pins.SDI,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	return New(pins.CE.Set, pins.CSN.Set, picobus{spi: spi}, cfg), nil
}

type picobus struct {
	spi *piolib.SPI
}

// Tx discards the response into a scratch slot when r is nil.
func (b picobus) Tx(w, r []byte) error {
	if r == nil {
		var discard [1 + MaxPayload]byte
		r = discard[:len(w)]
	}
	return b.spi.Tx(w, r)
}
