//go:build !tinygo

package nrf24

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphFreq is the SPI clock used by OpenPeriph. The chip accepts up to 10MHz.
const PeriphFreq = 8 * physic.MegaHertz

// PinFunc adapts a periph.io output pin to the level function New expects.
// Errors from the pin driver are dropped, the line is assumed to be valid
// once the pin was looked up successfully.
func PinFunc(p gpio.PinOut) func(bool) {
	return func(level bool) {
		p.Out(gpio.Level(level))
	}
}

// OpenPeriph initializes the periph.io host drivers and returns a Device on SPI
// port spiPort ("" selects the first available) with CE and CSN on the GPIO
// lines named cePin and csnPin. The chip select line is driven by the Device, not
// by the SPI driver. The caller closes the returned port when done.
func OpenPeriph(spiPort, cePin, csnPin string, cfg Config) (*Device, spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	ce := gpioreg.ByName(cePin)
	if ce == nil {
		return nil, nil, fmt.Errorf("nrf24: CE pin %q not found", cePin)
	}
	csn := gpioreg.ByName(csnPin)
	if csn == nil {
		return nil, nil, fmt.Errorf("nrf24: CSN pin %q not found", csnPin)
	}
	err := errors.Join(csn.Out(gpio.High), ce.Out(gpio.Low))
	if err != nil {
		return nil, nil, err
	}
	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, nil, err
	}
	conn, err := port.Connect(PeriphFreq, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return New(PinFunc(ce), PinFunc(csn), conn, cfg), port, nil
}
