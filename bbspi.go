//go:build tinygo

package nrf24

import (
	"device"
	"machine"
)

// SPIbb is a bit-banged SPI bus hardcoded to mode 0, MSB first. It has no chip
// select, the Device drives CSN itself. Useful when the hardware SPI pins are
// taken or while debugging wiring with slow clocks.
type SPIbb struct {
	SCK machine.Pin
	SDO machine.Pin // MOSI, wired to the chip's MOSI.
	SDI machine.Pin // MISO, wired to the chip's MISO.
	// Delay is the number of nops in a quarter clock cycle.
	Delay uint32
}

// Configure sets up SCK and SDO as outputs driven low and SDI as input.
func (s *SPIbb) Configure() {
	s.SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDI.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	s.SCK.Low()
	s.SDO.Low()
	if s.Delay == 0 {
		s.Delay = 1
	}
}

// Tx matches the signature of machine.SPI.Tx. r may be nil, otherwise it must
// be as long as w. No error is ever returned.
func (s *SPIbb) Tx(w, r []byte) error {
	if r == nil {
		for _, b := range w {
			s.transfer(b)
		}
		return nil
	}
	for i, b := range w {
		r[i] = s.transfer(b)
	}
	return nil
}

// Transfer matches signature of machine.SPI.Transfer and sends a single byte.
func (s *SPIbb) Transfer(b byte) (byte, error) {
	return s.transfer(b), nil
}

//go:inline
func (s *SPIbb) transfer(b byte) (out byte) {
	for bit := 7; bit >= 0; bit-- {
		out |= b2u8(s.bitTransfer(b&(1<<bit) != 0)) << bit
	}
	return out
}

// bitTransfer sets SDO while SCK is low and samples SDI on the rising edge.
//
//go:inline
func (s *SPIbb) bitTransfer(b bool) bool {
	s.SDO.Set(b)
	s.delay()
	s.SCK.High()
	s.delay()
	in := s.SDI.Get()
	s.delay()
	s.SCK.Low()
	s.delay()
	return in
}

// delay represents a quarter of the clock cycle.
//
//go:inline
func (s *SPIbb) delay() {
	for i := uint32(0); i < s.Delay; i++ {
		device.Asm("nop")
	}
}

//go:inline
func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
