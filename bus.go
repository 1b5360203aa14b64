package nrf24

// SPI is the full duplex transfer primitive the chip is wired to. Tx clocks
// len(w) bytes out while capturing the same number of bytes into r. r may be
// nil when the captured bytes are not needed. Tx must not touch the chip select
// line, the Device drives it.
//
// machine.SPI on TinyGo, spi.Conn from periph.io and SPIbb all implement SPI.
type SPI interface {
	Tx(w, r []byte) error
}

type outputPin func(bool)

// exchange performs one SPI command. CSN is asserted for exactly the duration
// of the transfer and released on every return path.
func (d *Device) exchange(w, r []byte) (err error) {
	d.csn(false)
	defer d.csn(true)
	err = d.spi.Tx(w, r)
	if err == nil && len(r) > 0 {
		d.lastStatus = Status(r[0])
	}
	d.traceTx(w, r)
	return err
}

// command sends a single byte command with no operands and returns the STATUS
// register clocked back by the chip.
func (d *Device) command(cmd byte) (Status, error) {
	d.regTx[0] = cmd
	err := d.exchange(d.regTx[:1], d.regRx[:1])
	if err != nil {
		return 0, err
	}
	return Status(d.regRx[0]), nil
}

// LastStatus returns the STATUS register value clocked back during the last
// transaction that captured the chip's response.
func (d *Device) LastStatus() Status { return d.lastStatus }
