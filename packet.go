package nrf24

import (
	"errors"
	"log/slog"

	"github.com/soypat/nrf24/nrfreg"
)

var (
	// ErrPayloadTooLarge is returned by Send before any bus traffic.
	ErrPayloadTooLarge = errors.New("nrf24: payload larger than 32 bytes")
	// ErrNoAck is returned by Send when the packet was not acknowledged.
	ErrNoAck = errors.New("nrf24: packet not acknowledged")
	// ErrPipe is returned for Rx pipe numbers above 5.
	ErrPipe = errors.New("nrf24: pipe out of range [0,5]")
	// ErrAddress is returned for an address whose length does not fit the register.
	ErrAddress = errors.New("nrf24: bad address length for pipe")
)

// FlushRx empties the Rx FIFO.
func (d *Device) FlushRx() error {
	_, err := d.command(nrfreg.FLUSH_RX)
	return err
}

// FlushTx empties the Tx FIFO.
func (d *Device) FlushTx() error {
	_, err := d.command(nrfreg.FLUSH_TX)
	return err
}

// ReadRxPayloadWidth returns the width of the payload at the head of the Rx FIFO.
// Values outside [0,32] mean there is no valid payload, the Rx FIFO should be flushed.
func (d *Device) ReadRxPayloadWidth() (int, error) {
	d.regTx[0] = nrfreg.R_RX_PL_WID
	d.regTx[1] = nrfreg.NOP
	err := d.exchange(d.regTx[:2], d.regRx[:2])
	if err != nil {
		return 0, err
	}
	return int(d.regRx[1]), nil
}

// SetChannel sets the RF channel, the frequency being 2400+channel MHz.
// Regulatory limits on the channel are the caller's responsibility.
func (d *Device) SetChannel(channel int) error {
	return d.WriteRegister(nrfreg.RF_CH, uint8(channel))
}

// SetRxAddress sets the address of an Rx pipe, LSByte first. Pipes 0 and 1 take
// a full 5 byte address. Pipes 2 to 5 share the 4 most significant bytes of
// pipe 1's address and take only their 1 byte suffix.
func (d *Device) SetRxAddress(pipe uint8, addr []byte) error {
	if err := checkPipeAddr(pipe, addr); err != nil {
		return err
	}
	return d.writeRegisterN(nrfreg.RxAddrReg(pipe), addr)
}

// SetTxAddress sets the 5 byte transmit address, LSByte first. For auto
// acknowledgment to work Rx pipe 0 must have the same address.
func (d *Device) SetTxAddress(addr []byte) error {
	if len(addr) != nrfreg.AddrLen {
		return ErrAddress
	}
	return d.writeRegisterN(nrfreg.TX_ADDR, addr)
}

func checkPipeAddr(pipe uint8, addr []byte) error {
	switch {
	case pipe >= nrfreg.NumPipes:
		return ErrPipe
	case pipe <= 1 && len(addr) != nrfreg.AddrLen:
		return ErrAddress
	case pipe > 1 && len(addr) != 1:
		return ErrAddress
	}
	return nil
}

// EnableDynamicPayload enables dynamic payload width on pipe. Both the
// FEATURE.EN_DPL bit and the pipe's DYNPD bit are set.
func (d *Device) EnableDynamicPayload(pipe uint8) error {
	if pipe >= nrfreg.NumPipes {
		return ErrPipe
	}
	err := d.SetBit(nrfreg.FEATURE, nrfreg.EN_DPL)
	if err != nil {
		return err
	}
	return d.SetBit(nrfreg.DYNPD, pipe)
}

// Send transmits data and reports whether it was acknowledged. Payloads over
// 32 bytes are rejected with ErrPayloadTooLarge before touching the bus. An
// unacknowledged packet returns ErrNoAck.
//
// Whatever the chip's role was before Send it is restored before returning,
// on success and failure alike: a listening chip is switched back to receive
// role with CE high, a transmitting chip is left with CE low.
func (d *Device) Send(data []byte) (err error) {
	if len(data) > MaxPayload {
		return ErrPayloadTooLarge
	}
	d.ce(false)
	prev, err := d.role()
	if err != nil {
		return err
	}
	defer func() {
		rerr := d.restoreRole(prev)
		if rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	if prev == roleReceiving {
		// Loading the Tx FIFO is undefined while in receive role.
		err = d.ClearBit(nrfreg.CONFIG, nrfreg.PRIM_RX)
		if err != nil {
			return err
		}
	}
	err = d.FlushTx()
	if err != nil {
		return err
	}
	d.payTx[0] = nrfreg.W_TX_PAYLOAD
	n := copy(d.payTx[1:], data)
	err = d.exchange(d.payTx[:1+n], nil)
	if err != nil {
		return err
	}
	// Pulse CE to transmit the packet and return to standby.
	d.ce(true)
	d.sleep(cePulse)
	d.ce(false)

	sent, err := d.waitAck()
	if err != nil {
		return err
	}
	if !sent {
		d.debug("Send:no-ack", slog.Int("len", n), slog.String("role", prev.String()))
		if d.lastStatus.MaxRetries() {
			// MAX_RT must be cleared before the chip transmits again.
			if err = d.ClearBit(nrfreg.STATUS, nrfreg.MAX_RT); err != nil {
				return err
			}
		}
		return ErrNoAck
	}
	d.trace("Send:ack", slog.Int("len", n))
	return d.ClearBit(nrfreg.STATUS, nrfreg.TX_DS)
}

// waitAck waits for the outcome of a transmission and reports whether
// STATUS.TX_DS was set.
func (d *Device) waitAck() (bool, error) {
	if d.ackTimeout <= 0 {
		d.sleep(ackSettle)
		status, err := d.Status()
		return status.DataSent(), err
	}
	deadline := d.now().Add(d.ackTimeout)
	for {
		status, err := d.Status()
		if err != nil {
			return false, err
		}
		if status.DataSent() {
			return true, nil
		}
		if status.MaxRetries() || !d.now().Before(deadline) {
			return false, nil
		}
		d.sleep(ackPollInterval)
	}
}

// Receive returns the packet at the head of the Rx FIFO as a length prefixed
// Frame appended to dst[:0]. If no packet is pending (STATUS.RX_DR clear) it
// returns a zero length Frame and a nil error without reading the FIFO.
//
// CE is dropped while the payload is read and RX_DR cleared, then raised again
// to resume listening.
func (d *Device) Receive(dst []byte) (Frame, error) {
	ready, err := d.CheckBit(nrfreg.STATUS, nrfreg.RX_DR)
	if err != nil || !ready {
		return nil, err
	}
	d.ce(false)
	defer d.ce(true)
	width, err := d.ReadRxPayloadWidth()
	if err != nil {
		return nil, err
	}
	if width > MaxPayload {
		d.logerr("Receive:bad-width", slog.Int("width", width))
		err = errors.Join(d.FlushRx(), d.ClearBit(nrfreg.STATUS, nrfreg.RX_DR))
		if err != nil {
			return nil, err
		}
		return nil, ErrPayloadWidth
	}
	d.payTx[0] = nrfreg.R_RX_PAYLOAD
	for i := 1; i <= width; i++ {
		d.payTx[i] = nrfreg.NOP
	}
	err = d.exchange(d.payTx[:1+width], d.payRx[:1+width])
	if err != nil {
		return nil, err
	}
	// First byte clocked back is STATUS, replace it with the frame length.
	d.payRx[0] = byte(1 + width)
	frame := Frame(append(dst[:0], d.payRx[:1+width]...))
	err = d.ClearBit(nrfreg.STATUS, nrfreg.RX_DR)
	if err != nil {
		return nil, err
	}
	d.trace("Receive", slog.Int("width", width))
	return frame, nil
}
