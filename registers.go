package nrf24

import (
	"errors"
	"time"

	"github.com/soypat/nrf24/nrfreg"
	"golang.org/x/exp/constraints"
)

var (
	// ErrBitRange is returned for bit positions above 7.
	ErrBitRange = errors.New("nrf24: bit position out of range [0,7]")
	// ErrStatusSet is returned by SetBit on STATUS, which has no settable bits.
	ErrStatusSet = errors.New("nrf24: STATUS bits cannot be set, use ClearBit")
	// ErrAddressWidth is returned by SetAddressWidth for widths outside [3,5].
	ErrAddressWidth = errors.New("nrf24: address width out of range [3,5]")
	// ErrRetransmit is returned by SetRetransmit for unsupported count or delay.
	ErrRetransmit = errors.New("nrf24: retransmit count or delay out of range")
	// ErrPayloadWidth reports a payload width outside [0,32], either requested
	// by the caller or reported by the chip for a corrupt Rx FIFO head.
	ErrPayloadWidth = errors.New("nrf24: payload width out of range [0,32]")
)

// ReadRegister returns the value of the single byte register addr.
func (d *Device) ReadRegister(addr uint8) (uint8, error) {
	d.regTx[0] = nrfreg.R_REGISTER | addr&nrfreg.REGISTER_MASK
	d.regTx[1] = nrfreg.NOP
	err := d.exchange(d.regTx[:2], d.regRx[:2])
	if err != nil {
		return 0, err
	}
	return d.regRx[1], nil
}

// WriteRegister sets the single byte register addr to value.
func (d *Device) WriteRegister(addr, value uint8) error {
	d.regTx[0] = nrfreg.W_REGISTER | addr&nrfreg.REGISTER_MASK
	d.regTx[1] = value
	return d.exchange(d.regTx[:2], nil)
}

// CheckBit reports whether bit of register addr is set.
func (d *Device) CheckBit(addr, bit uint8) (bool, error) {
	if bit > 7 {
		return false, ErrBitRange
	}
	v, err := d.ReadRegister(addr)
	return hasBit(v, bit), err
}

// SetBit sets bit of register addr leaving other bits untouched.
// STATUS has no settable bits: its flags are write-1-to-clear and the rest
// is read only, so SetBit on STATUS returns ErrStatusSet without bus traffic.
func (d *Device) SetBit(addr, bit uint8) error {
	if bit > 7 {
		return ErrBitRange
	}
	if addr&nrfreg.REGISTER_MASK == nrfreg.STATUS {
		return ErrStatusSet
	}
	v, err := d.ReadRegister(addr)
	if err != nil {
		return err
	}
	return d.WriteRegister(addr, v|1<<bit)
}

// ClearBit clears bit of register addr leaving other bits untouched.
// STATUS interrupt flags are write-1-to-clear so for STATUS only the target
// bit is written high and the current contents are never written back.
func (d *Device) ClearBit(addr, bit uint8) error {
	if bit > 7 {
		return ErrBitRange
	}
	if addr == nrfreg.STATUS {
		return d.WriteRegister(nrfreg.STATUS, 1<<bit)
	}
	v, err := d.ReadRegister(addr)
	if err != nil {
		return err
	}
	return d.WriteRegister(addr, v&^(1<<bit))
}

// readRegisterN reads a multi byte register (addresses) into dst, LSByte first.
func (d *Device) readRegisterN(addr uint8, dst []byte) error {
	n := len(dst)
	if n > nrfreg.AddrLen {
		return ErrAddress
	}
	d.regTx[0] = nrfreg.R_REGISTER | addr&nrfreg.REGISTER_MASK
	for i := 1; i <= n; i++ {
		d.regTx[i] = nrfreg.NOP
	}
	err := d.exchange(d.regTx[:1+n], d.regRx[:1+n])
	if err != nil {
		return err
	}
	copy(dst, d.regRx[1:1+n])
	return nil
}

// writeRegisterN writes a multi byte register (addresses), LSByte first.
func (d *Device) writeRegisterN(addr uint8, src []byte) error {
	n := len(src)
	if n > nrfreg.AddrLen {
		return ErrAddress
	}
	d.regTx[0] = nrfreg.W_REGISTER | addr&nrfreg.REGISTER_MASK
	copy(d.regTx[1:], src)
	return d.exchange(d.regTx[:1+n], nil)
}

// Status returns the STATUS register using the single byte NOP command.
func (d *Device) Status() (Status, error) {
	return d.command(nrfreg.NOP)
}

// Cfg returns the value of the CONFIG register.
func (d *Device) Cfg() (Cfg, error) {
	c, err := d.ReadRegister(nrfreg.CONFIG)
	return Cfg(c), err
}

// SetCfg sets the value of the CONFIG register.
func (d *Device) SetCfg(c Cfg) error {
	return d.WriteRegister(nrfreg.CONFIG, uint8(c))
}

// FIFOStatus returns the value of the FIFO_STATUS register.
func (d *Device) FIFOStatus() (FIFOStatus, error) {
	f, err := d.ReadRegister(nrfreg.FIFO_STATUS)
	return FIFOStatus(f), err
}

// SetAutoAck sets the pipes with auto acknowledgment enabled (EN_AA).
func (d *Device) SetAutoAck(p Pipes) error {
	return d.WriteRegister(nrfreg.EN_AA, uint8(p&PAll))
}

// SetRxPipes sets the enabled Rx pipes (EN_RXADDR).
func (d *Device) SetRxPipes(p Pipes) error {
	return d.WriteRegister(nrfreg.EN_RXADDR, uint8(p&PAll))
}

// SetAddressWidth sets the address width common to all pipes in bytes.
func (d *Device) SetAddressWidth(width int) error {
	if width < 3 || width > 5 {
		return ErrAddressWidth
	}
	return d.WriteRegister(nrfreg.SETUP_AW, uint8(width-2))
}

// SetRetransmit configures automatic retransmission. count is the number of
// retransmits in [0,15] and delay the wait between them, 250µs to 4ms in 250µs steps.
func (d *Device) SetRetransmit(count int, delay time.Duration) error {
	const step = 250 * time.Microsecond
	if uint(count) > 15 || delay < step || delay > 16*step {
		return ErrRetransmit
	}
	ard := uint8(delay/step - 1)
	return d.WriteRegister(nrfreg.SETUP_RETR, ard<<4|uint8(count))
}

// SetDataRate selects the over the air data rate.
func (d *Device) SetDataRate(dr DataRate) error {
	rf, err := d.ReadRegister(nrfreg.RF_SETUP)
	if err != nil {
		return err
	}
	rf &^= 1<<nrfreg.RF_DR_LOW | 1<<nrfreg.RF_DR_HIGH
	switch dr {
	case DataRate2Mbps:
		rf |= 1 << nrfreg.RF_DR_HIGH
	case DataRate250kbps:
		rf |= 1 << nrfreg.RF_DR_LOW
	}
	return d.WriteRegister(nrfreg.RF_SETUP, rf)
}

// SetPower selects the Tx output power.
func (d *Device) SetPower(p Power) error {
	rf, err := d.ReadRegister(nrfreg.RF_SETUP)
	if err != nil {
		return err
	}
	rf = rf&^(0b11<<nrfreg.RF_PWR) | uint8(p&0b11)<<nrfreg.RF_PWR
	return d.WriteRegister(nrfreg.RF_SETUP, rf)
}

// ObserveTx returns the lost packet counter and the retransmit counter of the
// last transmission from OBSERVE_TX.
func (d *Device) ObserveTx() (lost, retries int, err error) {
	b, err := d.ReadRegister(nrfreg.OBSERVE_TX)
	return int(b >> 4), int(b & 0xf), err
}

// CarrierDetect reports whether received power above -64dBm was detected on
// the current channel (RPD).
func (d *Device) CarrierDetect() (bool, error) {
	return d.CheckBit(nrfreg.RPD, 0)
}

// SetPayloadWidth sets the static payload width of a pipe. Ignored by the chip
// on pipes with dynamic payload enabled.
func (d *Device) SetPayloadWidth(pipe uint8, width int) error {
	if pipe >= nrfreg.NumPipes {
		return ErrPipe
	}
	if uint(width) > MaxPayload {
		return ErrPayloadWidth
	}
	return d.WriteRegister(nrfreg.RxPayloadWidthReg(pipe), uint8(width))
}

// RxAddress reads the address of Rx pipe into dst. Pipes 0 and 1
// hold 5 bytes, the rest hold their single byte suffix.
func (d *Device) RxAddress(pipe uint8, dst []byte) error {
	if err := checkPipeAddr(pipe, dst); err != nil {
		return err
	}
	return d.readRegisterN(nrfreg.RxAddrReg(pipe), dst)
}

// TxAddress reads TX_ADDR into dst.
func (d *Device) TxAddress(dst []byte) error {
	if len(dst) != nrfreg.AddrLen {
		return ErrAddress
	}
	return d.readRegisterN(nrfreg.TX_ADDR, dst)
}

func hasBit[T constraints.Integer](v T, bit uint8) bool {
	return v>>bit&1 != 0
}
