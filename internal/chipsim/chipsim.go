// package chipsim simulates an nRF24L01+ at the SPI command level. A Chip
// implements the SPI transfer primitive and the CE and CSN lines so a driver
// can be exercised without hardware. Chips linked to the same Air exchange
// packets with each other.
//
// Timing is not simulated: a transmission completes on the rising edge of CE.
// Chips and Air are not safe for concurrent use.
package chipsim

import (
	"encoding/hex"
	"errors"

	"github.com/soypat/nrf24/nrfreg"
)

const fifoDepth = 3

var (
	errNotSelected = errors.New("chipsim: transfer with CSN high")
	errLength      = errors.New("chipsim: read and write buffers differ in length")
	errEmpty       = errors.New("chipsim: empty transfer")
)

// Transfer is a recorded SPI transaction.
type Transfer struct {
	W []byte // Bytes clocked into the chip.
	R []byte // Bytes clocked out by the chip. Nil if discarded by the host.
}

func (t Transfer) String() string {
	cmd := nrfreg.Decode(t.W[0])
	s := cmd.String() + " w=" + hex.EncodeToString(t.W[1:])
	if t.R != nil {
		s += " r=" + hex.EncodeToString(t.R)
	}
	return s
}

type packet struct {
	pipe    uint8
	payload []byte
}

// Chip is a simulated nRF24L01+.
type Chip struct {
	regs   [0x20]byte
	addrP0 [nrfreg.AddrLen]byte
	addrP1 [nrfreg.AddrLen]byte
	txAddr [nrfreg.AddrLen]byte
	rx     []packet
	tx     [][]byte
	ce     bool
	csn    bool
	air    *Air

	// Acknowledge decides the outcome of transmissions when the chip is not
	// linked to an Air and auto acknowledgment is enabled on pipe 0.
	Acknowledge bool
	// WidthOverride, when non-zero, replaces the width reported by R_RX_PL_WID.
	WidthOverride uint8
	// Transfers records every SPI transaction in order.
	Transfers []Transfer
	// Sent records every payload put over the air.
	Sent [][]byte
}

// New returns a chip in its power on reset state with CSN high and CE low.
func New() *Chip {
	c := &Chip{csn: true}
	c.Reset()
	return c
}

// Reset restores the register reset values and empties the FIFOs.
func (c *Chip) Reset() {
	c.regs = [0x20]byte{}
	c.regs[nrfreg.CONFIG] = nrfreg.CONFIG_RESET
	c.regs[nrfreg.EN_AA] = 0x3F
	c.regs[nrfreg.EN_RXADDR] = 0x03
	c.regs[nrfreg.SETUP_AW] = 0x03
	c.regs[nrfreg.SETUP_RETR] = 0x03
	c.regs[nrfreg.RF_CH] = nrfreg.RF_CH_RESET
	c.regs[nrfreg.RF_SETUP] = 0x0E
	c.regs[nrfreg.RX_ADDR_P2] = 0xC3
	c.regs[nrfreg.RX_ADDR_P3] = 0xC4
	c.regs[nrfreg.RX_ADDR_P4] = 0xC5
	c.regs[nrfreg.RX_ADDR_P5] = 0xC6
	c.addrP0 = [5]byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}
	c.addrP1 = [5]byte{0xC2, 0xC2, 0xC2, 0xC2, 0xC2}
	c.txAddr = c.addrP0
	c.rx = c.rx[:0]
	c.tx = c.tx[:0]
}

// SetCE drives the chip enable line. A rising edge while powered up in
// transmit role sends the packet at the head of the Tx FIFO.
func (c *Chip) SetCE(level bool) {
	rising := level && !c.ce
	c.ce = level
	if rising && c.poweredUp() && !c.primRx() && len(c.tx) > 0 {
		c.transmit()
	}
}

// SetCSN drives the active low chip select line.
func (c *Chip) SetCSN(level bool) { c.csn = level }

// CE returns the level of the chip enable line.
func (c *Chip) CE() bool { return c.ce }

// CSN returns the level of the chip select line.
func (c *Chip) CSN() bool { return c.csn }

// Listening reports whether the chip is powered up in receive role with CE high.
func (c *Chip) Listening() bool { return c.ce && c.poweredUp() && c.primRx() }

// Reg returns the raw value of a single byte register as the chip would report it.
func (c *Chip) Reg(addr uint8) uint8 {
	switch addr {
	case nrfreg.STATUS:
		return c.status()
	case nrfreg.FIFO_STATUS:
		return c.fifoStatus()
	}
	return c.regs[addr&nrfreg.REGISTER_MASK]
}

// SetReg overwrites a register bypassing SPI. Useful to set up a scenario.
func (c *Chip) SetReg(addr, value uint8) { c.regs[addr&nrfreg.REGISTER_MASK] = value }

// Addr returns the full address held by RX_ADDR_P0, RX_ADDR_P1 or TX_ADDR.
func (c *Chip) Addr(reg uint8) [nrfreg.AddrLen]byte {
	switch reg {
	case nrfreg.RX_ADDR_P0:
		return c.addrP0
	case nrfreg.RX_ADDR_P1:
		return c.addrP1
	case nrfreg.TX_ADDR:
		return c.txAddr
	}
	panic("chipsim: not an address register")
}

// Inject places a received packet in the Rx FIFO as if it arrived on pipe
// and raises RX_DR. It reports false if the Rx FIFO is full.
func (c *Chip) Inject(pipe uint8, payload []byte) bool {
	if len(c.rx) >= fifoDepth {
		return false
	}
	c.rx = append(c.rx, packet{pipe: pipe, payload: append([]byte(nil), payload...)})
	c.regs[nrfreg.STATUS] |= 1 << nrfreg.RX_DR
	return true
}

// TxQueued returns the number of payloads in the Tx FIFO.
func (c *Chip) TxQueued() int { return len(c.tx) }

// RxQueued returns the number of payloads in the Rx FIFO.
func (c *Chip) RxQueued() int { return len(c.rx) }

// Tx implements the SPI transfer. The command is decoded from w[0] and
// the STATUS register is clocked out in r[0].
func (c *Chip) Tx(w, r []byte) error {
	if c.csn {
		return errNotSelected
	}
	if len(w) == 0 {
		return errEmpty
	}
	if r != nil && len(r) != len(w) {
		return errLength
	}
	out := make([]byte, len(w))
	out[0] = c.status()
	cmd := nrfreg.Decode(w[0])
	data := w[1:]
	switch cmd.Op {
	case nrfreg.OpReadRegister:
		c.readReg(cmd.Operand, out[1:])
	case nrfreg.OpWriteRegister:
		c.writeReg(cmd.Operand, data)
	case nrfreg.OpReadPayloadWidth:
		if len(out) > 1 {
			out[1] = c.payloadWidth()
		}
	case nrfreg.OpReadPayload:
		if len(c.rx) > 0 {
			copy(out[1:], c.rx[0].payload)
			c.rx = c.rx[1:]
		}
	case nrfreg.OpWritePayload, nrfreg.OpWritePayloadNoAck:
		if len(c.tx) < fifoDepth && len(data) <= nrfreg.MaxPayload {
			c.tx = append(c.tx, append([]byte(nil), data...))
		}
	case nrfreg.OpFlushTx:
		c.tx = c.tx[:0]
	case nrfreg.OpFlushRx:
		c.rx = c.rx[:0]
	}
	if r != nil {
		copy(r, out)
	}
	c.Transfers = append(c.Transfers, Transfer{
		W: append([]byte(nil), w...),
		R: cloneOrNil(r),
	})
	return nil
}

func cloneOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (c *Chip) readReg(addr uint8, dst []byte) {
	if len(dst) == 0 {
		return
	}
	switch addr {
	case nrfreg.RX_ADDR_P0, nrfreg.RX_ADDR_P1, nrfreg.TX_ADDR:
		a := c.Addr(addr)
		copy(dst, a[:])
		return
	}
	v := c.Reg(addr)
	for i := range dst {
		dst[i] = v
	}
}

func (c *Chip) writeReg(addr uint8, data []byte) {
	if len(data) == 0 {
		return
	}
	switch addr {
	case nrfreg.RX_ADDR_P0:
		copy(c.addrP0[:], data)
	case nrfreg.RX_ADDR_P1:
		copy(c.addrP1[:], data)
	case nrfreg.TX_ADDR:
		copy(c.txAddr[:], data)
	case nrfreg.STATUS:
		// Interrupt flags are write-1-to-clear, the rest is read only.
		c.regs[nrfreg.STATUS] &^= data[0] & nrfreg.STATUS_IRQ_MASK
	case nrfreg.OBSERVE_TX, nrfreg.RPD, nrfreg.FIFO_STATUS:
		// Read only.
	default:
		c.regs[addr] = data[0]
	}
}

func (c *Chip) payloadWidth() uint8 {
	if c.WidthOverride != 0 {
		return c.WidthOverride
	}
	if len(c.rx) == 0 {
		return 0
	}
	return uint8(len(c.rx[0].payload))
}

func (c *Chip) status() uint8 {
	s := c.regs[nrfreg.STATUS] & nrfreg.STATUS_IRQ_MASK
	pipe := uint8(0b111)
	if len(c.rx) > 0 {
		pipe = c.rx[0].pipe
	}
	s |= pipe << nrfreg.RX_P_NO
	if len(c.tx) >= fifoDepth {
		s |= 1 << nrfreg.STATUS_TX_FULL
	}
	return s
}

func (c *Chip) fifoStatus() uint8 {
	var f uint8
	switch len(c.rx) {
	case 0:
		f |= 1 << nrfreg.RX_EMPTY
	case fifoDepth:
		f |= 1 << nrfreg.RX_FULL
	}
	switch len(c.tx) {
	case 0:
		f |= 1 << nrfreg.TX_EMPTY
	case fifoDepth:
		f |= 1 << nrfreg.TX_FULL
	}
	return f
}

func (c *Chip) poweredUp() bool { return c.regs[nrfreg.CONFIG]&(1<<nrfreg.PWR_UP) != 0 }
func (c *Chip) primRx() bool    { return c.regs[nrfreg.CONFIG]&(1<<nrfreg.PRIM_RX) != 0 }
func (c *Chip) channel() uint8  { return c.regs[nrfreg.RF_CH] }

// transmit sends the head of the Tx FIFO. Acknowledged packets leave the FIFO
// and raise TX_DS. Unacknowledged packets stay queued and raise MAX_RT.
func (c *Chip) transmit() {
	if c.regs[nrfreg.STATUS]&(1<<nrfreg.MAX_RT) != 0 {
		return // No transmission until MAX_RT is cleared.
	}
	pkt := c.tx[0]
	c.Sent = append(c.Sent, pkt)
	delivered := c.Acknowledge
	if c.air != nil {
		delivered = c.air.deliver(c, pkt)
	}
	autoAck := c.regs[nrfreg.EN_AA]&1 != 0
	retries := c.regs[nrfreg.SETUP_RETR] & 0xf
	if !autoAck || delivered {
		c.tx = c.tx[1:]
		c.regs[nrfreg.STATUS] |= 1 << nrfreg.TX_DS
		c.regs[nrfreg.OBSERVE_TX] &^= 0xf
		return
	}
	lost := c.regs[nrfreg.OBSERVE_TX] >> 4
	if lost < 15 {
		lost++
	}
	c.regs[nrfreg.OBSERVE_TX] = lost<<4 | retries
	c.regs[nrfreg.STATUS] |= 1 << nrfreg.MAX_RT
}

// pipeAddr returns the full address a pipe listens on.
func (c *Chip) pipeAddr(pipe uint8) [nrfreg.AddrLen]byte {
	switch pipe {
	case 0:
		return c.addrP0
	case 1:
		return c.addrP1
	}
	a := c.addrP1
	a[0] = c.regs[nrfreg.RxAddrReg(pipe)]
	return a
}

// receive accepts pkt if the chip is listening on addr. It reports whether
// the packet was stored in the Rx FIFO.
func (c *Chip) receive(addr [nrfreg.AddrLen]byte, pkt []byte) bool {
	if !c.Listening() {
		return false
	}
	enabled := c.regs[nrfreg.EN_RXADDR]
	for pipe := uint8(0); pipe < nrfreg.NumPipes; pipe++ {
		if enabled&(1<<pipe) == 0 || c.pipeAddr(pipe) != addr {
			continue
		}
		return c.Inject(pipe, pkt)
	}
	return false
}

// Air links chips that share the radio medium.
type Air struct {
	chips []*Chip
}

// Link attaches chips to the air.
func (a *Air) Link(chips ...*Chip) {
	for _, c := range chips {
		c.air = a
		a.chips = append(a.chips, c)
	}
}

func (a *Air) deliver(from *Chip, pkt []byte) (acked bool) {
	for _, c := range a.chips {
		if c == from || c.channel() != from.channel() {
			continue
		}
		if c.receive(from.txAddr, pkt) {
			acked = true
		}
	}
	return acked
}
