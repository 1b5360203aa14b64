package nrf24

import (
	"strconv"

	"github.com/soypat/nrf24/nrfreg"
)

const (
	// MaxPayload is the largest payload Send accepts and Receive returns.
	MaxPayload = nrfreg.MaxPayload
	// EasyChannel is the RF channel selected by StartEasyMode.
	EasyChannel = 42
)

// EasyAddress is the address StartEasyMode assigns to both RX pipe 0
// and TX_ADDR so that auto acknowledgment packets find their way back.
var EasyAddress = [nrfreg.AddrLen]byte{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}

// Status is the value of the STATUS register. It is clocked out by the chip
// as the first byte of every SPI command.
type Status uint8

// DataReady returns true if a packet arrived in the Rx FIFO (RX_DR).
func (s Status) DataReady() bool { return hasBit(s, nrfreg.RX_DR) }

// DataSent returns true if a packet was transmitted and acknowledged (TX_DS).
func (s Status) DataSent() bool { return hasBit(s, nrfreg.TX_DS) }

// MaxRetries returns true if the maximum number of retransmits was exceeded (MAX_RT).
func (s Status) MaxRetries() bool { return hasBit(s, nrfreg.MAX_RT) }

// TxFull returns true if the Tx FIFO is full.
func (s Status) TxFull() bool { return hasBit(s, nrfreg.STATUS_TX_FULL) }

// RxPipe returns the data pipe of the payload at the head of the Rx FIFO
// or -1 if the Rx FIFO is empty.
func (s Status) RxPipe() int {
	n := int(s>>nrfreg.RX_P_NO) & 0b111
	if n > 5 {
		return -1
	}
	return n
}

func (s Status) String() string {
	return flags("RxDR+ TxDS+ MaxRT+ TxFull+ RxPipe:", 0x71, byte(s)) + strconv.Itoa(s.RxPipe())
}

// Cfg is the value of the CONFIG register.
type Cfg uint8

const (
	PrimRx    Cfg = 1 << nrfreg.PRIM_RX     // Rx/Tx control 1: PRX, 0: PTX.
	PwrUp     Cfg = 1 << nrfreg.PWR_UP      // 1: power up, 0: power down.
	CRCO      Cfg = 1 << nrfreg.CRCO        // CRC encoding scheme 0: one byte, 1: two bytes.
	EnCRC     Cfg = 1 << nrfreg.EN_CRC      // Enable CRC. Forced high if one of the bits in EN_AA is high.
	MaskMaxRT Cfg = 1 << nrfreg.MASK_MAX_RT // Mask interrupt caused by MAX_RT.
	MaskTxDS  Cfg = 1 << nrfreg.MASK_TX_DS  // Mask interrupt caused by TX_DS.
	MaskRxDR  Cfg = 1 << nrfreg.MASK_RX_DR  // Mask interrupt caused by RX_DR.
)

func (c Cfg) String() string {
	return flags("Mask(RxDR+ TxDS+ MaxRT+) EnCRC+ CRCO+ PwrUp+ PrimRx+", 0x7f, byte(c))
}

// FIFOStatus is the value of the FIFO_STATUS register.
type FIFOStatus uint8

func (f FIFOStatus) RxEmpty() bool { return hasBit(f, nrfreg.RX_EMPTY) }
func (f FIFOStatus) RxFull() bool  { return hasBit(f, nrfreg.RX_FULL) }
func (f FIFOStatus) TxEmpty() bool { return hasBit(f, nrfreg.TX_EMPTY) }
func (f FIFOStatus) TxFull() bool  { return hasBit(f, nrfreg.TX_FULL) }

func (f FIFOStatus) String() string {
	return flags("TxReuse+ TxFull+ TxEmpty+ RxFull+ RxEmpty+", 0x73, byte(f))
}

// Pipes is a bitfield of Rx data pipes as used by EN_AA, EN_RXADDR and DYNPD.
type Pipes uint8

const (
	P0 Pipes = 1 << iota
	P1
	P2
	P3
	P4
	P5
	PAll = P0 | P1 | P2 | P3 | P4 | P5
)

func (p Pipes) String() string {
	return flags("P5+ P4+ P3+ P2+ P1+ P0+", 0x3f, byte(p))
}

// DataRate is the over the air data rate selected in RF_SETUP.
type DataRate uint8

const (
	DataRate1Mbps DataRate = iota
	DataRate2Mbps
	DataRate250kbps
)

func (dr DataRate) String() (s string) {
	switch dr {
	case DataRate1Mbps:
		s = "1Mbps"
	case DataRate2Mbps:
		s = "2Mbps"
	case DataRate250kbps:
		s = "250kbps"
	default:
		s = "unknown"
	}
	return s
}

// Power is the Tx output power selected in RF_SETUP.RF_PWR.
type Power uint8

const (
	PowerMin  Power = iota // -18dBm
	PowerLow               // -12dBm
	PowerHigh              // -6dBm
	PowerMax               // 0dBm
)

// DBm returns the output power in dBm.
func (p Power) DBm() int { return 6*int(p&3) - 18 }

func (p Power) String() string { return strconv.Itoa(p.DBm()) + "dBm" }

// Frame is a received packet prefixed with its own length, so Frame[0] == len(Frame).
// A zero length Frame means no packet was pending.
type Frame []byte

// Payload returns the packet payload without the length prefix.
func (f Frame) Payload() []byte {
	if len(f) == 0 {
		return nil
	}
	return f[1:]
}

// role is the chip's primary role as selected by CONFIG.PRIM_RX.
type role uint8

const (
	roleTransmitting role = iota
	roleReceiving
)

func (r role) String() string {
	if r == roleReceiving {
		return "rx"
	}
	return "tx"
}

// flags formats the bits of b selected by mask, most significant first,
// replacing each '+' in f with '+' when the bit is set and '-' otherwise.
func flags(f string, mask, b byte) string {
	buf := make([]byte, len(f))
	m := byte(0x80)
	for i := range buf {
		if f[i] == '+' {
			for mask&m == 0 {
				m >>= 1
			}
			if b&m == 0 {
				buf[i] = '-'
			} else {
				buf[i] = '+'
			}
			m >>= 1
		} else {
			buf[i] = f[i]
		}
	}
	return string(buf)
}
