// package nrfreg contains the nRF24L01(+) SPI command set, register map and
// register bit positions as described in the Nordic nRF24L01+ product specification.
//
// Bit positions are 0-based: bit 0 is the least significant bit of a register.
package nrfreg

// SPI commands. Register commands are OR'd with a register address.
const (
	R_REGISTER         = 0x00
	W_REGISTER         = 0x20
	R_RX_PAYLOAD       = 0x61
	W_TX_PAYLOAD       = 0xA0
	FLUSH_TX           = 0xE1
	FLUSH_RX           = 0xE2
	REUSE_TX_PL        = 0xE3
	R_RX_PL_WID        = 0x60
	W_ACK_PAYLOAD      = 0xA8 // OR'd with pipe number 0..5.
	W_TX_PAYLOAD_NOACK = 0xB0
	NOP                = 0xFF

	// REGISTER_MASK selects the register address bits of R_REGISTER and W_REGISTER.
	REGISTER_MASK = 0x1F
)

// Register map.
const (
	CONFIG      = 0x00
	EN_AA       = 0x01
	EN_RXADDR   = 0x02
	SETUP_AW    = 0x03
	SETUP_RETR  = 0x04
	RF_CH       = 0x05
	RF_SETUP    = 0x06
	STATUS      = 0x07
	OBSERVE_TX  = 0x08
	RPD         = 0x09 // CD (carrier detect) on nRF24L01 non-plus.
	RX_ADDR_P0  = 0x0A
	RX_ADDR_P1  = 0x0B
	RX_ADDR_P2  = 0x0C
	RX_ADDR_P3  = 0x0D
	RX_ADDR_P4  = 0x0E
	RX_ADDR_P5  = 0x0F
	TX_ADDR     = 0x10
	RX_PW_P0    = 0x11
	RX_PW_P1    = 0x12
	RX_PW_P2    = 0x13
	RX_PW_P3    = 0x14
	RX_PW_P4    = 0x15
	RX_PW_P5    = 0x16
	FIFO_STATUS = 0x17
	DYNPD       = 0x1C
	FEATURE     = 0x1D
)

// CONFIG bits.
const (
	PRIM_RX     = 0
	PWR_UP      = 1
	CRCO        = 2
	EN_CRC      = 3
	MASK_MAX_RT = 4
	MASK_TX_DS  = 5
	MASK_RX_DR  = 6
)

// STATUS bits. RX_DR, TX_DS and MAX_RT are write-1-to-clear.
const (
	STATUS_TX_FULL = 0
	RX_P_NO        = 1 // 3 bits wide, 0b111 means Rx FIFO empty.
	MAX_RT         = 4
	TX_DS          = 5
	RX_DR          = 6

	// STATUS_IRQ_MASK selects the write-1-to-clear interrupt flags.
	STATUS_IRQ_MASK = 1<<RX_DR | 1<<TX_DS | 1<<MAX_RT
)

// FIFO_STATUS bits.
const (
	RX_EMPTY = 0
	RX_FULL  = 1
	TX_EMPTY = 4
	TX_FULL  = 5
	TX_REUSE = 6
)

// FEATURE bits.
const (
	EN_DYN_ACK = 0
	EN_ACK_PAY = 1
	EN_DPL     = 2
)

// RF_SETUP bits.
const (
	LNA_HCURR  = 0 // nRF24L01 only, obsolete on the plus variant.
	RF_PWR     = 1 // 2 bits wide.
	RF_DR_HIGH = 3
	PLL_LOCK   = 4
	RF_DR_LOW  = 5
	CONT_WAVE  = 7
)

// Limits and reset values.
const (
	// MaxPayload is the largest payload that fits in a FIFO slot.
	MaxPayload = 32
	// AddrLen is the width of full addresses on pipes 0, 1 and TX_ADDR.
	AddrLen = 5
	// MaxChannel is the highest channel accepted by RF_CH.
	MaxChannel = 127
	// NumPipes is the number of Rx data pipes.
	NumPipes = 6

	// STATUS value after power on reset: Rx FIFO empty and no pending interrupts.
	STATUS_RESET = 0x0E
	CONFIG_RESET = 0x08
	RF_CH_RESET  = 0x02
	FIFO_RESET   = 0x11
)

// RxAddrReg returns the RX_ADDR_Pn register address for pipe.
func RxAddrReg(pipe uint8) uint8 { return RX_ADDR_P0 + pipe }

// RxPayloadWidthReg returns the RX_PW_Pn register address for pipe.
func RxPayloadWidthReg(pipe uint8) uint8 { return RX_PW_P0 + pipe }

// IsAddrReg reports whether reg holds a multi byte address.
func IsAddrReg(reg uint8) bool {
	return reg == RX_ADDR_P0 || reg == RX_ADDR_P1 || reg == TX_ADDR
}
