package nrfreg

import (
	"fmt"
	"strconv"
)

// Op identifies an SPI command regardless of its register or pipe operand.
type Op uint8

const (
	OpInvalid Op = iota
	OpReadRegister
	OpWriteRegister
	OpReadPayload
	OpWritePayload
	OpWritePayloadNoAck
	OpWriteAckPayload
	OpFlushTx
	OpFlushRx
	OpReuseTx
	OpReadPayloadWidth
	OpNOP
)

func (op Op) String() (s string) {
	switch op {
	case OpReadRegister:
		s = "R_REGISTER"
	case OpWriteRegister:
		s = "W_REGISTER"
	case OpReadPayload:
		s = "R_RX_PAYLOAD"
	case OpWritePayload:
		s = "W_TX_PAYLOAD"
	case OpWritePayloadNoAck:
		s = "W_TX_PAYLOAD_NOACK"
	case OpWriteAckPayload:
		s = "W_ACK_PAYLOAD"
	case OpFlushTx:
		s = "FLUSH_TX"
	case OpFlushRx:
		s = "FLUSH_RX"
	case OpReuseTx:
		s = "REUSE_TX_PL"
	case OpReadPayloadWidth:
		s = "R_RX_PL_WID"
	case OpNOP:
		s = "NOP"
	default:
		s = "invalid"
	}
	return s
}

// Command is a decoded SPI command byte.
type Command struct {
	Op Op
	// Operand is the register address for register commands
	// or the pipe number for W_ACK_PAYLOAD.
	Operand uint8
}

// Decode interprets the first byte clocked out by the host in a transaction.
func Decode(b byte) Command {
	switch {
	case b&^REGISTER_MASK == R_REGISTER:
		return Command{Op: OpReadRegister, Operand: b & REGISTER_MASK}
	case b&^REGISTER_MASK == W_REGISTER:
		return Command{Op: OpWriteRegister, Operand: b & REGISTER_MASK}
	case b == R_RX_PAYLOAD:
		return Command{Op: OpReadPayload}
	case b == W_TX_PAYLOAD:
		return Command{Op: OpWritePayload}
	case b == W_TX_PAYLOAD_NOACK:
		return Command{Op: OpWritePayloadNoAck}
	case b&^0x07 == W_ACK_PAYLOAD && b&0x07 < NumPipes:
		return Command{Op: OpWriteAckPayload, Operand: b & 0x07}
	case b == FLUSH_TX:
		return Command{Op: OpFlushTx}
	case b == FLUSH_RX:
		return Command{Op: OpFlushRx}
	case b == REUSE_TX_PL:
		return Command{Op: OpReuseTx}
	case b == R_RX_PL_WID:
		return Command{Op: OpReadPayloadWidth}
	case b == NOP:
		return Command{Op: OpNOP}
	}
	return Command{Op: OpInvalid, Operand: b}
}

// IsWrite reports whether the bytes following the command are written to the chip.
func (c Command) IsWrite() bool {
	switch c.Op {
	case OpWriteRegister, OpWritePayload, OpWritePayloadNoAck, OpWriteAckPayload:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c.Op {
	case OpReadRegister, OpWriteRegister:
		return c.Op.String() + " " + RegisterName(c.Operand)
	case OpWriteAckPayload:
		return c.Op.String() + " P" + strconv.Itoa(int(c.Operand))
	case OpInvalid:
		return fmt.Sprintf("invalid(%#02x)", c.Operand)
	}
	return c.Op.String()
}

var regNames = [...]string{
	CONFIG:      "CONFIG",
	EN_AA:       "EN_AA",
	EN_RXADDR:   "EN_RXADDR",
	SETUP_AW:    "SETUP_AW",
	SETUP_RETR:  "SETUP_RETR",
	RF_CH:       "RF_CH",
	RF_SETUP:    "RF_SETUP",
	STATUS:      "STATUS",
	OBSERVE_TX:  "OBSERVE_TX",
	RPD:         "RPD",
	RX_ADDR_P0:  "RX_ADDR_P0",
	RX_ADDR_P1:  "RX_ADDR_P1",
	RX_ADDR_P2:  "RX_ADDR_P2",
	RX_ADDR_P3:  "RX_ADDR_P3",
	RX_ADDR_P4:  "RX_ADDR_P4",
	RX_ADDR_P5:  "RX_ADDR_P5",
	TX_ADDR:     "TX_ADDR",
	RX_PW_P0:    "RX_PW_P0",
	RX_PW_P1:    "RX_PW_P1",
	RX_PW_P2:    "RX_PW_P2",
	RX_PW_P3:    "RX_PW_P3",
	RX_PW_P4:    "RX_PW_P4",
	RX_PW_P5:    "RX_PW_P5",
	FIFO_STATUS: "FIFO_STATUS",
	DYNPD:       "DYNPD",
	FEATURE:     "FEATURE",
}

// RegisterName returns the datasheet name of register reg.
func RegisterName(reg uint8) string {
	if int(reg) < len(regNames) && regNames[reg] != "" {
		return regNames[reg]
	}
	return "reg(" + strconv.Itoa(int(reg)) + ")"
}

// Registers lists every documented register address in ascending order.
func Registers() []uint8 {
	regs := make([]uint8, 0, len(regNames))
	for i, name := range regNames {
		if name != "" {
			regs = append(regs, uint8(i))
		}
	}
	return regs
}
