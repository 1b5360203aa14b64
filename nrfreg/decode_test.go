package nrfreg

import "testing"

func TestDecode(t *testing.T) {
	var tests = []struct {
		b     byte
		want  Command
		str   string
		write bool
	}{
		{b: 0x07, want: Command{Op: OpReadRegister, Operand: STATUS}, str: "R_REGISTER STATUS"},
		{b: 0x25, want: Command{Op: OpWriteRegister, Operand: RF_CH}, str: "W_REGISTER RF_CH", write: true},
		{b: 0x3d, want: Command{Op: OpWriteRegister, Operand: FEATURE}, str: "W_REGISTER FEATURE", write: true},
		{b: 0x61, want: Command{Op: OpReadPayload}, str: "R_RX_PAYLOAD"},
		{b: 0x60, want: Command{Op: OpReadPayloadWidth}, str: "R_RX_PL_WID"},
		{b: 0xa0, want: Command{Op: OpWritePayload}, str: "W_TX_PAYLOAD", write: true},
		{b: 0xa9, want: Command{Op: OpWriteAckPayload, Operand: 1}, str: "W_ACK_PAYLOAD P1", write: true},
		{b: 0xb0, want: Command{Op: OpWritePayloadNoAck}, str: "W_TX_PAYLOAD_NOACK", write: true},
		{b: 0xe1, want: Command{Op: OpFlushTx}, str: "FLUSH_TX"},
		{b: 0xe2, want: Command{Op: OpFlushRx}, str: "FLUSH_RX"},
		{b: 0xe3, want: Command{Op: OpReuseTx}, str: "REUSE_TX_PL"},
		{b: 0xff, want: Command{Op: OpNOP}, str: "NOP"},
		{b: 0xae, want: Command{Op: OpInvalid, Operand: 0xae}, str: "invalid(0xae)"},
		{b: 0x50, want: Command{Op: OpInvalid, Operand: 0x50}, str: "invalid(0x50)"},
	}
	for _, test := range tests {
		got := Decode(test.b)
		if got != test.want {
			t.Errorf("Decode(%#x)=%+v, want %+v", test.b, got, test.want)
		}
		if got.String() != test.str {
			t.Errorf("Decode(%#x).String()=%q, want %q", test.b, got.String(), test.str)
		}
		if got.IsWrite() != test.write {
			t.Errorf("Decode(%#x).IsWrite()=%v", test.b, got.IsWrite())
		}
	}
}

func TestRegisters(t *testing.T) {
	regs := Registers()
	if len(regs) != 26 {
		t.Fatalf("want 26 documented registers, got %d", len(regs))
	}
	for i := 1; i < len(regs); i++ {
		if regs[i] <= regs[i-1] {
			t.Fatal("registers not sorted", regs)
		}
	}
	if RegisterName(0x1a) != "reg(26)" {
		t.Error("undocumented register name", RegisterName(0x1a))
	}
	if RxAddrReg(5) != RX_ADDR_P5 || RxPayloadWidthReg(3) != RX_PW_P3 {
		t.Error("pipe register arithmetic")
	}
	if !IsAddrReg(TX_ADDR) || IsAddrReg(RX_ADDR_P2) {
		t.Error("IsAddrReg")
	}
}
