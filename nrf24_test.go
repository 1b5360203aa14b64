package nrf24

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/soypat/nrf24/internal/chipsim"
	"github.com/soypat/nrf24/nrfreg"
)

func newTestDevice(t *testing.T, cfg Config) (*Device, *chipsim.Chip) {
	t.Helper()
	chip := chipsim.New()
	d := New(chip.SetCE, chip.SetCSN, chip, cfg)
	d.sleep = func(time.Duration) {}
	return d, chip
}

// rwRegs are single byte registers where every bit is writable in the simulator.
var rwRegs = []uint8{
	nrfreg.CONFIG, nrfreg.EN_AA, nrfreg.EN_RXADDR, nrfreg.SETUP_AW, nrfreg.SETUP_RETR,
	nrfreg.RF_CH, nrfreg.RF_SETUP, nrfreg.RX_ADDR_P2, nrfreg.RX_ADDR_P3, nrfreg.RX_ADDR_P4,
	nrfreg.RX_ADDR_P5, nrfreg.RX_PW_P0, nrfreg.RX_PW_P1, nrfreg.RX_PW_P2, nrfreg.RX_PW_P3,
	nrfreg.RX_PW_P4, nrfreg.RX_PW_P5, nrfreg.DYNPD, nrfreg.FEATURE,
}

func TestSetCheckClearBit(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	const pattern = 0xA5
	for _, reg := range rwRegs {
		for bit := uint8(0); bit < 8; bit++ {
			chip.SetReg(reg, pattern)
			err := d.SetBit(reg, bit)
			if err != nil {
				t.Fatal(err)
			}
			set, err := d.CheckBit(reg, bit)
			if err != nil {
				t.Fatal(err)
			}
			if !set {
				t.Errorf("%s bit %d not set after SetBit", nrfreg.RegisterName(reg), bit)
			}
			if got := chip.Reg(reg); got != pattern|1<<bit {
				t.Errorf("%s SetBit(%d) altered other bits: got %#x", nrfreg.RegisterName(reg), bit, got)
			}

			err = d.ClearBit(reg, bit)
			if err != nil {
				t.Fatal(err)
			}
			set, err = d.CheckBit(reg, bit)
			if err != nil {
				t.Fatal(err)
			}
			if set {
				t.Errorf("%s bit %d set after ClearBit", nrfreg.RegisterName(reg), bit)
			}
			if got := chip.Reg(reg); got != pattern&^(1<<bit) {
				t.Errorf("%s ClearBit(%d) altered other bits: got %#x", nrfreg.RegisterName(reg), bit, got)
			}
		}
	}
}

func TestBitRange(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	if _, err := d.CheckBit(nrfreg.CONFIG, 8); err != ErrBitRange {
		t.Error("CheckBit", err)
	}
	if err := d.SetBit(nrfreg.CONFIG, 8); err != ErrBitRange {
		t.Error("SetBit", err)
	}
	if err := d.ClearBit(nrfreg.STATUS, 9); err != ErrBitRange {
		t.Error("ClearBit", err)
	}
	if len(chip.Transfers) != 0 {
		t.Error("bus traffic on misuse", chip.Transfers)
	}
}

func TestClearStatusBitWrite1(t *testing.T) {
	irqs := []uint8{nrfreg.RX_DR, nrfreg.TX_DS, nrfreg.MAX_RT}
	for _, bit := range irqs {
		d, chip := newTestDevice(t, Config{})
		chip.SetReg(nrfreg.STATUS, nrfreg.STATUS_IRQ_MASK)
		err := d.ClearBit(nrfreg.STATUS, bit)
		if err != nil {
			t.Fatal(err)
		}
		if len(chip.Transfers) != 1 {
			t.Fatalf("want single write, got %v", chip.Transfers)
		}
		tx := chip.Transfers[0]
		want := []byte{nrfreg.W_REGISTER | nrfreg.STATUS, 1 << bit}
		if !bytes.Equal(tx.W, want) {
			t.Errorf("bit %d: wrote %x, want %x", bit, tx.W, want)
		}
		wantStatus := uint8(nrfreg.STATUS_IRQ_MASK&^(1<<bit)) | 0b111<<nrfreg.RX_P_NO
		if got := chip.Reg(nrfreg.STATUS); got != wantStatus {
			t.Errorf("bit %d: status %#x, want %#x", bit, got, wantStatus)
		}
	}
}

func TestSetBitStatus(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	chip.Inject(0, []byte{1})
	chip.Transfers = nil
	for bit := uint8(0); bit < 8; bit++ {
		if err := d.SetBit(nrfreg.STATUS, bit); err != ErrStatusSet {
			t.Errorf("SetBit(STATUS, %d): want ErrStatusSet, got %v", bit, err)
		}
	}
	if len(chip.Transfers) != 0 {
		t.Error("bus traffic on STATUS SetBit:", chip.Transfers)
	}
	if !Status(chip.Reg(nrfreg.STATUS)).DataReady() {
		t.Error("pending RX_DR lost")
	}
}

func TestInit(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	var slept time.Duration
	d.sleep = func(dt time.Duration) { slept += dt }
	chip.SetCE(true)
	err := d.Init()
	if err != nil {
		t.Fatal(err)
	}
	if slept < 10*time.Millisecond {
		t.Error("Init did not wait for power on settle", slept)
	}
	if chip.CE() || !chip.CSN() {
		t.Error("control lines not idle after Init")
	}

	// A pending packet changes STATUS away from its reset value.
	chip.Inject(0, []byte{1})
	err = d.Init()
	if !errors.Is(err, ErrProbe) {
		t.Errorf("want probe error, got %v", err)
	} else if want := "got 0x40, want 0x0e"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not contain %q", err, want)
	}
}

func TestStartEasyMode(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	err := d.StartEasyMode()
	if err != nil {
		t.Fatal(err)
	}
	if ch := chip.Reg(nrfreg.RF_CH); ch != EasyChannel {
		t.Errorf("channel %d, want %d", ch, EasyChannel)
	}
	if chip.Addr(nrfreg.TX_ADDR) != EasyAddress || chip.Addr(nrfreg.RX_ADDR_P0) != EasyAddress {
		t.Error("easy address not set on TX_ADDR and RX_ADDR_P0")
	}
	if chip.Reg(nrfreg.DYNPD)&1 == 0 || chip.Reg(nrfreg.FEATURE)&(1<<nrfreg.EN_DPL) == 0 {
		t.Error("dynamic payload not enabled on pipe 0")
	}
	cfg := Cfg(chip.Reg(nrfreg.CONFIG))
	if cfg&(PrimRx|PwrUp) != PrimRx|PwrUp {
		t.Error("not powered up in receive role:", cfg)
	}
	if !chip.CE() || !chip.Listening() {
		t.Error("chip not listening")
	}
}

func TestSendTooLarge(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	chip.SetCE(true)
	err := d.Send(make([]byte, MaxPayload+1))
	if err != ErrPayloadTooLarge {
		t.Fatal("want ErrPayloadTooLarge, got", err)
	}
	if len(chip.Transfers) != 0 {
		t.Error("bus traffic on oversized payload")
	}
	if !chip.CE() {
		t.Error("CE touched on oversized payload")
	}
}

func TestSendRestoresRole(t *testing.T) {
	var tests = []struct {
		name      string
		receiving bool
		ack       bool
		timeout   time.Duration
	}{
		{name: "rx-ack", receiving: true, ack: true},
		{name: "rx-noack", receiving: true, ack: false},
		{name: "tx-ack", receiving: false, ack: true},
		{name: "tx-noack", receiving: false, ack: false},
		{name: "rx-ack-poll", receiving: true, ack: true, timeout: time.Millisecond},
		{name: "tx-noack-poll", receiving: false, ack: false, timeout: time.Millisecond},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, chip := newTestDevice(t, Config{AckTimeout: test.timeout})
			chip.Acknowledge = test.ack
			if test.receiving {
				if err := d.StartEasyMode(); err != nil {
					t.Fatal(err)
				}
			} else if err := d.SetBit(nrfreg.CONFIG, nrfreg.PWR_UP); err != nil {
				t.Fatal(err)
			}
			payload := []byte("hello radio")
			err := d.Send(payload)
			if test.ack && err != nil {
				t.Fatal(err)
			} else if !test.ack && !errors.Is(err, ErrNoAck) {
				t.Fatal("want ErrNoAck, got", err)
			}
			if len(chip.Sent) != 1 || !bytes.Equal(chip.Sent[0], payload) {
				t.Fatalf("sent %q, want %q", chip.Sent, payload)
			}
			gotRx := chip.Reg(nrfreg.CONFIG)&(1<<nrfreg.PRIM_RX) != 0
			if gotRx != test.receiving {
				t.Errorf("role not restored: PRIM_RX=%v", gotRx)
			}
			if chip.CE() != test.receiving {
				t.Errorf("CE=%v after Send, want %v", chip.CE(), test.receiving)
			}
			status := Status(chip.Reg(nrfreg.STATUS))
			if status.DataSent() || status.MaxRetries() {
				t.Error("interrupt flags left set:", status)
			}
		})
	}
}

func TestSendAckDeadline(t *testing.T) {
	d, chip := newTestDevice(t, Config{AckTimeout: time.Millisecond})
	var clock time.Time
	d.now = func() time.Time { return clock }
	d.sleep = func(dt time.Duration) { clock = clock.Add(dt) }
	// Powered down: CE pulses transmit nothing and STATUS never changes.
	err := d.Send([]byte("nobody"))
	if err != ErrNoAck {
		t.Fatal("want ErrNoAck, got", err)
	}
	if len(chip.Sent) != 0 {
		t.Error("powered down chip transmitted")
	}
	var polls int
	for _, tx := range chip.Transfers {
		if nrfreg.Decode(tx.W[0]).Op == nrfreg.OpNOP {
			polls++
		}
	}
	// One poll at the start of each interval until the deadline is reached.
	want := int(time.Millisecond/ackPollInterval) + 1
	if polls != want {
		t.Errorf("polled STATUS %d times, want %d", polls, want)
	}
	if elapsed := clock.Sub(time.Time{}); elapsed < time.Millisecond {
		t.Error("returned before deadline", elapsed)
	}
}

func TestSendFlushesStale(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	chip.SetReg(nrfreg.CONFIG, uint8(PwrUp))
	// Fill the Tx FIFO behind the driver's back.
	chip.SetCSN(false)
	for i := 0; i < 3; i++ {
		chip.Tx([]byte{nrfreg.W_TX_PAYLOAD, byte(i)}, nil)
	}
	chip.SetCSN(true)
	chip.Acknowledge = true
	err := d.Send([]byte{0xff})
	if err != nil {
		t.Fatal(err)
	}
	if len(chip.Sent) != 1 || chip.Sent[0][0] != 0xff {
		t.Error("stale payload transmitted", chip.Sent)
	}
}

func TestReceiveNoData(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	frame, err := d.Receive(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 0 || frame.Payload() != nil {
		t.Error("want empty frame, got", frame)
	}
	for _, tx := range chip.Transfers {
		op := nrfreg.Decode(tx.W[0]).Op
		if op == nrfreg.OpReadPayload || op == nrfreg.OpReadPayloadWidth {
			t.Error("payload transfer issued with no data ready:", tx)
		}
	}
}

func TestReceive(t *testing.T) {
	for _, width := range []int{0, 1, 5, MaxPayload} {
		d, chip := newTestDevice(t, Config{})
		if err := d.StartEasyMode(); err != nil {
			t.Fatal(err)
		}
		payload := make([]byte, width)
		for i := range payload {
			payload[i] = byte(i + 1)
		}
		chip.Inject(0, payload)
		chip.Transfers = nil
		frame, err := d.Receive(make([]byte, 0, 64))
		if err != nil {
			t.Fatal(err)
		}
		if len(frame) != width+1 || int(frame[0]) != width+1 {
			t.Fatalf("width %d: got frame % x", width, frame)
		}
		if !bytes.Equal(frame.Payload(), payload) {
			t.Errorf("width %d: payload % x, want % x", width, frame.Payload(), payload)
		}
		last := chip.Transfers[len(chip.Transfers)-1]
		want := []byte{nrfreg.W_REGISTER | nrfreg.STATUS, 1 << nrfreg.RX_DR}
		if !bytes.Equal(last.W, want) || last.R != nil {
			t.Errorf("width %d: RX_DR not cleared by write-1: %v", width, last)
		}
		if Status(chip.Reg(nrfreg.STATUS)).DataReady() {
			t.Error("RX_DR still set")
		}
		if !chip.Listening() {
			t.Error("not listening after Receive")
		}
	}
}

func TestReceiveBadWidth(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	if err := d.StartEasyMode(); err != nil {
		t.Fatal(err)
	}
	chip.Inject(1, []byte{1, 2, 3})
	chip.WidthOverride = 33
	frame, err := d.Receive(nil)
	if err != ErrPayloadWidth {
		t.Fatal("want ErrPayloadWidth, got", err)
	}
	if frame != nil || chip.RxQueued() != 0 {
		t.Error("corrupt payload not flushed")
	}
	if Status(chip.Reg(nrfreg.STATUS)).DataReady() || !chip.CE() {
		t.Error("RX_DR not cleared or CE low")
	}
}

func TestSetRxAddress(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	full := []byte{1, 2, 3, 4, 5}
	for pipe := uint8(0); pipe < 6; pipe++ {
		addr := full
		wantLen := 6
		if pipe > 1 {
			addr = []byte{0x10 + pipe}
			wantLen = 2
		}
		chip.Transfers = nil
		err := d.SetRxAddress(pipe, addr)
		if err != nil {
			t.Fatal(err)
		}
		if len(chip.Transfers) != 1 || len(chip.Transfers[0].W) != wantLen {
			t.Fatalf("pipe %d: want one %d byte transfer, got %v", pipe, wantLen, chip.Transfers)
		}
		got := make([]byte, len(addr))
		err = d.RxAddress(pipe, got)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, addr) {
			t.Errorf("pipe %d: read back % x, want % x", pipe, got, addr)
		}
	}
	chip.Transfers = nil
	if err := d.SetRxAddress(6, []byte{1}); err != ErrPipe {
		t.Error("pipe 6:", err)
	}
	if err := d.SetRxAddress(0, []byte{1}); err != ErrAddress {
		t.Error("short pipe 0 address:", err)
	}
	if err := d.SetRxAddress(3, full); err != ErrAddress {
		t.Error("full pipe 3 address:", err)
	}
	if err := d.SetTxAddress(full[:4]); err != ErrAddress {
		t.Error("short tx address:", err)
	}
	if len(chip.Transfers) != 0 {
		t.Error("bus traffic on misuse")
	}
	err := d.SetTxAddress(full)
	if err != nil {
		t.Fatal(err)
	}
	var tx [5]byte
	if err = d.TxAddress(tx[:]); err != nil || !bytes.Equal(tx[:], full) {
		t.Error("tx address read back", tx, err)
	}
}

func TestFlushAndWidth(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	chip.Inject(2, []byte{9, 9, 9, 9})
	w, err := d.ReadRxPayloadWidth()
	if err != nil || w != 4 {
		t.Fatal("width", w, err)
	}
	if d.LastStatus().RxPipe() != 2 {
		t.Error("status pipe", d.LastStatus())
	}
	if err = d.FlushRx(); err != nil {
		t.Fatal(err)
	}
	if chip.RxQueued() != 0 {
		t.Error("Rx FIFO not flushed")
	}
	fifo, err := d.FIFOStatus()
	if err != nil || !fifo.RxEmpty() || !fifo.TxEmpty() {
		t.Error("fifo status", fifo, err)
	}
	last := chip.Transfers[len(chip.Transfers)-2]
	if len(last.W) != 1 || last.W[0] != nrfreg.FLUSH_RX {
		t.Error("flush is not a single byte command:", last)
	}
}

func TestConfigure(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	rc := DefaultRadioConfig()
	rc.Channel = 76
	rc.DataRate = DataRate250kbps
	rc.Power = PowerLow
	rc.CRCBytes = 2
	rc.RetransmitCount = 15
	rc.RetransmitDelay = 1500 * time.Microsecond
	rc.Address = [5]byte{0xD7, 0xD7, 0xD7, 0xD7, 0xD7}
	err := d.Configure(rc)
	if err != nil {
		t.Fatal(err)
	}
	if chip.Reg(nrfreg.RF_CH) != 76 {
		t.Error("channel")
	}
	if got := chip.Reg(nrfreg.RF_SETUP); got != 1<<nrfreg.RF_DR_LOW|uint8(PowerLow)<<nrfreg.RF_PWR {
		t.Errorf("rf setup %#x", got)
	}
	if got := chip.Reg(nrfreg.SETUP_RETR); got != 5<<4|15 {
		t.Errorf("setup retr %#x", got)
	}
	if got := Cfg(chip.Reg(nrfreg.CONFIG)); got != PwrUp|EnCRC|CRCO|PrimRx {
		t.Error("config", got)
	}
	if chip.Addr(nrfreg.TX_ADDR) != rc.Address || !chip.Listening() {
		t.Error("address or listening state")
	}

	if err = d.Configure(RadioConfig{CRCBytes: 3}); err == nil {
		t.Error("expected CRC length error")
	}
	if err = d.SetRetransmit(16, time.Millisecond); err != ErrRetransmit {
		t.Error("retransmit count", err)
	}
	if err = d.SetAddressWidth(2); err != ErrAddressWidth {
		t.Error("address width", err)
	}
	if err = d.SetPayloadWidth(0, 33); err != ErrPayloadWidth {
		t.Error("payload width", err)
	}
	if err = d.PowerDown(); err != nil || chip.Reg(nrfreg.CONFIG)&(1<<nrfreg.PWR_UP) != 0 || chip.CE() {
		t.Error("power down", err)
	}
}

func TestObserveTx(t *testing.T) {
	d, chip := newTestDevice(t, Config{})
	if err := d.SetBit(nrfreg.CONFIG, nrfreg.PWR_UP); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := d.Send([]byte{byte(i)}); err != ErrNoAck {
			t.Fatal("want ErrNoAck, got", err)
		}
	}
	lost, retries, err := d.ObserveTx()
	if err != nil {
		t.Fatal(err)
	}
	if lost != 2 || retries != 3 {
		t.Errorf("lost=%d retries=%d", lost, retries)
	}
	if len(chip.Sent) != 2 {
		t.Errorf("want 2 transmissions, got %d", len(chip.Sent))
	}
	cd, err := d.CarrierDetect()
	if err != nil || cd {
		t.Error("carrier detect", cd, err)
	}
}

func TestEndToEnd(t *testing.T) {
	var air chipsim.Air
	a, chipA := newTestDevice(t, Config{})
	b, chipB := newTestDevice(t, Config{AckTimeout: time.Millisecond})
	air.Link(chipA, chipB)
	for _, d := range []*Device{a, b} {
		if err := d.Init(); err != nil {
			t.Fatal(err)
		}
		if err := d.StartEasyMode(); err != nil {
			t.Fatal(err)
		}
	}
	exchange := func(from, to *Device, msg string) {
		t.Helper()
		err := from.Send([]byte(msg))
		if err != nil {
			t.Fatal(err)
		}
		frame, err := to.Receive(nil)
		if err != nil {
			t.Fatal(err)
		}
		if string(frame.Payload()) != msg {
			t.Fatalf("got %q, want %q", frame.Payload(), msg)
		}
	}
	exchange(a, b, "ping")
	exchange(b, a, "pong")
	if !chipA.Listening() || !chipB.Listening() {
		t.Error("chips not listening after exchange")
	}

	// Out of range peer: different channel, no acknowledgment.
	if err := b.SetChannel(80); err != nil {
		t.Fatal(err)
	}
	if err := a.Send([]byte("lost")); !errors.Is(err, ErrNoAck) {
		t.Error("want ErrNoAck, got", err)
	}
}

type failingSPI struct{ err error }

func (f failingSPI) Tx(w, r []byte) error { return f.err }

func TestTransportError(t *testing.T) {
	errBus := errors.New("bus fault")
	var csn, ce bool = true, false
	var selected int
	d := New(func(b bool) { ce = b }, func(b bool) {
		if !b {
			selected++
		}
		csn = b
	}, failingSPI{err: errBus}, Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelTrace})),
	})
	d.sleep = func(time.Duration) {}
	if _, err := d.ReadRegister(nrfreg.CONFIG); err != errBus {
		t.Error("ReadRegister", err)
	}
	if err := d.Send([]byte{1}); !errors.Is(err, errBus) {
		t.Error("Send", err)
	}
	if !csn {
		t.Error("CSN left asserted after failed transfer")
	}
	if ce {
		t.Error("CE high after failed send")
	}
	if selected == 0 {
		t.Error("CSN never asserted")
	}
}

func TestStrings(t *testing.T) {
	var tests = []struct {
		got, want string
	}{
		{Status(nrfreg.STATUS_RESET).String(), "RxDR- TxDS- MaxRT- TxFull- RxPipe:-1"},
		{Status(0x62).String(), "RxDR+ TxDS+ MaxRT- TxFull- RxPipe:1"},
		{(PwrUp | PrimRx | EnCRC).String(), "Mask(RxDR- TxDS- MaxRT-) EnCRC+ CRCO- PwrUp+ PrimRx+"},
		{FIFOStatus(nrfreg.FIFO_RESET).String(), "TxReuse- TxFull- TxEmpty+ RxFull- RxEmpty+"},
		{(P0 | P5).String(), "P5+ P4- P3- P2- P1- P0+"},
		{PowerHigh.String(), "-6dBm"},
		{DataRate250kbps.String(), "250kbps"},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("got %q, want %q", test.got, test.want)
		}
	}
}
