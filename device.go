// package nrf24 implements a polling driver for the Nordic nRF24L01(+) 2.4GHz
// transceiver wired to an SPI bus plus the CE and CSN control lines.
//
// A Device is not safe for concurrent use. Callers sharing a Device (or the SPI
// bus) between goroutines must serialize access themselves.
package nrf24

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/nrf24/nrfreg"
)

const (
	// powerOnSettle is the time the chip needs after power on reset before
	// it accepts SPI commands.
	powerOnSettle = 10 * time.Millisecond
	// cePulse is the minimum CE high time to start a transmission.
	cePulse = 10 * time.Microsecond
	// ackSettle is the fixed wait after a transmission before STATUS is checked.
	ackSettle = time.Millisecond
	// ackPollInterval is the STATUS polling period when Config.AckTimeout is set.
	ackPollInterval = 100 * time.Microsecond
)

// ErrProbe is returned by Init when STATUS does not hold its reset value,
// usually a wiring or power problem.
var ErrProbe = errors.New("nrf24: unexpected status after power on")

// Device is an nRF24L01(+) transceiver.
type Device struct {
	ce         outputPin
	csn        outputPin
	spi        SPI
	logger     *slog.Logger
	ackTimeout time.Duration
	sleep      func(time.Duration)
	now        func() time.Time
	lastStatus Status

	// Scratch buffers. regTx/regRx fit a command plus a 5 byte address,
	// payTx/payRx a command plus a full payload.
	regTx, regRx [1 + nrfreg.AddrLen]byte
	payTx, payRx [1 + MaxPayload]byte

	_traceenabled bool
}

// Config holds driver options. The zero value is usable.
type Config struct {
	// Logger receives structured driver logs. Nil disables logging.
	// Set its level to slog.LevelDebug-1 to log every SPI transaction.
	Logger *slog.Logger
	// AckTimeout selects how Send waits for the acknowledgment. Zero waits a fixed
	// 1ms and checks STATUS once. A positive value polls STATUS until the packet
	// is acknowledged, retransmits are exhausted or AckTimeout elapses.
	AckTimeout time.Duration
}

// New returns a Device driving the CE and CSN lines with ce and csn
// (true is logic high) and communicating over spi.
func New(ce, csn func(bool), spi SPI, cfg Config) *Device {
	if ce == nil || csn == nil || spi == nil {
		panic("nrf24: nil pin or SPI")
	}
	d := &Device{
		ce:         ce,
		csn:        csn,
		spi:        spi,
		logger:     cfg.Logger,
		ackTimeout: cfg.AckTimeout,
		sleep:      time.Sleep,
		now:        time.Now,
	}
	d._traceenabled = d.logger != nil && d.logger.Handler().Enabled(context.Background(), levelTrace)
	return d
}

// Init idles the control lines, waits for the chip to settle after power on and
// probes the STATUS register. It succeeds only if STATUS holds its reset value
// (Rx FIFO empty, no pending interrupts). Init does not reset the chip's registers.
func (d *Device) Init() error {
	d.info("Init:start")
	d.csn(true)
	d.ce(false)
	d.sleep(powerOnSettle)
	status, err := d.ReadRegister(nrfreg.STATUS)
	if err != nil {
		return err
	}
	if status != nrfreg.STATUS_RESET {
		d.logerr("Init:probe", slog.String("status", Status(status).String()))
		return fmt.Errorf("%w: got %#02x, want %#02x", ErrProbe, status, nrfreg.STATUS_RESET)
	}
	d.info("Init:done")
	return nil
}

// role reads the chip's current primary role from CONFIG.PRIM_RX.
func (d *Device) role() (role, error) {
	rx, err := d.CheckBit(nrfreg.CONFIG, nrfreg.PRIM_RX)
	if err != nil {
		return roleTransmitting, err
	}
	if rx {
		return roleReceiving, nil
	}
	return roleTransmitting, nil
}

// restoreRole puts the chip back in role r. CE is left high only for the
// receiving role, resuming listening.
func (d *Device) restoreRole(r role) error {
	if r != roleReceiving {
		d.ce(false)
		return nil
	}
	err := d.SetBit(nrfreg.CONFIG, nrfreg.PRIM_RX)
	if err != nil {
		return err
	}
	d.ce(true)
	return nil
}

// StartEasyMode configures the chip on EasyChannel with EasyAddress on both
// Rx pipe 0 and TX_ADDR, enables dynamic payload on pipe 0, powers up in
// receive role and raises CE. The chip listens continuously from then on
// except during Send.
func (d *Device) StartEasyMode() error {
	d.info("StartEasyMode", slog.Int("channel", EasyChannel))
	err := d.SetChannel(EasyChannel)
	if err != nil {
		return err
	}
	if err = d.SetRxAddress(0, EasyAddress[:]); err != nil {
		return err
	}
	if err = d.SetTxAddress(EasyAddress[:]); err != nil {
		return err
	}
	if err = d.EnableDynamicPayload(0); err != nil {
		return err
	}
	if err = d.SetBit(nrfreg.CONFIG, nrfreg.PRIM_RX); err != nil {
		return err
	}
	if err = d.SetBit(nrfreg.CONFIG, nrfreg.PWR_UP); err != nil {
		return err
	}
	d.ce(true)
	return nil
}

// RadioConfig is a complete radio setup applied by Configure.
type RadioConfig struct {
	Channel  int
	DataRate DataRate
	Power    Power
	// CRCBytes is 0 (no CRC), 1 or 2. CRC is forced on by the chip when auto
	// acknowledgment is enabled on any pipe.
	CRCBytes int
	// AutoAck selects the pipes that acknowledge received packets.
	AutoAck         Pipes
	RetransmitCount int
	RetransmitDelay time.Duration
	// Address is assigned to TX_ADDR and Rx pipe 0, LSByte first.
	Address [nrfreg.AddrLen]byte
	// DynamicPayload enables dynamic payload width on pipe 0.
	DynamicPayload bool
	// Listen leaves the chip powered up in receive role with CE high.
	Listen bool
}

// DefaultRadioConfig returns the configuration equivalent to StartEasyMode
// with the chip's reset values for everything else.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		Channel:         EasyChannel,
		DataRate:        DataRate1Mbps,
		Power:           PowerMax,
		CRCBytes:        1,
		AutoAck:         PAll,
		RetransmitCount: 3,
		RetransmitDelay: 250 * time.Microsecond,
		Address:         EasyAddress,
		DynamicPayload:  true,
		Listen:          true,
	}
}

// Configure applies rc and powers up the chip. CE is left low unless rc.Listen is set.
func (d *Device) Configure(rc RadioConfig) (err error) {
	d.info("Configure", slog.Int("channel", rc.Channel), slog.String("rate", rc.DataRate.String()),
		slog.String("power", rc.Power.String()), slog.Bool("listen", rc.Listen))
	d.ce(false)
	var cfg Cfg = PwrUp
	switch rc.CRCBytes {
	case 0:
	case 1:
		cfg |= EnCRC
	case 2:
		cfg |= EnCRC | CRCO
	default:
		return errors.New("nrf24: CRC length must be 0, 1 or 2")
	}
	if rc.Listen {
		cfg |= PrimRx
	}
	steps := []func() error{
		func() error { return d.SetChannel(rc.Channel) },
		func() error { return d.SetDataRate(rc.DataRate) },
		func() error { return d.SetPower(rc.Power) },
		func() error { return d.SetAutoAck(rc.AutoAck) },
		func() error { return d.SetRetransmit(rc.RetransmitCount, rc.RetransmitDelay) },
		func() error { return d.SetAddressWidth(nrfreg.AddrLen) },
		func() error { return d.SetRxAddress(0, rc.Address[:]) },
		func() error { return d.SetTxAddress(rc.Address[:]) },
		func() error {
			if !rc.DynamicPayload {
				return nil
			}
			return d.EnableDynamicPayload(0)
		},
		func() error { return d.SetCfg(cfg) },
	}
	for _, step := range steps {
		if err = step(); err != nil {
			return err
		}
	}
	// Clear stale interrupts and FIFOs left over from before Configure.
	if err = d.WriteRegister(nrfreg.STATUS, nrfreg.STATUS_IRQ_MASK); err != nil {
		return err
	}
	if err = d.FlushRx(); err != nil {
		return err
	}
	if err = d.FlushTx(); err != nil {
		return err
	}
	if rc.Listen {
		d.ce(true)
	}
	return nil
}

// Standby drops CE, leaving the chip powered up but idle.
func (d *Device) Standby() {
	d.ce(false)
}

// PowerDown drops CE and clears PWR_UP.
func (d *Device) PowerDown() error {
	d.ce(false)
	return d.ClearBit(nrfreg.CONFIG, nrfreg.PWR_UP)
}
