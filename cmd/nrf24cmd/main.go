package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/soypat/nrf24"
	"github.com/soypat/nrf24/internal/chipsim"
	"github.com/soypat/nrf24/nrfreg"
)

const usage = `nrf24cmd - Talk to an nRF24L01 from a Linux host.
	Usage:
	nrf24cmd [flags] probe            Check the chip responds with its reset STATUS.
	nrf24cmd [flags] dump             Print every register.
	nrf24cmd [flags] read REG         Print a register, REG is a name (RF_CH) or number.
	nrf24cmd [flags] write REG VAL    Write a single byte register.
	nrf24cmd [flags] easy             Enter easy mode and print the chip state.
	nrf24cmd [flags] send HEX         Enter easy mode and send a hex encoded payload.
	nrf24cmd [flags] listen           Enter easy mode and print received payloads until interrupted.
`

var errUsage = errors.New("bad usage")

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	sim := flag.Bool("sim", false, "Use a simulated chip instead of hardware.")
	spiPort := flag.String("spi", "", "SPI port name. Empty selects the first available.")
	cePin := flag.String("ce", "GPIO25", "CE pin name.")
	csnPin := flag.String("csn", "GPIO8", "CSN pin name.")
	verbose := flag.Bool("v", false, "Log every SPI transaction.")
	ackTimeout := flag.Duration("ack", 0, "Acknowledgment poll timeout. Zero waits a fixed 1ms.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug - 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg := nrf24.Config{Logger: logger, AckTimeout: *ackTimeout}

	var dev *nrf24.Device
	var chip *chipsim.Chip
	if *sim {
		chip = chipsim.New()
		dev = nrf24.New(chip.SetCE, chip.SetCSN, chip, cfg)
	} else {
		d, port, err := nrf24.OpenPeriph(*spiPort, *cePin, *csnPin, cfg)
		if err != nil {
			logger.Error("open", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer port.Close()
		dev = d
	}
	err := run(dev, chip, flag.Args())
	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(2)
	} else if err != nil {
		logger.Error("failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// run executes a subcommand. chip is non-nil when running against the simulator.
func run(dev *nrf24.Device, chip *chipsim.Chip, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	err := dev.Init()
	if err != nil {
		return err
	}
	switch args[0] {
	case "probe":
		fmt.Println("chip responded", dev.LastStatus())
		return nil
	case "dump":
		return dump(dev)
	case "read":
		if len(args) != 2 {
			return errUsage
		}
		reg, err := parseRegister(args[1])
		if err != nil {
			return err
		}
		v, err := dev.ReadRegister(reg)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %#02x\n", nrfreg.RegisterName(reg), v)
		return nil
	case "write":
		if len(args) != 3 {
			return errUsage
		}
		reg, err := parseRegister(args[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return err
		}
		return dev.WriteRegister(reg, uint8(v))
	case "easy":
		err = dev.StartEasyMode()
		if err != nil {
			return err
		}
		return printState(dev)
	case "send":
		if len(args) != 2 {
			return errUsage
		}
		payload, err := hex.DecodeString(args[1])
		if err != nil {
			return err
		}
		if chip != nil {
			chip.Acknowledge = true
		}
		err = dev.StartEasyMode()
		if err != nil {
			return err
		}
		err = dev.Send(payload)
		if err != nil {
			return err
		}
		lost, retries, err := dev.ObserveTx()
		fmt.Printf("sent %d bytes, retries=%d lost=%d\n", len(payload), retries, lost)
		return err
	case "listen":
		if chip != nil {
			chip.Inject(0, []byte("hello from chipsim"))
		}
		return listen(dev)
	}
	return errUsage
}

func listen(dev *nrf24.Device) error {
	err := dev.StartEasyMode()
	if err != nil {
		return err
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	buf := make([]byte, 0, 1+nrf24.MaxPayload)
	for {
		select {
		case <-interrupt:
			return dev.PowerDown()
		case <-tick.C:
		}
		frame, err := dev.Receive(buf)
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			continue
		}
		fmt.Printf("%s pipe=%d len=%d %x %q\n", time.Now().Format(time.StampMilli),
			dev.LastStatus().RxPipe(), len(frame.Payload()), frame.Payload(), frame.Payload())
	}
}

func dump(dev *nrf24.Device) error {
	var addr [nrfreg.AddrLen]byte
	for _, reg := range nrfreg.Registers() {
		var err error
		switch reg {
		case nrfreg.RX_ADDR_P0, nrfreg.RX_ADDR_P1:
			err = dev.RxAddress(reg-nrfreg.RX_ADDR_P0, addr[:])
			fmt.Printf("%-12s % x\n", nrfreg.RegisterName(reg), addr)
		case nrfreg.TX_ADDR:
			err = dev.TxAddress(addr[:])
			fmt.Printf("%-12s % x\n", nrfreg.RegisterName(reg), addr)
		default:
			var v uint8
			v, err = dev.ReadRegister(reg)
			fmt.Printf("%-12s %#02x %08b\n", nrfreg.RegisterName(reg), v, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func printState(dev *nrf24.Device) error {
	cfg, err := dev.Cfg()
	if err != nil {
		return err
	}
	fifo, err := dev.FIFOStatus()
	if err != nil {
		return err
	}
	ch, err := dev.ReadRegister(nrfreg.RF_CH)
	if err != nil {
		return err
	}
	fmt.Println("CONFIG     ", cfg)
	fmt.Println("STATUS     ", dev.LastStatus())
	fmt.Println("FIFO_STATUS", fifo)
	fmt.Printf("RF_CH       %d (%dMHz)\n", ch, 2400+int(ch))
	return nil
}

// parseRegister accepts a register name as listed in the datasheet or an address.
func parseRegister(s string) (uint8, error) {
	for _, reg := range nrfreg.Registers() {
		if strings.EqualFold(s, nrfreg.RegisterName(reg)) {
			return reg, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > nrfreg.REGISTER_MASK {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return uint8(v), nil
}
