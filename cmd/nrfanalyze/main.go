package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/nrf24"
	"github.com/soypat/nrf24/nrfreg"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

// Optional flags.
var (
	timingsOutput string
)

type BusCtl struct {
	// OmitNOP skips NOP commands, usually STATUS polling.
	OmitNOP   bool
	OmitRead  bool
	OmitWrite bool
	// Compact merges consecutive identical transactions into one line.
	Compact bool
}

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "nrfanalyze - Process Binary Saleae digital data files of nRF24L01 SPI transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CSN data.")
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI SCK data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO data.")
	output := flag.String("o", "commands.txt", "Output filename of nRF24 command transcript.")
	flag.StringVar(&timingsOutput, "o-time", "", "Output timing data to a file corresponding to output command history line-by-line.")
	omitNOP := flag.Bool("omit-nop", false, "Omit NOP commands (status polling).")
	omitRead := flag.Bool("omit-read", false, "Omit commands that read data from the chip.")
	omitWrite := flag.Bool("omit-write", false, "Omit commands that write data to the chip.")
	noCompact := flag.Bool("no-compact", false, "Print repeated identical transactions on separate lines.")
	flag.Parse()

	BUS := BusCtl{
		OmitNOP:   *omitNOP,
		OmitRead:  *omitRead,
		OmitWrite: *omitWrite,
		Compact:   !*noCompact,
	}
	if BUS.OmitRead && BUS.OmitWrite {
		log.Fatal("cannot omit both read and write commands")
	}
	start := time.Now()
	if err := BUS.run(*mosi, *miso, *enable, *clk, *output); err != nil {
		log.Fatal(err.Error())
	}
	slog.Info("finished", slog.Duration("elapsed", time.Since(start)))
}

func (bus *BusCtl) run(mosi, miso, enable, clk, output string) error {
	txs, err := processSpiFiles(mosi, miso, clk, enable)
	if err != nil {
		return err
	}
	slog.Info("scanned", slog.Int("transactions", len(txs)))
	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	var timings io.Writer
	if timingsOutput != "" {
		slog.Info("creating timings file", slog.String("file", timingsOutput))
		tf, err := os.Create(timingsOutput)
		if err != nil {
			return err
		}
		defer tf.Close()
		timings = tf
	}
	return bus.write(fp, timings, bus.process(txs))
}

func (bus *BusCtl) write(w, timings io.Writer, actions []nrftx) error {
	for _, action := range actions {
		if bus.omit(action.Cmd) {
			continue
		}
		_, err := fmt.Fprintln(w, action.String())
		if err != nil {
			return err
		}
		if timings != nil {
			fmt.Fprintf(timings, "t=%f\tdata=%#x\n", action.Start, action.Data)
		}
	}
	return nil
}

func (bus *BusCtl) omit(cmd nrfreg.Command) bool {
	return (bus.OmitNOP && cmd.Op == nrfreg.OpNOP) ||
		(bus.OmitWrite && cmd.IsWrite()) ||
		(bus.OmitRead && !cmd.IsWrite())
}

// spitx is a single CSN-framed transaction as captured on the bus.
type spitx struct {
	MOSI, MISO []byte
	Start      float64
}

func processSpiFiles(fmosi, fmiso, fclk, fenable string) ([]spitx, error) {
	var files [4]*saleae.DigitalFile
	for i, name := range []string{fmosi, fmiso, fclk, fenable} {
		df, err := opendigital(name)
		if err != nil {
			return nil, err
		}
		files[i] = df
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(files[2], files[3], files[0], files[1])
	captured := make([]spitx, len(txs))
	for i, tx := range txs {
		captured[i] = spitx{MOSI: tx.SDO, MISO: tx.SDI, Start: tx.StartTime()}
	}
	return captured, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return saleae.ReadDigitalFile(fp)
}

// nrftx is a decoded nRF24 command.
type nrftx struct {
	Num    int
	Cmd    nrfreg.Command
	Status nrf24.Status
	// Data is what the host wrote for write commands and what the chip
	// clocked back after STATUS for the rest.
	Data  []byte
	Start float64
}

func decode(tx spitx) (d nrftx) {
	d.Start = tx.Start
	if len(tx.MOSI) == 0 {
		d.Cmd = nrfreg.Command{Op: nrfreg.OpInvalid}
		return d
	}
	d.Cmd = nrfreg.Decode(tx.MOSI[0])
	if len(tx.MISO) > 0 {
		d.Status = nrf24.Status(tx.MISO[0])
	}
	switch {
	case d.Cmd.IsWrite():
		d.Data = tx.MOSI[1:]
	case len(tx.MISO) > 1:
		d.Data = tx.MISO[1:]
	}
	return d
}

func (tx nrftx) String() string {
	s := fmt.Sprintf("cmd×%2d %-24s data=%#x status=(%s)", tx.Num, tx.Cmd.String(), tx.Data, tx.Status.String())
	if ann := tx.annotate(); ann != "" {
		s += " " + ann
	}
	return s
}

// annotate describes single byte register contents with known bitfields.
func (tx nrftx) annotate() string {
	if len(tx.Data) != 1 || (tx.Cmd.Op != nrfreg.OpReadRegister && tx.Cmd.Op != nrfreg.OpWriteRegister) {
		return ""
	}
	v := tx.Data[0]
	switch tx.Cmd.Operand {
	case nrfreg.CONFIG:
		return "[" + nrf24.Cfg(v).String() + "]"
	case nrfreg.FIFO_STATUS:
		return "[" + nrf24.FIFOStatus(v).String() + "]"
	case nrfreg.EN_AA, nrfreg.EN_RXADDR, nrfreg.DYNPD:
		return "[" + nrf24.Pipes(v).String() + "]"
	case nrfreg.STATUS:
		if tx.Cmd.Op == nrfreg.OpWriteRegister {
			return "[clear " + nrf24.Status(v&nrfreg.STATUS_IRQ_MASK|0b111<<nrfreg.RX_P_NO).String() + "]"
		}
	case nrfreg.RF_CH:
		return fmt.Sprintf("[%dMHz]", 2400+int(v))
	}
	return ""
}

func (bus *BusCtl) process(txs []spitx) (decoded []nrftx) {
	for i := 0; i < len(txs); i++ {
		d := decode(txs[i])
		d.Num = 1
		for bus.Compact && i+1 < len(txs) {
			next := decode(txs[i+1])
			if next.Cmd != d.Cmd || next.Status != d.Status || !bytes.Equal(next.Data, d.Data) {
				break
			}
			d.Num++
			i++
		}
		decoded = append(decoded, d)
	}
	return decoded
}
