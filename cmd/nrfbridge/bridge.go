package main

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/nrf24"
)

var errLongPayload = errors.New("mqtt payload larger than a radio packet")

// bridge moves packets between the radio and MQTT. Its mutex is the single
// arbiter for the Device: the radio poll loop and MQTT publications
// received on the tx topic both transmit or receive through it.
type bridge struct {
	mu      sync.Mutex
	dev     *nrf24.Device
	logger  *slog.Logger
	rxbuf   []byte
	publish func(payload []byte) error
}

func newBridge(dev *nrf24.Device, logger *slog.Logger, publish func([]byte) error) *bridge {
	return &bridge{
		dev:     dev,
		logger:  logger,
		rxbuf:   make([]byte, 0, 1+nrf24.MaxPayload),
		publish: publish,
	}
}

// poll checks the radio for a pending packet and publishes its payload.
// It reports whether a packet was forwarded.
func (b *bridge) poll() (bool, error) {
	b.mu.Lock()
	frame, err := b.dev.Receive(b.rxbuf)
	pipe := b.dev.LastStatus().RxPipe()
	b.mu.Unlock()
	if err != nil || len(frame) == 0 {
		return false, err
	}
	b.logger.Debug("radio:rx", slog.Int("len", len(frame.Payload())), slog.Int("pipe", pipe))
	return true, b.publish(frame.Payload())
}

// transmit sends payload over the radio.
func (b *bridge) transmit(payload []byte) error {
	if len(payload) > nrf24.MaxPayload {
		return errLongPayload
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Send(payload)
}

// onPub is the MQTT client's callback for publications on the tx topic.
// Radio errors are logged and do not tear down the MQTT connection.
func (b *bridge) onPub(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	var buf [nrf24.MaxPayload + 1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	// The client requires the payload to be consumed entirely.
	if _, err = io.Copy(io.Discard, r); err != nil {
		return err
	}
	err = b.transmit(buf[:n])
	if err != nil {
		b.logger.Error("radio:tx", slog.String("topic", string(varPub.TopicName)), slog.String("err", err.Error()))
		return nil
	}
	b.logger.Info("radio:tx", slog.String("topic", string(varPub.TopicName)), slog.Int("len", n))
	return nil
}
