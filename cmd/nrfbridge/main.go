package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"strconv"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/nrf24"
	"github.com/soypat/nrf24/internal/chipsim"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "nrfbridge - Forward nRF24L01 packets to and from an MQTT broker.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	broker := flag.String("mqtt", "test.mosquitto.org:1883", "MQTT broker address.")
	prefix := flag.String("prefix", "radio/nrf24", "Topic prefix. Received packets are published to <prefix>/rx, payloads on <prefix>/tx are transmitted.")
	clientID := flag.String("id", "nrfbridge", "MQTT client identifier.")
	sim := flag.Bool("sim", false, "Use a simulated chip linked to a simulated peer that transmits periodically.")
	spiPort := flag.String("spi", "", "SPI port name. Empty selects the first available.")
	cePin := flag.String("ce", "GPIO25", "CE pin name.")
	csnPin := flag.String("csn", "GPIO8", "CSN pin name.")
	pollPeriod := flag.Duration("poll", 5*time.Millisecond, "Radio polling period.")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo, // Go lower (Debug-1) to see every SPI transaction.
	}))
	cfg := nrf24.Config{Logger: logger, AckTimeout: 5 * time.Millisecond}
	var dev *nrf24.Device
	var air *chipsim.Air
	if *sim {
		air = new(chipsim.Air)
		chip := chipsim.New()
		air.Link(chip)
		dev = nrf24.New(chip.SetCE, chip.SetCSN, chip, cfg)
	} else {
		d, port, err := nrf24.OpenPeriph(*spiPort, *cePin, *csnPin, cfg)
		if err != nil {
			logger.Error("radio:open", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer port.Close()
		dev = d
	}
	err := dev.Init()
	if err == nil {
		err = dev.StartEasyMode()
	}
	if err != nil {
		logger.Error("radio:init", slog.String("err", err.Error()))
		os.Exit(1)
	}

	pubFlags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	pubVar := mqtt.VariablesPublish{TopicName: []byte(*prefix + "/rx")}
	var client *mqtt.Client
	b := newBridge(dev, logger, func(payload []byte) error {
		pubVar.PacketIdentifier++
		return client.PublishPayload(pubFlags, pubVar, payload)
	})
	client = mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub:   b.onPub,
	})
	if air != nil {
		go simPeer(b, air, logger)
	}

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(*clientID))
	for {
		err = session(client, &varconn, *broker, *prefix+"/tx", b, *pollPeriod, logger)
		logger.Error("mqtt:disconnected", slog.Any("reason", err))
		time.Sleep(5 * time.Second)
	}
}

// session connects to the broker, subscribes to the tx topic and forwards
// radio packets until the connection drops.
func session(client *mqtt.Client, varconn *mqtt.VariablesConnect, broker, txTopic string, b *bridge, pollPeriod time.Duration, logger *slog.Logger) error {
	logger.Info("mqtt:dial", slog.String("broker", broker))
	conn, err := net.DialTimeout("tcp", broker, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = client.Connect(ctx, conn, varconn)
	if err != nil {
		return err
	}
	err = client.Subscribe(ctx, mqtt.VariablesSubscribe{
		PacketIdentifier: uint16(rand.Int31()),
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: []byte(txTopic), QoS: mqtt.QoS0},
		},
	})
	if err != nil {
		return err
	}
	logger.Info("mqtt:subscribed", slog.String("topic", txTopic))

	go func() {
		for client.IsConnected() {
			err := client.HandleNext()
			if err != nil {
				logger.Error("mqtt:handle-next", slog.String("err", err.Error()))
			}
		}
	}()
	for client.IsConnected() {
		forwarded, err := b.poll()
		if err != nil {
			logger.Error("radio:rx", slog.String("err", err.Error()))
		}
		if !forwarded {
			time.Sleep(pollPeriod)
		}
	}
	return client.Err()
}

// simPeer drives a second simulated chip in easy mode that transmits a
// counter every few seconds, standing in for a remote radio node.
func simPeer(b *bridge, air *chipsim.Air, logger *slog.Logger) {
	chip := chipsim.New()
	b.mu.Lock()
	air.Link(chip)
	peer := nrf24.New(chip.SetCE, chip.SetCSN, chip, nrf24.Config{Logger: logger.With(slog.String("dev", "peer"))})
	err := peer.StartEasyMode()
	b.mu.Unlock()
	if err != nil {
		logger.Error("peer:start", slog.String("err", err.Error()))
		return
	}
	for i := 0; ; i++ {
		time.Sleep(3 * time.Second)
		b.mu.Lock()
		err = peer.Send([]byte("peer " + strconv.Itoa(i)))
		for err == nil {
			// Drain what the bridge transmitted to us.
			var frame nrf24.Frame
			frame, err = peer.Receive(nil)
			if len(frame) == 0 {
				break
			}
			logger.Info("peer:rx", slog.String("payload", string(frame.Payload())))
		}
		b.mu.Unlock()
		if err != nil {
			logger.Error("peer:send", slog.String("err", err.Error()))
		}
	}
}
