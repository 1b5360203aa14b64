package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/nrf24"
	"github.com/soypat/nrf24/internal/chipsim"
)

func newLinked(t *testing.T) (b *bridge, peer *nrf24.Device, published *[][]byte) {
	t.Helper()
	var air chipsim.Air
	chipA, chipB := chipsim.New(), chipsim.New()
	air.Link(chipA, chipB)
	dev := nrf24.New(chipA.SetCE, chipA.SetCSN, chipA, nrf24.Config{})
	peer = nrf24.New(chipB.SetCE, chipB.SetCSN, chipB, nrf24.Config{})
	for _, d := range []*nrf24.Device{dev, peer} {
		if err := d.StartEasyMode(); err != nil {
			t.Fatal(err)
		}
	}
	published = new([][]byte)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b = newBridge(dev, logger, func(payload []byte) error {
		*published = append(*published, append([]byte(nil), payload...))
		return nil
	})
	return b, peer, published
}

func TestBridgeForwardsRadio(t *testing.T) {
	b, peer, published := newLinked(t)
	forwarded, err := b.poll()
	if err != nil || forwarded {
		t.Fatal("nothing to forward yet", forwarded, err)
	}
	err = peer.Send([]byte("temp=21.5"))
	if err != nil {
		t.Fatal(err)
	}
	forwarded, err = b.poll()
	if err != nil || !forwarded {
		t.Fatal("packet not forwarded", err)
	}
	if len(*published) != 1 || string((*published)[0]) != "temp=21.5" {
		t.Errorf("published %q", *published)
	}
}

func TestBridgeTransmitsMQTT(t *testing.T) {
	b, peer, _ := newLinked(t)
	varPub := mqtt.VariablesPublish{TopicName: []byte("radio/nrf24/tx")}
	err := b.onPub(mqtt.Header{}, varPub, strings.NewReader("led=on"))
	if err != nil {
		t.Fatal(err)
	}
	frame, err := peer.Receive(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame.Payload(), []byte("led=on")) {
		t.Errorf("peer received %q", frame.Payload())
	}

	// Oversized publications are dropped without killing the connection.
	oversized := &io.LimitedReader{R: bytes.NewReader(make([]byte, 100)), N: 40}
	err = b.onPub(mqtt.Header{}, varPub, oversized)
	if err != nil {
		t.Fatal(err)
	}
	if oversized.N != 0 {
		t.Errorf("%d payload bytes left unread", oversized.N)
	}
	if frame, _ = peer.Receive(nil); len(frame) != 0 {
		t.Error("oversized payload transmitted")
	}
	if err = b.transmit(make([]byte, 33)); err != errLongPayload {
		t.Error("want errLongPayload, got", err)
	}
}
