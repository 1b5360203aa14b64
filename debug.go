package nrf24

import (
	"context"
	"encoding/hex"
	"log/slog"
)

const (
	// levelTrace logs every SPI transaction. Very verbose.
	levelTrace slog.Level = slog.LevelDebug - 1
)

func (d *Device) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Device) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Device) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// traceTx logs a raw bus transaction. r may be nil for write-only transfers.
func (d *Device) traceTx(w, r []byte) {
	if !d._traceenabled {
		return
	}
	if r == nil {
		d.trace("spi:tx", slog.String("w", hex.EncodeToString(w)))
		return
	}
	d.trace("spi:tx", slog.String("w", hex.EncodeToString(w)), slog.String("r", hex.EncodeToString(r)))
}
