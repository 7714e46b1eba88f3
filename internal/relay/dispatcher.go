// sophia-relay - AI receptionist webhook relay
// Copyright (C) 2026  sophia-relay contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sophiavoice/relay/internal/event"
)

const (
	// sinkTimeout bounds each outbound sink call so a slow external
	// dependency cannot pin goroutines past the webhook response.
	sinkTimeout = 5 * time.Second

	// maxAlertRunes is the alerting channel's payload limit.
	maxAlertRunes = 1400
)

// LeadLogger is the logging-sink contract the dispatcher delivers records to.
type LeadLogger interface {
	Log(ctx context.Context, rec event.RelayRecord) error
}

// Stats reports delivery counters for the /status endpoint, so operators
// keep visibility into the at-most-once side channels without coupling the
// webhook reply to their reliability.
type Stats struct {
	SheetDelivered uint64 `json:"sheet_delivered"`
	SheetFailed    uint64 `json:"sheet_failed"`
	AlertDelivered uint64 `json:"alert_delivered"`
	AlertFailed    uint64 `json:"alert_failed"`
}

// Dispatcher fans events out to the configured sinks, fire-and-forget.
// A nil sink means that channel is disabled; a failing sink is logged,
// counted, and dropped — never retried, never surfaced to the caller.
type Dispatcher struct {
	sheet      LeadLogger
	alert      Sender
	ownerPhone string
	log        *zap.Logger

	wg sync.WaitGroup

	sheetDelivered atomic.Uint64
	sheetFailed    atomic.Uint64
	alertDelivered atomic.Uint64
	alertFailed    atomic.Uint64
}

// New creates a Dispatcher. sheet and alert may be nil to disable the
// respective sink; ownerPhone is the alert destination.
func New(sheet LeadLogger, alert Sender, ownerPhone string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sheet:      sheet,
		alert:      alert,
		ownerPhone: ownerPhone,
		log:        log,
	}
}

// Dispatch delivers rec to the logging sink in the background. It returns
// immediately; the webhook response never waits on the delivery.
func (d *Dispatcher) Dispatch(rec event.RelayRecord) {
	if d.sheet == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := d.sheet.Log(ctx, rec); err != nil {
			d.sheetFailed.Add(1)
			d.log.Warn("sheet delivery failed",
				zap.String("record_id", rec.ID),
				zap.String("channel", string(rec.Channel)),
				zap.Error(err))
			return
		}
		d.sheetDelivered.Add(1)
	}()
}

// Alert sends text to the owner phone in the background, truncated to the
// channel limit. Like Dispatch, it never blocks and never fails the caller.
func (d *Dispatcher) Alert(text string) {
	if d.alert == nil || d.ownerPhone == "" {
		return
	}
	msg := OutboundMessage{
		ID:   uuid.New().String(),
		To:   d.ownerPhone,
		Body: truncate(text, maxAlertRunes),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := d.alert.Send(ctx, msg); err != nil {
			d.alertFailed.Add(1)
			d.log.Warn("owner alert failed",
				zap.String("alert_id", msg.ID),
				zap.Error(err))
			return
		}
		d.alertDelivered.Add(1)
	}()
}

// SheetEnabled reports whether the logging sink is configured.
func (d *Dispatcher) SheetEnabled() bool { return d.sheet != nil }

// AlertEnabled reports whether the owner-alert sink is configured.
func (d *Dispatcher) AlertEnabled() bool { return d.alert != nil && d.ownerPhone != "" }

// Stats snapshots the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		SheetDelivered: d.sheetDelivered.Load(),
		SheetFailed:    d.sheetFailed.Load(),
		AlertDelivered: d.alertDelivered.Load(),
		AlertFailed:    d.alertFailed.Load(),
	}
}

// Flush waits for in-flight deliveries, or until ctx expires. Used by
// graceful shutdown and by tests that assert on sink attempts.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
