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
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// OutboxTopic is where the server publishes owner alerts it wants sent
	// as SMS when the queued path is configured.
	OutboxTopic = "alert-outbox"

	// DLQTopic is where alerts that exhaust all retries are written so they
	// can be inspected and replayed manually without blocking the consumer.
	DLQTopic = "alert-dlq"

	// maxRetries is the number of delivery attempts before an alert is
	// routed to the DLQ. Each attempt adds a short backoff.
	maxRetries = 3
)

// Outbox publishes OutboundMessages to the alert-outbox topic. It satisfies
// Sender, so the dispatcher treats the queue exactly like a direct backend:
// the durability upgrade is invisible to the webhook path.
type Outbox struct {
	writer *kafka.Writer
}

// NewOutbox creates an Outbox connected to the given brokers.
func NewOutbox(brokers []string) *Outbox {
	return &Outbox{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        OutboxTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Send publishes msg as JSON, keyed by its ID.
func (o *Outbox) Send(ctx context.Context, msg OutboundMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := o.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID),
		Value: value,
	}); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close releases the writer.
func (o *Outbox) Close() error { return o.writer.Close() }

// Consumer reads OutboundMessages from the alert-outbox topic and delivers
// them via a Sender. Offsets are committed only after the message has been
// handled, giving at-least-once semantics on this leg.
//
// On repeated failure an alert is forwarded to alert-dlq so the consumer can
// keep making progress without losing the problematic record. At-least-once
// is acceptable for owner alerts: a duplicate text beats a silent miss, and
// the message ID lets duplicates be spotted when replaying a partition.
type Consumer struct {
	reader *kafka.Reader
	dlq    messageWriter
	sender Sender
	log    *zap.Logger

	// retryDelay scales the backoff between attempts (attempt * 2 * retryDelay).
	retryDelay time.Duration
}

// messageWriter is the slice of kafka.Writer the consumer needs for DLQ
// routing; a fake stands in during tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewConsumer creates a Consumer connected to the given Kafka brokers.
func NewConsumer(brokers []string, sender Sender, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          OutboxTopic,
		GroupID:        "sophia-relay-alert-sender",
		MinBytes:       1,
		MaxBytes:       1 << 20, // 1 MiB
		CommitInterval: 0,       // explicit commits only
		StartOffset:    kafka.LastOffset,
	})

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Consumer{
		reader:     reader,
		dlq:        dlq,
		sender:     sender,
		log:        log,
		retryDelay: time.Second,
	}
}

// Run blocks, consuming alerts until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("alert-sender consuming", zap.String("topic", OutboxTopic))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Clean shutdown.
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.dispatch(ctx, m); err != nil {
			// dispatch already routed the message to the DLQ. We still
			// commit so the consumer does not get stuck on it.
			c.log.Warn("alert routed to DLQ",
				zap.String("key", string(m.Key)),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Warn("commit failed, alert may be redelivered", zap.Error(err))
		}
	}
}

// Close releases all Kafka resources.
func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// dispatch attempts to deliver m up to maxRetries times with backoff. If all
// attempts fail it writes the raw Kafka message to the DLQ.
func (c *Consumer) dispatch(ctx context.Context, m kafka.Message) error {
	var msg OutboundMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return c.sendToDLQ(ctx, m, fmt.Errorf("unmarshal: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = c.sender.Send(ctx, msg)
		if lastErr == nil {
			c.log.Info("alert delivered",
				zap.String("alert_id", msg.ID),
				zap.String("to", msg.To),
				zap.Int("attempt", attempt))
			return nil
		}

		c.log.Warn("alert delivery attempt failed",
			zap.String("alert_id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(lastErr))

		if attempt < maxRetries {
			backoff := time.Duration(attempt) * 2 * c.retryDelay
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.sendToDLQ(ctx, m, lastErr)
}

// sendToDLQ writes the original raw Kafka message to the dead-letter topic so
// it can be inspected and replayed without blocking the main consumer.
func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
	})
	if err != nil {
		c.log.Error("could not write to DLQ", zap.Error(err))
	}
	return reason
}
