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

// alert-sender is a long-running Kafka consumer that reads owner alerts from
// the "alert-outbox" topic and delivers them via the SMS backend.
//
// Configuration is done entirely via environment variables so the binary runs
// identically in Docker, on bare metal, or in any CI environment:
//
//	KAFKA_BROKERS  comma-separated broker list, e.g. "kafka:9092"
//	TWILIO_SID     Twilio account SID (starts with "AC...")
//	TWILIO_AUTH    Twilio auth token
//	TWILIO_NUMBER  E.164 number the alerts are sent from
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/sophiavoice/relay/config"
	"github.com/sophiavoice/relay/internal/relay"
	"github.com/sophiavoice/relay/pkg/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.Log.Path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()

	// Startup-time misconfiguration should be loud and obvious rather than
	// surfacing as an auth failure later.
	if cfg.Kafka.Brokers == "" {
		log.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.FromNumber == "" {
		log.Fatal("TWILIO_SID, TWILIO_AUTH and TWILIO_NUMBER are required")
	}

	sender := relay.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	consumer := relay.NewConsumer(strings.Split(cfg.Kafka.Brokers, ","), sender, log)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warn("error closing consumer", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("alert-sender starting",
		zap.String("brokers", cfg.Kafka.Brokers),
		zap.String("from", cfg.Twilio.FromNumber))
	if err := consumer.Run(ctx); err != nil {
		log.Fatal("fatal consumer error", zap.Error(err))
	}
	log.Info("alert-sender shutdown complete")
}
