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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sophiavoice/relay/config"
	"github.com/sophiavoice/relay/internal/ai"
	"github.com/sophiavoice/relay/internal/conversation"
	"github.com/sophiavoice/relay/internal/handlers"
	"github.com/sophiavoice/relay/internal/persona"
	"github.com/sophiavoice/relay/internal/relay"
	"github.com/sophiavoice/relay/internal/reply"
	"github.com/sophiavoice/relay/pkg/logger"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sophia-relay %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	cfg := config.Load()

	if err := logger.Init(cfg.Log.Path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L()

	// Sinks are enabled purely by configuration presence.
	var sheet relay.LeadLogger
	if cfg.Sheets.WebappURL != "" {
		sheet = relay.NewSheetSink(cfg.Sheets.WebappURL)
	}

	var alert relay.Sender
	switch {
	case cfg.Kafka.Brokers != "" && cfg.Twilio.OwnerPhone != "":
		alert = relay.NewOutbox(strings.Split(cfg.Kafka.Brokers, ","))
		log.Info("owner alerts queued via kafka", zap.String("topic", relay.OutboxTopic))
	case cfg.Twilio.Configured():
		alert = relay.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		log.Info("owner alerts sent directly")
	default:
		log.Info("owner alerts disabled (no credentials)")
	}

	dispatcher := relay.New(sheet, alert, cfg.Twilio.OwnerPhone, log)
	tracker := conversation.New(time.Duration(cfg.Session.TTLMinutes) * time.Minute)

	var completer ai.Completer
	if cfg.OpenAI.APIKey != "" {
		completer = ai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	composer := reply.New(completer, log)

	personas := persona.NewStore(cfg.Persona.Dir, log)

	h := handlers.New(cfg, tracker, dispatcher, composer, personas, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", h.Routes())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown error", zap.Error(err))
		}
		// Give in-flight sink deliveries a chance to land before exit.
		if err := dispatcher.Flush(ctx); err != nil {
			log.Warn("relay flush timed out", zap.Error(err))
		}
	}()

	log.Info("sophia-relay starting",
		zap.String("addr", addr),
		zap.Bool("sheets", dispatcher.SheetEnabled()),
		zap.Bool("alerts", dispatcher.AlertEnabled()),
		zap.Bool("openai", completer != nil))

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("server stopped")
}
