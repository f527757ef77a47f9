// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"time"

	"github.com/relabs-tech/trip_capture/internal/app"
	"github.com/relabs-tech/trip_capture/internal/config"
)

func main() {
	configPath := flag.String("config", "trip_capture_config.txt", "path to the config file")
	ping := flag.Duration("ping", 5*time.Second, "worker ping interval, 0 disables")
	httpAddr := flag.String("http", "", "serve /api/status on this address")
	flag.Parse()

	log.Println("starting trip-capture console (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(app.ConsoleOptions{PingInterval: *ping, HTTPAddr: *httpAddr}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
