// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/trip_capture/internal/app"
	"github.com/relabs-tech/trip_capture/internal/config"
)

func main() {
	configPath := flag.String("config", "trip_capture_config.txt", "path to the config file")
	replay := flag.String("replay", "", "replay an NMEA log instead of the serial receiver")
	noSensors := flag.Bool("no-sensors", false, "capture locations only")
	flag.Parse()

	log.Println("starting trip-capture worker")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCaptureWorker(app.WorkerOptions{ReplayNMEA: *replay, NoSensors: *noSensors}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
