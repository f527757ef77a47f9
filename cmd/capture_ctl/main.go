// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/relabs-tech/trip_capture/internal/app"
	"github.com/relabs-tech/trip_capture/internal/config"
)

func main() {
	configPath := flag.String("config", "trip_capture_config.txt", "path to the config file")
	modality := flag.String("modality", "CAR", "modality of a new measurement")
	locationOnly := flag.Bool("location-only", false, "start without sensor capture")
	skipPermission := flag.Bool("skip-permission-check", false, "do not check access to the GNSS device")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] start|stop|pause|resume|status|watch\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	err := app.RunCaptureCtl(app.CtlOptions{
		Command:             flag.Arg(0),
		Modality:            *modality,
		LocationOnly:        *locationOnly,
		SkipPermissionCheck: *skipPermission,
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
