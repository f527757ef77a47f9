// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the capture packages into the processes started by
// the cmd binaries.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/config"
	"github.com/relabs-tech/trip_capture/internal/fsutil"
	"github.com/relabs-tech/trip_capture/internal/gps"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/power"
	"github.com/relabs-tech/trip_capture/internal/sensors"
	"github.com/relabs-tech/trip_capture/internal/strategy"
	"github.com/relabs-tech/trip_capture/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// WorkerOptions selects the hardware the worker process captures from.
type WorkerOptions struct {
	// ReplayNMEA replays a recorded NMEA log instead of reading the
	// serial receiver.
	ReplayNMEA string
	// NoSensors skips the SPI sensors, e.g. on a board with only a GNSS
	// receiver.
	NoSensors bool
}

// RunCaptureWorker runs the capture worker process until SIGINT/SIGTERM.
func RunCaptureWorker(opts WorkerOptions) error {
	cfg := config.Get()

	bus, err := broadcast.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWorker)
	if err != nil {
		return err
	}
	defer bus.Close()
	topics := broadcast.NewTopics(cfg.AppID)

	var locations platform.LocationManager
	if opts.ReplayNMEA != "" {
		log.Printf("worker: replaying NMEA log %s", opts.ReplayNMEA)
		locations = gps.NewReplayLocationManager(opts.ReplayNMEA, gps.ReplayOptions{Pace: true})
	} else {
		locations = gps.NewSerialLocationManager(cfg.GPSSerialPort, cfg.GPSBaudRate)
	}

	deps := worker.Deps{
		Bus:                bus,
		Topics:             topics,
		WakeLock:           &power.CountingWakeLock{},
		Notifier:           power.BusNotifier{Bus: bus, Topic: topics.Notification},
		Strategies:         strategy.NewRegistry(),
		Locations:          locations,
		Space:              fsutil.StatfsSpace{},
		MinFreeBytes:       cfg.MinFreeSpaceBytes(),
		ChunkSize:          cfg.ChunkSize,
		RolloverCorrection: cfg.RolloverCorrection(),
		RolloverTolerance:  cfg.RolloverTolerance(),
	}
	if !opts.NoSensors {
		sm, err := sensors.OpenPeriph(sensors.PeriphConfig{
			IMUSPIDevice: cfg.IMUSPIDevice,
			IMUCSPin:     cfg.IMUCSPin,
			BMPSPIDevice: cfg.BMPSPIDevice,
		}, nil)
		if err != nil {
			log.Printf("worker: WARNING: sensors unavailable, capturing locations only: %v", err)
		} else {
			defer sm.Close()
			deps.Sensors = sm
		}
	}

	host := worker.NewHost(deps)
	path, err := ipcPath(cfg.IPCURL)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(path, host.Handler())
	server := &http.Server{Addr: cfg.IPCListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("worker: listening on %s%s", cfg.IPCListenAddr, path)
		serveErr <- server.ListenAndServe()
	}()
	runDone := make(chan error, 1)
	go func() { runDone <- host.Run(ctx) }()

	var result error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
		stop()
		<-runDone
	case <-runDone:
		log.Println("worker: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker: http shutdown: %v", err)
	}
	return result
}

// ipcPath is the path part of the controller-side IPC URL; the worker
// serves the channel there.
func ipcPath(ipcURL string) (string, error) {
	u, err := url.Parse(ipcURL)
	if err != nil {
		return "", err
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}
