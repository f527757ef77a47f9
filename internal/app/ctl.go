// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/config"
	"github.com/relabs-tech/trip_capture/internal/controller"
	"github.com/relabs-tech/trip_capture/internal/fsutil"
	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/storage"
)

// CtlOptions are the command line settings of capture_ctl.
type CtlOptions struct {
	Command  string
	Modality string
	// LocationOnly starts without sensor capture.
	LocationOnly bool
	// SkipPermissionCheck skips the GNSS device access check, for replay
	// setups without a receiver.
	SkipPermissionCheck bool
}

// RunCaptureCtl performs one lifecycle command against the worker process
// and prints its outcome. "watch" binds to a running worker and prints
// captured data until SIGINT/SIGTERM.
func RunCaptureCtl(opts CtlOptions) error {
	cfg := config.Get()

	store, err := storage.Open(cfg.DBPath, nil)
	if err != nil {
		return err
	}
	defer store.Shutdown()

	bus, err := broadcast.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientIDController)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctlOpts := controller.Options{
		Persistence:      store,
		Bus:              bus,
		Topics:           broadcast.NewTopics(cfg.AppID),
		IPCURL:           cfg.IPCURL,
		UploadEndpoint:   cfg.UploadEndpoint,
		PingTimeout:      cfg.PingTimeout(),
		LifecycleTimeout: cfg.LifecycleTimeout(),
		StartTemplate: ipc.StartCommand{
			Authority:                cfg.DBPath,
			DistanceStrategy:         cfg.DistanceStrategy,
			LocationCleaningStrategy: cfg.LocationCleaningStrategy,
			EventHandlingStrategy:    cfg.EventHandlingStrategy,
			SensorFrequencyHz:        cfg.SensorFrequencyHz,
			NotificationChannelID:    cfg.NotificationChannelID,
			CaptureSensors:           !opts.LocationOnly,
		},
	}
	if !opts.SkipPermissionCheck {
		port := cfg.GPSSerialPort
		ctlOpts.Permissions = platform.PermissionFunc(func() bool { return fsutil.CanReadWrite(port) })
	}

	ctl, err := controller.New(ctlOpts)
	if err != nil {
		return err
	}
	defer ctl.Close()

	var results <-chan controller.Result
	switch opts.Command {
	case "start":
		modality, perr := model.ParseModality(opts.Modality)
		if perr != nil {
			return perr
		}
		results, err = ctl.Start(modality)
	case "stop":
		results, err = ctl.Stop()
	case "pause":
		results, err = ctl.Pause()
	case "resume":
		results, err = ctl.Resume()
	case "status", "watch":
		results, err = ctl.Reconnect(cfg.PingTimeout())
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
	if err != nil {
		return err
	}

	res := <-results
	if res.Err != nil {
		return res.Err
	}
	fmt.Printf("%s: measurement=%d ok=%t state=%s\n", opts.Command, res.MeasurementID, res.OK, ctl.State())

	if opts.Command != "watch" {
		return nil
	}
	if !res.OK {
		return fmt.Errorf("no running worker to watch")
	}

	l := &printingListener{out: os.Stdout, stopped: make(chan struct{}, 1)}
	ctl.AddListener(l)
	defer ctl.RemoveListener(l)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-l.stopped:
	}
	log.Println("ctl: unbinding")
	return nil
}

// printingListener writes controller callbacks in the console's line
// format.
type printingListener struct {
	out     io.Writer
	stopped chan struct{}
}

func (p *printingListener) OnFixAcquired() { fmt.Fprintln(p.out, "[FIX ] acquired") }
func (p *printingListener) OnFixLost()     { fmt.Fprintln(p.out, "[FIX ] lost") }

func (p *printingListener) OnNewGeoLocationAcquired(loc model.GeoLocation) {
	fmt.Fprintf(p.out, "[GPS ] ts=%d lat=%.6f lon=%.6f speed=%.1fm/s acc=%.1fm valid=%t\n",
		loc.Timestamp, loc.Latitude, loc.Longitude, loc.Speed, loc.Accuracy, loc.IsValid)
}

func (p *printingListener) OnNewSensorDataAcquired(d model.CapturedData) {
	fmt.Fprintf(p.out, "[DATA] acc=%d rot=%d dir=%d press=%d\n",
		len(d.Accelerations), len(d.Rotations), len(d.Directions), len(d.Pressures))
}

func (p *printingListener) OnCapturingStopped(id int64, stoppedItself bool) {
	fmt.Fprintf(p.out, "[STOP] measurement=%d stopped_itself=%t\n", id, stoppedItself)
	select {
	case p.stopped <- struct{}{}:
	default:
	}
}
