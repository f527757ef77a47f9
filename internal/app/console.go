// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/config"
	"github.com/relabs-tech/trip_capture/internal/liveness"
	"github.com/relabs-tech/trip_capture/internal/power"
)

// ConsoleOptions are the command line settings of capture_console.
type ConsoleOptions struct {
	// PingInterval is how often the worker is pinged; zero disables pings.
	PingInterval time.Duration
	// HTTPAddr serves /api/status when not empty.
	HTTPAddr string
}

// ConsoleStatus is the latest view of the worker seen on the bus.
type ConsoleStatus struct {
	Running      bool                             `json:"running"`
	LastPing     time.Time                        `json:"last_ping,omitempty"`
	LastStarted  *broadcast.LifecycleAnnouncement `json:"last_started,omitempty"`
	LastStopped  *broadcast.LifecycleAnnouncement `json:"last_stopped,omitempty"`
	Notification *power.Notification              `json:"notification,omitempty"`
}

// console prints lifecycle broadcasts and keeps the latest status.
type console struct {
	out io.Writer

	mu     sync.RWMutex
	status ConsoleStatus
}

func (c *console) snapshot() ConsoleStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *console) onStarted(payload []byte) {
	var a broadcast.LifecycleAnnouncement
	if err := json.Unmarshal(payload, &a); err != nil {
		log.Printf("console: started unmarshal error: %v", err)
		return
	}
	fmt.Fprintf(c.out, "[START] measurement=%d success=%t failure=%s\n", a.MeasurementID, a.Success, a.Failure)
	c.mu.Lock()
	c.status.LastStarted = &a
	c.mu.Unlock()
}

func (c *console) onStopped(payload []byte) {
	var a broadcast.LifecycleAnnouncement
	if err := json.Unmarshal(payload, &a); err != nil {
		log.Printf("console: stopped unmarshal error: %v", err)
		return
	}
	fmt.Fprintf(c.out, "[STOP ] measurement=%d success=%t stopped_itself=%t failure=%s\n",
		a.MeasurementID, a.Success, a.StoppedItself, a.Failure)
	c.mu.Lock()
	c.status.LastStopped = &a
	c.mu.Unlock()
}

func (c *console) onNotification(payload []byte) {
	var n power.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		log.Printf("console: notification unmarshal error: %v", err)
		return
	}
	fmt.Fprintf(c.out, "[NOTE ] channel=%s ongoing=%t %s: %s\n", n.ChannelID, n.Ongoing, n.Title, n.Text)
	c.mu.Lock()
	if n.Ongoing {
		c.status.Notification = &n
	} else {
		c.status.Notification = nil
	}
	c.mu.Unlock()
}

func (c *console) onPing(running bool, at time.Time) {
	c.mu.Lock()
	changed := c.status.Running != running || c.status.LastPing.IsZero()
	c.status.Running = running
	c.status.LastPing = at
	c.mu.Unlock()
	if changed {
		fmt.Fprintf(c.out, "[PING ] worker running=%t\n", running)
	}
}

func (c *console) serveStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.snapshot()); err != nil {
		log.Printf("console: status encode error: %v", err)
	}
}

// subscribe attaches the console to the lifecycle topics.
func (c *console) subscribe(bus broadcast.Bus, topics broadcast.Topics) (func(), error) {
	var unsubs []func()
	unsubscribe := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for _, s := range []struct {
		topic   string
		handler func([]byte)
	}{
		{topics.Started, c.onStarted},
		{topics.Stopped, c.onStopped},
		{topics.Notification, c.onNotification},
	} {
		unsub, err := bus.Subscribe(s.topic, s.handler)
		if err != nil {
			unsubscribe()
			return nil, err
		}
		unsubs = append(unsubs, unsub)
		log.Printf("console: subscribed to %s", s.topic)
	}
	return unsubscribe, nil
}

// RunConsole prints worker lifecycle broadcasts until SIGINT/SIGTERM.
func RunConsole(opts ConsoleOptions) error {
	cfg := config.Get()

	bus, err := broadcast.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientIDController+"-console")
	if err != nil {
		return err
	}
	defer bus.Close()

	topics := broadcast.NewTopics(cfg.AppID)
	c := &console{out: os.Stdout}
	unsubscribe, err := c.subscribe(bus, topics)
	if err != nil {
		return err
	}
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/status", c.serveStatus)
		server := &http.Server{Addr: opts.HTTPAddr, Handler: mux}
		go func() {
			log.Printf("console: status on http://%s/api/status", opts.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("console: http server: %v", err)
			}
		}()
		defer server.Close()
	}

	if opts.PingInterval > 0 {
		go c.pingLoop(ctx, liveness.NewPinger(bus, topics, nil), opts.PingInterval, cfg.PingTimeout())
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

func (c *console) pingLoop(ctx context.Context, pinger *liveness.Pinger, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		running, err := pinger.Ping(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("console: ping error: %v", err)
		} else {
			c.onPing(running, time.Now())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
