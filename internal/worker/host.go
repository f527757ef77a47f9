// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// Host is the long-lived endpoint of the worker process. It accepts bound
// controllers over ipc, creates a Worker on START_CAPTURING and destroys it
// on STOP_CAPTURING. All inbound messages are handled one at a time on the
// goroutine running Run.
type Host struct {
	deps    Deps
	clients *ClientRegistry
	server  *ipc.Server
	inbox   chan func()
	done    chan struct{}

	// Owned by the Run goroutine.
	worker *Worker
}

const inboxSize = 64

func NewHost(deps Deps) *Host {
	deps.setDefaults()
	h := &Host{
		deps:    deps,
		clients: NewClientRegistry(),
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
	}
	h.server = ipc.NewServer(h.onMessage, h.onClosed)
	return h
}

// Handler serves the bound channel.
func (h *Host) Handler() http.Handler { return h.server }

// Clients returns the registry of bound controllers.
func (h *Host) Clients() *ClientRegistry { return h.clients }

// Run processes inbound messages until ctx is done, then destroys a running
// worker and closes all connections.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case fn := <-h.inbox:
			fn()
		case <-ctx.Done():
			if h.worker != nil {
				h.worker.Destroy()
				h.worker = nil
			}
			h.server.Close()
			return ctx.Err()
		}
	}
}

func (h *Host) post(fn func()) {
	select {
	case h.inbox <- fn:
	case <-h.done:
	}
}

func (h *Host) onMessage(c *ipc.Conn, msg ipc.Message) {
	h.post(func() { h.handle(c, msg) })
}

func (h *Host) onClosed(c *ipc.Conn) {
	h.post(func() { h.clients.Remove(c.ID()) })
}

func (h *Host) handle(c Client, msg ipc.Message) {
	switch msg.What {
	case ipc.RegisterClient:
		if !h.clients.Add(c) {
			monitoring.Logf("worker: WARNING: client %s registered twice", c.ID())
		}
	case ipc.StartCapturing:
		h.start(msg)
	case ipc.StopCapturing:
		h.stop(c, msg.MeasurementID)
	default:
		monitoring.Logf("worker: ignoring %s from client %s", msg.What, c.ID())
	}
}

func (h *Host) start(msg ipc.Message) {
	if msg.Start == nil {
		h.announceFailure(h.deps.Topics.Started, msg.MeasurementID, broadcast.FailureConfiguration)
		monitoring.Logf("worker: START_CAPTURING without start parameters")
		return
	}
	id := msg.Start.MeasurementID
	if h.worker != nil && h.worker.State() != StateDestroyed {
		monitoring.Logf("worker: ignoring start of %d, measurement %d is running", id, h.worker.MeasurementID())
		h.announceFailure(h.deps.Topics.Started, id, broadcast.FailureAlreadyRunning)
		return
	}

	w := NewWorker(h.deps, h.clients, h.stopSelf)
	if err := w.Create(); err != nil {
		monitoring.Logf("worker: create: %v", err)
		h.announceFailure(h.deps.Topics.Started, id, broadcast.FailureConfiguration)
		return
	}
	if err := w.Start(*msg.Start); err != nil {
		monitoring.Logf("worker: start of measurement %d failed: %v", id, err)
		w.Destroy()
		h.announceFailure(h.deps.Topics.Started, id, broadcast.FailureConfiguration)
		return
	}
	h.worker = w
}

func (h *Host) stop(c Client, id int64) {
	if h.worker != nil && h.worker.State() == StateDestroyed {
		h.worker = nil
	}
	if h.worker == nil || h.worker.MeasurementID() != id {
		if h.worker == nil {
			monitoring.Logf("worker: stop of %d requested but nothing is running", id)
		} else {
			monitoring.Logf("worker: ignoring stop of %d, measurement %d is running", id, h.worker.MeasurementID())
		}
		if err := c.Send(ipc.Message{What: ipc.ServiceStopped, MeasurementID: id}); err != nil {
			monitoring.Logf("worker: WARNING: reply to client %s: %v", c.ID(), err)
		}
		h.announceFailure(h.deps.Topics.Stopped, id, broadcast.FailureNotRunning)
		return
	}
	h.worker.Destroy()
	h.worker = nil
}

// stopSelf is called from a sampler executor; the destroy runs on the Run
// goroutine.
func (h *Host) stopSelf(w *Worker) {
	go h.post(func() {
		w.StopItself()
		if h.worker == w {
			h.worker = nil
		}
	})
}

func (h *Host) announceFailure(topic string, id int64, failure string) {
	payload, err := json.Marshal(broadcast.LifecycleAnnouncement{MeasurementID: id, Failure: failure})
	if err != nil {
		return
	}
	if err := h.deps.Bus.Publish(topic, payload); err != nil {
		monitoring.Logf("worker: WARNING: publish %s: %v", topic, err)
	}
}
