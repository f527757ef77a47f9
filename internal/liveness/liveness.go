// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package liveness implements the ping/pong round trip that tells a
// controller whether a capture worker is running, independent of any bound
// IPC connection.
package liveness

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

// Responder answers pings for as long as it is registered.
type Responder struct {
	bus    broadcast.Bus
	topics broadcast.Topics

	mu    sync.Mutex
	unsub func()
}

func NewResponder(bus broadcast.Bus, topics broadcast.Topics) *Responder {
	return &Responder{bus: bus, topics: topics}
}

// Register starts answering pings. Registering twice is a no-op.
func (r *Responder) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsub != nil {
		monitoring.Logf("liveness: WARNING: responder already registered")
		return nil
	}
	unsub, err := r.bus.Subscribe(r.topics.Ping, r.onPing)
	if err != nil {
		return fmt.Errorf("liveness: register responder: %w", err)
	}
	r.unsub = unsub
	return nil
}

// Unregister stops answering pings.
func (r *Responder) Unregister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsub == nil {
		return
	}
	r.unsub()
	r.unsub = nil
}

// Registered reports whether pings are currently answered.
func (r *Responder) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsub != nil
}

func (r *Responder) onPing(payload []byte) {
	var ping broadcast.PingRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ping); err != nil {
			monitoring.Logf("liveness: ignoring malformed ping: %v", err)
			return
		}
	}
	pong, err := json.Marshal(broadcast.PongReply{CorrelationID: ping.CorrelationID})
	if err != nil {
		monitoring.Logf("liveness: marshal pong: %v", err)
		return
	}
	if err := r.bus.Publish(r.topics.Pong, pong); err != nil {
		monitoring.Logf("liveness: publish pong: %v", err)
	}
}

// Pinger asks whether a worker is running.
type Pinger struct {
	bus    broadcast.Bus
	topics broadcast.Topics
	clock  timeutil.Clock
}

// NewPinger returns a pinger. A nil clock uses the system clock.
func NewPinger(bus broadcast.Bus, topics broadcast.Topics, clock timeutil.Clock) *Pinger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pinger{bus: bus, topics: topics, clock: clock}
}

// Ping broadcasts a ping and waits up to timeout for the matching pong.
// It returns false, nil when nothing answered in time. Pongs that arrive
// after Ping returned, or that carry another correlation id, are ignored.
func (p *Pinger) Ping(ctx context.Context, timeout time.Duration) (bool, error) {
	id := uuid.NewString()
	answered := make(chan struct{})
	var once sync.Once

	// Subscribe before publishing so a fast pong cannot be missed.
	unsub, err := p.bus.Subscribe(p.topics.Pong, func(payload []byte) {
		var pong broadcast.PongReply
		if err := json.Unmarshal(payload, &pong); err != nil || pong.CorrelationID != id {
			return
		}
		once.Do(func() { close(answered) })
	})
	if err != nil {
		return false, fmt.Errorf("liveness: subscribe pong: %w", err)
	}
	defer unsub()

	timer := p.clock.NewTimer(timeout)
	defer timer.Stop()

	payload, err := json.Marshal(broadcast.PingRequest{CorrelationID: id})
	if err != nil {
		return false, fmt.Errorf("liveness: marshal ping: %w", err)
	}
	if err := p.bus.Publish(p.topics.Ping, payload); err != nil {
		return false, fmt.Errorf("liveness: publish ping: %w", err)
	}

	select {
	case <-answered:
		return true, nil
	case <-timer.C():
		monitoring.Logf("liveness: ping %s timed out after %v", id, timeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
