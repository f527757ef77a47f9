// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import (
	"sync"

	"github.com/relabs-tech/trip_capture/internal/ipc"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// Client is a reply channel to one bound controller.
type Client interface {
	ID() string
	Send(ipc.Message) error
}

// ClientRegistry is the set of bound controllers. It grows on
// REGISTER_CLIENT and shrinks when a delivery fails.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[string]Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]Client)}
}

// Add registers c. It returns false if c was already registered.
func (r *ClientRegistry) Add(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID()]; ok {
		return false
	}
	r.clients[c.ID()] = c
	return true
}

func (r *ClientRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Snapshot returns a copy of the registered clients.
func (r *ClientRegistry) Snapshot() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast sends msg to every registered client. A client whose send fails
// is removed; the others still receive the message.
func (r *ClientRegistry) Broadcast(msg ipc.Message) {
	for _, c := range r.Snapshot() {
		if err := c.Send(msg); err != nil {
			monitoring.Logf("worker: WARNING: dropping client %s: %v", c.ID(), err)
			r.Remove(c.ID())
		}
	}
}
