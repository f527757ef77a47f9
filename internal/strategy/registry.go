// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package strategy

import (
	"sync"

	"github.com/relabs-tech/trip_capture/internal/capterr"
)

// Registry resolves the strategy names carried by a start command. Strategy
// objects cannot cross the process boundary, their names can.
type Registry struct {
	mu            sync.RWMutex
	distances     map[string]DistanceCalculation
	cleanings     map[string]LocationCleaning
	eventHandlers map[string]EventHandling
}

// NewRegistry returns a registry with the built-in strategies registered
// as "haversine", "default", "permissive" and "logging".
func NewRegistry() *Registry {
	r := &Registry{
		distances:     make(map[string]DistanceCalculation),
		cleanings:     make(map[string]LocationCleaning),
		eventHandlers: make(map[string]EventHandling),
	}
	r.RegisterDistance("haversine", HaversineDistance{})
	r.RegisterCleaning("default", DefaultLocationCleaning{})
	r.RegisterCleaning("permissive", PermissiveLocationCleaning{})
	r.RegisterEventHandling("logging", LoggingEventHandling{})
	return r
}

func (r *Registry) RegisterDistance(name string, s DistanceCalculation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distances[name] = s
}

func (r *Registry) RegisterCleaning(name string, s LocationCleaning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanings[name] = s
}

func (r *Registry) RegisterEventHandling(name string, s EventHandling) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventHandlers[name] = s
}

func (r *Registry) Distance(name string) (DistanceCalculation, error) {
	return lookup(r, r.distances, "distance calculation", name)
}

func (r *Registry) Cleaning(name string) (LocationCleaning, error) {
	return lookup(r, r.cleanings, "location cleaning", name)
}

func (r *Registry) EventHandling(name string) (EventHandling, error) {
	return lookup(r, r.eventHandlers, "event handling", name)
}

func lookup[T any](r *Registry, m map[string]T, kind, name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if name == "" {
		return zero, capterr.Configuration("missing %s strategy", kind)
	}
	s, ok := m[name]
	if !ok {
		return zero, capterr.Configuration("unknown %s strategy %q", kind, name)
	}
	return s, nil
}
