// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"sync"
)

// MemoryBus is an in-process Bus. Each subscriber owns a delivery goroutine
// so a slow handler never blocks the publisher, and payloads on one
// subscription arrive in publish order.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[int]*memorySub
	nextID int
	closed bool
}

type memorySub struct {
	ch   chan []byte
	done chan struct{}
}

const memorySubBuffer = 64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]*memorySub)}
}

func (b *MemoryBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs[topic] {
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
			// Broadcasts are best effort, like the platform's.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, handler func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	s := &memorySub{ch: make(chan []byte, memorySubBuffer), done: make(chan struct{})}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*memorySub)
	}
	b.subs[topic][id] = s

	go func() {
		for {
			select {
			case msg := <-s.ch:
				handler(msg)
			case <-s.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][id]; !ok {
				return
			}
			delete(b.subs[topic], id)
			close(s.done)
		})
	}, nil
}

// Subscribers reports how many subscriptions topic currently has.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Close drops all subscriptions. Later calls fail with ErrClosed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.done)
		}
	}
	b.subs = nil
}
