// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package controller

import (
	"context"
	"sync"
)

type operation func(ctx context.Context)

// opQueue runs operations one at a time in submission order. Pushing never
// blocks, so it is safe while holding the controller mutex.
type opQueue struct {
	mu      sync.Mutex
	pending []operation
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newOpQueue() *opQueue {
	return &opQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push appends op. It returns false once the queue has stopped.
func (q *opQueue) push(op operation) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *opQueue) pop() (operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	op := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return op, true
}

// run executes operations until ctx is done. Operations still pending then
// run with the cancelled context so every caller gets a result.
func (q *opQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		if op, ok := q.pop(); ok {
			op(ctx)
			continue
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			rest := q.pending
			q.pending = nil
			q.mu.Unlock()
			for _, op := range rest {
				op(ctx)
			}
			return
		}
	}
}
