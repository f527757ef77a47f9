// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package liveness

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/timeutil"
)

func setup(t *testing.T) (*broadcast.MemoryBus, broadcast.Topics) {
	t.Helper()
	monitoring.SetLogger(nil)
	bus := broadcast.NewMemoryBus()
	t.Cleanup(bus.Close)
	return bus, broadcast.NewTopics("test.liveness")
}

func TestPing_NotRunningTimesOut(t *testing.T) {
	bus, topics := setup(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := NewPinger(bus, topics, clock)

	result := make(chan bool, 1)
	go func() {
		running, err := p.Ping(context.Background(), 500*time.Millisecond)
		assert.NoError(t, err)
		result <- running
	}()

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(500 * time.Millisecond)

	select {
	case running := <-result:
		assert.False(t, running)
	case <-time.After(time.Second):
		t.Fatal("ping did not time out")
	}
	assert.Equal(t, 0, bus.Subscribers(topics.Pong))
}

func TestPing_RunningWorkerAnswers(t *testing.T) {
	bus, topics := setup(t)
	r := NewResponder(bus, topics)
	require.NoError(t, r.Register())
	require.NoError(t, r.Register())
	defer r.Unregister()
	assert.Equal(t, 1, bus.Subscribers(topics.Ping))

	running, err := NewPinger(bus, topics, nil).Ping(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestPing_UnregisteredResponderIsSilent(t *testing.T) {
	bus, topics := setup(t)
	r := NewResponder(bus, topics)
	require.NoError(t, r.Register())
	r.Unregister()
	r.Unregister()
	assert.False(t, r.Registered())

	running, err := NewPinger(bus, topics, nil).Ping(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestPing_IgnoresForeignAndLatePongs(t *testing.T) {
	bus, topics := setup(t)

	// A fake worker that records ping ids and replies only when told to.
	pings := make(chan string, 4)
	_, err := bus.Subscribe(topics.Ping, func(payload []byte) {
		var req broadcast.PingRequest
		assert.NoError(t, json.Unmarshal(payload, &req))
		pings <- req.CorrelationID
	})
	require.NoError(t, err)
	pong := func(id string) {
		b, _ := json.Marshal(broadcast.PongReply{CorrelationID: id})
		require.NoError(t, bus.Publish(topics.Pong, b))
	}

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := NewPinger(bus, topics, clock)
	result := make(chan bool, 1)
	go func() {
		running, _ := p.Ping(context.Background(), time.Second)
		result <- running
	}()

	id := <-pings
	pong("someone-else")
	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Second)
	assert.False(t, <-result)

	// late and duplicate pongs for the timed-out request are dropped
	pong(id)
	pong(id)

	go func() {
		running, _ := p.Ping(context.Background(), time.Second)
		result <- running
	}()
	second := <-pings
	assert.NotEqual(t, id, second)
	pong(id)
	pong(second)
	pong(second)
	select {
	case running := <-result:
		assert.True(t, running)
	case <-time.After(time.Second):
		t.Fatal("second ping not answered")
	}
}

func TestPing_ContextCancelled(t *testing.T) {
	bus, topics := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	running, err := NewPinger(bus, topics, nil).Ping(ctx, time.Minute)
	assert.False(t, running)
	assert.ErrorIs(t, err, context.Canceled)
}
