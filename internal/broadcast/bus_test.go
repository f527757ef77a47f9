// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopics(t *testing.T) {
	topics := NewTopics("de.relabs.capturing")
	assert.Equal(t, "de/relabs/capturing/ping", topics.Ping)
	assert.Equal(t, "de/relabs/capturing/pong", topics.Pong)
	assert.Equal(t, "de/relabs/capturing/started", topics.Started)
	assert.Equal(t, "de/relabs/capturing/stopped", topics.Stopped)
	assert.Equal(t, "de/relabs/capturing/notification", topics.Notification)

	assert.NotEqual(t, topics.Ping, NewTopics("com.example.other").Ping)
}

func TestMemoryBus_DeliversInOrder(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	got := make(chan string, 3)
	unsub, err := bus.Subscribe("a", func(p []byte) { got <- string(p) })
	require.NoError(t, err)
	defer unsub()

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish("a", []byte(p)))
	}
	for _, want := range []string{"1", "2", "3"} {
		select {
		case p := <-got:
			assert.Equal(t, want, p)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestMemoryBus_TopicIsolationAndUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	got := make(chan string, 4)
	unsub, err := bus.Subscribe("a", func(p []byte) { got <- string(p) })
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("a"))

	require.NoError(t, bus.Publish("b", []byte("other")))
	unsub()
	unsub()
	assert.Equal(t, 0, bus.Subscribers("a"))
	require.NoError(t, bus.Publish("a", []byte("late")))

	select {
	case p := <-got:
		t.Fatalf("unexpected delivery %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_PayloadIsCopied(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	got := make(chan []byte, 1)
	_, err := bus.Subscribe("a", func(p []byte) { got <- p })
	require.NoError(t, err)

	payload := []byte("abc")
	require.NoError(t, bus.Publish("a", payload))
	payload[0] = 'x'

	select {
	case p := <-got:
		assert.Equal(t, "abc", string(p))
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus()
	unsub, err := bus.Subscribe("a", func([]byte) {})
	require.NoError(t, err)
	bus.Close()
	bus.Close()
	unsub()

	assert.True(t, errors.Is(bus.Publish("a", nil), ErrClosed))
	_, err = bus.Subscribe("a", func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}
