// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/liveness"
	"github.com/relabs-tech/trip_capture/internal/model"
	"github.com/relabs-tech/trip_capture/internal/power"
)

// safeBuffer is written by bus delivery goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestIPCPath(t *testing.T) {
	for in, want := range map[string]string{
		"ws://127.0.0.1:8765/ipc": "/ipc",
		"ws://localhost:9000":     "/",
	} {
		got, err := ipcPath(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ipcPath("ws://[::1")
	assert.Error(t, err)
}

func publishJSON(t *testing.T, bus broadcast.Bus, topic string, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(topic, payload))
}

func TestConsole_TracksLifecycle(t *testing.T) {
	bus := broadcast.NewMemoryBus()
	defer bus.Close()
	topics := broadcast.NewTopics("test.console")

	var out safeBuffer
	c := &console{out: &out}
	unsubscribe, err := c.subscribe(bus, topics)
	require.NoError(t, err)
	defer unsubscribe()

	publishJSON(t, bus, topics.Started, broadcast.LifecycleAnnouncement{MeasurementID: 7, Success: true})
	publishJSON(t, bus, topics.Notification, power.Notification{ChannelID: "capturing", Title: "Capturing", Ongoing: true, MeasurementID: 7})
	require.Eventually(t, func() bool {
		s := c.snapshot()
		return s.LastStarted != nil && s.Notification != nil
	}, time.Second, time.Millisecond)

	publishJSON(t, bus, topics.Stopped, broadcast.LifecycleAnnouncement{MeasurementID: 7, Success: true, StoppedItself: true})
	publishJSON(t, bus, topics.Notification, power.Notification{ChannelID: "capturing"})
	require.Eventually(t, func() bool {
		s := c.snapshot()
		return s.LastStopped != nil && s.Notification == nil
	}, time.Second, time.Millisecond)

	s := c.snapshot()
	assert.Equal(t, int64(7), s.LastStarted.MeasurementID)
	assert.True(t, s.LastStopped.StoppedItself)
	assert.Contains(t, out.String(), "[START] measurement=7 success=true")
	assert.Contains(t, out.String(), "stopped_itself=true")
}

func TestConsole_StatusEndpoint(t *testing.T) {
	c := &console{out: &bytes.Buffer{}}
	c.onPing(true, time.Unix(1_760_000_000, 0))

	rec := httptest.NewRecorder()
	c.serveStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got ConsoleStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Running)
	assert.Nil(t, got.LastStarted)
}

func TestConsole_PingLoopReportsChanges(t *testing.T) {
	bus := broadcast.NewMemoryBus()
	defer bus.Close()
	topics := broadcast.NewTopics("test.console.ping")
	responder := liveness.NewResponder(bus, topics)
	require.NoError(t, responder.Register())
	defer responder.Unregister()

	var out safeBuffer
	c := &console{out: &out}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.pingLoop(ctx, liveness.NewPinger(bus, topics, nil), 5*time.Millisecond, 100*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.snapshot().Running }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1, strings.Count(out.String(), "[PING ]"), "unchanged results are printed once")
}

func TestPrintingListener(t *testing.T) {
	var out bytes.Buffer
	l := &printingListener{out: &out, stopped: make(chan struct{}, 1)}
	l.OnFixAcquired()
	l.OnNewGeoLocationAcquired(model.GeoLocation{Timestamp: 1, Latitude: 51.05, Longitude: 13.73, IsValid: true})
	l.OnNewSensorDataAcquired(model.CapturedData{Accelerations: make([]model.Point3D, 3)})
	l.OnCapturingStopped(4, false)
	l.OnCapturingStopped(4, false)

	assert.Contains(t, out.String(), "[FIX ] acquired")
	assert.Contains(t, out.String(), "lat=51.050000")
	assert.Contains(t, out.String(), "[DATA] acc=3 rot=0")
	assert.Len(t, l.stopped, 1)
}
