// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package worker

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/trip_capture/internal/broadcast"
	"github.com/relabs-tech/trip_capture/internal/ipc"
)

type inbox struct {
	mu   sync.Mutex
	msgs []ipc.Message
}

func (in *inbox) add(m ipc.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.msgs = append(in.msgs, m)
}

func (in *inbox) count(what ipc.What) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, m := range in.msgs {
		if m.What == what {
			n++
		}
	}
	return n
}

func (in *inbox) last(what ipc.What) ipc.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := len(in.msgs) - 1; i >= 0; i-- {
		if in.msgs[i].What == what {
			return in.msgs[i]
		}
	}
	return ipc.Message{}
}

type hostFixture struct {
	*fixture
	host *Host
	url  string
}

func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()
	f := newFixture(t)
	h := NewHost(f.deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	hs := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		hs.Close()
	})
	return &hostFixture{fixture: f, host: h, url: "ws" + strings.TrimPrefix(hs.URL, "http")}
}

func (f *hostFixture) dial(t *testing.T) (*ipc.Conn, *inbox) {
	t.Helper()
	in := &inbox{}
	c, err := ipc.Dial(context.Background(), f.url, in.add)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Send(ipc.Message{What: ipc.RegisterClient, ClientID: c.ID()}))
	return c, in
}

func (f *hostFixture) waitAnnouncements(t *testing.T, started, stopped int) ([]broadcast.LifecycleAnnouncement, []broadcast.LifecycleAnnouncement) {
	t.Helper()
	require.Eventually(t, func() bool {
		a, o := f.ann.snapshot()
		return len(a) == started && len(o) == stopped
	}, 2*time.Second, time.Millisecond)
	return f.ann.snapshot()
}

func TestHost_StartCaptureStop(t *testing.T) {
	f := newHostFixture(t)
	conn, in := f.dial(t)

	cmd := f.command()
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing, MeasurementID: cmd.MeasurementID, Start: &cmd}))
	started, _ := f.waitAnnouncements(t, 1, 0)
	assert.True(t, started[0].Success)
	require.Eventually(t, func() bool { return f.host.Clients().Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.locations.EmitFirstFix())
	require.NoError(t, f.locations.EmitLocation(loc(1000, 51.05, 13.73)))
	require.Eventually(t, func() bool { return in.count(ipc.LocationCaptured) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, in.count(ipc.GeolocationFix))

	require.NoError(t, conn.Send(ipc.Message{What: ipc.StopCapturing, MeasurementID: cmd.MeasurementID}))
	_, stopped := f.waitAnnouncements(t, 1, 1)
	assert.Equal(t, broadcast.LifecycleAnnouncement{MeasurementID: cmd.MeasurementID, Success: true}, stopped[0])
	require.Eventually(t, func() bool { return in.count(ipc.ServiceStopped) == 1 }, time.Second, time.Millisecond)
	assert.True(t, in.last(ipc.ServiceStopped).Success)
	assert.False(t, f.wake.Held())
}

func TestHost_StartWhileRunningIsIgnored(t *testing.T) {
	f := newHostFixture(t)
	conn, _ := f.dial(t)

	cmd := f.command()
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing, Start: &cmd}))
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing, Start: &cmd}))

	started, _ := f.waitAnnouncements(t, 2, 0)
	assert.True(t, started[0].Success)
	assert.Equal(t, broadcast.FailureAlreadyRunning, started[1].Failure)
	acquires, _ := f.wake.Counts()
	assert.Equal(t, 1, acquires)
}

func TestHost_StartWithBadParametersFails(t *testing.T) {
	f := newHostFixture(t)
	conn, _ := f.dial(t)

	cmd := f.command()
	cmd.DistanceStrategy = "manhattan"
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing, Start: &cmd}))
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing}))

	started, _ := f.waitAnnouncements(t, 2, 0)
	for _, a := range started {
		assert.False(t, a.Success)
		assert.Equal(t, broadcast.FailureConfiguration, a.Failure)
	}
	assert.False(t, f.wake.Held())
	assert.False(t, f.locations.Registered())
}

func TestHost_StopWithoutWorker(t *testing.T) {
	f := newHostFixture(t)
	conn, in := f.dial(t)

	require.NoError(t, conn.Send(ipc.Message{What: ipc.StopCapturing, MeasurementID: 5}))
	_, stopped := f.waitAnnouncements(t, 0, 1)
	assert.Equal(t, broadcast.FailureNotRunning, stopped[0].Failure)
	require.Eventually(t, func() bool { return in.count(ipc.ServiceStopped) == 1 }, time.Second, time.Millisecond)
	assert.False(t, in.last(ipc.ServiceStopped).Success)
}

func TestHost_StopForOtherMeasurementKeepsWorker(t *testing.T) {
	f := newHostFixture(t)
	conn, in := f.dial(t)

	cmd := f.command()
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StartCapturing, MeasurementID: cmd.MeasurementID, Start: &cmd}))
	f.waitAnnouncements(t, 1, 0)

	stale := cmd.MeasurementID + 1
	require.NoError(t, conn.Send(ipc.Message{What: ipc.StopCapturing, MeasurementID: stale}))
	_, stopped := f.waitAnnouncements(t, 1, 1)
	assert.Equal(t, broadcast.LifecycleAnnouncement{MeasurementID: stale, Failure: broadcast.FailureNotRunning}, stopped[0])
	require.Eventually(t, func() bool { return in.count(ipc.ServiceStopped) == 1 }, time.Second, time.Millisecond)
	assert.False(t, in.last(ipc.ServiceStopped).Success)
	assert.True(t, f.wake.Held())
	assert.True(t, f.locations.Registered())

	require.NoError(t, conn.Send(ipc.Message{What: ipc.StopCapturing, MeasurementID: cmd.MeasurementID}))
	_, stopped = f.waitAnnouncements(t, 1, 2)
	assert.True(t, stopped[1].Success)
	assert.False(t, f.wake.Held())
}

func TestHost_DisconnectedClientIsForgotten(t *testing.T) {
	f := newHostFixture(t)
	conn, _ := f.dial(t)
	require.Eventually(t, func() bool { return f.host.Clients().Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.host.Clients().Len() == 0 }, time.Second, time.Millisecond)
}

func TestHost_RunStopDestroysWorker(t *testing.T) {
	f := newFixture(t)
	h := NewHost(f.deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	cmd := f.command()
	h.post(func() { h.start(ipc.Message{What: ipc.StartCapturing, Start: &cmd}) })
	f.waitStarted(t)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, f.wake.Held())
	assert.False(t, f.locations.Registered())
}

func (f *fixture) waitStarted(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		started, _ := f.ann.snapshot()
		return len(started) == 1
	}, 2*time.Second, time.Millisecond)
}
