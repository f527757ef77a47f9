// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"errors"
	"io"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
)

// ErrAlreadyRequested is returned by RequestUpdates while a reader runs.
var ErrAlreadyRequested = errors.New("gps: updates already requested")

// NMEALocationManager is a platform.LocationManager reading NMEA from a
// byte stream, normally a serial port.
type NMEALocationManager struct {
	open   func() (io.ReadCloser, error)
	replay *ReplayOptions

	mu   sync.Mutex
	port io.ReadCloser
	stop chan struct{}
	done chan struct{}
}

// NewSerialLocationManager reads from the serial port portName.
func NewSerialLocationManager(portName string, baudRate int) *NMEALocationManager {
	return NewLocationManager(func() (io.ReadCloser, error) {
		opts := serial.OpenOptions{
			PortName:              portName,
			BaudRate:              uint(baudRate),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		}
		port, err := serial.Open(opts)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("gps: serial port opened on %s at %d baud", portName, baudRate)
		return port, nil
	})
}

// NewLocationManager reads from whatever open returns. Each RequestUpdates
// opens a fresh stream.
func NewLocationManager(open func() (io.ReadCloser, error)) *NMEALocationManager {
	return &NMEALocationManager{open: open}
}

func (m *NMEALocationManager) RequestUpdates(h platform.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port != nil {
		return ErrAlreadyRequested
	}
	port, err := m.open()
	if err != nil {
		return err
	}
	m.port = port
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.read(port, h, m.newReplayTiming(), m.stop, m.done)
	return nil
}

// RemoveUpdates closes the stream and returns after the reader stopped
// calling the handler.
func (m *NMEALocationManager) RemoveUpdates() error {
	m.mu.Lock()
	port, stop, done := m.port, m.stop, m.done
	m.port, m.stop, m.done = nil, nil, nil
	m.mu.Unlock()
	if port == nil {
		return nil
	}
	close(stop)
	err := port.Close()
	<-done
	return err
}

func (m *NMEALocationManager) read(port io.Reader, h platform.Handler, timing *replayTiming, stop, done chan struct{}) {
	defer close(done)
	reader := bufio.NewReader(port)
	var dec Decoder
	for {
		line, err := reader.ReadString('\n')
		for _, ev := range dec.Feed(line) {
			if loc, ok := ev.(platform.LocationEvent); ok && timing != nil {
				if loc, ok = timing.retime(loc, stop); !ok {
					return
				}
				ev = loc
			}
			if !m.active(done) {
				return
			}
			h(ev)
		}
		if err != nil {
			if err != io.EOF && m.active(done) {
				monitoring.Logf("gps: read error: %v", err)
			}
			return
		}
	}
}

// active reports whether the reader owning done is still subscribed.
func (m *NMEALocationManager) active(done chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done == done
}
