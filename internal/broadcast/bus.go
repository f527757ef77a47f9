// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broadcast is the process-independent announcement channel used for
// liveness ping/pong and the worker's started/stopped broadcasts.
package broadcast

import (
	"errors"
	"strings"
)

// ErrClosed is returned by a bus that has been closed.
var ErrClosed = errors.New("broadcast: bus closed")

// Bus publishes opaque payloads on topics and delivers them to every
// subscriber of that topic, in this or any other process.
type Bus interface {
	Publish(topic string, payload []byte) error
	// Subscribe registers handler for topic. The returned function removes
	// the subscription.
	Subscribe(topic string, handler func(payload []byte)) (unsubscribe func(), err error)
}

// Topics are the application-scoped broadcast actions. Scoping by APP_ID
// keeps co-installed consumers from answering each other's pings.
type Topics struct {
	Ping         string
	Pong         string
	Started      string
	Stopped      string
	Notification string
}

// NewTopics builds the topic set for appID ("de.relabs.capturing" becomes
// "de/relabs/capturing/ping" and so on).
func NewTopics(appID string) Topics {
	prefix := strings.ReplaceAll(strings.Trim(appID, "./"), ".", "/")
	return Topics{
		Ping:         prefix + "/ping",
		Pong:         prefix + "/pong",
		Started:      prefix + "/started",
		Stopped:      prefix + "/stopped",
		Notification: prefix + "/notification",
	}
}

// LifecycleAnnouncement is the payload of the started and stopped
// broadcasts.
type LifecycleAnnouncement struct {
	MeasurementID int64 `json:"measurement_id"`
	Success       bool  `json:"success"`
	StoppedItself bool  `json:"stopped_itself,omitempty"`
	// Failure names the error category when Success is false.
	Failure string `json:"failure,omitempty"`
}

// Failure categories carried by a LifecycleAnnouncement.
const (
	FailureConfiguration  = "configuration"
	FailureAlreadyRunning = "already_running"
	FailureNotRunning     = "not_running"
)

// PingRequest is the payload of a ping. The correlation id is optional.
type PingRequest struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PongReply echoes the correlation id of the ping it answers.
type PongReply struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}
