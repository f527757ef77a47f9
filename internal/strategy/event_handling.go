// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package strategy

import (
	"fmt"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/power"
)

// EventHandling reacts to worker events that need the hosting application.
type EventHandling interface {
	// HandleSpaceWarning is called when free disk space drops below the
	// configured threshold. The worker stops itself afterwards.
	HandleSpaceWarning(measurementID int64)
	// BuildCapturingNotification supplies the ongoing-capture indicator.
	BuildCapturingNotification(channelID string, measurementID int64) power.Notification
}

// LoggingEventHandling logs space warnings and builds a plain text
// notification.
type LoggingEventHandling struct{}

func (LoggingEventHandling) HandleSpaceWarning(measurementID int64) {
	monitoring.Logf("strategy: WARNING: low disk space, measurement %d will be stopped", measurementID)
}

func (LoggingEventHandling) BuildCapturingNotification(channelID string, measurementID int64) power.Notification {
	return power.Notification{
		ChannelID:     channelID,
		Title:         "Capturing",
		Text:          fmt.Sprintf("Measurement %d is running", measurementID),
		Ongoing:       true,
		MeasurementID: measurementID,
	}
}
