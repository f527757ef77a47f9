// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/trip_capture/internal/platform"
)

// Decoder turns NMEA lines into platform events. It is not safe for
// concurrent use; one reader goroutine owns it.
type Decoder struct {
	current  Fix
	firstFix bool
}

// Feed decodes one line. Lines that are not NMEA sentences, or fail to
// parse, produce no events.
func (d *Decoder) Feed(line string) []platform.Event {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		return nil
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		return d.onRMC(sentence.(nmea.RMC))
	case nmea.TypeGGA:
		return d.onGGA(sentence.(nmea.GGA))
	case nmea.TypeGSA:
		m := sentence.(nmea.GSA)
		d.current.VDOP = m.VDOP
		if m.HDOP > 0 {
			d.current.HDOP = m.HDOP
		}
	case nmea.TypeGSV:
		m := sentence.(nmea.GSV)
		// one status per GSV cycle
		if m.MessageNumber == m.TotalMessages {
			return []platform.Event{platform.SatelliteStatusEvent{SatellitesInView: int(m.NumberSVsInView)}}
		}
	}
	return nil
}

func (d *Decoder) onRMC(m nmea.RMC) []platform.Event {
	d.current.Valid = m.Validity == nmea.ValidRMC
	if !d.current.Valid {
		return nil
	}
	d.current.Time = sentenceTime(m.Date, m.Time)
	d.current.Latitude = m.Latitude
	d.current.Longitude = m.Longitude
	d.current.SpeedMS = m.Speed * knotsToMetersPerSecond
	d.current.CourseDeg = m.Course

	events := d.firstFixEvent()
	return append(events, platform.LocationEvent{Location: d.current.GeoLocation()})
}

func (d *Decoder) onGGA(m nmea.GGA) []platform.Event {
	d.current.Quality = m.FixQuality
	if m.FixQuality == nmea.Invalid {
		// no altitude until the next valid GGA
		d.current.Altitude = nil
		return nil
	}
	alt := m.Altitude
	d.current.Altitude = &alt
	d.current.HDOP = m.HDOP
	return d.firstFixEvent()
}

func (d *Decoder) firstFixEvent() []platform.Event {
	if d.firstFix {
		return nil
	}
	d.firstFix = true
	return []platform.Event{platform.FirstFixEvent{}}
}

// Current returns the accumulated fix.
func (d *Decoder) Current() Fix {
	return d.current
}
