// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
	"github.com/relabs-tech/trip_capture/internal/platform"
	"github.com/relabs-tech/trip_capture/internal/timebase"
)

const (
	standardGravity = 9.80665
	// full-scale ±2 g and ±250 °/s
	accelLSBPerG     = 16384.0
	gyroLSBPerDegSec = 131.0
)

// PeriphConfig names the SPI devices of the board.
type PeriphConfig struct {
	IMUSPIDevice string // e.g. /dev/spidev0.0
	IMUCSPin     string // GPIO name of the IMU chip select
	BMPSPIDevice string // empty skips the barometer
}

// OpenPeriph initializes the MPU9250 and BMP280 over SPI. A device that
// fails to initialize is reported absent instead of failing the whole
// board; the magnetometer is always absent.
func OpenPeriph(cfg PeriphConfig, clocks timebase.Clocks) (*PollingSensorManager, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensors: periph host init: %w", err)
	}

	readers := make(map[platform.SensorType]Reader)
	var closers []func() error

	if imu, err := openIMU(cfg.IMUSPIDevice, cfg.IMUCSPin); err != nil {
		monitoring.Logf("sensors: WARNING: IMU unavailable: %v", err)
	} else {
		readers[platform.Accelerometer] = imu.acceleration
		readers[platform.Gyroscope] = imu.rotation
	}

	if cfg.BMPSPIDevice != "" {
		if bmp, closer, err := openBarometer(cfg.BMPSPIDevice); err != nil {
			monitoring.Logf("sensors: WARNING: barometer unavailable: %v", err)
		} else {
			readers[platform.Barometer] = bmp
			closers = append(closers, closer)
		}
	}

	if len(readers) == 0 {
		return nil, fmt.Errorf("sensors: no sensor could be initialized")
	}
	m := NewPollingSensorManager(readers, clocks)
	m.closers = closers
	return m, nil
}

type imuDevice struct {
	dev *mpu9250.MPU9250
}

func openIMU(spiDev, csPin string) (*imuDevice, error) {
	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("CS pin %q not found", csPin)
	}
	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("SPI transport (%s): %w", spiDev, err)
	}
	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("initialization: %w", err)
	}
	if err := dev.SetAccelRange(0); err != nil {
		return nil, fmt.Errorf("set accel range: %w", err)
	}
	if err := dev.SetGyroRange(0); err != nil {
		return nil, fmt.Errorf("set gyro range: %w", err)
	}
	if err := dev.Calibrate(); err != nil {
		monitoring.Logf("sensors: WARNING: IMU calibration failed: %v", err)
	}
	monitoring.Logf("sensors: IMU ready on %s (±2g, ±250°/s)", spiDev)
	return &imuDevice{dev: dev}, nil
}

func (d *imuDevice) acceleration() ([]float64, error) {
	x, err := d.dev.GetAccelerationX()
	if err != nil {
		return nil, fmt.Errorf("accel X: %w", err)
	}
	y, err := d.dev.GetAccelerationY()
	if err != nil {
		return nil, fmt.Errorf("accel Y: %w", err)
	}
	z, err := d.dev.GetAccelerationZ()
	if err != nil {
		return nil, fmt.Errorf("accel Z: %w", err)
	}
	return []float64{accelFromRaw(x), accelFromRaw(y), accelFromRaw(z)}, nil
}

func (d *imuDevice) rotation() ([]float64, error) {
	x, err := d.dev.GetRotationX()
	if err != nil {
		return nil, fmt.Errorf("gyro X: %w", err)
	}
	y, err := d.dev.GetRotationY()
	if err != nil {
		return nil, fmt.Errorf("gyro Y: %w", err)
	}
	z, err := d.dev.GetRotationZ()
	if err != nil {
		return nil, fmt.Errorf("gyro Z: %w", err)
	}
	return []float64{gyroFromRaw(x), gyroFromRaw(y), gyroFromRaw(z)}, nil
}

func openBarometer(spiDev string) (Reader, func() error, error) {
	bus, err := spireg.Open(spiDev)
	if err != nil {
		return nil, nil, fmt.Errorf("SPI open (%s): %w", spiDev, err)
	}
	dev, err := bmxx80.NewSPI(bus, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("device init: %w", err)
	}
	monitoring.Logf("sensors: barometer ready on %s", spiDev)

	read := func() ([]float64, error) {
		var e physic.Env
		if err := dev.Sense(&e); err != nil {
			return nil, fmt.Errorf("sense: %w", err)
		}
		return []float64{pressureHPa(e.Pressure)}, nil
	}
	closer := func() error {
		if err := dev.Halt(); err != nil {
			bus.Close()
			return err
		}
		return bus.Close()
	}
	return read, closer, nil
}

func accelFromRaw(raw int16) float64 {
	return float64(raw) / accelLSBPerG * standardGravity
}

func gyroFromRaw(raw int16) float64 {
	return float64(raw) / gyroLSBPerDegSec * math.Pi / 180
}

func pressureHPa(p physic.Pressure) float64 {
	return float64(p) / float64(physic.Pascal) / 100
}
