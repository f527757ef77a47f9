// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all capture configuration values.
type Config struct {
	// AppID scopes broadcast topics so co-installed consumers of the
	// library never see each other's ping/pong traffic.
	AppID string

	// MQTT
	MQTTBroker             string
	MQTTClientIDWorker     string
	MQTTClientIDController string

	// IPC (bound client channel)
	IPCListenAddr string
	IPCURL        string

	// Persistence
	DBPath string

	// Upload endpoint handed to the (external) synchronisation module.
	UploadEndpoint string

	// GNSS
	GPSSerialPort string
	GPSBaudRate   int

	// Motion sensors
	IMUSPIDevice string
	IMUCSPin     string
	BMPSPIDevice string

	// Capture
	SensorFrequencyHz int
	ChunkSize         int
	MinFreeSpaceMB    int

	// GNSS week-number rollover handling
	RolloverCorrectionWeeks int
	RolloverToleranceHours  int

	// Timing
	PingTimeoutMS      int
	LifecycleTimeoutMS int

	// Notification and strategies
	NotificationChannelID    string
	DistanceStrategy         string
	LocationCleaningStrategy string
	EventHandlingStrategy    string
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through InitGlobal/Get.
//   - configOnce makes InitGlobal run once even if called repeatedly.
//   - configMu guards concurrent reads against the one-time write.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every optional value filled in.
// Library code and tests use it when no config file is present.
func Default() *Config {
	return &Config{
		AppID:                    "de.relabs.capturing",
		MQTTBroker:               "tcp://localhost:1883",
		MQTTClientIDWorker:       "trip-capture-worker",
		MQTTClientIDController:   "trip-capture-controller",
		IPCListenAddr:            "127.0.0.1:8765",
		IPCURL:                   "ws://127.0.0.1:8765/ipc",
		DBPath:                   "./measures.db",
		UploadEndpoint:           "https://localhost:8080/api/v4",
		GPSSerialPort:            "/dev/serial0",
		GPSBaudRate:              9600,
		IMUSPIDevice:             "/dev/spidev0.0",
		IMUCSPin:                 "8",
		BMPSPIDevice:             "/dev/spidev0.1",
		SensorFrequencyHz:        100,
		ChunkSize:                800,
		MinFreeSpaceMB:           100,
		RolloverCorrectionWeeks:  1024,
		RolloverToleranceHours:   168,
		PingTimeoutMS:            500,
		LifecycleTimeoutMS:       10000,
		NotificationChannelID:    "capturing",
		DistanceStrategy:         "haversine",
		LocationCleaningStrategy: "default",
		EventHandlingStrategy:    "logging",
	}
}

// Load reads the configuration file on top of Default and returns it.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func positiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "APP_ID":
		c.AppID = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_WORKER":
		c.MQTTClientIDWorker = value
	case "MQTT_CLIENT_ID_CONTROLLER":
		c.MQTTClientIDController = value

	// IPC
	case "IPC_LISTEN_ADDR":
		c.IPCListenAddr = value
	case "IPC_URL":
		c.IPCURL = value

	case "DB_PATH":
		c.DBPath = value
	case "UPLOAD_ENDPOINT":
		c.UploadEndpoint = value

	// GNSS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = positiveInt(key, value)

	// Motion sensors
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value

	// Capture
	case "SENSOR_FREQUENCY_HZ":
		c.SensorFrequencyHz, err = positiveInt(key, value)
		if err == nil && c.SensorFrequencyHz > 1_000_000 {
			return fmt.Errorf("SENSOR_FREQUENCY_HZ must be at most 1000000, got %d", c.SensorFrequencyHz)
		}
	case "CHUNK_SIZE":
		c.ChunkSize, err = positiveInt(key, value)
	case "MIN_FREE_SPACE_MB":
		v, convErr := strconv.Atoi(value)
		if convErr != nil {
			return fmt.Errorf("invalid MIN_FREE_SPACE_MB %q: %w", value, convErr)
		}
		if v < 0 {
			return fmt.Errorf("MIN_FREE_SPACE_MB must not be negative, got %d", v)
		}
		c.MinFreeSpaceMB = v

	// GNSS rollover
	case "GNSS_ROLLOVER_CORRECTION_WEEKS":
		c.RolloverCorrectionWeeks, err = positiveInt(key, value)
	case "GNSS_ROLLOVER_TOLERANCE_HOURS":
		c.RolloverToleranceHours, err = positiveInt(key, value)

	// Timing
	case "PING_TIMEOUT_MS":
		c.PingTimeoutMS, err = positiveInt(key, value)
	case "LIFECYCLE_TIMEOUT_MS":
		c.LifecycleTimeoutMS, err = positiveInt(key, value)

	case "NOTIFICATION_CHANNEL_ID":
		c.NotificationChannelID = value
	case "DISTANCE_STRATEGY":
		c.DistanceStrategy = value
	case "LOCATION_CLEANING_STRATEGY":
		c.LocationCleaningStrategy = value
	case "EVENT_HANDLING_STRATEGY":
		c.EventHandlingStrategy = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("APP_ID is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.IPCListenAddr == "" && c.IPCURL == "" {
		return fmt.Errorf("IPC_LISTEN_ADDR or IPC_URL is required")
	}
	if c.NotificationChannelID == "" {
		return fmt.Errorf("NOTIFICATION_CHANNEL_ID is required")
	}
	return nil
}

// PingTimeout returns the liveness ping timeout.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutMS) * time.Millisecond
}

// LifecycleTimeout bounds how long the controller waits for a worker
// started/stopped confirmation.
func (c *Config) LifecycleTimeout() time.Duration {
	return time.Duration(c.LifecycleTimeoutMS) * time.Millisecond
}

// RolloverCorrection is the GNSS week-number rollover period.
func (c *Config) RolloverCorrection() time.Duration {
	return time.Duration(c.RolloverCorrectionWeeks) * 7 * 24 * time.Hour
}

// RolloverTolerance is how far a timestamp may sit from an exact rollover
// offset and still be corrected.
func (c *Config) RolloverTolerance() time.Duration {
	return time.Duration(c.RolloverToleranceHours) * time.Hour
}

// MinFreeSpaceBytes is the free disk threshold below which the worker
// raises a space warning and stops itself.
func (c *Config) MinFreeSpaceBytes() uint64 {
	return uint64(c.MinFreeSpaceMB) * 1024 * 1024
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads the file.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or Default() when
// InitGlobal was never called or failed.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if globalConfig == nil {
		return Default()
	}
	return globalConfig
}
