// Package config loads the barograph host configuration.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Device    DeviceData    `json:"device"`
	Scheduler SchedulerData `json:"scheduler"`
	Storage   StorageData   `json:"storage"`
	Sensor    SensorData    `json:"sensor"`
	HTTP      HTTPData      `json:"http"`
}

// DeviceData holds the defaults used when the durable store is empty
type DeviceData struct {
	Name                   string `json:"name"`
	DefaultIntervalSeconds uint32 `json:"default_interval_seconds"`
	DefaultTimeRangeHours  uint32 `json:"default_time_range_hours"`
}

// SchedulerData tunes the sleep scheduler
type SchedulerData struct {
	SafetyCeilingSeconds   int64   `json:"safety_ceiling_seconds"`
	ClampToCeiling         bool    `json:"clamp_to_ceiling"`
	CounterFlushEvery      uint32  `json:"counter_flush_every"`
	ChargeThresholdVolts   float32 `json:"charge_threshold_volts"`
	DueSlackMs             int64   `json:"due_slack_ms"`
	OvershootMarginSeconds int64   `json:"overshoot_margin_seconds"`
}

// StorageData locates the two persistence tiers
type StorageData struct {
	RetainedPath string `json:"retained_path"`
	DurablePath  string `json:"durable_path"`
}

// SensorData selects the sensor implementation
type SensorData struct {
	Type         string        `json:"type"`
	SerialDevice string        `json:"serial_device,omitempty"`
	Baud         int           `json:"baud,omitempty"`
	Address      string        `json:"address,omitempty"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty"`
}

// HTTPData configures the read-only snapshot server. An empty ListenAddr
// disables it.
type HTTPData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Metrics    bool   `json:"metrics"`
}

const (
	DefaultDeviceName             = "barograph"
	DefaultIntervalSeconds        = 900
	DefaultTimeRangeHours         = 84
	DefaultSafetyCeilingSeconds   = 2000
	DefaultCounterFlushEvery      = 250
	DefaultChargeThresholdVolts   = 0.025
	DefaultDueSlackMs             = 500
	DefaultOvershootMarginSeconds = 10
	DefaultRetainedPath           = "barograph-retained.msgpack"
	DefaultDurablePath            = "barograph-durable.db"
	DefaultSensorType             = "simulated"
	DefaultBaud                   = 9600
	DefaultReadTimeout            = 2 * time.Second
)

// Defaults returns a configuration with every default applied.
func Defaults() *ConfigData {
	c := &ConfigData{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with their defaults.
func (c *ConfigData) ApplyDefaults() {
	if c.Device.Name == "" {
		c.Device.Name = DefaultDeviceName
	}
	if c.Device.DefaultIntervalSeconds == 0 {
		c.Device.DefaultIntervalSeconds = DefaultIntervalSeconds
	}
	if c.Device.DefaultTimeRangeHours == 0 {
		c.Device.DefaultTimeRangeHours = DefaultTimeRangeHours
	}

	if c.Scheduler.SafetyCeilingSeconds == 0 {
		c.Scheduler.SafetyCeilingSeconds = DefaultSafetyCeilingSeconds
	}
	if c.Scheduler.CounterFlushEvery == 0 {
		c.Scheduler.CounterFlushEvery = DefaultCounterFlushEvery
	}
	if c.Scheduler.ChargeThresholdVolts == 0 {
		c.Scheduler.ChargeThresholdVolts = DefaultChargeThresholdVolts
	}
	if c.Scheduler.DueSlackMs == 0 {
		c.Scheduler.DueSlackMs = DefaultDueSlackMs
	}
	if c.Scheduler.OvershootMarginSeconds == 0 {
		c.Scheduler.OvershootMarginSeconds = DefaultOvershootMarginSeconds
	}

	if c.Storage.RetainedPath == "" {
		c.Storage.RetainedPath = DefaultRetainedPath
	}
	if c.Storage.DurablePath == "" {
		c.Storage.DurablePath = DefaultDurablePath
	}

	if c.Sensor.Type == "" {
		c.Sensor.Type = DefaultSensorType
	}
	if c.Sensor.Baud == 0 {
		c.Sensor.Baud = DefaultBaud
	}
	if c.Sensor.ReadTimeout == 0 {
		c.Sensor.ReadTimeout = DefaultReadTimeout
	}
}

// Validate reports every problem found, joined.
func (c *ConfigData) Validate() error {
	var errs []error

	if c.Device.DefaultIntervalSeconds == 0 {
		errs = append(errs, errors.New("device: default-interval-seconds must be positive"))
	} else if c.Device.DefaultIntervalSeconds%4 != 0 {
		errs = append(errs, fmt.Errorf("device: default-interval-seconds %d must be a multiple of 4", c.Device.DefaultIntervalSeconds))
	}
	switch c.Device.DefaultTimeRangeHours {
	case 21, 42, 84, 18, 36, 72:
	default:
		errs = append(errs, fmt.Errorf("device: default-time-range-hours %d not one of 21, 42, 84, 18, 36, 72", c.Device.DefaultTimeRangeHours))
	}

	if c.Scheduler.SafetyCeilingSeconds < 0 {
		errs = append(errs, errors.New("scheduler: safety-ceiling-seconds must not be negative"))
	}
	if c.Scheduler.ChargeThresholdVolts < 0 {
		errs = append(errs, errors.New("scheduler: charge-threshold-volts must not be negative"))
	}

	switch c.Sensor.Type {
	case "simulated":
	case "serial":
		if c.Sensor.SerialDevice == "" {
			errs = append(errs, errors.New("sensor: serial sensor needs serial-device"))
		}
	case "tcp":
		if c.Sensor.Address == "" {
			errs = append(errs, errors.New("sensor: tcp sensor needs address"))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor: unknown type %q", c.Sensor.Type))
	}

	return errors.Join(errs...)
}
