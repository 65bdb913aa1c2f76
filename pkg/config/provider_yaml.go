package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

type configYAML struct {
	Device    DeviceYAML    `yaml:"device"`
	Scheduler SchedulerYAML `yaml:"scheduler"`
	Storage   StorageYAML   `yaml:"storage"`
	Sensor    SensorYAML    `yaml:"sensor"`
	HTTP      HTTPYAML      `yaml:"http"`
}

type DeviceYAML struct {
	Name                   string `yaml:"name"`
	DefaultIntervalSeconds uint32 `yaml:"default-interval-seconds"`
	DefaultTimeRangeHours  uint32 `yaml:"default-time-range-hours"`
}

type SchedulerYAML struct {
	SafetyCeilingSeconds   int64   `yaml:"safety-ceiling-seconds"`
	ClampToCeiling         bool    `yaml:"clamp-to-ceiling"`
	CounterFlushEvery      uint32  `yaml:"counter-flush-every"`
	ChargeThresholdVolts   float32 `yaml:"charge-threshold-volts"`
	DueSlackMs             int64   `yaml:"due-slack-ms"`
	OvershootMarginSeconds int64   `yaml:"overshoot-margin-seconds"`
}

type StorageYAML struct {
	RetainedPath string `yaml:"retained-path"`
	DurablePath  string `yaml:"durable-path"`
}

type SensorYAML struct {
	Type         string `yaml:"type"`
	SerialDevice string `yaml:"serial-device,omitempty"`
	Baud         int    `yaml:"baud,omitempty"`
	Address      string `yaml:"address,omitempty"`
	ReadTimeout  string `yaml:"read-timeout,omitempty"`
}

type HTTPYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Metrics    bool   `yaml:"metrics"`
}

// LoadConfig loads the configuration from the YAML file, applies defaults
// and validates the result.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML decodes a YAML document into a validated ConfigData.
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig configYAML
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, fmt.Errorf("error parsing YAML config: %w", err)
	}

	config := &ConfigData{
		Device: DeviceData{
			Name:                   yamlConfig.Device.Name,
			DefaultIntervalSeconds: yamlConfig.Device.DefaultIntervalSeconds,
			DefaultTimeRangeHours:  yamlConfig.Device.DefaultTimeRangeHours,
		},
		Scheduler: SchedulerData{
			SafetyCeilingSeconds:   yamlConfig.Scheduler.SafetyCeilingSeconds,
			ClampToCeiling:         yamlConfig.Scheduler.ClampToCeiling,
			CounterFlushEvery:      yamlConfig.Scheduler.CounterFlushEvery,
			ChargeThresholdVolts:   yamlConfig.Scheduler.ChargeThresholdVolts,
			DueSlackMs:             yamlConfig.Scheduler.DueSlackMs,
			OvershootMarginSeconds: yamlConfig.Scheduler.OvershootMarginSeconds,
		},
		Storage: StorageData{
			RetainedPath: yamlConfig.Storage.RetainedPath,
			DurablePath:  yamlConfig.Storage.DurablePath,
		},
		Sensor: SensorData{
			Type:         yamlConfig.Sensor.Type,
			SerialDevice: yamlConfig.Sensor.SerialDevice,
			Baud:         yamlConfig.Sensor.Baud,
			Address:      yamlConfig.Sensor.Address,
		},
		HTTP: HTTPData{
			ListenAddr: yamlConfig.HTTP.ListenAddr,
			Metrics:    yamlConfig.HTTP.Metrics,
		},
	}

	if yamlConfig.Sensor.ReadTimeout != "" {
		d, err := time.ParseDuration(yamlConfig.Sensor.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("sensor: invalid read-timeout %q: %w", yamlConfig.Sensor.ReadTimeout, err)
		}
		config.Sensor.ReadTimeout = d
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
