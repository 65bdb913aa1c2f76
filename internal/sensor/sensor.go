// Package sensor provides the environmental sensor and battery
// collaborators the wake cycle reads from.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/types"
)

// ErrSensorRead wraps every failure to acquire a reading.
var ErrSensorRead = errors.New("sensor read failed")

// Sensor returns one pressure/temperature/humidity reading per call.
type Sensor interface {
	Read(ctx context.Context) (types.RawReading, error)
	Close() error
}

// Battery returns the current supply voltage and charge estimate.
type Battery interface {
	Read(ctx context.Context) (types.BatteryReading, error)
}

// Config selects and parameterizes a sensor implementation.
type Config struct {
	Type         string
	SerialDevice string
	Baud         int
	Address      string
	ReadTimeout  time.Duration
}

const (
	TypeSimulated = "simulated"
	TypeSerial    = "serial"
	TypeTCP       = "tcp"
)

// New builds the configured sensor and the battery collaborator that goes
// with it.
func New(cfg Config, logger *zap.SugaredLogger) (Sensor, Battery, error) {
	switch cfg.Type {
	case TypeSimulated, "":
		return NewSimulated(nil), NewSimulatedBattery(), nil
	case TypeSerial:
		s := NewSerial(cfg.SerialDevice, cfg.Baud, cfg.ReadTimeout, logger)
		return s, s.Battery(), nil
	case TypeTCP:
		s := NewNetwork(cfg.Address, cfg.ReadTimeout, logger)
		return s, s.Battery(), nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor type %q", cfg.Type)
	}
}
