package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chrissnell/barograph/internal/types"
)

// Simulated produces a deterministic diurnal weather pattern derived from
// the clock, with a slow multi-day pressure swing on top.
type Simulated struct {
	mu    sync.Mutex
	now   func() time.Time
	reads int

	// FailEvery makes every n-th read fail. Zero disables failures.
	FailEvery int
}

func NewSimulated(now func() time.Time) *Simulated {
	if now == nil {
		now = time.Now
	}
	return &Simulated{now: now}
}

func (s *Simulated) Read(ctx context.Context) (types.RawReading, error) {
	if err := ctx.Err(); err != nil {
		return types.RawReading{}, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}

	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	if s.FailEvery > 0 && n%s.FailEvery == 0 {
		return types.RawReading{}, fmt.Errorf("%w: simulated failure on read %d", ErrSensorRead, n)
	}
	return SimulatedReading(s.now()), nil
}

func (s *Simulated) Close() error {
	return nil
}

// SimulatedReading is the reading Simulated returns at t.
func SimulatedReading(t time.Time) types.RawReading {
	hours := float64(t.Unix()) / 3600
	day := 2 * math.Pi * hours / 24
	front := 2 * math.Pi * hours / 72

	return types.RawReading{
		PressureHPa:     float32(1013.25 + 8*math.Sin(front) + 0.6*math.Sin(2*day)),
		TemperatureC:    float32(14 + 6*math.Sin(day-math.Pi/2)),
		HumidityPercent: float32(62 - 18*math.Sin(day-math.Pi/2)),
	}
}

// SimulatedBattery discharges linearly with every read.
type SimulatedBattery struct {
	mu    sync.Mutex
	volts float32

	DrainPerRead float32
	Floor        float32
}

func NewSimulatedBattery() *SimulatedBattery {
	return &SimulatedBattery{volts: 4.15, DrainPerRead: 0.0002, Floor: 3.4}
}

func (b *SimulatedBattery) Read(_ context.Context) (types.BatteryReading, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.volts
	b.volts -= b.DrainPerRead
	if b.volts < b.Floor {
		b.volts = b.Floor
	}
	return Reading(v), nil
}

// Charge sets the battery voltage, as if a charger had been attached.
func (b *SimulatedBattery) Charge(volts float32) {
	b.mu.Lock()
	b.volts = volts
	b.mu.Unlock()
}
