// Package snapshot publishes a read-only view of the core state for
// renderers and serves it over HTTP.
package snapshot

import (
	"sync"
	"time"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/timeline"
	"github.com/chrissnell/barograph/internal/types"
)

// Delta is a three-hour change. Available is false when history is too
// short or the newest value is missing.
type Delta struct {
	Value     float32 `json:"value"`
	Available bool    `json:"available"`
}

// Deltas are the three-hour changes in stored units (hPa, °C, permille).
type Deltas struct {
	Pressure    Delta `json:"pressure"`
	Temperature Delta `json:"temperature"`
	Humidity    Delta `json:"humidity"`
}

// View is everything a renderer needs. It shares no memory with the state
// it was taken from.
type View struct {
	TakenAt                time.Time            `json:"taken_at"`
	IntervalSeconds        uint32               `json:"interval_seconds"`
	TimeRangeHours         uint32               `json:"time_range_hours"`
	FirstDrawableIndex     int                  `json:"first_drawable_index"`
	Samples                []types.Sample       `json:"samples"`
	Stats                  timeline.Stats       `json:"stats"`
	Deltas                 Deltas               `json:"deltas_3h"`
	Newest                 types.Sample         `json:"newest"`
	DisplayPressureHPa     float32              `json:"display_pressure_hpa"`
	Battery                types.BatteryReading `json:"battery"`
	Preferences            types.Preferences    `json:"preferences"`
	SecondsSinceLastSample float32              `json:"seconds_since_last_sample"`
	SensorFault            bool                 `json:"sensor_fault"`
	TotalBoots             uint32               `json:"total_boots"`
	DischargeCycles        uint32               `json:"discharge_cycles"`
}

// Take copies the drawable part of st into a View.
func Take(st *core.State, now time.Time) View {
	tl := st.Timeline
	newest := tl.Newest()

	v := View{
		TakenAt:                now,
		IntervalSeconds:        tl.Interval(),
		TimeRangeHours:         tl.TimeRangeHours(),
		FirstDrawableIndex:     tl.FirstDrawableIndex(),
		Samples:                tl.Window(tl.FirstDrawableIndex()),
		Stats:                  tl.Stats(),
		Newest:                 newest,
		DisplayPressureHPa:     newest.PressureHPa,
		Battery:                st.Battery,
		Preferences:            st.Prefs,
		SecondsSinceLastSample: st.SecondsSinceLastSample,
		SensorFault:            st.SensorFault,
		TotalBoots:             st.Counters.TotalBoots,
		DischargeCycles:        st.Counters.DischargeCycles,
	}
	if st.Prefs.PressureCorrectionEnabled && types.Present(float64(newest.PressureHPa)) {
		v.DisplayPressureHPa += st.Prefs.PressureCorrectionValue
	}

	v.Deltas.Pressure = delta(tl, types.Pressure)
	v.Deltas.Temperature = delta(tl, types.Temperature)
	v.Deltas.Humidity = delta(tl, types.Humidity)
	return v
}

func delta(tl *timeline.Timeline, f types.Field) Delta {
	d, err := tl.ThreeHourDelta(f)
	if err != nil {
		return Delta{}
	}
	return Delta{Value: d, Available: true}
}

// Publisher holds the most recent View. Readers never block the cycle for
// longer than a pointer swap.
type Publisher struct {
	mu   sync.RWMutex
	view *View
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(v View) {
	p.mu.Lock()
	p.view = &v
	p.mu.Unlock()
}

// Latest returns the last published View and whether there is one.
func (p *Publisher) Latest() (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.view == nil {
		return View{}, false
	}
	return *p.view, true
}
