// Package core defines the state a barograph carries from one wake cycle to
// the next. One State value is owned by the cycle runner and passed by
// reference to the timeline, rescaler and scheduler; there are no globals.
package core

import (
	"github.com/chrissnell/barograph/internal/timeline"
	"github.com/chrissnell/barograph/internal/types"
)

// SchedulerState is the timing bookkeeping of the sleep scheduler.
type SchedulerState struct {
	LastSampleTime     types.Timestamp `msgpack:"last"`
	PreviousSampleTime types.Timestamp `msgpack:"prev"`

	// LastTargetSleepSeconds is the nominal interval that was in force when
	// the previous decision was made. A rescale scales it together with the
	// timeline so the next not-due computation stays consistent.
	LastTargetSleepSeconds uint32 `msgpack:"target"`

	LastActualSleepAfterMeasurementUsec int64 `msgpack:"after_meas"`
	LastActualSleepNoMeasurementUsec    int64 `msgpack:"no_meas"`

	// JustInitialized forces a sample on the first cycle after a reset.
	JustInitialized bool `msgpack:"init"`
}

// Counters are the boot and discharge bookkeeping mirrored into the durable
// store every few hundred samples.
type Counters struct {
	TotalBoots            uint32 `msgpack:"boots"`
	DischargeCycles       uint32 `msgpack:"dischg"`
	PrevBatteryMicrovolts int64  `msgpack:"prev_uv"`
}

// PrevBatteryVolts is the previous battery reading in volts.
func (c Counters) PrevBatteryVolts() float32 {
	return float32(float64(c.PrevBatteryMicrovolts) / 1e6)
}

// State is everything that must survive a suspend.
type State struct {
	Timeline  *timeline.Timeline
	Scheduler SchedulerState
	Counters  Counters
	Prefs     types.Preferences

	// PreferencesChanged is set by the configuration collaborator and
	// cleared once the durable store has been written.
	PreferencesChanged bool

	// SecondsSinceLastSample is shown on the display only.
	SecondsSinceLastSample float32

	Battery types.BatteryReading

	// SensorFault is true when the newest slot came from a failed read.
	SensorFault bool
}

// New builds the state of a freshly initialized device. The first cycle
// after New always takes a sample.
func New(prefs types.Preferences, now types.Timestamp) *State {
	return NewWithBase(prefs, prefs.MeasurementIntervalSeconds, now)
}

// NewWithBase is New for a device whose stored interval may already be a
// rescale of baseInterval. The timeline keeps baseInterval as its base so
// the rescale guard sees the same scale it saw before the restart.
func NewWithBase(prefs types.Preferences, baseInterval uint32, now types.Timestamp) *State {
	tl := timeline.NewScaled(baseInterval, prefs.MeasurementIntervalSeconds)
	tl.SetShortWindow(prefs.ShortWindow())

	return &State{
		Timeline: tl,
		Scheduler: SchedulerState{
			LastSampleTime:         now,
			PreviousSampleTime:     now,
			LastTargetSleepSeconds: prefs.MeasurementIntervalSeconds,
			JustInitialized:        true,
		},
		Prefs: prefs,
	}
}

// SetTimeRange stores the display range preference and selects the
// matching drawable window on the timeline.
func (s *State) SetTimeRange(hours uint32) {
	s.Prefs.TimeRangeHours = hours
	s.Timeline.SetShortWindow(s.Prefs.ShortWindow())
}

// SyncInterval copies the timeline's nominal interval into the preferences
// and reports whether it differed.
func (s *State) SyncInterval() bool {
	if s.Prefs.MeasurementIntervalSeconds == s.Timeline.Interval() {
		return false
	}
	s.Prefs.MeasurementIntervalSeconds = s.Timeline.Interval()
	return true
}
