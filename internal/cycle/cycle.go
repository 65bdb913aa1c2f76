// Package cycle runs one wake cycle of the barograph: classify the wake,
// hand external wakes to the configuration session, take a sample when one
// is due, plan the next suspend and checkpoint the state.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/buttons"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/metrics"
	"github.com/chrissnell/barograph/internal/persistence"
	"github.com/chrissnell/barograph/internal/scheduler"
	"github.com/chrissnell/barograph/internal/sensor"
	"github.com/chrissnell/barograph/internal/snapshot"
	"github.com/chrissnell/barograph/internal/types"
)

// Clock is the wall clock the cycle reads.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// Configurator runs a configuration session on an external wake.
type Configurator interface {
	Configure(ctx context.Context, st *core.State) control.Session
}

// ButtonSource yields the buttons pressed since the previous cycle.
type ButtonSource interface {
	Drain() buttons.Pending
}

// Deps are the collaborators of a Runner. Configurator, Buttons, Durable
// and Publisher are optional.
type Deps struct {
	Scheduler    *scheduler.Scheduler
	Sensor       sensor.Sensor
	Battery      sensor.Battery
	Retained     persistence.RetainedStore
	Durable      persistence.DurableStore
	Configurator Configurator
	Buttons      ButtonSource
	Publisher    *snapshot.Publisher
	Metrics      metrics.Provider
	Clock        Clock
	Logger       *zap.SugaredLogger
}

// Runner executes wake cycles against a state it does not own.
type Runner struct {
	Deps
}

func NewRunner(d Deps) *Runner {
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(false, nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Runner{Deps: d}
}

// Outcome describes what a cycle did.
type Outcome struct {
	CycleID  string
	Reason   types.WakeReason
	Session  control.Session
	Sampled  bool
	Decision scheduler.Decision

	SensorErr          error
	CountersFlushed    bool
	PreferencesFlushed bool
	RetainedErr        error
	DurableErr         error
}

// Run executes one wake cycle on st. Only a cancelled context is returned
// as an error; collaborator failures are logged, counted and reported in
// the Outcome, and a sleep decision is always produced.
func (r *Runner) Run(ctx context.Context, st *core.State, cause types.WakeCause) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("cycle not started: %w", err)
	}

	start := r.Clock.Now()
	out := Outcome{
		CycleID: uuid.NewString(),
		Reason:  scheduler.ClassifyWake(cause),
	}
	logger := r.Logger.With("cycle", out.CycleID, "boot", st.Counters.TotalBoots)
	logger.Debugf("wake cause %s classified as %s", cause, out.Reason)

	if out.Reason == types.WakeExternal && r.Configurator != nil {
		out.Session = r.Configurator.Configure(ctx, st)
		logger.Infof("configuration session: %d applied, %d rejected", out.Session.Applied, len(out.Session.Rejected))
	}

	if r.Buttons != nil {
		if p := r.Buttons.Drain(); p.Button3 {
			st.Prefs.PressureCorrectionEnabled = !st.Prefs.PressureCorrectionEnabled
			st.PreferencesChanged = true
			logger.Infof("pressure correction toggled to %t", st.Prefs.PressureCorrectionEnabled)
		}
	}

	now := types.TimestampOf(r.Clock.Now())
	elapsed := scheduler.ElapsedMicros(now, st.Scheduler.LastSampleTime)

	if r.Scheduler.IsDue(st, elapsed) {
		out.Sampled = true
		out.SensorErr = r.sample(ctx, st, now, logger)
		r.battery(ctx, st, logger)

		if r.Scheduler.AdvanceCounters(st) && r.Durable != nil {
			if err := r.Durable.SaveCounters(st.Counters); err != nil {
				out.DurableErr = err
				r.Metrics.IncPersistenceErrors("durable")
				logger.Errorf("error flushing counters: %v", err)
			} else {
				out.CountersFlushed = true
				logger.Infof("counters flushed: %d boots, %d discharge cycles", st.Counters.TotalBoots, st.Counters.DischargeCycles)
			}
		}
		out.Decision = r.Scheduler.PlanAfterSample(st, r.Clock.Now().UnixMilli(), start.UnixMilli())
	} else {
		out.Decision = r.Scheduler.PlanNotDue(st, elapsed)
	}

	if out.Decision.ExceedsCeiling {
		r.Metrics.IncCeilingBreaches(out.Decision.Clamped)
	}

	if st.PreferencesChanged && r.Durable != nil {
		if err := r.Durable.SavePreferences(st.Prefs); err != nil {
			out.DurableErr = err
			r.Metrics.IncPersistenceErrors("durable")
			logger.Errorf("error flushing preferences: %v", err)
		} else {
			st.PreferencesChanged = false
			out.PreferencesFlushed = true
		}
	}

	if err := r.Retained.Save(st); err != nil {
		out.RetainedErr = err
		r.Metrics.IncPersistenceErrors("retained")
		logger.Errorf("error saving retained state: %v", err)
	}

	r.Metrics.SetTimeline(st.Timeline.Interval(), st.Timeline.Populated())
	if out.Sampled {
		if _, err := st.Timeline.ThreeHourDelta(types.Pressure); err != nil {
			logger.Debugf("no pressure trend yet: %v", err)
		}
	}
	if r.Publisher != nil {
		r.Publisher.Publish(snapshot.Take(st, r.Clock.Now()))
	}

	r.Metrics.ObserveCycle(out.Reason.String(), out.Sampled, r.Clock.Now().Sub(start))
	r.Metrics.ObserveSleep(out.Sampled, out.Decision.Duration())
	logger.Infow("cycle complete",
		"reason", out.Reason.String(),
		"sampled", out.Sampled,
		"interval_s", st.Timeline.Interval(),
		"sleep", out.Decision.Duration().String(),
	)
	return out, nil
}

// sample appends a new reading, or an explicit no-data sample when the
// sensor fails, and moves the sample timestamps forward either way.
func (r *Runner) sample(ctx context.Context, st *core.State, now types.Timestamp, logger *zap.SugaredLogger) error {
	reading, err := r.Sensor.Read(ctx)
	if err != nil {
		logger.Warnf("sensor read failed, storing no-data sample: %v", err)
		r.Metrics.IncSensorFailures()
		st.Timeline.Append(types.EmptySample())
		st.SensorFault = true
	} else {
		st.Timeline.Append(reading.ToSample())
		st.SensorFault = false
		r.Metrics.SetNewestPressure(reading.PressureHPa)
	}
	r.Scheduler.RecordSample(st, now)
	return err
}

func (r *Runner) battery(ctx context.Context, st *core.State, logger *zap.SugaredLogger) {
	if r.Battery == nil {
		return
	}
	b, err := r.Battery.Read(ctx)
	if err != nil {
		logger.Warnf("battery read failed, keeping previous reading: %v", err)
		return
	}
	st.Battery = b
	r.Scheduler.TrackBattery(st, b.Volts)
	r.Metrics.SetBattery(b.Volts, b.Percent)
}
