// Package scheduler decides on every wake whether a sample is due and how
// long the device must suspend to keep the nominal sampling cadence.
//
// All durations are signed microseconds. Elapsed time is computed from the
// split second/microsecond timestamps so a microsecond component that goes
// negative across a second boundary is handled by plain signed arithmetic.
package scheduler

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/types"
)

const (
	MicrosPerSecond = 1_000_000

	DefaultDueSlackUsec         = 500_000
	DefaultOvershootMarginUsec  = 10_000_000
	DefaultSafetyCeilingUsec    = 2_000_000_000
	DefaultCounterFlushEvery    = 250
	DefaultChargeThresholdVolts = 0.025

	// fallbackSleepUsec is used whenever a computed duration is not positive.
	fallbackSleepUsec = 1_000_000
)

// ErrSuspendExceedsCeiling is logged when a computed suspend duration is
// above the configured safety ceiling.
var ErrSuspendExceedsCeiling = errors.New("suspend duration exceeds safety ceiling")

// Config tunes the scheduler.
type Config struct {
	// DueSlackUsec lets a wake that is slightly early still count as due.
	DueSlackUsec int64
	// OvershootMarginUsec is how far a not-due sleep may exceed one
	// interval before a full interval is subtracted from it.
	OvershootMarginUsec int64
	SafetyCeilingUsec   int64
	// ClampToCeiling caps durations at the ceiling instead of only
	// reporting the breach.
	ClampToCeiling       bool
	CounterFlushEvery    uint32
	ChargeThresholdVolts float32
}

// DefaultConfig mirrors the deployed firmware.
func DefaultConfig() Config {
	return Config{
		DueSlackUsec:         DefaultDueSlackUsec,
		OvershootMarginUsec:  DefaultOvershootMarginUsec,
		SafetyCeilingUsec:    DefaultSafetyCeilingUsec,
		ClampToCeiling:       false,
		CounterFlushEvery:    DefaultCounterFlushEvery,
		ChargeThresholdVolts: DefaultChargeThresholdVolts,
	}
}

// Decision is the outcome of one scheduling step.
type Decision struct {
	Sampled        bool
	SleepUsec      int64
	ExceedsCeiling bool
	Clamped        bool
}

// Duration is the suspend duration as a time.Duration.
func (d Decision) Duration() time.Duration {
	return time.Duration(d.SleepUsec) * time.Microsecond
}

// Scheduler holds configuration only; all mutable bookkeeping lives in
// core.State.
type Scheduler struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates a scheduler. Zero-valued fields of cfg take their defaults,
// except CounterFlushEvery and ClampToCeiling whose zero values are
// meaningful.
func New(cfg Config, logger *zap.SugaredLogger) *Scheduler {
	def := DefaultConfig()
	if cfg.DueSlackUsec == 0 {
		cfg.DueSlackUsec = def.DueSlackUsec
	}
	if cfg.OvershootMarginUsec == 0 {
		cfg.OvershootMarginUsec = def.OvershootMarginUsec
	}
	if cfg.SafetyCeilingUsec == 0 {
		cfg.SafetyCeilingUsec = def.SafetyCeilingUsec
	}
	if cfg.ChargeThresholdVolts == 0 {
		cfg.ChargeThresholdVolts = def.ChargeThresholdVolts
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// ClassifyWake maps the platform wake cause onto the three reasons the
// cycle distinguishes.
func ClassifyWake(c types.WakeCause) types.WakeReason {
	switch c {
	case types.CauseTimer:
		return types.WakeTimer
	case types.CauseExt0, types.CauseExt1:
		return types.WakeExternal
	default:
		return types.WakeOther
	}
}

// ElapsedMicros is now minus since in microseconds.
func ElapsedMicros(now, since types.Timestamp) int64 {
	return (now.Sec-since.Sec)*MicrosPerSecond + (now.Usec - since.Usec)
}

// IsDue reports whether a sample must be taken this cycle.
func (s *Scheduler) IsDue(st *core.State, elapsed int64) bool {
	if st.Scheduler.JustInitialized {
		return true
	}
	return elapsed+s.cfg.DueSlackUsec > st.Scheduler.LastActualSleepAfterMeasurementUsec
}

// RecordSample shifts the sample timestamps and updates the display-only
// elapsed seconds.
func (s *Scheduler) RecordSample(st *core.State, now types.Timestamp) {
	elapsed := ElapsedMicros(now, st.Scheduler.LastSampleTime)
	st.SecondsSinceLastSample = float32(float64(elapsed) / MicrosPerSecond)
	st.Scheduler.PreviousSampleTime = st.Scheduler.LastSampleTime
	st.Scheduler.LastSampleTime = now
}

// PlanNotDue computes the remaining suspend when the sample is not yet due
// and records it in st.
func (s *Scheduler) PlanNotDue(st *core.State, elapsed int64) Decision {
	target := int64(st.Scheduler.LastTargetSleepSeconds) * MicrosPerSecond
	nominal := int64(st.Timeline.Interval()) * MicrosPerSecond

	sleep := int64(fallbackSleepUsec)
	if target > elapsed {
		sleep = target - elapsed
	}
	// A sample forced by initialization can leave the next wake a whole
	// interval too far away.
	if sleep > nominal+s.cfg.OvershootMarginUsec {
		sleep -= nominal
	}

	d := s.limit(Decision{Sampled: false, SleepUsec: sleep})
	st.Scheduler.LastActualSleepNoMeasurementUsec = d.SleepUsec

	s.logger.Debugw("sample not due",
		"elapsed_us", elapsed,
		"target_s", st.Scheduler.LastTargetSleepSeconds,
		"sleep_us", d.SleepUsec,
	)
	return d
}

// PlanAfterSample computes the suspend after a sample was taken: the
// nominal interval minus the time this cycle has already spent awake.
func (s *Scheduler) PlanAfterSample(st *core.State, nowMillis, cycleStartMillis int64) Decision {
	interval := st.Timeline.Interval()
	awake := nowMillis - cycleStartMillis
	sleep := int64(interval)*MicrosPerSecond - 1000*awake
	if sleep <= 0 {
		s.logger.Warnw("cycle ran longer than the sampling interval",
			"awake_ms", awake, "interval_s", interval)
		sleep = fallbackSleepUsec
	}

	d := s.limit(Decision{Sampled: true, SleepUsec: sleep})
	st.Scheduler.LastActualSleepAfterMeasurementUsec = d.SleepUsec
	st.Scheduler.LastTargetSleepSeconds = interval
	st.Scheduler.JustInitialized = false

	s.logger.Debugw("sample taken",
		"awake_ms", awake,
		"interval_s", interval,
		"sleep_us", d.SleepUsec,
	)
	return d
}

func (s *Scheduler) limit(d Decision) Decision {
	if d.SleepUsec <= s.cfg.SafetyCeilingUsec {
		return d
	}
	d.ExceedsCeiling = true
	if s.cfg.ClampToCeiling {
		d.Clamped = true
		s.logger.Warnw(ErrSuspendExceedsCeiling.Error(),
			"sleep_us", d.SleepUsec, "ceiling_us", s.cfg.SafetyCeilingUsec, "action", "clamped")
		d.SleepUsec = s.cfg.SafetyCeilingUsec
		return d
	}
	s.logger.Warnw(ErrSuspendExceedsCeiling.Error(),
		"sleep_us", d.SleepUsec, "ceiling_us", s.cfg.SafetyCeilingUsec, "action", "honored")
	return d
}
