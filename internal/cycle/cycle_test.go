package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/buttons"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/persistence"
	"github.com/chrissnell/barograph/internal/rescale"
	"github.com/chrissnell/barograph/internal/scheduler"
	"github.com/chrissnell/barograph/internal/sensor"
	"github.com/chrissnell/barograph/internal/snapshot"
	"github.com/chrissnell/barograph/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeDurable struct {
	prefs    []types.Preferences
	counters []core.Counters
	err      error
}

func (d *fakeDurable) Load(defaults types.Preferences) (persistence.DurableSnapshot, error) {
	return persistence.DurableSnapshot{Prefs: defaults}, nil
}

func (d *fakeDurable) SavePreferences(p types.Preferences) error {
	if d.err != nil {
		return d.err
	}
	d.prefs = append(d.prefs, p)
	return nil
}

func (d *fakeDurable) SaveCounters(c core.Counters) error {
	if d.err != nil {
		return d.err
	}
	d.counters = append(d.counters, c)
	return nil
}

func (d *fakeDurable) Close() error { return nil }

type fixedBattery struct {
	volts float32
}

func (b *fixedBattery) Read(_ context.Context) (types.BatteryReading, error) {
	return sensor.Reading(b.volts), nil
}

type harness struct {
	runner   *Runner
	clock    *fakeClock
	sensor   *sensor.Simulated
	battery  *fixedBattery
	retained *persistence.FileRetained
	durable  *fakeDurable
	queue    *control.Queue
	latch    *buttons.Latch
	pub      *snapshot.Publisher
	state    *core.State
}

func newHarness(t *testing.T, cfg scheduler.Config) *harness {
	t.Helper()
	logger := zap.NewNop().Sugar()
	clock := &fakeClock{t: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:    clock,
		sensor:   sensor.NewSimulated(clock.Now),
		battery:  &fixedBattery{volts: 4.0},
		retained: persistence.NewFileRetained(afero.NewMemMapFs(), "/retained.msgpack"),
		durable:  &fakeDurable{},
		queue:    control.NewQueue(control.NewHandler(logger, nil)),
		latch:    buttons.NewLatch(),
		pub:      snapshot.NewPublisher(),
	}
	h.runner = NewRunner(Deps{
		Scheduler:    scheduler.New(cfg, logger),
		Sensor:       h.sensor,
		Battery:      h.battery,
		Retained:     h.retained,
		Durable:      h.durable,
		Configurator: h.queue,
		Buttons:      h.latch,
		Publisher:    h.pub,
		Clock:        clock,
		Logger:       logger,
	})
	h.state = core.New(types.DefaultPreferences(), types.TimestampOf(clock.Now()))
	return h
}

func (h *harness) run(t *testing.T, cause types.WakeCause) Outcome {
	t.Helper()
	out, err := h.runner.Run(context.Background(), h.state, cause)
	require.NoError(t, err)
	return out
}

func TestFirstCycleSamples(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())

	out := h.run(t, types.CauseUndefined)
	assert.Equal(t, types.WakeOther, out.Reason)
	assert.True(t, out.Sampled)
	assert.NotEmpty(t, out.CycleID)
	assert.False(t, h.state.Scheduler.JustInitialized)
	assert.Equal(t, int64(900_000_000), out.Decision.SleepUsec)
	assert.Equal(t, 1, h.state.Timeline.Populated())
	assert.Equal(t, uint32(1), h.state.Counters.TotalBoots)

	restored, err := h.retained.Load()
	require.NoError(t, err)
	assert.Equal(t, h.state.Timeline.Image(), restored.Timeline.Image())
	assert.Equal(t, h.state.Scheduler, restored.Scheduler)

	v, ok := h.pub.Latest()
	require.True(t, ok)
	assert.Equal(t, h.state.Timeline.Newest(), v.Newest)
}

func TestEarlyWakeDoesNotSample(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.run(t, types.CauseUndefined)

	h.clock.Advance(300 * time.Second)
	out := h.run(t, types.CauseTimer)
	assert.Equal(t, types.WakeTimer, out.Reason)
	assert.False(t, out.Sampled)
	assert.Equal(t, int64(600_000_000), out.Decision.SleepUsec)
	assert.Equal(t, int64(600_000_000), h.state.Scheduler.LastActualSleepNoMeasurementUsec)
	assert.Equal(t, 1, h.state.Timeline.Populated())
}

func TestTimerWakeOnScheduleSamples(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.run(t, types.CauseUndefined)
	first := h.state.Scheduler.LastSampleTime

	h.clock.Advance(900 * time.Second)
	out := h.run(t, types.CauseTimer)
	assert.True(t, out.Sampled)
	assert.Equal(t, 2, h.state.Timeline.Populated())
	assert.Equal(t, first, h.state.Scheduler.PreviousSampleTime)
	assert.Equal(t, types.TimestampOf(h.clock.Now()), h.state.Scheduler.LastSampleTime)
	assert.Equal(t, float32(900), h.state.SecondsSinceLastSample)
	assert.Equal(t, uint32(900), h.state.Timeline.Slot(334).AgeSeconds)
}

func TestSensorFailureStoresNoData(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.sensor.FailEvery = 1

	out := h.run(t, types.CauseUndefined)
	assert.True(t, out.Sampled)
	assert.True(t, errors.Is(out.SensorErr, sensor.ErrSensorRead))
	assert.True(t, h.state.SensorFault)
	assert.False(t, h.state.Timeline.Newest().Populated())
	assert.Equal(t, int64(900_000_000), out.Decision.SleepUsec)
	assert.Equal(t, types.TimestampOf(h.clock.Now()), h.state.Scheduler.LastSampleTime)
}

func TestExternalWakeAppliesQueuedCommands(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.run(t, types.CauseUndefined)

	require.NoError(t, h.queue.Submit(control.Rescale(rescale.Half), control.SetGraphicsMode(types.GraphPressure)))
	h.clock.Advance(60 * time.Second)
	out := h.run(t, types.CauseExt0)

	assert.Equal(t, types.WakeExternal, out.Reason)
	assert.Equal(t, 2, out.Session.Applied)
	assert.Equal(t, uint32(450), h.state.Timeline.Interval())
	assert.True(t, out.PreferencesFlushed)
	assert.False(t, h.state.PreferencesChanged)
	require.NotEmpty(t, h.durable.prefs)
	last := h.durable.prefs[len(h.durable.prefs)-1]
	assert.Equal(t, uint32(450), last.MeasurementIntervalSeconds)
	assert.Equal(t, types.GraphPressure, last.GraphicsMode)

	// The rescale halved the after-measurement base, so 60 s in is not due
	// yet and the remaining time is measured against the halved target.
	assert.False(t, out.Sampled)
	assert.Equal(t, int64(390_000_000), out.Decision.SleepUsec)
}

func TestTimerWakeIgnoresQueuedCommands(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	require.NoError(t, h.queue.Submit(control.Invert()))

	out := h.run(t, types.CauseTimer)
	assert.Equal(t, 0, out.Session.Applied)
	assert.Equal(t, 1, h.queue.Pending())
	assert.False(t, h.state.Prefs.InversionEnabled)
}

func TestButton3TogglesPressureCorrection(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.latch.Press(buttons.Button3)

	out := h.run(t, types.CauseExt1)
	assert.True(t, h.state.Prefs.PressureCorrectionEnabled)
	assert.True(t, out.PreferencesFlushed)

	h.clock.Advance(10 * time.Second)
	h.run(t, types.CauseTimer)
	assert.True(t, h.state.Prefs.PressureCorrectionEnabled, "drained press must not toggle again")
}

func TestCountersFlushEveryK(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	cfg.CounterFlushEvery = 2
	h := newHarness(t, cfg)

	out := h.run(t, types.CauseUndefined)
	assert.False(t, out.CountersFlushed)

	h.clock.Advance(900 * time.Second)
	out = h.run(t, types.CauseTimer)
	assert.True(t, out.CountersFlushed)
	require.Len(t, h.durable.counters, 1)
	assert.Equal(t, uint32(2), h.durable.counters[0].TotalBoots)

	h.clock.Advance(100 * time.Second)
	h.run(t, types.CauseTimer)
	assert.Len(t, h.durable.counters, 1, "not-due cycles do not count")
}

func TestBatteryChargeResetsDischargeCounter(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.run(t, types.CauseUndefined)
	h.clock.Advance(900 * time.Second)
	h.run(t, types.CauseTimer)
	assert.Equal(t, uint32(2), h.state.Counters.DischargeCycles)

	h.battery.volts = 4.1
	h.clock.Advance(900 * time.Second)
	h.run(t, types.CauseTimer)
	assert.Equal(t, uint32(1), h.state.Counters.DischargeCycles)
	assert.Equal(t, int64(4_100_000), h.state.Counters.PrevBatteryMicrovolts)
	assert.InDelta(t, 4.1, h.state.Battery.Volts, 1e-6)
}

func TestPersistenceFailuresDoNotStopTheCycle(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	h.runner.Retained = persistence.NewFileRetained(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/retained.msgpack")
	h.durable.err = errors.New("disk full")
	h.state.PreferencesChanged = true

	out := h.run(t, types.CauseUndefined)
	assert.Error(t, out.RetainedErr)
	assert.Error(t, out.DurableErr)
	assert.True(t, h.state.PreferencesChanged, "unflushed preferences stay pending")
	assert.Equal(t, int64(900_000_000), out.Decision.SleepUsec)
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, scheduler.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx, h.state, types.CauseTimer)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, h.state.Scheduler.JustInitialized, "state untouched")
}
