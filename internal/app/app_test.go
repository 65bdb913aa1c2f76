package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/buttons"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/rescale"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/config"
)

type staticProvider struct {
	cfg *config.ConfigData
}

func (p staticProvider) LoadConfig() (*config.ConfigData, error) { return p.cfg, nil }
func (p staticProvider) IsReadOnly() bool                        { return true }
func (p staticProvider) Close() error                            { return nil }

func testConfig(t *testing.T) *config.ConfigData {
	cfg := config.Defaults()
	cfg.Storage.RetainedPath = "state/retained.msgpack"
	cfg.Storage.DurablePath = filepath.Join(t.TempDir(), "durable.db")
	return cfg
}

func openDevice(t *testing.T, cfg *config.ConfigData, fs afero.Fs) *Device {
	dev, err := Open(cfg, fs, prometheus.NewRegistry(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestSchedulerConfigUnits(t *testing.T) {
	c := SchedulerConfig(config.SchedulerData{
		SafetyCeilingSeconds:   2000,
		DueSlackMs:             500,
		OvershootMarginSeconds: 10,
		CounterFlushEvery:      250,
		ChargeThresholdVolts:   0.025,
		ClampToCeiling:         true,
	})
	assert.Equal(t, int64(2_000_000_000), c.SafetyCeilingUsec)
	assert.Equal(t, int64(500_000), c.DueSlackUsec)
	assert.Equal(t, int64(10_000_000), c.OvershootMarginUsec)
	assert.Equal(t, uint32(250), c.CounterFlushEvery)
	assert.True(t, c.ClampToCeiling)
}

func TestDeviceColdStartThenResume(t *testing.T) {
	cfg := testConfig(t)
	fs := afero.NewMemMapFs()
	dev := openDevice(t, cfg, fs)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st, rep, err := dev.Restore(now)
	require.NoError(t, err)
	assert.True(t, rep.ColdStart)
	assert.True(t, st.Scheduler.JustInitialized)
	assert.Equal(t, uint32(900), st.Timeline.Interval())

	out, err := dev.Runner.Run(context.Background(), st, types.CauseUndefined)
	require.NoError(t, err)
	assert.True(t, out.Sampled)
	assert.NoError(t, out.RetainedErr)

	view, ok := dev.Publisher.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(1), view.TotalBoots)

	st2, rep2, err := dev.Restore(now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, rep2.ColdStart)
	assert.Equal(t, st.Counters.TotalBoots, st2.Counters.TotalBoots)
	assert.Equal(t, 1, st2.Timeline.Populated())
}

func TestDeviceRestoreUsesConfiguredDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.DefaultIntervalSeconds = 450
	cfg.Device.DefaultTimeRangeHours = 42
	dev := openDevice(t, cfg, afero.NewMemMapFs())

	st, _, err := dev.Restore(time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint32(42), st.Prefs.TimeRangeHours)
}

func TestDeviceCheckpointAndReset(t *testing.T) {
	cfg := testConfig(t)
	fs := afero.NewMemMapFs()
	dev := openDevice(t, cfg, fs)

	st, _, err := dev.Restore(time.Now())
	require.NoError(t, err)

	_, err = dev.Handler.Apply(st, control.Rescale(rescale.Half))
	require.NoError(t, err)
	require.True(t, st.PreferencesChanged)
	require.NoError(t, dev.Checkpoint(st))
	assert.False(t, st.PreferencesChanged)

	snap, err := dev.Durable.Load(dev.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, uint32(450), snap.Prefs.MeasurementIntervalSeconds)

	exists, err := afero.Exists(fs, cfg.Storage.RetainedPath)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, dev.Reset())
	_, rep, err := dev.Restore(time.Now())
	require.NoError(t, err)
	assert.True(t, rep.ColdStart)
}

func TestDeviceDiscardsCorruptRetainedImage(t *testing.T) {
	cfg := testConfig(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("state", 0o755))
	require.NoError(t, afero.WriteFile(fs, cfg.Storage.RetainedPath, []byte("not msgpack"), 0o644))
	dev := openDevice(t, cfg, fs)

	_, rep, err := dev.Restore(time.Now())
	require.NoError(t, err)
	assert.True(t, rep.ColdStart)
}

func TestDeviceLatchWakesOnButton1(t *testing.T) {
	dev := openDevice(t, testConfig(t), afero.NewMemMapFs())
	require.True(t, dev.Latch.Press(buttons.Button1))

	select {
	case <-dev.Latch.Wake():
	default:
		t.Fatal("expected a pending wake")
	}
}

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	fs := afero.NewMemMapFs()
	a := New(staticProvider{cfg: cfg}, zap.NewNop().Sugar())
	a.fs = fs

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		ok, _ := afero.Exists(fs, cfg.Storage.RetainedPath)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
