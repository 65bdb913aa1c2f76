package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/buttons"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/cycle"
	"github.com/chrissnell/barograph/internal/metrics"
	"github.com/chrissnell/barograph/internal/persistence"
	"github.com/chrissnell/barograph/internal/scheduler"
	"github.com/chrissnell/barograph/internal/sensor"
	"github.com/chrissnell/barograph/internal/snapshot"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/config"
)

// Device wires every collaborator of the core together. It is shared by
// the long-running host and the one-shot CLI commands.
type Device struct {
	Config    *config.ConfigData
	Retained  persistence.RetainedStore
	Durable   persistence.DurableStore
	Sensor    sensor.Sensor
	Battery   sensor.Battery
	Latch     *buttons.Latch
	Queue     *control.Queue
	Handler   *control.Handler
	Publisher *snapshot.Publisher
	Metrics   metrics.Provider
	Runner    *cycle.Runner

	logger *zap.SugaredLogger
}

// Open creates the stores and collaborators named by cfg. The retained
// image lives on fs; reg receives the metrics when they are enabled.
func Open(cfg *config.ConfigData, fs afero.Fs, reg *prometheus.Registry, logger *zap.SugaredLogger) (*Device, error) {
	durable, err := persistence.NewSQLiteDurable(cfg.Storage.DurablePath, logger.Named("durable"))
	if err != nil {
		return nil, err
	}

	sens, batt, err := sensor.New(sensor.Config{
		Type:         cfg.Sensor.Type,
		SerialDevice: cfg.Sensor.SerialDevice,
		Baud:         cfg.Sensor.Baud,
		Address:      cfg.Sensor.Address,
		ReadTimeout:  cfg.Sensor.ReadTimeout,
	}, logger.Named("sensor"))
	if err != nil {
		durable.Close()
		return nil, err
	}

	d := &Device{
		Config:    cfg,
		Retained:  persistence.NewFileRetained(fs, cfg.Storage.RetainedPath),
		Durable:   durable,
		Sensor:    sens,
		Battery:   batt,
		Latch:     buttons.NewLatch(),
		Publisher: snapshot.NewPublisher(),
		Metrics:   metrics.New(cfg.HTTP.Metrics, reg),
		logger:    logger,
	}
	d.Handler = control.NewHandler(logger.Named("control"), d.Metrics)
	d.Queue = control.NewQueue(d.Handler)
	d.Runner = cycle.NewRunner(cycle.Deps{
		Scheduler:    scheduler.New(SchedulerConfig(cfg.Scheduler), logger.Named("scheduler")),
		Sensor:       d.Sensor,
		Battery:      d.Battery,
		Retained:     d.Retained,
		Durable:      d.Durable,
		Configurator: d.Queue,
		Buttons:      d.Latch,
		Publisher:    d.Publisher,
		Metrics:      d.Metrics,
		Logger:       logger.Named("cycle"),
	})
	return d, nil
}

// SchedulerConfig converts the configuration section into scheduler units.
func SchedulerConfig(c config.SchedulerData) scheduler.Config {
	return scheduler.Config{
		DueSlackUsec:         c.DueSlackMs * 1000,
		OvershootMarginUsec:  c.OvershootMarginSeconds * scheduler.MicrosPerSecond,
		SafetyCeilingUsec:    c.SafetyCeilingSeconds * scheduler.MicrosPerSecond,
		ClampToCeiling:       c.ClampToCeiling,
		CounterFlushEvery:    c.CounterFlushEvery,
		ChargeThresholdVolts: c.ChargeThresholdVolts,
	}
}

// DefaultPreferences are the preferences of a device whose durable store
// is empty.
func (d *Device) DefaultPreferences() types.Preferences {
	p := types.DefaultPreferences()
	p.MeasurementIntervalSeconds = d.Config.Device.DefaultIntervalSeconds
	p.TimeRangeHours = d.Config.Device.DefaultTimeRangeHours
	return p
}

// Restore loads both persistence tiers and reconciles them into the state
// the next cycle runs on.
func (d *Device) Restore(now time.Time) (*core.State, persistence.Report, error) {
	volatile, err := d.Retained.Load()
	if err != nil {
		if !errors.Is(err, persistence.ErrNoRetainedState) {
			// A damaged image is treated like a power loss.
			d.logger.Warnf("discarding unreadable retained state: %v", err)
		}
		volatile = nil
	}

	durable, err := d.Durable.Load(d.DefaultPreferences())
	if err != nil {
		return nil, persistence.Report{}, fmt.Errorf("error loading durable store: %w", err)
	}

	st, rep := persistence.Reconcile(volatile, durable, d.DefaultPreferences(), types.TimestampOf(now))
	switch {
	case rep.ColdStart:
		d.logger.Infof("cold start at %d s interval, %d boots recorded", st.Timeline.Interval(), st.Counters.TotalBoots)
	case rep.Mismatch != nil:
		d.logger.Warnf("%v, using durable counters", rep.Mismatch)
	}
	if rep.IntervalAdjusted {
		d.logger.Infof("interval preference replaced by timeline interval %d s", st.Timeline.Interval())
	}
	return st, rep, nil
}

// Checkpoint writes st to both tiers outside a cycle, as after an offline
// command.
func (d *Device) Checkpoint(st *core.State) error {
	if st.PreferencesChanged {
		if err := d.Durable.SavePreferences(st.Prefs); err != nil {
			return err
		}
		st.PreferencesChanged = false
	}
	return d.Retained.Save(st)
}

// Reset discards the retained image so the next start is a cold start.
// The durable store is kept.
func (d *Device) Reset() error {
	return d.Retained.Clear()
}

func (d *Device) Close() error {
	var errs []error
	if err := d.Sensor.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.Durable.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
