package scheduler

import (
	"github.com/chrissnell/barograph/internal/core"
)

// TrackBattery compares volts with the previous reading. A rise or fall by
// more than the charge threshold starts a new discharge cycle. It returns
// whether the discharge counter was reset.
func (s *Scheduler) TrackBattery(st *core.State, volts float32) bool {
	diff := volts - st.Counters.PrevBatteryVolts()
	reset := diff > s.cfg.ChargeThresholdVolts || diff < -s.cfg.ChargeThresholdVolts
	if reset {
		s.logger.Infow("battery charge state changed, discharge counter reset",
			"volts", volts, "prev_volts", st.Counters.PrevBatteryVolts(),
			"discharge_cycles", st.Counters.DischargeCycles)
		st.Counters.DischargeCycles = 0
	}
	st.Counters.PrevBatteryMicrovolts = int64(0.5 + 1e6*float64(volts))
	return reset
}

// AdvanceCounters counts one more sampled cycle and reports whether the
// counters are due to be mirrored into the durable store.
func (s *Scheduler) AdvanceCounters(st *core.State) bool {
	st.Counters.TotalBoots++
	st.Counters.DischargeCycles++
	if s.cfg.CounterFlushEvery == 0 {
		return false
	}
	return st.Counters.TotalBoots%s.cfg.CounterFlushEvery == 0
}
