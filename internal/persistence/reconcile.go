package persistence

import (
	"errors"
	"fmt"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/types"
)

// ErrPersistenceMismatch is reported when the durable boot counter is
// ahead of the retained one.
var ErrPersistenceMismatch = errors.New("durable boot counter ahead of retained state")

// Report describes what Reconcile decided.
type Report struct {
	ColdStart bool
	// DurableCountersWon is set when the durable counters replaced the
	// retained ones. Mismatch then wraps ErrPersistenceMismatch.
	DurableCountersWon bool
	Mismatch           error
	// PendingPreferencesKept is set when the retained image carried
	// preference changes not yet flushed to the durable store.
	PendingPreferencesKept bool
	// IntervalAdjusted is set when the interval preference was replaced
	// by the timeline's own interval.
	IntervalAdjusted bool
}

// Reconcile merges the retained state (nil after a power loss) with the
// durable snapshot. The returned state is owned by the caller.
//
// Without retained state a fresh state is built from the durable
// preferences and counters, with the timeline based on the default
// interval so an earlier rescale is still recognized. With it, preferences come from the durable
// store unless the retained image holds unflushed changes, the larger boot
// counter wins, and the timeline's interval stays authoritative.
func Reconcile(volatile *core.State, durable DurableSnapshot, defaults types.Preferences, now types.Timestamp) (*core.State, Report) {
	var rep Report

	prefs := durable.Prefs
	if prefs.MeasurementIntervalSeconds == 0 {
		prefs = defaults
	}

	if volatile == nil {
		rep.ColdStart = true
		st := core.NewWithBase(prefs, defaults.MeasurementIntervalSeconds, now)
		if durable.HasCounters {
			st.Counters = durable.Counters
		}
		return st, rep
	}

	st := volatile
	if st.PreferencesChanged {
		rep.PendingPreferencesKept = true
	} else {
		st.Prefs = prefs
	}
	st.SetTimeRange(st.Prefs.TimeRangeHours)

	if durable.HasCounters && durable.Counters.TotalBoots > st.Counters.TotalBoots {
		rep.DurableCountersWon = true
		rep.Mismatch = fmt.Errorf("%w: durable %d, retained %d",
			ErrPersistenceMismatch, durable.Counters.TotalBoots, st.Counters.TotalBoots)
		st.Counters = durable.Counters
	}

	if st.SyncInterval() {
		rep.IntervalAdjusted = true
		st.PreferencesChanged = true
	}
	return st, rep
}
