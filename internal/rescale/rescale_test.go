package rescale

import (
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/timeline"
	"github.com/chrissnell/barograph/internal/types"
)

// newState returns a state whose timeline is full of distinct samples:
// slot i holds pressure 1000+i, temperature i/10 and humidity 300+i.
func newState(interval uint32) *core.State {
	prefs := types.DefaultPreferences()
	prefs.MeasurementIntervalSeconds = interval
	st := core.New(prefs, types.Timestamp{Sec: 1_700_000_000})
	for i := 0; i < timeline.Capacity; i++ {
		st.Timeline.Append(types.Sample{
			PressureHPa:      1000 + float32(i),
			TemperatureC:     float32(i) / 10,
			HumidityPermille: int16(300 + i),
		})
	}
	st.Scheduler.LastTargetSleepSeconds = interval
	st.Scheduler.LastActualSleepAfterMeasurementUsec = int64(interval) * 1_000_000
	st.Scheduler.LastActualSleepNoMeasurementUsec = int64(interval) * 500_000
	st.SecondsSinceLastSample = float32(interval)
	return st
}

func sentinelSlots(tl *timeline.Timeline) []int {
	var idx []int
	for i := 0; i < timeline.Capacity; i++ {
		if !tl.Slot(i).Populated() {
			idx = append(idx, i)
		}
	}
	return idx
}

func checkNominalAges(t *testing.T, tl *timeline.Timeline) {
	t.Helper()
	for i := 0; i < timeline.Capacity; i++ {
		want := uint32(timeline.Capacity-1-i) * tl.Interval()
		if got := tl.Slot(i).AgeSeconds; got != want {
			t.Fatalf("slot %d age = %d, want %d", i, got, want)
		}
	}
}

func TestQuarterFrom225(t *testing.T) {
	st := newState(225)
	Apply(st, Quarter)

	if got := st.Timeline.Interval(); got != 56 {
		t.Fatalf("interval = %d, want 56", got)
	}
	if s := sentinelSlots(st.Timeline); len(s) != 0 {
		t.Errorf("quarter produced %d NoData slots", len(s))
	}
	checkNominalAges(t, st.Timeline)

	// each of the newest 84 slots is repeated four times, oldest first
	for k := 0; k < timeline.Capacity; k++ {
		src := 3*timeline.Capacity/4 + k/4
		if got, want := st.Timeline.Slot(k).PressureHPa, 1000+float32(src); got != want {
			t.Fatalf("slot %d pressure = %v, want %v", k, got, want)
		}
	}
	if st.Prefs.MeasurementIntervalSeconds != 56 || !st.PreferencesChanged {
		t.Errorf("preferences not synced: %+v changed=%v", st.Prefs, st.PreferencesChanged)
	}
}

func TestHalfExpandsNewestHalf(t *testing.T) {
	st := newState(900)
	Apply(st, Half)

	if got := st.Timeline.Interval(); got != 450 {
		t.Fatalf("interval = %d, want 450", got)
	}
	for k := 0; k < timeline.Capacity; k++ {
		src := timeline.Capacity/2 + k/2
		if got, want := st.Timeline.Slot(k).HumidityPermille, int16(300+src); got != want {
			t.Fatalf("slot %d humidity = %v, want %v", k, got, want)
		}
	}
	checkNominalAges(t, st.Timeline)
}

func TestCoarseningMarksOldestSlots(t *testing.T) {
	tests := []struct {
		name         string
		interval     uint32
		transform    Transform
		wantInterval uint32
		wantEmpty    int
	}{
		{name: "double from 225", interval: 225, transform: Double, wantInterval: 450, wantEmpty: 168},
		{name: "double from 450", interval: 450, transform: Double, wantInterval: 900, wantEmpty: 168},
		{name: "quadruple from 225", interval: 225, transform: Quadruple, wantInterval: 900, wantEmpty: 252},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newState(tt.interval)
			Apply(st, tt.transform)

			if got := st.Timeline.Interval(); got != tt.wantInterval {
				t.Fatalf("interval = %d, want %d", got, tt.wantInterval)
			}
			for i := 0; i < timeline.Capacity; i++ {
				s := st.Timeline.Slot(i)
				if i < tt.wantEmpty {
					if s.PressureHPa != types.NoData || s.TemperatureC != types.NoData || s.HumidityPermille != types.NoData {
						t.Fatalf("slot %d = %+v, want NoData in every field", i, s)
					}
				} else if !s.Populated() {
					t.Fatalf("slot %d unexpectedly empty: %+v", i, s)
				}
			}
			checkNominalAges(t, st.Timeline)
		})
	}
}

func TestDoubleAveragesPairs(t *testing.T) {
	st := newState(225)
	Apply(st, Double)

	// output slot 335 merges input slots 334 and 335, slot 334 merges 332/333
	if got := st.Timeline.Slot(335).PressureHPa; got != 1334.5 {
		t.Errorf("slot 335 pressure = %v, want 1334.5", got)
	}
	if got := st.Timeline.Slot(334).PressureHPa; got != 1332.5 {
		t.Errorf("slot 334 pressure = %v, want 1332.5", got)
	}
	if got := st.Timeline.Slot(168).PressureHPa; got != 1000.5 {
		t.Errorf("slot 168 pressure = %v, want 1000.5", got)
	}
	if got := st.Timeline.Slot(335).HumidityPermille; got != 634 {
		// mean 634.5 truncates to 634
		t.Errorf("slot 335 humidity = %v, want 634", got)
	}
}

func TestQuadrupleAveragesGroups(t *testing.T) {
	st := newState(225)
	Apply(st, Quadruple)

	// (332+333+334+335)/4 = 333.5
	if got := st.Timeline.Slot(335).PressureHPa; got != 1333.5 {
		t.Errorf("slot 335 pressure = %v, want 1333.5", got)
	}
	// (632+633+634+635)/4 = 633.5 truncates to 633
	if got := st.Timeline.Slot(335).HumidityPermille; got != 633 {
		t.Errorf("slot 335 humidity = %v, want 633", got)
	}
	tEps := math.Abs(float64(st.Timeline.Slot(335).TemperatureC) - 33.35)
	if tEps > 1e-4 {
		t.Errorf("slot 335 temperature = %v, want 33.35", st.Timeline.Slot(335).TemperatureC)
	}
}

func TestCompactionKeepsExistingNoData(t *testing.T) {
	st := newState(225)
	Apply(st, Double) // 225 -> 450, oldest 168 empty
	Apply(st, Double) // 450 -> 900, oldest 252 empty

	if got := st.Timeline.Interval(); got != 900 {
		t.Fatalf("interval = %d, want 900", got)
	}
	if got := len(sentinelSlots(st.Timeline)); got != 252 {
		t.Errorf("NoData slots = %d, want 252", got)
	}
	if got := st.Timeline.Slot(251).PressureHPa; got != types.NoData {
		t.Errorf("slot 251 pressure = %v, want exact NoData marker", got)
	}
}

func TestExpansionDoesNotCreateNoData(t *testing.T) {
	st := newState(900)
	tl := st.Timeline
	// knock out one field in the newest quarter
	img := tl.Image()
	img.Samples[300].TemperatureC = types.NoData
	restored, err := timeline.FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	st.Timeline = restored

	Apply(st, Quarter)

	empty := sentinelSlots(st.Timeline)
	want := []int{192, 193, 194, 195}
	if len(empty) != len(want) {
		t.Fatalf("NoData slots = %v, want %v", empty, want)
	}
	for i := range want {
		if empty[i] != want[i] {
			t.Fatalf("NoData slots = %v, want %v", empty, want)
		}
	}
}

func TestRoundTripRestoresInterval(t *testing.T) {
	tests := []struct {
		interval uint32
		there    Transform
		back     Transform
	}{
		{interval: 225, there: Quarter, back: Quadruple},
		{interval: 900, there: Quarter, back: Quadruple},
		{interval: 900, there: Half, back: Double},
		{interval: 450, there: Half, back: Double},
		{interval: 225, there: Double, back: Half},
		{interval: 225, there: Quadruple, back: Quarter},
		{interval: 301, there: Quarter, back: Quadruple},
	}

	for _, tt := range tests {
		st := newState(tt.interval)
		Apply(st, tt.there)
		if st.Timeline.Window(0) == nil || len(st.Timeline.Window(0)) != timeline.Capacity {
			t.Fatalf("slot count changed")
		}
		Apply(st, tt.back)
		if got := st.Timeline.Interval(); got != tt.interval {
			t.Errorf("%d %s/%s: interval = %d, want %d", tt.interval, tt.there, tt.back, got, tt.interval)
		}
		if got := len(st.Timeline.Window(0)); got != timeline.Capacity {
			t.Errorf("slot count = %d, want %d", got, timeline.Capacity)
		}
	}
}

func TestApplyScalesSchedulerState(t *testing.T) {
	st := newState(900)
	Apply(st, Quarter)

	sc := st.Scheduler
	if sc.LastTargetSleepSeconds != 225 {
		t.Errorf("LastTargetSleepSeconds = %d, want 225", sc.LastTargetSleepSeconds)
	}
	if sc.LastActualSleepAfterMeasurementUsec != 225_000_000 {
		t.Errorf("after-measurement sleep = %d, want 225000000", sc.LastActualSleepAfterMeasurementUsec)
	}
	if sc.LastActualSleepNoMeasurementUsec != 112_500_000 {
		t.Errorf("no-measurement sleep = %d, want 112500000", sc.LastActualSleepNoMeasurementUsec)
	}
	if st.SecondsSinceLastSample != 225 {
		t.Errorf("SecondsSinceLastSample = %v, want 225", st.SecondsSinceLastSample)
	}

	Apply(st, Quadruple)
	if st.Scheduler.LastTargetSleepSeconds != 900 {
		t.Errorf("LastTargetSleepSeconds after quadruple = %d, want 900", st.Scheduler.LastTargetSleepSeconds)
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name  string
		setup []Transform
		tr    Transform
		ok    bool
	}{
		{name: "quarter from base", tr: Quarter, ok: true},
		{name: "half from base", tr: Half, ok: true},
		{name: "double from base", tr: Double, ok: false},
		{name: "quadruple from base", tr: Quadruple, ok: false},
		{name: "half from half", setup: []Transform{Half}, tr: Half, ok: true},
		{name: "quarter from half", setup: []Transform{Half}, tr: Quarter, ok: false},
		{name: "double from half", setup: []Transform{Half}, tr: Double, ok: true},
		{name: "double from quarter", setup: []Transform{Quarter}, tr: Double, ok: true},
		{name: "quadruple from quarter", setup: []Transform{Quarter}, tr: Quadruple, ok: true},
		{name: "quadruple from half", setup: []Transform{Half}, tr: Quadruple, ok: false},
		{name: "unknown transform", tr: Transform(99), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newState(900)
			for _, s := range tt.setup {
				Apply(st, s)
			}
			err := CheckTransition(st.Timeline, tt.tr)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRescaleTransition) {
				t.Fatalf("error = %v, want ErrInvalidRescaleTransition", err)
			}
		})
	}
}

func TestParseTransform(t *testing.T) {
	for _, tr := range Transforms {
		got, err := ParseTransform(tr.String())
		if err != nil || got != tr {
			t.Errorf("ParseTransform(%q) = %v, %v", tr.String(), got, err)
		}
	}
	if _, err := ParseTransform("triple"); err == nil {
		t.Errorf("expected error for unknown transform")
	}
}
