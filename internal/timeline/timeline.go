// Package timeline holds the fixed-capacity, age-ordered sample history of
// the barograph. Index 0 is the oldest slot and Capacity-1 the newest.
package timeline

import (
	"github.com/chrissnell/barograph/internal/types"
)

const (
	// Capacity is the number of slots, 84 hours at one sample per 15 minutes.
	Capacity = 336

	// ShortWindowOffset is the first drawable slot of the 72 h family of
	// display ranges.
	ShortWindowOffset = 48

	// maxScale bounds the power-of-two offsets ScaleOf searches.
	maxScale = 4
)

// Timeline is the sample history plus the nominal spacing it represents.
//
// The nominal interval is base<<scale for scale >= 0 and base>>-scale
// otherwise, so a finer rescale followed by the matching coarser one always
// returns to the exact starting interval even when the finer one had to
// round down.
type Timeline struct {
	slots         [Capacity]types.Sample
	base          uint32
	scale         int
	interval      uint32
	firstDrawable int
	stats         Stats
}

// New returns an empty timeline. Every slot is NoData and carries its
// nominal age.
func New(intervalSeconds uint32) *Timeline {
	t := &Timeline{
		base:     intervalSeconds,
		interval: intervalSeconds,
	}
	for i := range t.slots {
		t.slots[i] = types.EmptySample()
	}
	t.RenormalizeAges()
	t.Recompute()
	return t
}

// NewScaled returns an empty timeline running at intervalSeconds, expressed
// as a power-of-two scale of base. When intervalSeconds is not base shifted
// by a whole number of powers of two, the interval becomes its own base.
func NewScaled(base, intervalSeconds uint32) *Timeline {
	t := New(intervalSeconds)
	if scale, ok := ScaleOf(base, intervalSeconds); ok {
		t.base = base
		t.scale = scale
	}
	return t
}

// ScaleOf finds the scale at which base yields intervalSeconds.
func ScaleOf(base, intervalSeconds uint32) (int, bool) {
	if base == 0 || intervalSeconds == 0 {
		return 0, false
	}
	for scale := -maxScale; scale <= maxScale; scale++ {
		if derive(base, scale) == intervalSeconds {
			return scale, true
		}
	}
	return 0, false
}

// Interval is the nominal number of seconds each slot represents.
func (t *Timeline) Interval() uint32 {
	return t.interval
}

// BaseInterval is the interval the timeline was created with.
func (t *Timeline) BaseInterval() uint32 {
	return t.base
}

// Scale is the power-of-two offset of Interval from BaseInterval.
func (t *Timeline) Scale() int {
	return t.scale
}

// Rescale shifts the scale by shift powers of two and updates Interval.
// Slot contents are untouched.
func (t *Timeline) Rescale(shift int) {
	t.scale += shift
	t.interval = derive(t.base, t.scale)
}

func derive(base uint32, scale int) uint32 {
	if scale >= 0 {
		return base << uint(scale)
	}
	return base >> uint(-scale)
}

// FirstDrawableIndex is 0 for the full display window and
// ShortWindowOffset for the short one.
func (t *Timeline) FirstDrawableIndex() int {
	return t.firstDrawable
}

// SetShortWindow selects the short or the full display window and
// recomputes statistics over it.
func (t *Timeline) SetShortWindow(short bool) {
	if short {
		t.firstDrawable = ShortWindowOffset
	} else {
		t.firstDrawable = 0
	}
	t.Recompute()
}

// Slot returns the sample at index i.
func (t *Timeline) Slot(i int) types.Sample {
	return t.slots[i]
}

// Newest returns the most recent sample.
func (t *Timeline) Newest() types.Sample {
	return t.slots[Capacity-1]
}

// Append stores a freshly taken sample as the newest slot, drops the oldest
// slot and refreshes the statistics.
func (t *Timeline) Append(s types.Sample) {
	t.ShiftIn(s)
	t.Recompute()
}

// Window returns a copy of the slots from first to the newest. first is
// clamped to the valid range. Slots with any NoData field must be skipped by
// the caller.
func (t *Timeline) Window(first int) []types.Sample {
	if first < 0 {
		first = 0
	}
	if first > Capacity-1 {
		first = Capacity - 1
	}
	out := make([]types.Sample, Capacity-first)
	copy(out, t.slots[first:])
	return out
}

// Populated counts the slots in the drawable window whose fields all hold data.
func (t *Timeline) Populated() int {
	n := 0
	for i := t.firstDrawable; i < Capacity; i++ {
		if t.slots[i].Populated() {
			n++
		}
	}
	return n
}

// TimeRangeHours is the span the drawable window covers, snapped to the
// nearest display range when within 1000 seconds of it.
func (t *Timeline) TimeRangeHours() uint32 {
	span := int64(t.slots[t.firstDrawable].AgeSeconds) - int64(t.slots[Capacity-1].AgeSeconds)
	hours := uint32(0.5 + float64(span)/3600)

	candidates := []int64{84, 42, 21}
	if t.firstDrawable > 0 {
		candidates = []int64{72, 36, 18}
	}
	for _, h := range candidates {
		d := span - h*3600
		if d > -1000 && d < 1000 {
			return uint32(h)
		}
	}
	return hours
}
