// Package rescale re-grids a timeline to a finer or coarser nominal interval
// while keeping the scheduler bookkeeping in step with it.
package rescale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/timeline"
)

// ErrInvalidRescaleTransition is returned by CheckTransition when a
// transform is not allowed from the current interval.
var ErrInvalidRescaleTransition = errors.New("invalid rescale transition")

// Transform names one of the four supported re-gridding operations.
type Transform int

const (
	Quarter   Transform = iota + 1 // interval / 4, zoom in
	Half                           // interval / 2
	Double                         // interval * 2, zoom out
	Quadruple                      // interval * 4
)

// Transforms lists every transform.
var Transforms = []Transform{Quarter, Half, Double, Quadruple}

func (t Transform) String() string {
	switch t {
	case Quarter:
		return "quarter"
	case Half:
		return "half"
	case Double:
		return "double"
	case Quadruple:
		return "quadruple"
	default:
		return fmt.Sprintf("transform(%d)", int(t))
	}
}

// ParseTransform accepts the lower-case transform names.
func ParseTransform(s string) (Transform, error) {
	for _, t := range Transforms {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rescale transform %q", s)
}

// Factor is the number of old slots merged into, or new slots made from,
// one slot.
func (t Transform) Factor() int {
	switch t {
	case Quarter, Quadruple:
		return 4
	case Half, Double:
		return 2
	}
	return 1
}

// Finer reports whether the transform shortens the interval.
func (t Transform) Finer() bool {
	return t == Quarter || t == Half
}

func (t Transform) shift() int {
	switch t {
	case Quarter:
		return -2
	case Half:
		return -1
	case Double:
		return 1
	case Quadruple:
		return 2
	}
	return 0
}

// allowedScales are the timeline scales each transform may start from.
// With a base of 900 s these are the 900, 450|900, 225|450 and 225 second
// source intervals of the display ranges 84 h, 42 h and 21 h.
var allowedScales = map[Transform][]int{
	Quarter:   {0},
	Half:      {0, -1},
	Double:    {-1, -2},
	Quadruple: {-2},
}

// CheckTransition reports whether tr may be applied to tl. Apply itself does
// not validate; callers must check first.
func CheckTransition(tl *timeline.Timeline, tr Transform) error {
	scales, ok := allowedScales[tr]
	if !ok {
		return fmt.Errorf("%w: unknown transform %d", ErrInvalidRescaleTransition, int(tr))
	}
	for _, s := range scales {
		if tl.Scale() == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not possible from interval %d s", ErrInvalidRescaleTransition, tr, tl.Interval())
}

// Apply re-grids the timeline of st and scales the scheduler durations and
// the display-only elapsed time by the same factor. Ages are renormalized to
// exact multiples of the new interval.
func Apply(st *core.State, tr Transform) {
	tl := st.Timeline
	n := tr.Factor()

	if tr.Finer() {
		tl.ExpandOneToMany(n)
	} else {
		tl.CompactGroups(n)
	}
	tl.Rescale(tr.shift())
	tl.RenormalizeAges()
	tl.Recompute()

	sc := &st.Scheduler
	if tr.Finer() {
		sc.LastTargetSleepSeconds /= uint32(n)
		sc.LastActualSleepAfterMeasurementUsec /= int64(n)
		sc.LastActualSleepNoMeasurementUsec /= int64(n)
		st.SecondsSinceLastSample /= float32(n)
	} else {
		sc.LastTargetSleepSeconds *= uint32(n)
		sc.LastActualSleepAfterMeasurementUsec *= int64(n)
		sc.LastActualSleepNoMeasurementUsec *= int64(n)
		st.SecondsSinceLastSample *= float32(n)
	}

	if st.SyncInterval() {
		st.PreferencesChanged = true
	}
}
