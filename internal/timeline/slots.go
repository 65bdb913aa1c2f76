package timeline

import (
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/barograph/internal/types"
)

// ShiftIn moves every slot one position toward index 0, ages the survivors by
// one nominal interval and puts s at the newest position with age 0.
func (t *Timeline) ShiftIn(s types.Sample) {
	copy(t.slots[:Capacity-1], t.slots[1:])
	for i := 0; i < Capacity-1; i++ {
		t.slots[i].AgeSeconds += t.interval
	}
	s.AgeSeconds = 0
	t.slots[Capacity-1] = s
}

// CompactGroups averages consecutive groups of n slots, newest group first,
// into one slot each. The compacted history fills the newest Capacity/n
// slots and everything older becomes NoData. A field that is absent in any
// member of a group stays absent. Ages are left for RenormalizeAges.
func (t *Timeline) CompactGroups(n int) {
	if n <= 1 {
		return
	}
	var out [Capacity]types.Sample
	for i := range out {
		out[i] = types.EmptySample()
	}

	values := make([]float64, n)
	dst := Capacity - 1
	for end := Capacity - 1; end-n+1 >= 0; end -= n {
		group := t.slots[end-n+1 : end+1]
		var merged types.Sample
		for _, f := range types.Fields {
			absent := false
			for k, s := range group {
				values[k] = f.Value(s)
				if !types.Present(values[k]) {
					absent = true
				}
			}
			if absent {
				f.Set(&merged, types.NoData)
				continue
			}
			f.Set(&merged, stat.Mean(values, nil))
		}
		out[dst] = merged
		dst--
	}
	t.slots = out
}

// ExpandOneToMany takes the newest Capacity/n slots and repeats each of them
// n times, oldest first, so the result fills every slot. Older history is
// discarded. Ages are left for RenormalizeAges.
func (t *Timeline) ExpandOneToMany(n int) {
	if n <= 1 {
		return
	}
	var out [Capacity]types.Sample
	dst := 0
	for src := Capacity - Capacity/n; src < Capacity; src++ {
		for k := 0; k < n; k++ {
			out[dst] = t.slots[src]
			dst++
		}
	}
	t.slots = out
}

// RenormalizeAges rewrites every age as a whole number of nominal intervals
// counted back from the newest slot.
func (t *Timeline) RenormalizeAges() {
	for i := range t.slots {
		t.slots[i].AgeSeconds = uint32(Capacity-1-i) * t.interval
	}
}
