package timeline

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/barograph/internal/types"
)

const threeHourMark = 3 * 3600

var (
	// ErrThreeHourAnchorNotFound means no slot lies close enough to the
	// three hour mark, which only happens with a very short history.
	ErrThreeHourAnchorNotFound = errors.New("no sample near the three hour mark")

	// ErrNoData means the newest sample has no value for the field.
	ErrNoData = errors.New("newest sample holds no data")
)

// ThreeHourDelta is the newest value of f minus the mean of the slot nearest
// three hours back and its two neighbours. The anchor is the first slot,
// scanning from newest to oldest, within half a nominal interval of the
// mark. Neighbours without data are left out of the mean. The result is in
// the stored unit of f.
func (t *Timeline) ThreeHourDelta(f types.Field) (float32, error) {
	newest := f.Value(t.slots[Capacity-1])
	if !types.Present(newest) {
		return 0, ErrNoData
	}

	half := int64(t.interval / 2)
	anchor := -1
	for i := Capacity - 1; i > 0; i-- {
		d := int64(t.slots[i].AgeSeconds) - threeHourMark
		if d < 0 {
			d = -d
		}
		if d < half {
			anchor = i
			break
		}
	}
	if anchor <= 0 || anchor >= Capacity-1 {
		return 0, ErrThreeHourAnchorNotFound
	}

	around := make([]float64, 0, 3)
	for i := anchor - 1; i <= anchor+1; i++ {
		if v := f.Value(t.slots[i]); types.Present(v) {
			around = append(around, v)
		}
	}
	if len(around) == 0 {
		return 0, ErrThreeHourAnchorNotFound
	}

	delta := newest - stat.Mean(around, nil)
	if math.IsNaN(delta) {
		return 0, ErrThreeHourAnchorNotFound
	}
	return float32(delta), nil
}
