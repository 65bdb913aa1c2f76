package timeline

import (
	"fmt"

	"github.com/chrissnell/barograph/internal/types"
)

// Image is the serializable form of a Timeline.
type Image struct {
	BaseInterval  uint32         `msgpack:"base"`
	Scale         int            `msgpack:"scale"`
	Interval      uint32         `msgpack:"interval"`
	FirstDrawable int            `msgpack:"first"`
	Samples       []types.Sample `msgpack:"samples"`
}

// Image copies the timeline into its serializable form.
func (t *Timeline) Image() Image {
	return Image{
		BaseInterval:  t.base,
		Scale:         t.scale,
		Interval:      t.interval,
		FirstDrawable: t.firstDrawable,
		Samples:       t.Window(0),
	}
}

// FromImage rebuilds a timeline and recomputes its statistics.
func FromImage(img Image) (*Timeline, error) {
	if len(img.Samples) != Capacity {
		return nil, fmt.Errorf("timeline image has %d samples, want %d", len(img.Samples), Capacity)
	}
	if img.BaseInterval == 0 {
		return nil, fmt.Errorf("timeline image has zero base interval")
	}
	if got := derive(img.BaseInterval, img.Scale); got != img.Interval {
		return nil, fmt.Errorf("timeline image interval %d does not match base %d at scale %d (%d)",
			img.Interval, img.BaseInterval, img.Scale, got)
	}
	if img.FirstDrawable != 0 && img.FirstDrawable != ShortWindowOffset {
		return nil, fmt.Errorf("timeline image has invalid first drawable index %d", img.FirstDrawable)
	}

	t := &Timeline{
		base:          img.BaseInterval,
		scale:         img.Scale,
		interval:      img.Interval,
		firstDrawable: img.FirstDrawable,
	}
	copy(t.slots[:], img.Samples)
	t.Recompute()
	return t, nil
}
