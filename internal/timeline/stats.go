package timeline

import (
	"gonum.org/v1/gonum/floats"

	"github.com/chrissnell/barograph/internal/types"
)

// Extrema is the range of one field over the drawable window. Valid is false
// when the window holds no value for the field.
type Extrema struct {
	Min   float64 `msgpack:"min" json:"min"`
	Max   float64 `msgpack:"max" json:"max"`
	Valid bool    `msgpack:"valid" json:"valid"`
}

// Stats holds the extrema of every field.
type Stats struct {
	Pressure    Extrema `msgpack:"pressure" json:"pressure"`
	Temperature Extrema `msgpack:"temperature" json:"temperature"`
	Humidity    Extrema `msgpack:"humidity" json:"humidity"`
}

// For returns the extrema of f.
func (s Stats) For(f types.Field) Extrema {
	switch f {
	case types.Pressure:
		return s.Pressure
	case types.Temperature:
		return s.Temperature
	default:
		return s.Humidity
	}
}

func (s *Stats) set(f types.Field, e Extrema) {
	switch f {
	case types.Pressure:
		s.Pressure = e
	case types.Temperature:
		s.Temperature = e
	case types.Humidity:
		s.Humidity = e
	}
}

// Stats returns the extrema computed by the last Append, rescale or Recompute.
func (t *Timeline) Stats() Stats {
	return t.stats
}

// Recompute rescans the drawable window. Each field is considered on its
// own, so a slot missing only humidity still counts for pressure.
func (t *Timeline) Recompute() {
	var s Stats
	values := make([]float64, 0, Capacity)
	for _, f := range types.Fields {
		values = values[:0]
		for i := t.firstDrawable; i < Capacity; i++ {
			v := f.Value(t.slots[i])
			if types.Present(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			s.set(f, Extrema{})
			continue
		}
		s.set(f, Extrema{Min: floats.Min(values), Max: floats.Max(values), Valid: true})
	}
	t.stats = s
}
