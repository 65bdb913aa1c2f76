package types

import "math"

// NoData marks a field that holds no measurement, e.g. the slots left empty
// after a coarsening rescale. Consumers compare against NoDataThreshold, not
// against NoData itself, since averaged or converted values drift from it.
const NoData = 11111

// NoDataThreshold is the smallest value treated as absent.
const NoDataThreshold = NoData / 4.0

// Sample is one stored measurement snapshot.
type Sample struct {
	AgeSeconds       uint32  `msgpack:"a" json:"age_seconds"`
	PressureHPa      float32 `msgpack:"p" json:"pressure_hpa"`
	TemperatureC     float32 `msgpack:"t" json:"temperature_celsius"`
	HumidityPermille int16   `msgpack:"h" json:"humidity_permille"`
}

// EmptySample returns a sample with every field set to NoData.
func EmptySample() Sample {
	return Sample{
		PressureHPa:      NoData,
		TemperatureC:     NoData,
		HumidityPermille: NoData,
	}
}

// Populated reports whether every field holds a measurement.
func (s Sample) Populated() bool {
	return Present(float64(s.PressureHPa)) &&
		Present(float64(s.TemperatureC)) &&
		Present(float64(s.HumidityPermille))
}

// Present reports whether v is a real value rather than the NoData marker.
func Present(v float64) bool {
	return v < NoDataThreshold && !math.IsNaN(v)
}

// Field selects one measured quantity of a Sample.
type Field int

const (
	Pressure Field = iota
	Temperature
	Humidity
)

// Fields lists every measured quantity in display order.
var Fields = []Field{Pressure, Temperature, Humidity}

func (f Field) String() string {
	switch f {
	case Pressure:
		return "pressure"
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	default:
		return "unknown"
	}
}

// Value returns the field in its stored unit (hPa, °C, permille).
func (f Field) Value(s Sample) float64 {
	switch f {
	case Pressure:
		return float64(s.PressureHPa)
	case Temperature:
		return float64(s.TemperatureC)
	case Humidity:
		return float64(s.HumidityPermille)
	}
	return NoData
}

// Set stores v into the field of s. Humidity is truncated to whole permille,
// as integer group means were on the device.
func (f Field) Set(s *Sample, v float64) {
	switch f {
	case Pressure:
		s.PressureHPa = float32(v)
	case Temperature:
		s.TemperatureC = float32(v)
	case Humidity:
		s.HumidityPermille = int16(math.Trunc(v))
	}
}

// RawReading is what the sensor collaborator returns.
type RawReading struct {
	PressureHPa     float32
	TemperatureC    float32
	HumidityPercent float32
}

// ToSample converts a reading into a freshly taken sample. Humidity is stored
// in permille, rounded half up. A non-finite field becomes NoData.
func (r RawReading) ToSample() Sample {
	s := EmptySample()
	if finite(r.PressureHPa) {
		s.PressureHPa = r.PressureHPa
	}
	if finite(r.TemperatureC) {
		s.TemperatureC = r.TemperatureC
	}
	if finite(r.HumidityPercent) {
		s.HumidityPermille = int16(10*r.HumidityPercent + 0.5)
	}
	return s
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BatteryReading is what the battery collaborator returns.
type BatteryReading struct {
	Volts   float32 `msgpack:"v" json:"volts"`
	Percent float32 `msgpack:"pct" json:"percent"`
}
