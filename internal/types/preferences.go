package types

// GraphicsMode selects which curves the display draws.
type GraphicsMode uint32

const (
	GraphPressure                    GraphicsMode = 0
	GraphTemperature                 GraphicsMode = 1
	GraphHumidity                    GraphicsMode = 2
	GraphPressureTemperature         GraphicsMode = 4
	GraphPressureHumidity            GraphicsMode = 5
	GraphTemperatureHumidity         GraphicsMode = 6
	GraphPressureTemperatureHumidity GraphicsMode = 7
)

// Valid reports whether m is one of the drawable modes. 3 was never assigned.
func (m GraphicsMode) Valid() bool {
	switch m {
	case GraphPressure, GraphTemperature, GraphHumidity,
		GraphPressureTemperature, GraphPressureHumidity,
		GraphTemperatureHumidity, GraphPressureTemperatureHumidity:
		return true
	}
	return false
}

// Preferences are the user-settable scalars kept in the durable store.
type Preferences struct {
	PressureCorrectionEnabled  bool         `msgpack:"pce" json:"pressure_correction_enabled"`
	PressureCorrectionValue    float32      `msgpack:"pcv" json:"pressure_correction_value"`
	InversionEnabled           bool         `msgpack:"inv" json:"inversion_enabled"`
	MeasurementIntervalSeconds uint32       `msgpack:"mis" json:"measurement_interval_seconds"`
	TimeRangeHours             uint32       `msgpack:"trh" json:"time_range_hours"`
	GraphicsMode               GraphicsMode `msgpack:"gm" json:"graphics_mode"`
}

// DefaultPreferences are used on first boot and to fill missing durable keys.
func DefaultPreferences() Preferences {
	return Preferences{
		PressureCorrectionEnabled:  false,
		PressureCorrectionValue:    15.0,
		InversionEnabled:           false,
		MeasurementIntervalSeconds: 900,
		TimeRangeHours:             84,
		GraphicsMode:               GraphPressureTemperatureHumidity,
	}
}

// ShortWindow reports whether the selected time range hides the oldest slots.
func (p Preferences) ShortWindow() bool {
	switch p.TimeRangeHours {
	case 72, 36, 18:
		return true
	}
	return false
}
