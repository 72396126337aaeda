package sensor

import "math"

// StandardSeaLevelPressure is the ISA sea-level pressure in hPa
const StandardSeaLevelPressure = 1013.25

// Reading is one synchronous read of every quantity the sensor supports
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	Altitude    float64 // m, derived from Pressure and the sea-level calibration
	Gas         float64 // ohms, only meaningful when Capabilities.Gas is set
}

// Capabilities lists optional quantities beyond temperature, humidity, pressure and altitude
type Capabilities struct {
	Gas bool
}

// Reader is an environmental sensor
type Reader interface {
	Read() (Reading, error)
	// SetSeaLevelPressure sets the calibration used for altitude, in hPa
	SetSeaLevelPressure(hPa float64)
	Capabilities() Capabilities
}

// Altitude applies the international barometric formula
func Altitude(pressure, seaLevel float64) float64 {
	if pressure <= 0 || seaLevel <= 0 {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(pressure/seaLevel, 0.1903))
}
