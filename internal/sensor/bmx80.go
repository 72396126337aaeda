package sensor

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

const (
	DefaultI2CBus     = ""
	DefaultI2CAddress = 0x77
)

// BMX80 reads a Bosch BMP280/BME280 over I²C
type BMX80 struct {
	mu       sync.Mutex
	bus      i2c.BusCloser
	dev      *bmxx80.Dev
	seaLevel float64
}

// OpenBMX80 initialises the host drivers and opens the sensor. An empty bus name picks
// the first registered bus.
func OpenBMX80(busName string, addr uint16) (*BMX80, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise host drivers")
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open I2C bus %q", busName)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, errors.Wrapf(err, "failed to open sensor at 0x%02x", addr)
	}

	return &BMX80{
		bus:      bus,
		dev:      dev,
		seaLevel: StandardSeaLevelPressure,
	}, nil
}

func (s *BMX80) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Reading{}, errors.Wrap(err, "sensor read failed")
	}

	pressure := float64(env.Pressure) / float64(100*physic.Pascal)

	return Reading{
		Temperature: float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    pressure,
		Altitude:    Altitude(pressure, s.seaLevel),
	}, nil
}

func (s *BMX80) SetSeaLevelPressure(hPa float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seaLevel = hPa
}

func (s *BMX80) Capabilities() Capabilities {
	return Capabilities{}
}

func (s *BMX80) Close() error {
	if err := s.dev.Halt(); err != nil {
		s.bus.Close()
		return errors.Wrap(err, "failed to halt sensor")
	}
	return s.bus.Close()
}
