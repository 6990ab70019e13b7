package sensor

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/aht20"
)

// AHT20 reads the coop air over I2C. The driver's measurement blocks for
// about 80ms per attempt.
type AHT20 struct {
	mu  sync.Mutex
	dev aht20.Device
}

// NewAHT20 configures the sensor at addr on bus. A zero addr selects the
// factory address.
func NewAHT20(bus drivers.I2C, addr uint16) *AHT20 {
	dev := aht20.New(bus)
	if addr != 0 {
		dev.Address = addr
	}
	dev.Configure()
	return &AHT20{dev: dev}
}

// ReadClimate implements ClimateReader.
func (a *AHT20) ReadClimate() (tempC, humidity float64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.dev.Read(); err != nil {
		return 0, 0, fmt.Errorf("aht20 read: %w", err)
	}
	return float64(a.dev.Celsius()), float64(a.dev.RelHumidity()), nil
}
