package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultW1Dir is where the kernel w1 driver exposes 1-Wire slaves.
const DefaultW1Dir = "/sys/bus/w1/devices"

var (
	ErrNoW1Device = errors.New("sensor: no DS18B20 found")
	ErrW1CRC      = errors.New("sensor: DS18B20 CRC check failed")
)

// DS18B20 reads a 1-Wire temperature probe through the kernel w1-therm
// driver.
type DS18B20 struct {
	dir string
	id  string
}

// NewDS18B20 creates a reader for device id under dir. An empty id picks the
// first "28-" family device found at read time.
func NewDS18B20(dir, id string) *DS18B20 {
	if dir == "" {
		dir = DefaultW1Dir
	}
	return &DS18B20{dir: dir, id: id}
}

func (d *DS18B20) path() (string, error) {
	if d.id != "" {
		return filepath.Join(d.dir, d.id, "w1_slave"), nil
	}
	matches, err := filepath.Glob(filepath.Join(d.dir, "28-*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoW1Device
	}
	return filepath.Join(matches[0], "w1_slave"), nil
}

// ReadTemp implements TempReader.
func (d *DS18B20) ReadTemp() (float64, error) {
	p, err := d.path()
	if err != nil {
		return 0, fmt.Errorf("ds18b20: %w", err)
	}
	f, err := os.Open(p)
	if err != nil {
		return 0, fmt.Errorf("ds18b20: %w", err)
	}
	defer f.Close()
	return parseW1Slave(bufio.NewScanner(f))
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(sc *bufio.Scanner) (float64, error) {
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("ds18b20: %w", err)
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("ds18b20: short read (%d lines)", len(lines))
	}
	if !strings.HasSuffix(lines[0], "YES") {
		return 0, ErrW1CRC
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("ds18b20: no temperature in %q", lines[1])
	}
	milli, err := strconv.Atoi(lines[1][i+2:])
	if err != nil {
		return 0, fmt.Errorf("ds18b20: parse temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}
