package environment

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoAccelerometer is returned when no orientation sensor is present.
var ErrNoAccelerometer = errors.New("environment: no accelerometer")

// Accelerometer reads an IIO accelerometer through sysfs, as found on
// tablets and convertible kiosks.
type Accelerometer struct {
	dir string
}

// FindAccelerometer returns the first IIO device under sysfs that exposes
// raw x, y and z acceleration channels.
func FindAccelerometer(sysfs string) (*Accelerometer, error) {
	dirs, err := filepath.Glob(filepath.Join(sysfs, "bus", "iio", "devices", "iio:device*"))
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if hasChannels(dir, "x", "y", "z") {
			return &Accelerometer{dir: dir}, nil
		}
	}
	return nil, ErrNoAccelerometer
}

func hasChannels(dir string, axes ...string) bool {
	for _, axis := range axes {
		if _, err := os.Stat(channelPath(dir, axis)); err != nil {
			return false
		}
	}
	return true
}

func channelPath(dir, axis string) string {
	return filepath.Join(dir, "in_accel_"+axis+"_raw")
}

// Orientation returns the tilt in degrees derived from gravity: beta is the
// front-to-back angle, gamma the left-to-right angle. A device lying flat
// reads (0, 0). Raw counts are used as is since only their ratios matter.
func (a *Accelerometer) Orientation() (beta, gamma float64, err error) {
	var v [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		if v[i], err = a.read(axis); err != nil {
			return 0, 0, err
		}
	}
	x, y, z := v[0], v[1], v[2]
	beta = math.Atan2(y, z) * 180 / math.Pi
	gamma = math.Atan2(-x, math.Hypot(y, z)) * 180 / math.Pi
	return beta, gamma, nil
}

func (a *Accelerometer) read(axis string) (float64, error) {
	data, err := os.ReadFile(channelPath(a.dir, axis))
	if err != nil {
		return 0, fmt.Errorf("read accelerometer %s: %w", axis, err)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse accelerometer %s: %w", axis, err)
	}
	return f, nil
}
