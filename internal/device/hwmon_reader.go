// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// hwmonReader implements SensorReader using hwmon power sensors in sysfs
type hwmonReader struct {
	basePath   string // <sysfs>/class/hwmon
	logger     *slog.Logger
	zoneFilter []string
	sensors    []hwmonSensor
}

var _ SensorReader = (*hwmonReader)(nil)

// HwmonOptionFn is a function that configures hwmonReader options
type HwmonOptionFn func(*hwmonReader)

// WithHwmonLogger sets the logger for hwmonReader
func WithHwmonLogger(logger *slog.Logger) HwmonOptionFn {
	return func(r *hwmonReader) {
		r.logger = logger.With("source", "hwmon")
	}
}

// WithHwmonZoneFilter sets sensor names (power labels in hwmon) to include.
// If empty, all sensors are included
func WithHwmonZoneFilter(zones []string) HwmonOptionFn {
	return func(r *hwmonReader) {
		r.zoneFilter = zones
	}
}

// NewHwmonReader creates a reader of hwmon power sensors under sysfsPath
func NewHwmonReader(sysfsPath string, opts ...HwmonOptionFn) *hwmonReader {
	r := &hwmonReader{
		basePath: filepath.Join(sysfsPath, "class", "hwmon"),
		logger:   slog.Default().With("source", "hwmon"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *hwmonReader) Name() string {
	return "hwmon"
}

// Init discovers power sensors and verifies the first one can be read
func (r *hwmonReader) Init() error {
	sensors, err := r.discover()
	if err != nil {
		return err
	}

	sensors = r.filter(sensors)
	if len(sensors) == 0 {
		return fmt.Errorf("no hwmon power sensors found after filtering")
	}

	if _, err := sensors[0].read(); err != nil {
		return fmt.Errorf("failed to read hwmon sensor %s: %w", sensors[0].name, err)
	}

	r.sensors = sensors
	return nil
}

func (r *hwmonReader) Sensors(ctx context.Context) ([]Sensor, error) {
	if len(r.sensors) == 0 {
		return nil, fmt.Errorf("hwmon reader not initialized")
	}

	ret := make([]Sensor, 0, len(r.sensors))
	var lastErr error
	for _, s := range r.sensors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.read()
		if err != nil {
			lastErr = err
			r.logger.Debug("Failed to read hwmon sensor", "sensor", s.name, "path", s.path, "error", err)
			continue
		}
		ret = append(ret, Sensor{Name: s.name, Power: p})
	}

	if len(ret) == 0 {
		return nil, fmt.Errorf("no hwmon sensor could be read: %w", lastErr)
	}
	return ret, nil
}

func (r *hwmonReader) Close() error {
	return nil
}

func (r *hwmonReader) filter(sensors []hwmonSensor) []hwmonSensor {
	if len(r.zoneFilter) == 0 {
		return sensors
	}

	wanted := make(map[string]bool, len(r.zoneFilter))
	for _, name := range r.zoneFilter {
		wanted[strings.ToLower(name)] = true
	}

	var included, excluded []string
	filtered := make([]hwmonSensor, 0, len(sensors))
	for _, s := range sensors {
		if !wanted[strings.ToLower(s.name)] {
			excluded = append(excluded, s.name)
			continue
		}
		filtered = append(filtered, s)
		included = append(included, s.name)
	}

	r.logger.Debug("Filtered hwmon sensors", "included", included, "excluded", excluded)
	return filtered
}

var (
	hwmonInvalidMetricChars = regexp.MustCompile("[^a-z0-9:_]")
	hwmonPowerFile          = regexp.MustCompile(`^power(\d+)_(.+)$`)
)

func (r *hwmonReader) discover() ([]hwmonSensor, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("hwmon not available: %w", err)
		}
		return nil, fmt.Errorf("failed to read hwmon directory: %w", err)
	}

	var sensors []hwmonSensor
	for _, entry := range entries {
		path := filepath.Join(r.basePath, entry.Name())
		if !entry.IsDir() && !isSymlink(path) {
			continue
		}

		found, err := discoverPowerSensors(path)
		if err != nil {
			r.logger.Debug("Skipping hwmon device", "path", path, "error", err)
			continue
		}
		sensors = append(sensors, found...)
	}

	if len(sensors) == 0 {
		return nil, fmt.Errorf("no hwmon power sensors found")
	}

	sort.Slice(sensors, func(i, j int) bool {
		if sensors[i].name == sensors[j].name {
			return sensors[i].path < sensors[j].path
		}
		return sensors[i].name < sensors[j].name
	})
	return sensors, nil
}

func discoverPowerSensors(hwmonPath string) ([]hwmonSensor, error) {
	chip, err := chipName(hwmonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get hardware monitor name: %w", err)
	}

	files, err := os.ReadDir(hwmonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list power sensor files: %w", err)
	}

	// sensor number -> property -> file name
	props := map[int]map[string]string{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := hwmonPowerFile.FindStringSubmatch(f.Name())
		if len(m) != 3 {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if props[n] == nil {
			props[n] = map[string]string{}
		}
		props[n][m[2]] = f.Name()
	}

	var sensors []hwmonSensor
	for n, files := range props {
		// prefer "average" over "input" when both are exposed
		input, ok := files["average"]
		if !ok {
			if input, ok = files["input"]; !ok {
				continue
			}
		}

		name := ""
		if label, ok := files["label"]; ok {
			if data, err := os.ReadFile(filepath.Join(hwmonPath, label)); err == nil {
				name = cleanMetricName(strings.TrimSpace(string(data)))
			}
		}
		// node exporter strategy: chip name + sensor type + number
		if name == "" {
			name = fmt.Sprintf("%s_power%d", chip, n)
		}

		sensors = append(sensors, hwmonSensor{
			name: name,
			path: filepath.Join(hwmonPath, input),
			chip: chip,
		})
	}
	return sensors, nil
}

// chipName follows node_exporter: device path first, then the name file,
// then the hwmon directory name
func chipName(hwmonPath string) (string, error) {
	if devicePath, err := filepath.EvalSymlinks(filepath.Join(hwmonPath, "device")); err == nil {
		prefix, devName := filepath.Split(devicePath)
		_, devType := filepath.Split(strings.TrimRight(prefix, "/"))

		cleanName := cleanMetricName(devName)
		cleanType := cleanMetricName(devType)
		if cleanType != "" && cleanName != "" {
			return cleanType + "_" + cleanName, nil
		}
		if cleanName != "" {
			return cleanName, nil
		}
	}

	if data, err := os.ReadFile(filepath.Join(hwmonPath, "name")); err == nil {
		if name := cleanMetricName(string(data)); name != "" {
			return name, nil
		}
	}

	realDir, err := filepath.EvalSymlinks(hwmonPath)
	if err != nil {
		return "", err
	}
	if name := cleanMetricName(filepath.Base(realDir)); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("could not derive chip name for %s", hwmonPath)
}

func cleanMetricName(name string) string {
	lower := strings.ToLower(name)
	replaced := hwmonInvalidMetricChars.ReplaceAllLiteralString(lower, "_")
	return strings.Trim(replaced, "_")
}

func isSymlink(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeSymlink != 0
}

// hwmonSensor is a single powerN_{average,input} file
type hwmonSensor struct {
	name string
	path string
	chip string
}

// read returns the sensor power; hwmon reports microwatts
func (s hwmonSensor) read() (Power, error) {
	data, err := sysReadFile(s.path)
	if err != nil {
		return 0, err
	}
	uw, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse power value from %s: %w", s.path, err)
	}
	return Power(uw) * MicroWatt, nil
}
