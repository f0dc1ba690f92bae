// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
)

// logRow holds one data row of a power log, keyed by canonical column names
type logRow struct {
	Elapsed     string `csv:"elapsed"`
	Package     string `csv:"package_power"`
	Cores       string `csv:"cores_power"`
	Memory      string `csv:"memory_power"`
	Accelerator string `csv:"accelerator_power"`
	Platform    string `csv:"platform_power"`
	EnergyJ     string `csv:"energy_joules"`
	EnergyMWh   string `csv:"energy_mwh"`
	Frequency   string `csv:"frequency"`
	Temperature string `csv:"temperature"`
	Utilization string `csv:"utilization"`
}

// logColumns maps header fragments to canonical column names. Headers are
// matched lower-cased and the first rule that matches wins. Header layout
// differs across tool versions, so columns are never addressed by position.
var logColumns = []struct {
	name  string
	match func(h string) bool
}{
	{"elapsed", func(h string) bool { return strings.Contains(h, "elapsed") }},
	{"package_power", containsAny("package power", "processor power")},
	{"cores_power", containsAny("ia power", "core power", "cores power")},
	{"memory_power", containsAny("dram power", "memory power")},
	{"accelerator_power", containsAny("gt power", "gpu power")},
	{"platform_power", containsAny("platform power", "psys power")},
	{"energy_joules", func(h string) bool {
		return isPackageEnergy(h) && strings.Contains(h, "joules")
	}},
	{"energy_mwh", func(h string) bool {
		return isPackageEnergy(h) && strings.Contains(h, "mwh")
	}},
	{"frequency", func(h string) bool {
		return strings.Contains(h, "frequency") && !strings.HasPrefix(h, "gt")
	}},
	{"temperature", func(h string) bool { return strings.Contains(h, "temperature") }},
	{"utilization", func(h string) bool {
		return strings.Contains(h, "utilization") && !strings.HasPrefix(h, "gt")
	}},
}

func containsAny(fragments ...string) func(string) bool {
	return func(h string) bool {
		for _, f := range fragments {
			if strings.Contains(h, f) {
				return true
			}
		}
		return false
	}
}

func isPackageEnergy(h string) bool {
	return strings.Contains(h, "cumulative") && strings.Contains(h, "energy") &&
		(strings.Contains(h, "processor") || strings.Contains(h, "package"))
}

// mWhToJoules converts milliwatt-hours to joules
const mWhToJoules = 3.6

// canonicalHeader maps raw header cells to canonical names; unmatched or
// repeated columns get unique placeholders so the decoder ignores them
func canonicalHeader(raw []string) ([]string, map[string]bool) {
	header := make([]string, len(raw))
	used := map[string]bool{}
	for i, cell := range raw {
		h := strings.ToLower(strings.TrimSpace(cell))
		header[i] = fmt.Sprintf("column_%d", i)
		for _, col := range logColumns {
			if used[col.name] || !col.match(h) {
				continue
			}
			header[i] = col.name
			used[col.name] = true
			break
		}
	}
	return header, used
}

// findHeader returns the offset of the header line: the first line that
// mentions "Elapsed Time" or "System Time", or the first line otherwise
func findHeader(data []byte) int {
	for offset := 0; offset < len(data); {
		end := bytes.IndexByte(data[offset:], '\n')
		if end < 0 {
			end = len(data) - offset
		}
		line := bytes.ToLower(data[offset : offset+end])
		if bytes.Contains(line, []byte("elapsed time")) || bytes.Contains(line, []byte("system time")) {
			return offset
		}
		offset += end + 1
	}
	return 0
}

// recordFilter skips records that do not have exactly n fields or that the
// csv reader could not parse, e.g. summary lines at the end of the log
type recordFilter struct {
	r *csv.Reader
	n int
}

func (f recordFilter) Read() ([]string, error) {
	for {
		rec, err := f.r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, err
		}
		if len(rec) == f.n {
			return rec, nil
		}
	}
}

// parsePowerLog parses a delimited power log into samples. Timestamps are
// start plus the elapsed time of each row; logs without an elapsed column are
// assumed to be spaced by resolution. Rows with unparsable values are skipped.
func parsePowerLog(r io.Reader, start time.Time, resolution time.Duration) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read power log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("power log is empty")
	}

	cr := csv.NewReader(bytes.NewReader(data[findHeader(data):]))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	raw, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read power log header: %w", err)
	}
	header, found := canonicalHeader(raw)
	if !found["package_power"] && !found["cores_power"] && !found["energy_joules"] && !found["energy_mwh"] {
		return nil, fmt.Errorf("power log has no power or energy columns: %v", raw)
	}

	dec, err := csvutil.NewDecoder(recordFilter{r: cr, n: len(header)}, header...)
	if err != nil {
		return nil, fmt.Errorf("failed to create power log decoder: %w", err)
	}

	var (
		samples    []Sample
		prevEnergy = -1.0
		prevAt     time.Duration
		derive     = !found["package_power"] && (found["energy_joules"] || found["energy_mwh"])
		index      = 0
	)

	for {
		var row logRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}

		s, elapsed, energy, ok := row.sample(index, resolution)
		index++
		if !ok {
			continue
		}
		s.Timestamp = start.Add(elapsed)

		if derive {
			if prevEnergy < 0 || elapsed <= prevAt {
				prevEnergy, prevAt = energy, elapsed
				continue
			}
			dt := (elapsed - prevAt).Seconds()
			s.Set(RailPackage, Watts((energy-prevEnergy)/dt))
			prevEnergy, prevAt = energy, elapsed
		}

		if n := len(samples); n > 0 && s.Timestamp.Before(samples[n-1].Timestamp) {
			s.Timestamp = samples[n-1].Timestamp
		}
		samples = append(samples, s)
	}

	return samples, nil
}

// sample converts a row; ok is false when a present value does not parse
func (row logRow) sample(index int, resolution time.Duration) (Sample, time.Duration, float64, bool) {
	var s Sample
	var ok = true
	num := func(v string) float64 {
		v = strings.TrimSpace(v)
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			ok = false
			return 0
		}
		return f
	}

	elapsed := time.Duration(index) * resolution
	if strings.TrimSpace(row.Elapsed) != "" {
		elapsed = time.Duration(math.Round(num(row.Elapsed) * float64(time.Second)))
	}

	s.Set(RailPackage, Watts(num(row.Package)))
	s.Set(RailCores, Watts(num(row.Cores)))
	s.Set(RailMemory, Watts(num(row.Memory)))
	s.Set(RailAccelerator, Watts(num(row.Accelerator)))
	s.Set(RailPlatform, Watts(num(row.Platform)))

	energy := num(row.EnergyJ)
	if strings.TrimSpace(row.EnergyJ) == "" {
		energy = num(row.EnergyMWh) * mWhToJoules
	}

	s.Aux = Aux{
		FrequencyMHz: num(row.Frequency),
		TemperatureC: num(row.Temperature),
		Utilization:  num(row.Utilization),
	}
	return s, elapsed, energy, ok
}
