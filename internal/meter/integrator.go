// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"time"

	"github.com/sustainable-computing-io/joulebench/internal/device"
)

// Integral is the energy integrated over a sample sequence
type Integral struct {
	Samples  int
	EnergyJ  float64
	Rails    RailEnergy
	AvgW     float64
	MaxW     float64
	MinW     float64
	Scale    float64
	Aux      device.Aux
	Interval time.Duration
}

// Integrate computes the energy of samples taken every interval over a
// computation that ran for elapsed. Each sample stands for the interval that
// follows it. The sum is rescaled by elapsed / (n * interval) so that the
// result covers exactly the elapsed time regardless of how many samples fit in
// it. The same factor applies to every rail. Power statistics are taken from
// the raw sample totals.
func Integrate(samples []device.Sample, elapsed, interval time.Duration) Integral {
	n := len(samples)
	ret := Integral{Samples: n, Interval: interval}
	if n == 0 {
		return ret
	}

	step := interval.Seconds()
	var (
		sumW  float64
		rails RailEnergy
		aux   auxMean
	)
	ret.MinW = samples[0].Total().Watts()
	for _, s := range samples {
		w := s.Total().Watts()
		sumW += w
		ret.MaxW = max(ret.MaxW, w)
		ret.MinW = min(ret.MinW, w)

		for _, r := range device.Rails {
			rails.add(r, s.Get(r).Watts()*step)
		}
		aux.add(s.Aux)
	}
	ret.AvgW = sumW / float64(n)
	ret.Aux = aux.mean()

	observed := float64(n) * step
	ret.Scale = 1
	if observed > 0 {
		ret.Scale = elapsed.Seconds() / observed
	}
	ret.EnergyJ = sumW * step * ret.Scale
	ret.Rails = rails.scale(ret.Scale)
	return ret
}

// auxMean averages each auxiliary reading over the samples reporting it
type auxMean struct {
	freq, temp, util    float64
	nFreq, nTemp, nUtil int
}

func (a *auxMean) add(x device.Aux) {
	if x.FrequencyMHz > 0 {
		a.freq += x.FrequencyMHz
		a.nFreq++
	}
	if x.TemperatureC > 0 {
		a.temp += x.TemperatureC
		a.nTemp++
	}
	if x.Utilization > 0 {
		a.util += x.Utilization
		a.nUtil++
	}
}

func (a auxMean) mean() device.Aux {
	var ret device.Aux
	if a.nFreq > 0 {
		ret.FrequencyMHz = a.freq / float64(a.nFreq)
	}
	if a.nTemp > 0 {
		ret.TemperatureC = a.temp / float64(a.nTemp)
	}
	if a.nUtil > 0 {
		ret.Utilization = a.util / float64(a.nUtil)
	}
	return ret
}
