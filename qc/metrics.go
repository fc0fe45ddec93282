// elQC: a streaming quality-control tool for sequencing data files.
// Copyright (c) 2021-2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elqc/blob/master/LICENSE.txt>.

package qc

import (
	"math"
	"sort"
)

// A CountMap is a categorical histogram. Merging count maps is
// associative and commutative, so partial histograms from chunked
// parallel reductions can be combined in any order.
type CountMap map[string]int64

// Inc increments the count for a key.
func (m CountMap) Inc(key string) {
	m[key]++
}

// Merge adds the counts of another CountMap into this one.
func (m CountMap) Merge(other CountMap) {
	for key, count := range other {
		m[key] += count
	}
}

// A MetricSet maps metric names to numeric values, plus categorical
// histograms, scoped to one format's schema. It is built incrementally
// during a single streaming pass and immutable once the pass completes.
type MetricSet struct {
	Values     map[string]float64  `json:"values" yaml:"values"`
	Histograms map[string]CountMap `json:"histograms,omitempty" yaml:"histograms,omitempty"`
}

// NewMetricSet returns an empty metric set.
func NewMetricSet() MetricSet {
	return MetricSet{Values: make(map[string]float64)}
}

// Set records a numeric metric value.
func (ms MetricSet) Set(name string, value float64) {
	ms.Values[name] = value
}

// Get looks up a numeric metric value.
func (ms MetricSet) Get(name string) (float64, bool) {
	value, ok := ms.Values[name]
	return value, ok
}

// SetHistogram records a categorical histogram.
func (ms *MetricSet) SetHistogram(name string, histogram CountMap) {
	if ms.Histograms == nil {
		ms.Histograms = make(map[string]CountMap)
	}
	ms.Histograms[name] = histogram
}

// Names returns the numeric metric names in sorted order, so that
// consumers iterate deterministically.
func (ms MetricSet) Names() []string {
	names := make([]string, 0, len(ms.Values))
	for name := range ms.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty tells whether the metric set holds no values.
func (ms MetricSet) Empty() bool {
	return len(ms.Values) == 0 && len(ms.Histograms) == 0
}

// Moments tracks a running mean and variance with Welford's online
// algorithm. The zero Moments is valid and empty. Merge uses the
// pairwise update by Chan et al., so partial moments from chunked
// parallel reductions combine exactly rather than by averaging.
type Moments struct {
	N    int64
	Mean float64
	M2   float64
}

// Add updates the moments with one observation.
func (m *Moments) Add(x float64) {
	m.N++
	delta := x - m.Mean
	m.Mean += delta / float64(m.N)
	m.M2 += delta * (x - m.Mean)
}

// Merge combines the moments of two disjoint observation sets.
func (m *Moments) Merge(other Moments) {
	if other.N == 0 {
		return
	}
	if m.N == 0 {
		*m = other
		return
	}
	n := m.N + other.N
	delta := other.Mean - m.Mean
	m.Mean += delta * float64(other.N) / float64(n)
	m.M2 += other.M2 + delta*delta*float64(m.N)*float64(other.N)/float64(n)
	m.N = n
}

// Variance returns the unbiased sample variance, or 0 for fewer than
// two observations.
func (m Moments) Variance() float64 {
	if m.N < 2 {
		return 0
	}
	return m.M2 / float64(m.N-1)
}

// StdDev returns the sample standard deviation.
func (m Moments) StdDev() float64 {
	return math.Sqrt(m.Variance())
}
