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
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func makeObservations(n int) []float64 {
	r := rand.New(rand.NewSource(42))
	values := make([]float64, n)
	for i := range values {
		values[i] = r.NormFloat64()*12.5 + 100
	}
	return values
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestMoments(t *testing.T) {
	values := makeObservations(10000)
	var m Moments
	for _, x := range values {
		m.Add(x)
	}
	if m.N != int64(len(values)) {
		t.Error("Moments count failed")
	}
	if !closeEnough(m.Mean, stat.Mean(values, nil)) {
		t.Error("Moments mean failed:", m.Mean, stat.Mean(values, nil))
	}
	if !closeEnough(m.Variance(), stat.Variance(values, nil)) {
		t.Error("Moments variance failed:", m.Variance(), stat.Variance(values, nil))
	}
}

func TestMomentsMerge(t *testing.T) {
	values := makeObservations(10001)
	var whole Moments
	for _, x := range values {
		whole.Add(x)
	}
	var merged Moments
	for low := 0; low < len(values); low += 1000 {
		high := low + 1000
		if high > len(values) {
			high = len(values)
		}
		var chunk Moments
		for _, x := range values[low:high] {
			chunk.Add(x)
		}
		merged.Merge(chunk)
	}
	if merged.N != whole.N {
		t.Error("merged Moments count failed")
	}
	if !closeEnough(merged.Mean, whole.Mean) {
		t.Error("merged Moments mean failed:", merged.Mean, whole.Mean)
	}
	if !closeEnough(merged.Variance(), whole.Variance()) {
		t.Error("merged Moments variance failed:", merged.Variance(), whole.Variance())
	}
}

func TestMomentsEmpty(t *testing.T) {
	var m Moments
	if m.Variance() != 0 || m.StdDev() != 0 || m.Mean != 0 {
		t.Error("empty Moments failed")
	}
	var other Moments
	other.Add(3)
	m.Merge(other)
	if m.N != 1 || m.Mean != 3 {
		t.Error("Moments merge into empty failed")
	}
}

func TestCountMap(t *testing.T) {
	m := make(CountMap)
	m.Inc("a")
	m.Inc("a")
	m.Inc("b")
	other := CountMap{"a": 1, "c": 5}
	m.Merge(other)
	if m["a"] != 3 || m["b"] != 1 || m["c"] != 5 {
		t.Error("CountMap merge failed:", m)
	}
}

func TestMetricSetNames(t *testing.T) {
	ms := NewMetricSet()
	ms.Set("zulu", 1)
	ms.Set("alpha", 2)
	ms.Set("mike", 3)
	names := ms.Names()
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mike" || names[2] != "zulu" {
		t.Error("MetricSet names not sorted:", names)
	}
}
