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
	"fmt"
	"math"
)

// Outcome is the classification of a metric against its bound.
type Outcome int

// The outcomes, ordered so that a larger value is worse.
const (
	Pass Outcome = iota
	Warn
	Fail
)

var outcomeNames = []string{"PASS", "WARN", "FAIL"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "PASS"
	}
	return outcomeNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %v", string(text))
}

func worse(a, b Outcome) Outcome {
	if a > b {
		return a
	}
	return b
}

// A Verdict holds the per-metric outcomes and their worst-case
// aggregate. It is derived deterministically from a metric set and a
// profile section and never mutated after creation.
type Verdict struct {
	PerMetric map[string]Outcome `json:"per_metric" yaml:"per_metric"`
	Aggregate Outcome            `json:"aggregate" yaml:"aggregate"`
}

// Classify compares every metric present in both the metric set and the
// profile section against its bound. Below the minimum or above the
// maximum is Fail; within warnMargin (relative to the bound) inside the
// bound is Warn; otherwise Pass. The aggregate is the worst individual
// outcome under Fail > Warn > Pass. Metric names are folded in sorted
// order, so the result does not depend on map iteration order.
// Classification is a pure function of its arguments.
func Classify(metrics MetricSet, section ProfileSection, warnMargin float64) Verdict {
	verdict := Verdict{
		PerMetric: make(map[string]Outcome),
		Aggregate: Pass,
	}
	for _, name := range metrics.Names() {
		bound, ok := section[name]
		if !ok {
			continue
		}
		outcome := classifyValue(metrics.Values[name], bound, warnMargin)
		verdict.PerMetric[name] = outcome
		verdict.Aggregate = worse(verdict.Aggregate, outcome)
	}
	return verdict
}

func classifyValue(value float64, bound Bound, warnMargin float64) Outcome {
	if bound.Min != nil && value < *bound.Min {
		return Fail
	}
	if bound.Max != nil && value > *bound.Max {
		return Fail
	}
	if bound.Min != nil && value-*bound.Min <= warnMargin*math.Abs(*bound.Min) {
		return Warn
	}
	if bound.Max != nil && *bound.Max-value <= warnMargin*math.Abs(*bound.Max) {
		return Warn
	}
	return Pass
}
