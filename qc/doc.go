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

// Package qc defines the core quality-control model: metric sets,
// threshold profiles, verdicts, reports, and the capability contracts
// implemented by the per-format validators and QC engines.
package qc

import (
	"bufio"
	"context"
)

// A ValidationResult holds the outcome of a structural validation pass.
// The error descriptions are accumulated in input order, up to the
// validator's cap.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Counts tallies the records seen by a QC engine and the records it
// skipped because a metric domain was violated.
type Counts struct {
	Records int64
	Skipped int64
}

// A Validator confirms the structural well-formedness of a stream. It
// performs structural checks only; statistical properties are the QC
// engine's job. A validator never rewinds the stream.
type Validator interface {
	Validate(ctx context.Context, reader *bufio.Reader) (ValidationResult, error)
}

// An Engine computes a metric set from a validated stream in a single
// forward pass. Every metric is a streaming reduction: a running
// aggregate updated once per record, bounded in memory regardless of
// input size.
type Engine interface {
	ComputeMetrics(ctx context.Context, reader *bufio.Reader) (MetricSet, Counts, error)
}
