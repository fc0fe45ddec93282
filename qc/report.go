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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/exascience/elqc/formats"

	"github.com/google/uuid"
)

// A Report is the terminal, self-describing artifact of one pipeline
// run: a downstream renderer needs no other pipeline state to produce
// HTML, JSON, or text output. Its format always matches the metric
// set's schema and the profile section used to produce the verdict.
type Report struct {
	File             string              `json:"file" yaml:"file"`
	RunID            string              `json:"run_id" yaml:"run_id"`
	Format           formats.Format      `json:"format" yaml:"format"`
	Compression      formats.Compression `json:"compression" yaml:"compression"`
	Metrics          MetricSet           `json:"metrics" yaml:"metrics"`
	Verdict          Verdict             `json:"verdict" yaml:"verdict"`
	Errors           []*PipelineError    `json:"errors" yaml:"errors"`
	ValidationErrors []string            `json:"validation_errors,omitempty" yaml:"validation_errors,omitempty"`
	TotalRecords     int64               `json:"total_records" yaml:"total_records"`
	SkippedRecords   int64               `json:"skipped_records" yaml:"skipped_records"`
	StartTime        time.Time           `json:"start_time" yaml:"start_time"`
	EndTime          time.Time           `json:"end_time" yaml:"end_time"`
}

// Aggregate composes a report from the pipeline stage results. It is
// pure composition: nothing is recomputed, so two runs over the same
// file and profile produce field-for-field identical reports apart from
// run ID and timestamps.
func Aggregate(file string, format formats.Format, compression formats.Compression,
	metrics MetricSet, verdict Verdict, errors []*PipelineError,
	validationErrors []string, counts Counts, start time.Time) *Report {
	if errors == nil {
		errors = []*PipelineError{}
	}
	return &Report{
		File:             file,
		RunID:            uuid.New().String(),
		Format:           format,
		Compression:      compression,
		Metrics:          metrics,
		Verdict:          verdict,
		Errors:           errors,
		ValidationErrors: validationErrors,
		TotalRecords:     counts.Records,
		SkippedRecords:   counts.Skipped,
		StartTime:        start,
		EndTime:          time.Now(),
	}
}

// Failed tells whether the report carries pipeline errors or a failing
// aggregate verdict.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0 || r.Verdict.Aggregate == Fail
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// WriteReportsJSON renders a batch of reports as one JSON array.
func WriteReportsJSON(w io.Writer, reports []*Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(reports)
}

// WriteText renders a human-readable report summary.
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "file: %v\nformat: %v (%v)\nverdict: %v\n",
		r.File, r.Format, r.Compression, r.Verdict.Aggregate); err != nil {
		return err
	}
	for _, name := range r.Metrics.Names() {
		line := fmt.Sprintf("  %v: %v", name, r.Metrics.Values[name])
		if outcome, ok := r.Verdict.PerMetric[name]; ok {
			line += fmt.Sprintf(" [%v]", outcome)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if r.TotalRecords > 0 || r.SkippedRecords > 0 {
		if _, err := fmt.Fprintf(w, "records: %v (skipped %v)\n", r.TotalRecords, r.SkippedRecords); err != nil {
			return err
		}
	}
	for _, perr := range r.Errors {
		if _, err := fmt.Fprintf(w, "error: %v\n", perr); err != nil {
			return err
		}
	}
	for _, verr := range r.ValidationErrors {
		if _, err := fmt.Fprintf(w, "  invalid: %v\n", verr); err != nil {
			return err
		}
	}
	return nil
}
