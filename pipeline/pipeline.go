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

// Package pipeline orchestrates quality-control runs: format detection,
// structural validation, metric computation, threshold classification,
// and report aggregation, for single files and for batches.
package pipeline

import (
	"context"
	"time"

	"github.com/exascience/elqc/fastq"
	"github.com/exascience/elqc/formats"
	"github.com/exascience/elqc/qc"
	"github.com/exascience/elqc/sam"
	"github.com/exascience/elqc/table"
	"github.com/exascience/elqc/vcf"
)

// Options are the per-run pipeline settings.
type Options struct {
	// Timeout bounds the processing time per file. Zero means no bound.
	Timeout time.Duration

	// Threads is the parallelism within a single file, for the engines
	// that support it. Zero lets the engine decide.
	Threads int
}

func validatorFor(format formats.Format) qc.Validator {
	switch format {
	case formats.Fastq:
		return fastq.NewValidator()
	case formats.Sam, formats.Cram:
		return sam.NewValidator(false)
	case formats.Bam:
		return sam.NewValidator(true)
	case formats.Vcf:
		return vcf.NewValidator()
	case formats.Table:
		return table.NewValidator()
	default:
		return nil
	}
}

func engineFor(format formats.Format, profile *qc.ThresholdProfile, opts Options) qc.Engine {
	switch format {
	case formats.Fastq:
		return fastq.NewQC(profile.MaxSkippedFraction, opts.Threads)
	case formats.Sam, formats.Cram:
		return sam.NewQC(profile.MaxSkippedFraction, false)
	case formats.Bam:
		return sam.NewQC(profile.MaxSkippedFraction, true)
	case formats.Vcf:
		return vcf.NewQC(profile.MaxSkippedFraction)
	case formats.Table:
		return table.NewQC(profile.MaxSkippedFraction)
	default:
		return nil
	}
}

// convertError maps a stage error to a pipeline error, turning an
// exceeded deadline into a Timeout error.
func convertError(ctx context.Context, err error, path string, opts Options) *qc.PipelineError {
	if err == context.DeadlineExceeded || ctx.Err() == context.DeadlineExceeded {
		return qc.NewError(qc.Timeout, "processing %v exceeded the %v time limit", path, opts.Timeout)
	}
	return qc.AsPipelineError(err, qc.MetricComputationError)
}

// RunFile runs the full quality-control pipeline for one file and
// always produces a report: every failure mode ends up as a pipeline
// error inside the report rather than as a panic or a lost file. The
// input is read twice, once for validation and once for metrics, so
// neither pass needs to rewind.
func RunFile(ctx context.Context, path string, profile *qc.ThresholdProfile, opts Options) (report *qc.Report) {
	start := time.Now()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	var format formats.Format
	var compression formats.Compression
	var errors []*qc.PipelineError
	var validationErrors []string
	metrics := qc.NewMetricSet()
	var counts qc.Counts
	// A panic anywhere in a parser or engine must not take down the
	// rest of the batch.
	defer func() {
		if p := recover(); p != nil {
			metrics = qc.NewMetricSet()
			errors = append(errors, qc.NewError(qc.MetricComputationError, "internal failure while processing %v: %v", path, p))
		}
		verdict := qc.Classify(metrics, profile.Section(format), profile.WarnMargin)
		report = qc.Aggregate(path, format, compression, metrics, verdict, errors, validationErrors, counts, start)
	}()

	file, err := formats.Open(path)
	if err != nil {
		errors = append(errors, qc.AsPipelineError(err, qc.UnsupportedFormat))
		return
	}
	format, compression = file.Format, file.Compression
	if format == formats.Unknown {
		_ = file.Close()
		errors = append(errors, qc.NewError(qc.UnsupportedFormat, "cannot determine the format of %v", path))
		return
	}

	validator := validatorFor(format)
	result, err := validator.Validate(ctx, file.Reader)
	closeErr := file.Close()
	if err != nil {
		errors = append(errors, convertError(ctx, err, path, opts))
		return
	}
	if closeErr != nil {
		errors = append(errors, qc.NewError(qc.ValidationFailure, "closing %v: %v", path, closeErr))
		return
	}
	validationErrors = result.Errors
	if !result.Valid {
		errors = append(errors, qc.NewError(qc.ValidationFailure, "%v structural errors in %v", len(result.Errors), path))
		return
	}

	file, err = formats.OpenAs(path, format, compression)
	if err != nil {
		errors = append(errors, qc.AsPipelineError(err, qc.MetricComputationError))
		return
	}
	engine := engineFor(format, profile, opts)
	metrics, counts, err = engine.ComputeMetrics(ctx, file.Reader)
	closeErr = file.Close()
	if err != nil {
		metrics = qc.NewMetricSet()
		errors = append(errors, convertError(ctx, err, path, opts))
		return
	}
	if closeErr != nil {
		metrics = qc.NewMetricSet()
		errors = append(errors, qc.NewError(qc.MetricComputationError, "closing %v: %v", path, closeErr))
	}
	return
}
