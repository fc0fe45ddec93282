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

package pipeline

import (
	"context"

	"github.com/exascience/elqc/qc"

	"github.com/exascience/pargo/parallel"
)

// RunBatch runs the pipeline for every file in the batch, with at most
// threads files processed concurrently (zero lets the runtime decide).
// Reports come back in input order, one per file, regardless of
// individual failures: a file that fails is a failed report, never a
// missing one.
func RunBatch(ctx context.Context, paths []string, profile *qc.ThresholdProfile, opts Options, threads int) []*qc.Report {
	reports := make([]*qc.Report, len(paths))
	parallel.Range(0, len(paths), threads, func(low, high int) {
		for i := low; i < high; i++ {
			reports[i] = RunFile(ctx, paths[i], profile, opts)
		}
	})
	return reports
}
