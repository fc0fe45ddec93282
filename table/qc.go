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

package table

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/exascience/elqc/qc"
)

// outlierSigma is the distance from the column mean, in standard
// deviations, beyond which an extreme cell value marks the column as
// containing outliers.
const outlierSigma = 3

// Column type names in the column_types histogram.
const (
	ColumnNumeric = "numeric"
	ColumnText    = "text"
	ColumnEmpty   = "empty"
)

// A ColumnStats accumulates the per-column aggregate: streaming moments
// and extremes over the numeric cells, and tallies of missing and
// non-numeric cells.
type ColumnStats struct {
	Moments    qc.Moments
	Min        float64
	Max        float64
	Missing    int64
	NonNumeric int64
}

// Add updates the aggregate with one cell value.
func (c *ColumnStats) Add(cell string) {
	if Missing(cell) {
		c.Missing++
		return
	}
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		c.NonNumeric++
		return
	}
	if c.Moments.N == 0 || value < c.Min {
		c.Min = value
	}
	if c.Moments.N == 0 || value > c.Max {
		c.Max = value
	}
	c.Moments.Add(value)
}

// Type classifies the column for the column_types histogram: numeric
// when every present cell is a number, empty when no cell is present,
// text otherwise.
func (c *ColumnStats) Type() string {
	switch {
	case c.NonNumeric > 0:
		return ColumnText
	case c.Moments.N > 0:
		return ColumnNumeric
	default:
		return ColumnEmpty
	}
}

// Outliers reports whether an extreme of the column lies more than
// outlierSigma standard deviations from the column mean.
func (c *ColumnStats) Outliers() bool {
	if c.Type() != ColumnNumeric || c.Moments.N < 2 {
		return false
	}
	limit := outlierSigma * c.Moments.StdDev()
	return c.Min < c.Moments.Mean-limit || c.Max > c.Moments.Mean+limit
}

// Stats is the partial aggregate of the tabular metrics.
type Stats struct {
	Rows    int64
	Columns []ColumnStats
	Skipped int64
}

// Add updates the aggregate with one row of cells.
func (s *Stats) Add(cells []string) {
	s.Rows++
	for i, cell := range cells {
		s.Columns[i].Add(cell)
	}
}

// Metrics finalizes the aggregate into a metric set.
func (s *Stats) Metrics() qc.MetricSet {
	ms := qc.NewMetricSet()
	ms.Set("row_count", float64(s.Rows))
	ms.Set("column_count", float64(len(s.Columns)))
	types := make(qc.CountMap)
	var numeric, outliers int
	var present, cells int64
	for i := range s.Columns {
		column := &s.Columns[i]
		types.Inc(column.Type())
		if column.Type() == ColumnNumeric {
			numeric++
		}
		if column.Outliers() {
			outliers++
		}
		present += column.Moments.N + column.NonNumeric
		cells += column.Moments.N + column.NonNumeric + column.Missing
	}
	ms.Set("numeric_column_count", float64(numeric))
	ms.Set("outlier_columns", float64(outliers))
	var completeness float64
	if cells > 0 {
		completeness = float64(present) / float64(cells)
	}
	ms.Set("completeness", completeness)
	ms.SetHistogram("column_types", types)
	return ms
}

// QC is the tabular quality-control engine.
type QC struct {
	MaxSkippedFraction float64
}

// NewQC returns a tabular engine with the given skip tolerance.
func NewQC(maxSkippedFraction float64) QC {
	return QC{MaxSkippedFraction: maxSkippedFraction}
}

// ComputeMetrics implements the qc.Engine contract for tabular streams.
// Rows whose cell count disagrees with the header are skipped so a
// single ragged row cannot shift the per-column aggregates.
func (e QC) ComputeMetrics(ctx context.Context, reader *bufio.Reader) (qc.MetricSet, qc.Counts, error) {
	records, problems, err := NewReader(reader)
	if err != nil {
		return qc.NewMetricSet(), qc.Counts{}, qc.NewError(qc.MetricComputationError, "%v", err)
	}
	if len(records.Columns) == 0 {
		msg := "unusable table"
		if len(problems) > 0 {
			msg = problems[0]
		}
		return qc.NewMetricSet(), qc.Counts{}, qc.NewError(qc.MetricComputationError, "%v", msg)
	}
	stats := &Stats{Columns: make([]ColumnStats, len(records.Columns))}
	for i := int64(0); ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return qc.NewMetricSet(), qc.Counts{}, err
			}
		}
		cells, problems, err := records.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return qc.NewMetricSet(), qc.Counts{}, err
		}
		if len(problems) > 0 || cells == nil {
			stats.Skipped++
		} else {
			stats.Add(cells)
		}
	}
	counts := qc.Counts{Records: stats.Rows + stats.Skipped, Skipped: stats.Skipped}
	if counts.Records > 0 && float64(counts.Skipped)/float64(counts.Records) > e.MaxSkippedFraction {
		return qc.NewMetricSet(), counts, qc.NewError(qc.MetricComputationError,
			"%v of %v table rows skipped, which exceeds the tolerated fraction %v",
			counts.Skipped, counts.Records, e.MaxSkippedFraction)
	}
	return stats.Metrics(), counts, nil
}
