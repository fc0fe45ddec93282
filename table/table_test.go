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
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/exascience/elqc/qc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func tableReader(content string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(content))
}

func TestReaderWithHeader(t *testing.T) {
	r, problems, err := NewReader(tableReader("name,age,height\nalice,30,1.70\nbob,40,1.80\n"))
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.True(t, r.HasHeader)
	assert.Equal(t, byte(','), r.Delimiter)
	assert.Equal(t, []string{"name", "age", "height"}, r.Columns)
	cells, problems, err := r.Read()
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, []string{"alice", "30", "1.70"}, cells)
}

func TestReaderWithoutHeader(t *testing.T) {
	r, problems, err := NewReader(tableReader("1\t2\t3\n4\t5\t6\n"))
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.False(t, r.HasHeader)
	assert.Equal(t, byte('\t'), r.Delimiter)
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, r.Columns)
	// The first line is data and must not be lost.
	cells, _, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, cells)
	cells, _, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5", "6"}, cells)
}

func TestValidateTable(t *testing.T) {
	result, err := NewValidator().Validate(context.Background(), tableReader("a,b\n1,2\n3,4\n"))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = NewValidator().Validate(context.Background(), tableReader("a,b\n1,2,3\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "cells")

	result, err = NewValidator().Validate(context.Background(), tableReader("a,b,a\n1,2,3\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "duplicate")

	result, err = NewValidator().Validate(context.Background(), tableReader("a,b\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "no table rows")

	result, err = NewValidator().Validate(context.Background(), tableReader("justoneword\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestComputeMetricsTable(t *testing.T) {
	content := "name,score,level\n" +
		"alice,1.5,3\n" +
		"bob,2.5,NA\n" +
		"carol,3.5,5\n" +
		"dave,NA,7\n"
	metrics, counts, err := NewQC(0.2).ComputeMetrics(context.Background(), tableReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.Records)
	assert.Equal(t, 4.0, metrics.Values["row_count"])
	assert.Equal(t, 3.0, metrics.Values["column_count"])
	assert.Equal(t, 2.0, metrics.Values["numeric_column_count"])
	// 2 of 12 cells are missing.
	assert.InDelta(t, 10.0/12.0, metrics.Values["completeness"], 1e-12)
	assert.Equal(t, 0.0, metrics.Values["outlier_columns"])
	assert.Equal(t, qc.CountMap{"text": 1, "numeric": 2}, metrics.Histograms["column_types"])
}

func TestComputeMetricsOutliers(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("steady,spiky\n")
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "%v,%v\n", 100+r.Float64(), 100+r.Float64())
	}
	sb.WriteString("100.5,1000000\n")
	metrics, _, err := NewQC(0.2).ComputeMetrics(context.Background(), tableReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.Values["outlier_columns"])
}

func TestComputeMetricsRaggedRowsSkipped(t *testing.T) {
	content := "a,b\n1,2\n3\n5,6\n"
	metrics, counts, err := NewQC(0.5).ComputeMetrics(context.Background(), tableReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Skipped)
	assert.Equal(t, 2.0, metrics.Values["row_count"])

	_, _, err = NewQC(0.1).ComputeMetrics(context.Background(), tableReader(content))
	require.Error(t, err)
	perr, ok := err.(*qc.PipelineError)
	require.True(t, ok)
	assert.Equal(t, qc.MetricComputationError, perr.Kind)
}

func TestColumnStatsAgainstGonum(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	values := make([]float64, 5000)
	var column ColumnStats
	for i := range values {
		values[i] = r.NormFloat64()*3 + 50
		column.Add(fmt.Sprintf("%.17g", values[i]))
	}
	if math.Abs(column.Moments.Mean-stat.Mean(values, nil)) > 1e-9 {
		t.Error("column mean differs from gonum:", column.Moments.Mean, stat.Mean(values, nil))
	}
	if math.Abs(column.Moments.Variance()-stat.Variance(values, nil)) > 1e-6 {
		t.Error("column variance differs from gonum:", column.Moments.Variance(), stat.Variance(values, nil))
	}
}
