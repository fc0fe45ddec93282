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
	"testing"

	"github.com/exascience/elqc/formats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileDocument = `
warn_margin: 0.05
max_skipped_fraction: 0.1
formats:
  fastq:
    mean_quality: {min: 30}
    n_percentage: {max: 5}
  alignment:
    mean_mapping_quality: {min: 20}
    duplicate_rate: {max: 0.3}
  vcf:
    ts_tv_ratio: {min: 1.8, max: 2.6}
`

func TestParseProfile(t *testing.T) {
	profile, err := ParseProfile([]byte(profileDocument))
	require.NoError(t, err)
	assert.Equal(t, 0.05, profile.WarnMargin)
	assert.Equal(t, 0.1, profile.MaxSkippedFraction)
	fastq := profile.Sections[SectionFastq]
	require.NotNil(t, fastq)
	require.NotNil(t, fastq["mean_quality"].Min)
	assert.Equal(t, 30.0, *fastq["mean_quality"].Min)
	assert.Nil(t, fastq["mean_quality"].Max)
	vcf := profile.Sections[SectionVcf]
	require.NotNil(t, vcf["ts_tv_ratio"].Min)
	require.NotNil(t, vcf["ts_tv_ratio"].Max)
}

func TestParseProfileDefaults(t *testing.T) {
	profile, err := ParseProfile([]byte("formats:\n  fastq:\n    mean_quality: {min: 30}\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWarnMargin, profile.WarnMargin)
	assert.Equal(t, DefaultMaxSkippedFraction, profile.MaxSkippedFraction)
}

func requireThresholdConfigError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	perr, ok := err.(*PipelineError)
	require.True(t, ok)
	assert.Equal(t, ThresholdConfig, perr.Kind)
}

func TestParseProfileErrors(t *testing.T) {
	_, err := ParseProfile([]byte("formats: [not, a, map]\n"))
	requireThresholdConfigError(t, err)

	_, err = ParseProfile([]byte("formats:\n  fasta:\n    gc_content: {min: 30}\n"))
	requireThresholdConfigError(t, err)

	_, err = ParseProfile([]byte("formats:\n  fastq:\n    mean_quality: {min: 40, max: 30}\n"))
	requireThresholdConfigError(t, err)

	_, err = ParseProfile([]byte("warn_margin: 1.5\n"))
	requireThresholdConfigError(t, err)

	_, err = ParseProfile([]byte("max_skipped_fraction: -0.1\n"))
	requireThresholdConfigError(t, err)
}

func TestProfileSectionByFormat(t *testing.T) {
	profile, err := ParseProfile([]byte(profileDocument))
	require.NoError(t, err)
	alignment := profile.Sections[SectionAlignment]
	assert.Equal(t, alignment, profile.Section(formats.Sam))
	assert.Equal(t, alignment, profile.Section(formats.Bam))
	assert.Equal(t, alignment, profile.Section(formats.Cram))
	assert.Equal(t, profile.Sections[SectionFastq], profile.Section(formats.Fastq))
	assert.Nil(t, profile.Section(formats.Table))
	assert.Nil(t, profile.Section(formats.Unknown))
}

func TestErrorKindRoundTrip(t *testing.T) {
	for _, kind := range []ErrorKind{UnsupportedFormat, ValidationFailure, MetricComputationError, ThresholdConfig, Timeout} {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		var parsed ErrorKind
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, kind, parsed)
	}
}
