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
	"io/ioutil"

	"github.com/exascience/elqc/formats"

	"gopkg.in/yaml.v3"
)

// A Bound is the acceptable range for one metric. Bounds are closed
// intervals; a nil side leaves that side unconstrained.
type Bound struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// A ProfileSection maps metric names to bounds for one format. Metrics
// absent from the section are informational only and are not
// classified.
type ProfileSection map[string]Bound

// Default tolerances. The warn margin is relative to the bound value;
// the original planning material left its exact semantics open, so it
// is configurable in the profile rather than hardcoded.
const (
	DefaultWarnMargin         = 0.1
	DefaultMaxSkippedFraction = 0.2
	DefaultMaxValidationErrs  = 100
)

// The profile section names. SAM, BAM, and CRAM share the alignment
// section.
const (
	SectionFastq     = "fastq"
	SectionAlignment = "alignment"
	SectionVcf       = "vcf"
	SectionTable     = "table"
)

var knownSections = []string{SectionFastq, SectionAlignment, SectionVcf, SectionTable}

// A ThresholdProfile is the configured per-format metric bounds plus
// the pipeline tolerances. It is loaded once per run, read-only
// afterwards, and shared across concurrent file runs.
//
// Profile documents are YAML:
//
//	warn_margin: 0.1
//	max_skipped_fraction: 0.2
//	formats:
//	  fastq:
//	    mean_quality: {min: 30}
//	    n_percentage: {max: 5}
//	  alignment:
//	    mean_mapping_quality: {min: 20}
type ThresholdProfile struct {
	WarnMargin         float64                   `yaml:"warn_margin"`
	MaxSkippedFraction float64                   `yaml:"max_skipped_fraction"`
	Sections           map[string]ProfileSection `yaml:"formats"`
}

// DefaultProfile returns a profile with no bounds and default
// tolerances, so every metric is informational.
func DefaultProfile() *ThresholdProfile {
	return &ThresholdProfile{
		WarnMargin:         DefaultWarnMargin,
		MaxSkippedFraction: DefaultMaxSkippedFraction,
		Sections:           make(map[string]ProfileSection),
	}
}

// LoadProfile reads and validates a YAML threshold profile. A malformed
// profile is a ThresholdConfig error and aborts the whole run.
func LoadProfile(name string) (*ThresholdProfile, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, NewError(ThresholdConfig, "cannot read threshold profile %v: %v", name, err)
	}
	return ParseProfile(data)
}

// ParseProfile parses and validates a YAML threshold profile document.
func ParseProfile(data []byte) (*ThresholdProfile, error) {
	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, NewError(ThresholdConfig, "malformed threshold profile: %v", err)
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func (profile *ThresholdProfile) validate() error {
	if profile.WarnMargin < 0 || profile.WarnMargin >= 1 {
		return NewError(ThresholdConfig, "warn_margin %v outside [0,1)", profile.WarnMargin)
	}
	if profile.MaxSkippedFraction < 0 || profile.MaxSkippedFraction > 1 {
		return NewError(ThresholdConfig, "max_skipped_fraction %v outside [0,1]", profile.MaxSkippedFraction)
	}
	for name, section := range profile.Sections {
		if !knownSection(name) {
			return NewError(ThresholdConfig, "unknown format section %v in threshold profile", name)
		}
		for metric, bound := range section {
			if bound.Min != nil && bound.Max != nil && *bound.Min > *bound.Max {
				return NewError(ThresholdConfig, "bound for %v.%v has min %v > max %v", name, metric, *bound.Min, *bound.Max)
			}
		}
	}
	return nil
}

func knownSection(name string) bool {
	for _, known := range knownSections {
		if name == known {
			return true
		}
	}
	return false
}

// Section returns the profile section for a format, or nil if the
// profile has none.
func (profile *ThresholdProfile) Section(format formats.Format) ProfileSection {
	switch {
	case format == formats.Fastq:
		return profile.Sections[SectionFastq]
	case format.Alignment():
		return profile.Sections[SectionAlignment]
	case format == formats.Vcf:
		return profile.Sections[SectionVcf]
	case format == formats.Table:
		return profile.Sections[SectionTable]
	default:
		return nil
	}
}
