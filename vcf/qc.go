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

package vcf

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/exascience/elqc/qc"
)

// Variant type names in the variant_types histogram.
const (
	TypeSnp       = "snp"
	TypeInsertion = "insertion"
	TypeDeletion  = "deletion"
	TypeOther     = "other"
)

func isBase(s string) bool {
	if len(s) != 1 {
		return false
	}
	switch s[0] {
	case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		return true
	}
	return false
}

// variantType classifies a REF/ALT pair: a substitution of one base for
// another is a SNP, a length change is an insertion or deletion, and
// everything else, including multi-allelic ALT strings, is other.
func variantType(ref, alt string) string {
	switch {
	case isBase(ref) && isBase(alt) && !strings.EqualFold(ref, alt):
		return TypeSnp
	case strings.ContainsRune(alt, ','):
		return TypeOther
	case len(ref) < len(alt):
		return TypeInsertion
	case len(ref) > len(alt):
		return TypeDeletion
	default:
		return TypeOther
	}
}

// isTransition reports whether a SNP is a purine-purine or
// pyrimidine-pyrimidine substitution.
func isTransition(ref, alt string) bool {
	pair := strings.ToUpper(ref + alt)
	switch pair {
	case "AG", "GA", "CT", "TC":
		return true
	}
	return false
}

// missingGenotype reports whether every allele in a GT entry is the
// missing token, for example "." or "./." or ".|.".
func missingGenotype(gt string) bool {
	if gt == "" {
		return false
	}
	for _, allele := range strings.FieldsFunc(gt, func(r rune) bool {
		return r == '/' || r == '|'
	}) {
		if allele != MissingValue {
			return false
		}
	}
	return true
}

// infoDepth extracts the total read depth from the DP key of an INFO
// field.
func infoDepth(info string) (float64, bool) {
	for _, entry := range strings.Split(info, ";") {
		if strings.HasPrefix(entry, "DP=") {
			depth, err := strconv.ParseFloat(entry[len("DP="):], 64)
			return depth, err == nil
		}
	}
	return 0, false
}

// Stats is the partial aggregate of the variant metrics.
type Stats struct {
	Variants      int64
	Types         qc.CountMap
	Qual          qc.Moments
	Depth         qc.Moments
	Transitions   int64
	Transversions int64
	Missing       int64
	Genotypes     int64
}

// Add updates the aggregate with one variant row. The quality and depth
// means cover only the rows where the respective value is present. A
// malformed QUAL value makes the row a skipped record; Add reports
// whether the row was counted.
func (s *Stats) Add(v *Variant) bool {
	var qual float64
	qualPresent := v.Qual != MissingValue && v.Qual != ""
	if qualPresent {
		var err error
		if qual, err = strconv.ParseFloat(v.Qual, 64); err != nil {
			return false
		}
	}
	s.Variants++
	vt := variantType(v.Ref, v.Alt)
	s.Types.Inc(vt)
	if vt == TypeSnp {
		if isTransition(v.Ref, v.Alt) {
			s.Transitions++
		} else {
			s.Transversions++
		}
	}
	if qualPresent {
		s.Qual.Add(qual)
	}
	if depth, ok := s.depth(v); ok {
		s.Depth.Add(depth)
	}
	s.countGenotypes(v)
	return true
}

// depth takes the total read depth from INFO DP, falling back to the
// sum of the per-sample DP entries when INFO does not carry one.
func (s *Stats) depth(v *Variant) (float64, bool) {
	if depth, ok := infoDepth(v.Info); ok {
		return depth, true
	}
	dpIndex := -1
	for i, key := range v.Format {
		if key == "DP" {
			dpIndex = i
			break
		}
	}
	if dpIndex < 0 {
		return 0, false
	}
	var total float64
	found := false
	for _, sample := range v.Samples {
		entries := strings.Split(sample, ":")
		if dpIndex >= len(entries) || entries[dpIndex] == MissingValue {
			continue
		}
		if depth, err := strconv.ParseFloat(entries[dpIndex], 64); err == nil {
			total += depth
			found = true
		}
	}
	return total, found
}

func (s *Stats) countGenotypes(v *Variant) {
	if len(v.Format) == 0 || v.Format[0] != "GT" {
		return
	}
	for _, sample := range v.Samples {
		s.Genotypes++
		gt := sample
		if i := strings.IndexByte(sample, ':'); i >= 0 {
			gt = sample[:i]
		}
		if missingGenotype(gt) {
			s.Missing++
		}
	}
}

// Merge combines the aggregates of two disjoint row chunks.
func (s *Stats) Merge(other *Stats) {
	s.Variants += other.Variants
	if s.Types == nil {
		s.Types = other.Types
	} else {
		s.Types.Merge(other.Types)
	}
	s.Qual.Merge(other.Qual)
	s.Depth.Merge(other.Depth)
	s.Transitions += other.Transitions
	s.Transversions += other.Transversions
	s.Missing += other.Missing
	s.Genotypes += other.Genotypes
}

// Metrics finalizes the aggregate into a metric set.
func (s *Stats) Metrics() qc.MetricSet {
	ms := qc.NewMetricSet()
	ms.Set("variant_count", float64(s.Variants))
	var meanQual float64
	if s.Qual.N > 0 {
		meanQual = s.Qual.Mean
	}
	ms.Set("mean_quality", meanQual)
	var meanDepth float64
	if s.Depth.N > 0 {
		meanDepth = s.Depth.Mean
	}
	ms.Set("mean_depth", meanDepth)
	var missingRate float64
	if s.Genotypes > 0 {
		missingRate = float64(s.Missing) / float64(s.Genotypes)
	}
	ms.Set("missing_rate", missingRate)
	var tsTv float64
	if s.Transversions > 0 {
		tsTv = float64(s.Transitions) / float64(s.Transversions)
	}
	ms.Set("ts_tv_ratio", tsTv)
	if s.Types != nil {
		ms.SetHistogram("variant_types", s.Types)
	}
	return ms
}

// QC is the VCF quality-control engine.
type QC struct {
	MaxSkippedFraction float64
}

// NewQC returns a VCF engine with the given skip tolerance.
func NewQC(maxSkippedFraction float64) QC {
	return QC{MaxSkippedFraction: maxSkippedFraction}
}

// ComputeMetrics implements the qc.Engine contract for VCF streams.
func (e QC) ComputeMetrics(ctx context.Context, reader *bufio.Reader) (qc.MetricSet, qc.Counts, error) {
	records, _, err := NewReader(reader)
	if err != nil {
		return qc.NewMetricSet(), qc.Counts{}, qc.NewError(qc.MetricComputationError, "%v", err)
	}
	stats := &Stats{Types: make(qc.CountMap)}
	var skipped int64
	for i := int64(0); ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return qc.NewMetricSet(), qc.Counts{}, err
			}
		}
		variant, problems, err := records.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return qc.NewMetricSet(), qc.Counts{}, err
		}
		if len(problems) > 0 || variant == nil || !stats.Add(variant) {
			skipped++
		}
	}
	counts := qc.Counts{Records: stats.Variants + skipped, Skipped: skipped}
	if counts.Records > 0 && float64(counts.Skipped)/float64(counts.Records) > e.MaxSkippedFraction {
		return qc.NewMetricSet(), counts, qc.NewError(qc.MetricComputationError,
			"%v of %v variant rows skipped, which exceeds the tolerated fraction %v",
			counts.Skipped, counts.Records, e.MaxSkippedFraction)
	}
	return stats.Metrics(), counts, nil
}
