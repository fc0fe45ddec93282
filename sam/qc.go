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

package sam

import (
	"bufio"
	"context"
	"io"

	"github.com/exascience/elqc/qc"

	"github.com/willf/bitset"
)

// DefaultCoverageBins is the default number of positional bins per
// reference sequence for coverage estimation. Binning trades precision
// for bounded memory on large references; an exact per-base array for a
// human genome would be orders of magnitude larger.
const DefaultCoverageBins = 1024

// unknownMapq marks mapping quality as unavailable and is excluded from
// the mapping quality mean.
const unknownMapq = 255

// A Coverage estimates depth and breadth of coverage with a
// fixed-resolution positional histogram over the sequence dictionary.
// Bin occupancy is tracked in a bitset for the breadth estimate.
type Coverage struct {
	index    map[string]int
	widths   []int64
	offsets  []int
	counts   []int64
	occupied *bitset.BitSet
	totalLen int64
}

// NewCoverage lays out at most binsPerRef bins for every reference.
func NewCoverage(references []Reference, binsPerRef int) *Coverage {
	if len(references) == 0 {
		return nil
	}
	c := &Coverage{index: make(map[string]int, len(references))}
	for i, ref := range references {
		bins := int64(binsPerRef)
		if ref.Length < bins {
			bins = ref.Length
		}
		width := (ref.Length + bins - 1) / bins
		c.index[ref.Name] = i
		c.widths = append(c.widths, width)
		c.offsets = append(c.offsets, len(c.counts))
		c.counts = append(c.counts, make([]int64, bins)...)
		c.totalLen += ref.Length
	}
	c.occupied = bitset.New(uint(len(c.counts)))
	return c
}

// Add attributes bases aligned bases to the bin containing a 1-based
// position on the named reference.
func (c *Coverage) Add(rname string, pos int32, bases int64) {
	if c == nil || pos < 1 {
		return
	}
	ref, ok := c.index[rname]
	if !ok {
		return
	}
	offset := c.offsets[ref]
	end := len(c.counts)
	if ref+1 < len(c.offsets) {
		end = c.offsets[ref+1]
	}
	bin := offset + int(int64(pos-1)/c.widths[ref])
	if bin >= end {
		bin = end - 1
	}
	c.counts[bin] += bases
	c.occupied.Set(uint(bin))
}

// Merge combines coverage histograms with the same layout.
func (c *Coverage) Merge(other *Coverage) {
	if c == nil || other == nil {
		return
	}
	for i, count := range other.counts {
		c.counts[i] += count
	}
	c.occupied.InPlaceUnion(other.occupied)
}

// Mean returns the estimated mean depth of coverage over the whole
// sequence dictionary.
func (c *Coverage) Mean() float64 {
	if c == nil || c.totalLen == 0 {
		return 0
	}
	var total int64
	for _, count := range c.counts {
		total += count
	}
	return float64(total) / float64(c.totalLen)
}

// Breadth returns the fraction of bins that received at least one
// aligned read.
func (c *Coverage) Breadth() float64 {
	if c == nil || len(c.counts) == 0 {
		return 0
	}
	return float64(c.occupied.Count()) / float64(len(c.counts))
}

// Stats is the partial aggregate of the alignment metrics.
type Stats struct {
	Reads          int64
	Mapped         int64
	Unmapped       int64
	Duplicate      int64
	Secondary      int64
	Supplementary  int64
	ProperlyPaired int64
	MapqSum        int64
	MapqCount      int64
	Bases          int64
	Skipped        int64
	Coverage       *Coverage
}

// Add updates the aggregate with one record. Tallies follow the FLAG
// bits; the mapping quality mean is restricted to primary mapped
// records with a known MAPQ.
func (s *Stats) Add(aln *Alignment) {
	s.Reads++
	if aln.IsUnmapped() {
		s.Unmapped++
	} else {
		s.Mapped++
	}
	if aln.IsDuplicate() {
		s.Duplicate++
	}
	if aln.IsSecondary() {
		s.Secondary++
	}
	if aln.IsSupplementary() {
		s.Supplementary++
	}
	if aln.IsProper() {
		s.ProperlyPaired++
	}
	var bases int64
	if aln.SEQ != "*" {
		bases = int64(len(aln.SEQ))
		s.Bases += bases
	}
	if aln.IsPrimary() && !aln.IsUnmapped() {
		if aln.MAPQ != unknownMapq {
			s.MapqSum += int64(aln.MAPQ)
			s.MapqCount++
		}
		s.Coverage.Add(aln.RNAME, aln.POS, bases)
	}
}

// Merge combines the aggregates of two disjoint record chunks.
func (s *Stats) Merge(other *Stats) {
	s.Reads += other.Reads
	s.Mapped += other.Mapped
	s.Unmapped += other.Unmapped
	s.Duplicate += other.Duplicate
	s.Secondary += other.Secondary
	s.Supplementary += other.Supplementary
	s.ProperlyPaired += other.ProperlyPaired
	s.MapqSum += other.MapqSum
	s.MapqCount += other.MapqCount
	s.Bases += other.Bases
	s.Skipped += other.Skipped
	s.Coverage.Merge(other.Coverage)
}

// Metrics finalizes the aggregate into a metric set. Rates are
// fractions of the total record count in [0, 1].
func (s *Stats) Metrics() qc.MetricSet {
	ms := qc.NewMetricSet()
	ms.Set("read_count", float64(s.Reads))
	ms.Set("mapped_reads", float64(s.Mapped))
	ms.Set("unmapped_reads", float64(s.Unmapped))
	ms.Set("duplicate_reads", float64(s.Duplicate))
	ms.Set("secondary_reads", float64(s.Secondary))
	ms.Set("supplementary_reads", float64(s.Supplementary))
	ms.Set("properly_paired", float64(s.ProperlyPaired))
	var unmappedRate, duplicateRate, properRate, meanLength float64
	if s.Reads > 0 {
		unmappedRate = float64(s.Unmapped) / float64(s.Reads)
		duplicateRate = float64(s.Duplicate) / float64(s.Reads)
		properRate = float64(s.ProperlyPaired) / float64(s.Reads)
		meanLength = float64(s.Bases) / float64(s.Reads)
	}
	ms.Set("unmapped_rate", unmappedRate)
	ms.Set("duplicate_rate", duplicateRate)
	ms.Set("properly_paired_rate", properRate)
	ms.Set("mean_read_length", meanLength)
	var meanMapq float64
	if s.MapqCount > 0 {
		meanMapq = float64(s.MapqSum) / float64(s.MapqCount)
	}
	ms.Set("mean_mapping_quality", meanMapq)
	ms.Set("mean_coverage", s.Coverage.Mean())
	ms.Set("breadth_of_coverage", s.Coverage.Breadth())
	return ms
}

// QC is the alignment quality-control engine.
type QC struct {
	MaxSkippedFraction float64
	CoverageBins       int
	Binary             bool
}

// NewQC returns an alignment engine with the given skip tolerance.
// Binary selects the BAM decoder.
func NewQC(maxSkippedFraction float64, binary bool) QC {
	return QC{
		MaxSkippedFraction: maxSkippedFraction,
		CoverageBins:       DefaultCoverageBins,
		Binary:             binary,
	}
}

// ComputeMetrics implements the qc.Engine contract for alignment
// streams.
func (e QC) ComputeMetrics(ctx context.Context, reader *bufio.Reader) (qc.MetricSet, qc.Counts, error) {
	var records RecordReader
	var err error
	if e.Binary {
		records, _, err = NewBamReader(reader)
	} else {
		records, _, err = NewReader(reader)
	}
	if err != nil {
		return qc.NewMetricSet(), qc.Counts{}, qc.NewError(qc.MetricComputationError, "%v", err)
	}
	var references []Reference
	if bam, ok := records.(*BamReader); ok {
		references = bam.References()
	} else {
		references = records.Header().References()
	}
	stats := &Stats{Coverage: NewCoverage(references, e.CoverageBins)}
	for i := int64(0); ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return qc.NewMetricSet(), qc.Counts{}, err
			}
		}
		aln, problems, err := records.Read()
		if err == io.EOF {
			break
		}
		if len(problems) > 0 || aln == nil {
			stats.Skipped++
		} else {
			stats.Add(aln)
		}
		if err != nil {
			if err != io.ErrUnexpectedEOF {
				return qc.NewMetricSet(), qc.Counts{}, err
			}
			break
		}
	}
	counts := qc.Counts{Records: stats.Reads + stats.Skipped, Skipped: stats.Skipped}
	if counts.Records > 0 && float64(counts.Skipped)/float64(counts.Records) > e.MaxSkippedFraction {
		return qc.NewMetricSet(), counts, qc.NewError(qc.MetricComputationError,
			"%v of %v alignment records skipped, which exceeds the tolerated fraction %v",
			counts.Skipped, counts.Records, e.MaxSkippedFraction)
	}
	return stats.Metrics(), counts, nil
}
