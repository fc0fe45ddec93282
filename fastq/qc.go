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

package fastq

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/exascience/elqc/qc"

	"github.com/exascience/pargo/pipeline"
)

// Read lengths are histogrammed into fixed-width buckets so the
// histogram stays bounded regardless of input size.
const (
	lengthBucketWidth = 50
	maxLengthBuckets  = 20
)

// Record batch sizes for the chunked parallel reduction.
const (
	minBatchSize = 512
	maxBatchSize = 4096
)

// Stats is the partial aggregate of the FASTQ metrics. All fields
// combine with an associative, commutative merge, so chunked parallel
// reduction yields the same result as a single sequential pass.
type Stats struct {
	Reads   int64
	Bases   int64
	QualSum int64
	Q20     int64
	Q30     int64
	GC      int64
	N       int64
	MinLen  int64 // -1 when no reads seen
	MaxLen  int64
	Lengths [maxLengthBuckets]int64
	Skipped int64
}

// NewStats returns an empty partial aggregate.
func NewStats() *Stats {
	return &Stats{MinLen: -1}
}

// Add updates the aggregate with one structurally valid record.
func (s *Stats) Add(record Record) {
	s.Reads++
	length := int64(len(record.Seq))
	s.Bases += length
	if s.MinLen < 0 || length < s.MinLen {
		s.MinLen = length
	}
	if length > s.MaxLen {
		s.MaxLen = length
	}
	bucket := length / lengthBucketWidth
	if bucket >= maxLengthBuckets {
		bucket = maxLengthBuckets - 1
	}
	s.Lengths[bucket]++
	for _, c := range record.Seq {
		switch c {
		case 'G', 'C', 'g', 'c':
			s.GC++
		case 'N', 'n':
			s.N++
		}
	}
	for _, c := range record.Qual {
		q := int64(c) - phredBase
		s.QualSum += q
		if q >= 20 {
			s.Q20++
		}
		if q >= 30 {
			s.Q30++
		}
	}
}

// Merge combines the aggregates of two disjoint record chunks.
func (s *Stats) Merge(other *Stats) {
	s.Reads += other.Reads
	s.Bases += other.Bases
	s.QualSum += other.QualSum
	s.Q20 += other.Q20
	s.Q30 += other.Q30
	s.GC += other.GC
	s.N += other.N
	if s.MinLen < 0 || (other.MinLen >= 0 && other.MinLen < s.MinLen) {
		s.MinLen = other.MinLen
	}
	if other.MaxLen > s.MaxLen {
		s.MaxLen = other.MaxLen
	}
	for i := range s.Lengths {
		s.Lengths[i] += other.Lengths[i]
	}
	s.Skipped += other.Skipped
}

// Metrics finalizes the aggregate into a metric set. With zero reads
// all metrics report 0; the validator flags the missing data
// separately. Percentages are per base, not per read.
func (s *Stats) Metrics() qc.MetricSet {
	ms := qc.NewMetricSet()
	ms.Set("read_count", float64(s.Reads))
	ms.Set("total_bases", float64(s.Bases))
	minLen := s.MinLen
	if minLen < 0 {
		minLen = 0
	}
	ms.Set("min_read_length", float64(minLen))
	ms.Set("max_read_length", float64(s.MaxLen))
	var meanLength, meanQuality, q20, q30, gc, n float64
	if s.Reads > 0 {
		meanLength = float64(s.Bases) / float64(s.Reads)
	}
	if s.Bases > 0 {
		meanQuality = float64(s.QualSum) / float64(s.Bases)
		q20 = float64(s.Q20) / float64(s.Bases) * 100
		q30 = float64(s.Q30) / float64(s.Bases) * 100
		gc = float64(s.GC) / float64(s.Bases) * 100
		n = float64(s.N) / float64(s.Bases) * 100
	}
	ms.Set("mean_read_length", meanLength)
	ms.Set("mean_quality", meanQuality)
	ms.Set("q20_percentage", q20)
	ms.Set("q30_percentage", q30)
	ms.Set("gc_content", gc)
	ms.Set("n_percentage", n)
	histogram := make(qc.CountMap)
	for i, count := range s.Lengths {
		if count == 0 {
			continue
		}
		if i == maxLengthBuckets-1 {
			histogram[fmt.Sprintf("%v+", i*lengthBucketWidth)] = count
		} else {
			histogram[fmt.Sprintf("%v-%v", i*lengthBucketWidth, (i+1)*lengthBucketWidth-1)] = count
		}
	}
	ms.SetHistogram("read_length_distribution", histogram)
	return ms
}

// QC is the FASTQ quality-control engine. With Threads > 1 the metric
// reduction runs chunked over a pargo pipeline; the merge is exact, so
// parallel execution is an optimization, not a behavior change.
type QC struct {
	MaxSkippedFraction float64
	Threads            int
}

// NewQC returns a FASTQ engine with the given skip tolerance.
func NewQC(maxSkippedFraction float64, threads int) QC {
	return QC{MaxSkippedFraction: maxSkippedFraction, Threads: threads}
}

// ComputeMetrics implements the qc.Engine contract for FASTQ streams.
func (e QC) ComputeMetrics(ctx context.Context, reader *bufio.Reader) (qc.MetricSet, qc.Counts, error) {
	var stats *Stats
	var err error
	if e.Threads > 1 {
		stats, err = computeParallel(ctx, reader)
	} else {
		stats, err = computeSequential(ctx, reader)
	}
	if err != nil {
		return qc.NewMetricSet(), qc.Counts{}, err
	}
	counts := qc.Counts{Records: stats.Reads + stats.Skipped, Skipped: stats.Skipped}
	if counts.Records > 0 && float64(counts.Skipped)/float64(counts.Records) > e.MaxSkippedFraction {
		return qc.NewMetricSet(), counts, qc.NewError(qc.MetricComputationError,
			"%v of %v FASTQ records skipped, which exceeds the tolerated fraction %v",
			counts.Skipped, counts.Records, e.MaxSkippedFraction)
	}
	return stats.Metrics(), counts, nil
}

func computeSequential(ctx context.Context, reader *bufio.Reader) (*Stats, error) {
	stats := NewStats()
	r := NewReader(reader)
	for i := int64(0); ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, errs, err := r.Read()
		if err == io.EOF && len(record.Name) == 0 && len(errs) == 0 {
			return stats, nil
		}
		if len(errs) > 0 {
			stats.Skipped++
		} else {
			stats.Add(record)
		}
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			return stats, nil
		}
	}
}

// parsedRecord carries a record together with its structural state, so
// the parallel receivers can tally skips without re-validating.
type parsedRecord struct {
	record    Record
	malformed bool
}

// recordSource feeds batches of FASTQ records into a pargo pipeline.
type recordSource struct {
	ctx    context.Context
	reader *Reader
	batch  []parsedRecord
	err    error
}

// Prepare implements the method of the pipeline.Source interface.
func (s *recordSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (s *recordSource) Fetch(size int) int {
	if s.err = s.ctx.Err(); s.err != nil {
		return 0
	}
	batch := make([]parsedRecord, 0, size)
	for len(batch) < size {
		record, errs, err := s.reader.Read()
		if err == io.EOF && len(record.Name) == 0 && len(errs) == 0 {
			break
		}
		batch = append(batch, parsedRecord{record: record, malformed: len(errs) > 0})
		if err != nil {
			if err != io.EOF {
				s.err = err
				return 0
			}
			break
		}
	}
	s.batch = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (s *recordSource) Data() interface{} {
	return s.batch
}

// Err implements the method of the pipeline.Source interface.
func (s *recordSource) Err() error {
	return s.err
}

func computeParallel(ctx context.Context, reader *bufio.Reader) (*Stats, error) {
	source := &recordSource{ctx: ctx, reader: NewReader(reader)}
	result := NewStats()
	var p pipeline.Pipeline
	p.Source(source)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			stats := NewStats()
			for _, parsed := range data.([]parsedRecord) {
				if parsed.malformed {
					stats.Skipped++
				} else {
					stats.Add(parsed.record)
				}
			}
			return stats
		})),
		pipeline.Seq(pipeline.Receive(func(_ int, data interface{}) interface{} {
			result.Merge(data.(*Stats))
			return data
		})),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
