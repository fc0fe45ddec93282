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
	"strings"
	"testing"
)

const testHeader = "@HD\tVN:1.6\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"@SQ\tSN:chr2\tLN:500\n" +
	"@RG\tID:group1\tSM:sample1\n"

func samReader(content string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(content))
}

func TestParseHeader(t *testing.T) {
	hdr, problems, err := ParseHeader(samReader(testHeader))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) > 0 {
		t.Error("unexpected header problems:", problems)
	}
	if hdr.HD["VN"] != "1.6" {
		t.Error("@HD VN parsing failed")
	}
	references := hdr.References()
	if len(references) != 2 || references[0] != (Reference{Name: "chr1", Length: 1000}) ||
		references[1] != (Reference{Name: "chr2", Length: 500}) {
		t.Error("reference parsing failed:", references)
	}
	if len(hdr.RG) != 1 || hdr.RG[0]["ID"] != "group1" {
		t.Error("@RG parsing failed")
	}
}

func TestParseHeaderProblems(t *testing.T) {
	_, problems, err := ParseHeader(samReader("@SQ\tSN:chr1\tLN:1000\n@HD\tVN:1.6\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || !strings.Contains(problems[0], "@HD") {
		t.Error("@HD order problem not detected:", problems)
	}
	_, problems, err = ParseHeader(samReader("@SQ\tSN:chr1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || !strings.Contains(problems[0], "LN") {
		t.Error("@SQ LN problem not detected:", problems)
	}
	_, problems, err = ParseHeader(samReader("@HD\tVN:1.6\n@SQ\tSN:chr1\tLN:1000\n@SQ\tSN:chr1\tLN:500\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || !strings.Contains(problems[0], "duplicate @SQ") {
		t.Error("duplicate @SQ problem not detected:", problems)
	}
	_, problems, err = ParseHeader(samReader("@XY\tVN:1.6\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || !strings.Contains(problems[0], "unknown") {
		t.Error("unknown record type code not detected:", problems)
	}
}

func TestParseAlignmentLine(t *testing.T) {
	aln, problems := ParseAlignmentLine("r1\t99\tchr1\t100\t60\t8M\tchr1\t150\t58\tACGTACGT\tIIIIIIII", 1)
	if len(problems) > 0 {
		t.Error("unexpected alignment problems:", problems)
	}
	if aln.QNAME != "r1" || aln.FLAG != 99 || aln.RNAME != "chr1" || aln.POS != 100 ||
		aln.MAPQ != 60 || aln.CIGAR != "8M" || aln.RNEXT != "chr1" || aln.PNEXT != 150 ||
		aln.TLEN != 58 || aln.SEQ != "ACGTACGT" || aln.QUAL != "IIIIIIII" {
		t.Error("alignment parsing failed:", aln)
	}
	if !aln.IsMultiple() || !aln.IsProper() || !aln.IsFirst() || aln.IsUnmapped() {
		t.Error("flag predicates failed")
	}

	if _, problems := ParseAlignmentLine("r1\t0\tchr1\t100", 1); len(problems) != 1 {
		t.Error("missing mandatory fields not detected:", problems)
	}
	if _, problems := ParseAlignmentLine("r1\tabc\tchr1\t100\t60\t8M\t*\t0\t0\tACGT\tIIII", 1); len(problems) != 1 {
		t.Error("invalid FLAG not detected:", problems)
	}
	if _, problems := ParseAlignmentLine("r1\t0\tchr1\t100\t60\t8M\t*\t0\t0\tACGT\tIII", 1); len(problems) != 1 {
		t.Error("SEQ/QUAL length mismatch not detected:", problems)
	}
}

func TestValidateSamText(t *testing.T) {
	content := testHeader +
		"r1\t99\tchr1\t100\t60\t8M\tchr1\t150\t58\tACGTACGT\tIIIIIIII\n" +
		"r1\t147\tchr1\t150\t60\t8M\tchr1\t100\t-58\tACGTACGT\tIIIIIIII\n"
	result, err := NewValidator(false).Validate(context.Background(), samReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("well-formed SAM text flagged invalid:", result.Errors)
	}
}

func TestValidateFlagConsistency(t *testing.T) {
	cases := []struct {
		name string
		flag string
	}{
		// Proper without Multiple.
		{"pairing bits on unpaired record", "2"},
		// Unmapped and Proper.
		{"unmapped properly paired", "7"},
		// Secondary and Supplementary.
		{"secondary and supplementary", "2304"},
	}
	for _, c := range cases {
		content := testHeader + "r1\t" + c.flag + "\tchr1\t100\t60\t8M\t*\t0\t0\tACGTACGT\tIIIIIIII\n"
		result, err := NewValidator(false).Validate(context.Background(), samReader(content))
		if err != nil {
			t.Fatal(err)
		}
		if result.Valid {
			t.Errorf("%v not detected", c.name)
		}
	}
	content := testHeader + "r1\t8\tchr1\t100\t60\t8M\t*\t150\t0\tACGTACGT\tIIIIIIII\n"
	result, err := NewValidator(false).Validate(context.Background(), samReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("mate unmapped with mate position not detected")
	}
}

func TestComputeMetricsSamText(t *testing.T) {
	content := testHeader +
		"r1\t99\tchr1\t100\t60\t8M\tchr1\t150\t58\tACGTACGT\tIIIIIIII\n" +
		"r1\t147\tchr1\t150\t40\t8M\tchr1\t100\t-58\tACGTACGT\tIIIIIIII\n" +
		"r2\t1024\tchr1\t200\t20\t8M\t*\t0\t0\tACGTACGT\tIIIIIIII\n" +
		"r3\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII\n" +
		"r4\t256\tchr2\t10\t30\t8M\t*\t0\t0\tACGTACGT\tIIIIIIII\n"
	metrics, counts, err := NewQC(0.2, false).ComputeMetrics(context.Background(), samReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if counts.Records != 5 || counts.Skipped != 0 {
		t.Error("record counts failed:", counts)
	}
	if metrics.Values["read_count"] != 5 {
		t.Error("read_count failed")
	}
	if metrics.Values["mapped_reads"] != 4 || metrics.Values["unmapped_reads"] != 1 {
		t.Error("mapped tallies failed")
	}
	if metrics.Values["unmapped_rate"] != 0.2 {
		t.Error("unmapped_rate failed:", metrics.Values["unmapped_rate"])
	}
	if metrics.Values["duplicate_reads"] != 1 || metrics.Values["duplicate_rate"] != 0.2 {
		t.Error("duplicate tallies failed")
	}
	if metrics.Values["secondary_reads"] != 1 {
		t.Error("secondary tally failed")
	}
	if metrics.Values["properly_paired"] != 2 || metrics.Values["properly_paired_rate"] != 0.4 {
		t.Error("properly paired tallies failed")
	}
	// Primary mapped records have MAPQ 60, 40, and 20.
	if metrics.Values["mean_mapping_quality"] != 40 {
		t.Error("mean_mapping_quality failed:", metrics.Values["mean_mapping_quality"])
	}
	if metrics.Values["mean_read_length"] != 7.2 {
		t.Error("mean_read_length failed:", metrics.Values["mean_read_length"])
	}
}

func TestCoverage(t *testing.T) {
	references := []Reference{{Name: "chr1", Length: 1000}, {Name: "chr2", Length: 500}}
	c := NewCoverage(references, 10)
	c.Add("chr1", 1, 100)
	c.Add("chr1", 950, 100)
	c.Add("chr2", 400, 300)
	// Positions outside the dictionary are dropped.
	c.Add("chr3", 1, 100)
	c.Add("chr1", 0, 100)
	if mean := c.Mean(); mean != 500.0/1500.0 {
		t.Error("coverage mean failed:", mean)
	}
	if breadth := c.Breadth(); breadth != 3.0/20.0 {
		t.Error("coverage breadth failed:", breadth)
	}
	other := NewCoverage(references, 10)
	other.Add("chr1", 1, 50)
	other.Add("chr2", 100, 50)
	c.Merge(other)
	if mean := c.Mean(); mean != 600.0/1500.0 {
		t.Error("merged coverage mean failed:", mean)
	}
	if breadth := c.Breadth(); breadth != 4.0/20.0 {
		t.Error("merged coverage breadth failed:", breadth)
	}
}

func TestStatsMerge(t *testing.T) {
	references := []Reference{{Name: "chr1", Length: 1000}}
	aln1, _ := ParseAlignmentLine("r1\t99\tchr1\t100\t60\t8M\tchr1\t150\t58\tACGTACGT\tIIIIIIII", 1)
	aln2, _ := ParseAlignmentLine("r2\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII", 2)

	whole := &Stats{Coverage: NewCoverage(references, 10)}
	whole.Add(aln1)
	whole.Add(aln2)

	left := &Stats{Coverage: NewCoverage(references, 10)}
	left.Add(aln1)
	right := &Stats{Coverage: NewCoverage(references, 10)}
	right.Add(aln2)
	left.Merge(right)

	wholeMetrics := whole.Metrics()
	leftMetrics := left.Metrics()
	for _, name := range wholeMetrics.Names() {
		if wholeMetrics.Values[name] != leftMetrics.Values[name] {
			t.Errorf("merged %v differs: %v %v", name, wholeMetrics.Values[name], leftMetrics.Values[name])
		}
	}
}
