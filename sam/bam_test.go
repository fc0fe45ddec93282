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
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
)

func putUint32(buf *bytes.Buffer, value uint32) {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], value)
	buf.Write(data[:])
}

func putUint16(buf *bytes.Buffer, value uint16) {
	var data [2]byte
	binary.LittleEndian.PutUint16(data[:], value)
	buf.Write(data[:])
}

func encodeBamHeader(buf *bytes.Buffer, text string, references []Reference) {
	buf.WriteString(bamMagic)
	putUint32(buf, uint32(len(text)))
	buf.WriteString(text)
	putUint32(buf, uint32(len(references)))
	for _, ref := range references {
		putUint32(buf, uint32(len(ref.Name)+1))
		buf.WriteString(ref.Name)
		buf.WriteByte(0)
		putUint32(buf, uint32(ref.Length))
	}
}

func encodeBamRecord(buf *bytes.Buffer, refID, pos int32, name string, mapq byte, flag uint16, seq string) {
	seqBytes := make([]byte, (len(seq)+1)/2)
	for i := 0; i < len(seq); i++ {
		nibble := byte(strings.IndexByte(bamNibbles, seq[i]))
		if i%2 == 0 {
			seqBytes[i/2] = nibble << 4
		} else {
			seqBytes[i/2] |= nibble
		}
	}
	blockSize := fixedRecordSize + len(name) + 1 + len(seqBytes) + len(seq)
	putUint32(buf, uint32(blockSize))
	putUint32(buf, uint32(refID))
	putUint32(buf, uint32(pos))
	buf.WriteByte(byte(len(name) + 1))
	buf.WriteByte(mapq)
	putUint16(buf, 0) // bin
	putUint16(buf, 0) // n_cigar_op
	putUint16(buf, flag)
	putUint32(buf, uint32(len(seq)))
	putUint32(buf, uint32(0xffffffff)) // next_ref_id -1
	putUint32(buf, 0)                  // next_pos
	putUint32(buf, 0)                  // tlen
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.Write(seqBytes)
	for range seq {
		buf.WriteByte(40)
	}
}

func makeBam(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	references := []Reference{{Name: "chr1", Length: 1000}}
	encodeBamHeader(&buf, "@HD\tVN:1.6\n@SQ\tSN:chr1\tLN:1000\n", references)
	encodeBamRecord(&buf, 0, 99, "r1", 60, 0, "ACGTACGT")
	encodeBamRecord(&buf, -1, -1, "r2", 255, 4, "ACGT")
	return buf.Bytes()
}

func TestBamReader(t *testing.T) {
	r, problems, err := NewBamReader(bufio.NewReader(bytes.NewReader(makeBam(t))))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) > 0 {
		t.Error("unexpected BAM header problems:", problems)
	}
	references := r.References()
	if len(references) != 1 || references[0] != (Reference{Name: "chr1", Length: 1000}) {
		t.Error("BAM sequence dictionary failed:", references)
	}
	aln, problems, err := r.Read()
	if err != nil || len(problems) > 0 {
		t.Fatal("first BAM record failed:", err, problems)
	}
	if aln.QNAME != "r1" || aln.RNAME != "chr1" || aln.POS != 100 || aln.MAPQ != 60 ||
		aln.SEQ != "ACGTACGT" || aln.QUAL != strings.Repeat("I", 8) || aln.CIGAR != "*" {
		t.Error("BAM record decoding failed:", aln)
	}
	aln, problems, err = r.Read()
	if err != nil || len(problems) > 0 {
		t.Fatal("second BAM record failed:", err, problems)
	}
	if aln.QNAME != "r2" || aln.RNAME != "*" || !aln.IsUnmapped() {
		t.Error("unmapped BAM record decoding failed:", aln)
	}
	if _, _, err = r.Read(); err == nil {
		t.Error("clean end of BAM stream not detected")
	}
}

func TestValidateBam(t *testing.T) {
	result, err := NewValidator(true).Validate(context.Background(), bufio.NewReader(bytes.NewReader(makeBam(t))))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("well-formed BAM flagged invalid:", result.Errors)
	}
}

func TestValidateTruncatedBam(t *testing.T) {
	content := makeBam(t)
	// Cut into the middle of the last record.
	result, err := NewValidator(true).Validate(context.Background(), bufio.NewReader(bytes.NewReader(content[:len(content)-10])))
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("truncated BAM record not detected")
	}
	// Cut into the header.
	result, err = NewValidator(true).Validate(context.Background(), bufio.NewReader(bytes.NewReader(content[:10])))
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("truncated BAM header not detected")
	}
}

func TestValidateBadBamMagic(t *testing.T) {
	result, err := NewValidator(true).Validate(context.Background(), bufio.NewReader(strings.NewReader("nonsense")))
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("invalid BAM magic not detected")
	}
}

func TestComputeMetricsBam(t *testing.T) {
	metrics, counts, err := NewQC(0.2, true).ComputeMetrics(context.Background(), bufio.NewReader(bytes.NewReader(makeBam(t))))
	if err != nil {
		t.Fatal(err)
	}
	if counts.Records != 2 || counts.Skipped != 0 {
		t.Error("BAM record counts failed:", counts)
	}
	if metrics.Values["read_count"] != 2 || metrics.Values["mapped_reads"] != 1 || metrics.Values["unmapped_reads"] != 1 {
		t.Error("BAM tallies failed")
	}
	if metrics.Values["mean_mapping_quality"] != 60 {
		t.Error("BAM mean_mapping_quality failed:", metrics.Values["mean_mapping_quality"])
	}
}
