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

package formats

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"strings"
	"testing"
)

const fastqContent = "@read1\nACGTACGT\n+\nIIIIIIII\n@read2\nGGGGCCCC\n+\nIIIIIIII\n"

const samContent = "@HD\tVN:1.6\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"r1\t0\tchr1\t100\t60\t8M\t*\t0\t0\tACGTACGT\tIIIIIIII\n"

const vcfContent = "##fileformat=VCFv4.3\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
	"chr1\t100\t.\tA\tG\t50\tPASS\tDP=10\n"

const tableContent = "name,age,height\nalice,30,1.70\nbob,40,1.80\n"

func detectString(t *testing.T, content, name string) (Format, Compression) {
	t.Helper()
	format, compression, err := Detect(bufio.NewReaderSize(strings.NewReader(content), peekLen), name)
	if err != nil {
		t.Fatal(err)
	}
	return format, compression
}

func TestDetectContent(t *testing.T) {
	if format, compression := detectString(t, fastqContent, "reads.unknown"); format != Fastq || compression != Plain {
		t.Error("FASTQ detection failed:", format, compression)
	}
	if format, _ := detectString(t, samContent, "alns.unknown"); format != Sam {
		t.Error("SAM detection failed:", format)
	}
	if format, _ := detectString(t, vcfContent, "variants.unknown"); format != Vcf {
		t.Error("VCF detection failed:", format)
	}
	if format, _ := detectString(t, tableContent, "data.unknown"); format != Table {
		t.Error("table detection failed:", format)
	}
	if format, _ := detectString(t, "CRAM\x03\x00", "alns.unknown"); format != Cram {
		t.Error("CRAM detection failed:", format)
	}
	if format, _ := detectString(t, "\x00\x01\x02\x03garbage", "mystery.xyz"); format != Unknown {
		t.Error("unknown content detection failed:", format)
	}
}

func TestDetectExtensionFallback(t *testing.T) {
	// A single column has no delimiter and no conclusive content, so
	// only the extension remains.
	if format, _ := detectString(t, "value\n1\n2\n", "data.csv"); format != Table {
		t.Error("extension fallback failed:", format)
	}
}

func TestDetectGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(fastqContent)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	format, compression, err := Detect(bufio.NewReaderSize(bytes.NewReader(buf.Bytes()), peekLen), "reads.fastq.gz")
	if err != nil {
		t.Fatal(err)
	}
	if format != Fastq {
		t.Error("gzip FASTQ detection failed:", format)
	}
	if compression != Gzip {
		t.Error("gzip compression detection failed:", compression)
	}
}

func TestDetectDoesNotConsume(t *testing.T) {
	reader := bufio.NewReaderSize(strings.NewReader(samContent), peekLen)
	if _, _, err := Detect(reader, "alns.sam"); err != nil {
		t.Fatal(err)
	}
	rest, err := ioutil.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != samContent {
		t.Error("detection consumed bytes from the stream")
	}
}
