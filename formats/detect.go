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

// Package formats detects the file format of sequencing data files by
// sniffing a bounded content prefix, falling back to filename extension
// heuristics only when the content is not conclusive. Detection never
// consumes bytes from the underlying reader, so downstream parsers see
// the full stream.
package formats

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Format enumerates the file formats supported by the pipeline.
type Format int

// The supported file formats.
const (
	Unknown Format = iota
	Fastq
	Sam
	Bam
	Cram
	Vcf
	Table
)

var formatNames = []string{"unknown", "fastq", "sam", "bam", "cram", "vcf", "table"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Alignment tells whether the format holds read alignments
// (SAM, BAM, or CRAM).
func (f Format) Alignment() bool {
	return f == Sam || f == Bam || f == Cram
}

// Compression enumerates the stream compression schemes recognized
// during detection.
type Compression int

// The recognized compression schemes. Bgzf is the blocked variant of
// gzip used by BAM and bgzip-compressed VCF files; a standard gzip
// decompressor reads it as a multi-member gzip stream.
const (
	Plain Compression = iota
	Gzip
	Bgzf
)

var compressionNames = []string{"plain", "gzip", "bgzf"}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return "plain"
	}
	return compressionNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

const (
	// sniffLen is the number of decompressed bytes inspected by content
	// sniffing.
	sniffLen = 512

	// peekLen is the number of raw bytes peeked from the input. It is
	// larger than sniffLen so that gzip-compressed inputs yield enough
	// decompressed content to sniff.
	peekLen = 4096
)

const bamMagic = "BAM\x01"

// isBgzf checks for the BC extra subfield that distinguishes BGZF
// blocks from ordinary gzip members.
// See http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.1.
func isBgzf(prefix []byte) bool {
	if len(prefix) < 18 || prefix[3]&0x4 == 0 {
		return false
	}
	xlen := int(binary.LittleEndian.Uint16(prefix[10:12]))
	extra := prefix[12:]
	if len(extra) > xlen {
		extra = extra[:xlen]
	}
	for len(extra) >= 4 {
		slen := int(binary.LittleEndian.Uint16(extra[2:4]))
		if extra[0] == 'B' && extra[1] == 'C' {
			return true
		}
		if len(extra) < 4+slen {
			break
		}
		extra = extra[4+slen:]
	}
	return false
}

// Detect classifies the content available through reader without
// consuming any of it, so the same reader can be handed to the parser
// for the detected format. The reader's buffer must be at least peekLen
// bytes. Magic bytes and header lines take precedence over the filename
// extension, because extensions are unreliable after recompression or
// renaming. Detection is a pure function of the content prefix and the
// name, and can safely be repeated on the same input.
func Detect(reader *bufio.Reader, name string) (Format, Compression, error) {
	prefix, err := reader.Peek(peekLen)
	switch err {
	case nil, io.EOF, bufio.ErrBufferFull:
	default:
		return Unknown, Plain, err
	}
	if len(prefix) >= 2 && prefix[0] == 0x1f && prefix[1] == 0x8b {
		compression := Gzip
		if isBgzf(prefix) {
			compression = Bgzf
		}
		inner := make([]byte, sniffLen)
		var n int
		if gz, gzErr := gzip.NewReader(bytes.NewReader(prefix)); gzErr == nil {
			n, _ = io.ReadFull(gz, inner)
		}
		return sniffContent(inner[:n], strings.TrimSuffix(name, ".gz")), compression, nil
	}
	return sniffContent(prefix, name), Plain, nil
}

func sniffContent(data []byte, name string) Format {
	switch {
	case bytes.HasPrefix(data, []byte(bamMagic)):
		return Bam
	case bytes.HasPrefix(data, []byte("CRAM")):
		return Cram
	case bytes.HasPrefix(data, []byte("##fileformat=VCF")):
		return Vcf
	}
	lines := completeLines(data)
	if len(data) > 0 && data[0] == '@' {
		if isSamHeader(data) {
			return Sam
		}
		if len(lines) >= 3 && len(lines[2]) > 0 && lines[2][0] == '+' {
			return Fastq
		}
		if f := extensionFormat(name); f == Fastq || f == Sam {
			return f
		}
		// An @ line with no + separator in sight is most likely a lone
		// SAM header.
		return Unknown
	}
	if len(lines) > 0 && looksLikeSamAlignment(lines[0]) {
		return Sam
	}
	if len(lines) > 0 {
		for _, delimiter := range []byte{'\t', ',', ';'} {
			if consistentDelimiter(lines, delimiter) {
				return Table
			}
		}
	}
	return extensionFormat(name)
}

// completeLines returns the newline-terminated lines in the prefix; a
// trailing partial line is discarded because it may be cut off by the
// peek window.
func completeLines(data []byte) [][]byte {
	var lines [][]byte
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return lines
		}
		line := data[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, line)
		data = data[i+1:]
	}
}

var samHeaderTags = []string{"@HD\t", "@SQ\t", "@RG\t", "@PG\t", "@CO\t"}

func isSamHeader(data []byte) bool {
	for _, tag := range samHeaderTags {
		if bytes.HasPrefix(data, []byte(tag)) {
			return true
		}
	}
	return false
}

// looksLikeSamAlignment recognizes a headerless SAM alignment line:
// at least 11 tab-separated fields with numeric FLAG and POS columns.
func looksLikeSamAlignment(line []byte) bool {
	fields := bytes.Split(line, []byte{'\t'})
	if len(fields) < 11 {
		return false
	}
	if _, err := strconv.ParseUint(string(fields[1]), 10, 16); err != nil {
		return false
	}
	if _, err := strconv.ParseUint(string(fields[3]), 10, 32); err != nil {
		return false
	}
	return true
}

func consistentDelimiter(lines [][]byte, delimiter byte) bool {
	count := bytes.Count(lines[0], []byte{delimiter})
	if count == 0 {
		return false
	}
	for _, line := range lines[1:] {
		if bytes.Count(line, []byte{delimiter}) != count {
			return false
		}
	}
	return true
}

func extensionFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(name, ".gz"))) {
	case ".fastq", ".fq":
		return Fastq
	case ".sam":
		return Sam
	case ".bam":
		return Bam
	case ".cram":
		return Cram
	case ".vcf":
		return Vcf
	case ".csv", ".tsv", ".tab", ".txt":
		return Table
	default:
		return Unknown
	}
}
