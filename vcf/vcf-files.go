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

// Package vcf implements structural validation and quality metrics for
// VCF files. See https://samtools.github.io/hts-specs/VCFv4.3.pdf for
// the format definition.
package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The fileformat meta-information line that must open every VCF file.
const fileFormatLinePrefix = "##fileformat=VCF"

// DefaultHeaderColumns are the fixed columns of the #CHROM header line,
// in the order the format requires.
var DefaultHeaderColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// MissingValue is the token for a missing field value.
const MissingValue = "."

// A Header holds the parts of the VCF header section needed for
// structural validation and metrics.
type Header struct {
	FileFormat string
	MetaLines  int
	Columns    []string
	Samples    []string
}

// A Variant is one data row of a VCF file. Sample fields are kept as
// raw strings; the QC engine interprets only the GT and DP entries.
type Variant struct {
	Chrom   string
	Pos     int64
	ID      string
	Ref     string
	Alt     string
	Qual    string
	Filter  string
	Info    string
	Format  []string
	Samples []string
}

// A Reader reads data rows from a VCF stream after parsing its header.
type Reader struct {
	reader *bufio.Reader
	header *Header
	line   int64
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		err = nil
	}
	return line, err
}

// NewReader parses the meta-information lines and the #CHROM header
// line, accumulating structural problems instead of aborting, and
// returns a reader positioned at the first data row.
func NewReader(reader *bufio.Reader) (*Reader, []string, error) {
	r := &Reader{reader: reader, header: &Header{}}
	var problems []string
	first := true
	for {
		data, err := reader.Peek(1)
		if err == io.EOF {
			if r.header.Columns == nil {
				problems = append(problems, "missing #CHROM header line")
			}
			return r, problems, nil
		}
		if err != nil {
			return r, problems, err
		}
		if data[0] != '#' {
			break
		}
		line, err := readLine(reader)
		if err != nil && err != io.EOF {
			return r, problems, err
		}
		r.line++
		if strings.HasPrefix(line, "##") {
			if first {
				if strings.HasPrefix(line, fileFormatLinePrefix) {
					r.header.FileFormat = line[len("##fileformat="):]
				} else {
					problems = append(problems, "first line is not a ##fileformat meta-information line")
				}
			}
			r.header.MetaLines++
		} else {
			columnProblems := r.parseColumnsLine(line)
			problems = append(problems, columnProblems...)
		}
		first = false
	}
	if first {
		problems = append(problems, "first line is not a ##fileformat meta-information line")
	}
	if r.header.Columns == nil {
		problems = append(problems, "missing #CHROM header line")
	}
	return r, problems, nil
}

func (r *Reader) parseColumnsLine(line string) []string {
	var problems []string
	if r.header.Columns != nil {
		return []string{fmt.Sprintf("line %v: duplicate #CHROM header line", r.line)}
	}
	columns := strings.Split(line, "\t")
	for i, fixed := range DefaultHeaderColumns {
		if i >= len(columns) || columns[i] != fixed {
			problems = append(problems, fmt.Sprintf("line %v: header columns do not declare %v at position %v", r.line, fixed, i+1))
		}
	}
	if len(columns) > len(DefaultHeaderColumns) {
		if columns[len(DefaultHeaderColumns)] != "FORMAT" {
			problems = append(problems, fmt.Sprintf("line %v: column %v is not FORMAT", r.line, len(DefaultHeaderColumns)+1))
		}
		r.header.Samples = columns[len(DefaultHeaderColumns)+1:]
	}
	r.header.Columns = columns
	return problems
}

// Header returns the parsed header.
func (r *Reader) Header() *Header {
	return r.header
}

// Read parses the next data row. Structural problems are returned as
// descriptions; err is io.EOF at the end of the input.
func (r *Reader) Read() (*Variant, []string, error) {
	line, err := readLine(r.reader)
	if err != nil {
		if err != io.EOF {
			return nil, nil, err
		}
		if len(line) == 0 {
			return nil, nil, io.EOF
		}
	}
	r.line++
	if len(line) == 0 {
		return nil, []string{fmt.Sprintf("line %v: empty line", r.line)}, nil
	}
	fields := strings.Split(line, "\t")
	var problems []string
	if expected := len(r.header.Columns); expected > 0 && len(fields) != expected {
		problems = append(problems, fmt.Sprintf("line %v: %v columns instead of %v", r.line, len(fields), expected))
	}
	if len(fields) < len(DefaultHeaderColumns) {
		return nil, problems, nil
	}
	variant := &Variant{
		Chrom:  fields[0],
		ID:     fields[2],
		Ref:    fields[3],
		Alt:    fields[4],
		Qual:   fields[5],
		Filter: fields[6],
		Info:   fields[7],
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		problems = append(problems, fmt.Sprintf("line %v: invalid POS field %v", r.line, fields[1]))
	}
	variant.Pos = pos
	if len(fields) > len(DefaultHeaderColumns) {
		variant.Format = strings.Split(fields[len(DefaultHeaderColumns)], ":")
		variant.Samples = fields[len(DefaultHeaderColumns)+1:]
		for i, sample := range variant.Samples {
			entries := strings.Count(sample, ":") + 1
			if sample != MissingValue && entries > len(variant.Format) {
				problems = append(problems, fmt.Sprintf("line %v: sample %v has %v entries for a FORMAT with %v",
					r.line, i+1, entries, len(variant.Format)))
			}
		}
	}
	return variant, problems, nil
}
