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

// Package fastq implements structural validation and quality metrics
// for FASTQ files.
package fastq

import (
	"bufio"
	"fmt"
	"io"
)

// Phred+33 is the only quality encoding in current use; its printable
// range is '!' through '~'.
const (
	phredBase = 33
	minQual   = '!'
	maxQual   = '~'
)

// A Record is one FASTQ read: a name line, a sequence, and a quality
// string of the same length.
type Record struct {
	Name []byte
	Seq  []byte
	Qual []byte
}

// A Reader reads 4-line FASTQ records from a buffered stream.
type Reader struct {
	reader *bufio.Reader
	record int64
}

// NewReader returns a Reader for the given stream.
func NewReader(reader *bufio.Reader) *Reader {
	return &Reader{reader: reader}
}

func (r *Reader) readLine() ([]byte, error) {
	line, err := r.reader.ReadBytes('\n')
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		err = nil
	}
	return line, err
}

// validNucleotide allows the IUPAC core alphabet plus N, in both cases.
func validNucleotide(c byte) bool {
	switch c {
	case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		return true
	default:
		return false
	}
}

// Read returns the next record. Structural problems with the record are
// described in errs; the record framing is kept so that scanning can
// continue. err is io.EOF at the end of the input; a record cut off by
// the end of the input is reported both as a structural error and
// io.EOF.
func (r *Reader) Read() (record Record, errs []string, err error) {
	name, err := r.readLine()
	if err == io.EOF && len(name) == 0 {
		return record, nil, io.EOF
	}
	r.record++
	if err != nil {
		if err == io.EOF {
			errs = append(errs, fmt.Sprintf("record %v: truncated record", r.record))
		}
		return record, errs, err
	}
	if len(name) == 0 || name[0] != '@' {
		errs = append(errs, fmt.Sprintf("record %v: name line does not start with @", r.record))
	}
	record.Name = name
	var lineErr error
	if record.Seq, lineErr = r.readLine(); lineErr != nil {
		errs = append(errs, fmt.Sprintf("record %v: truncated record", r.record))
		return record, errs, lineErr
	}
	separator, lineErr := r.readLine()
	if lineErr != nil {
		errs = append(errs, fmt.Sprintf("record %v: truncated record", r.record))
		return record, errs, lineErr
	}
	if len(separator) == 0 || separator[0] != '+' {
		errs = append(errs, fmt.Sprintf("record %v: separator line does not start with +", r.record))
	}
	if record.Qual, lineErr = r.readLine(); lineErr != nil && len(record.Qual) == 0 {
		errs = append(errs, fmt.Sprintf("record %v: truncated record", r.record))
		return record, errs, lineErr
	}
	if len(record.Seq) != len(record.Qual) {
		errs = append(errs, fmt.Sprintf("record %v: sequence length %v does not match quality length %v",
			r.record, len(record.Seq), len(record.Qual)))
	}
	for _, c := range record.Seq {
		if !validNucleotide(c) {
			errs = append(errs, fmt.Sprintf("record %v: invalid nucleotide %q", r.record, c))
			break
		}
	}
	for _, c := range record.Qual {
		if c < minQual || c > maxQual {
			errs = append(errs, fmt.Sprintf("record %v: quality character %q outside Phred+33 range", r.record, c))
			break
		}
	}
	return record, errs, nil
}
