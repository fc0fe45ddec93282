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
	"fmt"
	"io"
	"strconv"

	"github.com/exascience/elqc/utils"
)

// A RecordReader yields alignment records from a SAM text or BAM binary
// stream. Structural problems with a record are returned as
// descriptions so the caller can accumulate them and keep scanning;
// err is io.EOF at the clean end of the stream.
type RecordReader interface {
	Header() *Header
	Read() (*Alignment, []string, error)
}

// ParseHeaderLine parses one tab-separated TAG:value header line body.
func (sc *StringScanner) ParseHeaderLine() (utils.StringMap, []string) {
	record := make(utils.StringMap)
	var problems []string
	for sc.Len() > 0 {
		field, _ := sc.readUntil('\t')
		if len(field) < 3 || field[2] != ':' {
			problems = append(problems, fmt.Sprintf("invalid header field %v", field))
			continue
		}
		if !record.SetUniqueEntry(field[:2], field[3:]) {
			problems = append(problems, fmt.Sprintf("duplicate field tag %v in a SAM header line", field[:2]))
		}
	}
	return record, problems
}

// ParseHeader parses the header section of a SAM text stream. It stops
// at the first non-@ line without consuming it. Structural problems
// are accumulated rather than aborting, so validation can report all
// of them; err is non-nil only for I/O failures.
func ParseHeader(reader *bufio.Reader) (hdr *Header, problems []string, err error) {
	hdr = NewHeader()
	var sc StringScanner
	for first := true; ; first = false {
		switch data, err := reader.Peek(1); {
		case err == io.EOF:
			return hdr, problems, nil
		case err != nil:
			return hdr, problems, err
		case data[0] != '@':
			return hdr, problems, nil
		}
		line, err := reader.ReadString('\n')
		switch err {
		case nil:
			line = line[:len(line)-1]
		case io.EOF:
		default:
			return hdr, problems, err
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) < 4 || line[3] != '\t' {
			if len(line) >= 3 && line[:3] == "@CO" {
				hdr.CO = append(hdr.CO, "")
				continue
			}
			problems = append(problems, fmt.Sprintf("malformed SAM header line %v", line))
			continue
		}
		sc.Reset(line[4:])
		code := line[:3]
		record, lineProblems := sc.ParseHeaderLine()
		problems = append(problems, lineProblems...)
		switch code {
		case "@HD":
			if !first {
				problems = append(problems, "@HD line not in first line of the SAM header")
			}
			hdr.HD = record
		case "@SQ":
			if sn, ok := record["SN"]; !ok {
				problems = append(problems, "@SQ line without an SN field")
			} else if utils.Find(hdr.SQ, func(entry utils.StringMap) bool { return entry["SN"] == sn }) >= 0 {
				problems = append(problems, fmt.Sprintf("duplicate @SQ line for sequence name %v", sn))
			}
			if _, err := strconv.ParseInt(record["LN"], 10, 64); err != nil {
				problems = append(problems, fmt.Sprintf("@SQ line with a missing or invalid LN field for %v", record["SN"]))
			}
			hdr.SQ = append(hdr.SQ, record)
		case "@RG":
			hdr.RG = append(hdr.RG, record)
		case "@PG":
			hdr.PG = append(hdr.PG, record)
		case "@CO":
			hdr.CO = append(hdr.CO, line[4:])
		default:
			problems = append(problems, fmt.Sprintf("unknown SAM record type code %v", code))
		}
	}
}

// A Reader reads alignment records from a SAM text stream.
type Reader struct {
	reader *bufio.Reader
	header *Header
	line   int64
}

// NewReader parses the header of a SAM text stream and returns a reader
// positioned at the first alignment line, together with any structural
// problems in the header.
func NewReader(reader *bufio.Reader) (*Reader, []string, error) {
	hdr, problems, err := ParseHeader(reader)
	if err != nil {
		return nil, problems, err
	}
	return &Reader{reader: reader, header: hdr}, problems, nil
}

// Header returns the parsed header.
func (r *Reader) Header() *Header {
	return r.header
}

// Read parses the next alignment line.
func (r *Reader) Read() (*Alignment, []string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return nil, nil, err
		}
		if len(line) == 0 {
			return nil, nil, io.EOF
		}
	} else {
		line = line[:len(line)-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	r.line++
	if len(line) == 0 {
		return nil, []string{fmt.Sprintf("alignment %v: empty line", r.line)}, nil
	}
	aln, problems := ParseAlignmentLine(line, r.line)
	return aln, problems, nil
}

// mandatoryFields is the number of mandatory fields in a SAM alignment
// line.
const mandatoryFields = 11

// ParseAlignmentLine parses the mandatory fields of one SAM alignment
// line, accumulating structural problems instead of aborting at the
// first one.
func ParseAlignmentLine(line string, lineno int64) (*Alignment, []string) {
	var sc StringScanner
	sc.Reset(line)
	fields := make([]string, 0, mandatoryFields)
	for sc.Len() > 0 && len(fields) < mandatoryFields {
		field, _ := sc.readUntil('\t')
		fields = append(fields, field)
	}
	if len(fields) < mandatoryFields {
		return nil, []string{fmt.Sprintf("alignment %v: %v mandatory fields instead of %v", lineno, len(fields), mandatoryFields)}
	}
	var problems []string
	numeric := func(name, value string, bitSize int) int64 {
		parsed, err := strconv.ParseInt(value, 10, bitSize)
		if err != nil {
			problems = append(problems, fmt.Sprintf("alignment %v: invalid %v field %v", lineno, name, value))
		}
		return parsed
	}
	aln := &Alignment{
		QNAME: fields[0],
		FLAG:  uint16(numeric("FLAG", fields[1], 17)),
		RNAME: fields[2],
		POS:   int32(numeric("POS", fields[3], 32)),
		MAPQ:  byte(numeric("MAPQ", fields[4], 9)),
		CIGAR: fields[5],
		RNEXT: fields[6],
		PNEXT: int32(numeric("PNEXT", fields[7], 32)),
		TLEN:  int32(numeric("TLEN", fields[8], 32)),
		SEQ:   fields[9],
		QUAL:  fields[10],
	}
	if aln.QNAME == "" {
		problems = append(problems, fmt.Sprintf("alignment %v: empty QNAME field", lineno))
	}
	if aln.POS < 0 {
		problems = append(problems, fmt.Sprintf("alignment %v: negative POS field", lineno))
	}
	if aln.SEQ != "*" && aln.QUAL != "*" && len(aln.SEQ) != len(aln.QUAL) {
		problems = append(problems, fmt.Sprintf("alignment %v: SEQ length %v does not match QUAL length %v",
			lineno, len(aln.SEQ), len(aln.QUAL)))
	}
	return aln, problems
}
