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

// Package table implements structural validation and quality metrics
// for delimited tabular files such as TSV and CSV.
package table

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Delimiters are the cell separators the reader recognizes, in the
// order they are tried.
var Delimiters = []byte{'\t', ',', ';'}

// missingTokens are the cell values that count as missing.
var missingTokens = map[string]bool{
	"":    true,
	"NA":  true,
	"na":  true,
	"N/A": true,
	".":   true,
}

// Missing reports whether a cell value counts as missing.
func Missing(cell string) bool {
	return missingTokens[cell]
}

// Numeric reports whether a cell value parses as a number.
func Numeric(cell string) bool {
	_, err := strconv.ParseFloat(cell, 64)
	return err == nil
}

// A Reader reads rows of cells from a delimited tabular stream. The
// delimiter is sniffed from the first line, and the first row is taken
// as a header when none of its cells is numeric.
type Reader struct {
	reader    *bufio.Reader
	Delimiter byte
	Columns   []string
	HasHeader bool
	pending   []string
	line      int64
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

func sniffDelimiter(line string) (byte, bool) {
	best, count := byte(0), 0
	for _, delimiter := range Delimiters {
		if n := strings.Count(line, string(delimiter)); n > count {
			best, count = delimiter, n
		}
	}
	return best, count > 0
}

func looksLikeHeader(cells []string) bool {
	for _, cell := range cells {
		if Numeric(cell) || Missing(cell) {
			return false
		}
	}
	return true
}

// NewReader sniffs the delimiter and the header row from the first
// line, accumulating structural problems instead of aborting, and
// returns a reader positioned at the first data row.
func NewReader(reader *bufio.Reader) (*Reader, []string, error) {
	r := &Reader{reader: reader}
	line, err := readLine(reader)
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return r, []string{"empty table"}, nil
		}
		if err != io.EOF {
			return r, nil, err
		}
	}
	r.line++
	delimiter, ok := sniffDelimiter(line)
	if !ok {
		return r, []string{"no recognized cell delimiter in the first line"}, nil
	}
	r.Delimiter = delimiter
	cells := strings.Split(line, string(delimiter))
	var problems []string
	if looksLikeHeader(cells) {
		r.HasHeader = true
		r.Columns = cells
		seen := make(map[string]bool, len(cells))
		for i, name := range cells {
			if name == "" {
				problems = append(problems, fmt.Sprintf("empty header name in column %v", i+1))
			} else if seen[name] {
				problems = append(problems, fmt.Sprintf("duplicate header name %v", name))
			}
			seen[name] = true
		}
	} else {
		r.Columns = make([]string, len(cells))
		for i := range cells {
			r.Columns[i] = "column_" + strconv.Itoa(i+1)
		}
		r.pending = cells
	}
	return r, problems, nil
}

// Read parses the next data row. Structural problems are returned as
// descriptions; err is io.EOF at the end of the input.
func (r *Reader) Read() ([]string, []string, error) {
	if r.pending != nil {
		cells := r.pending
		r.pending = nil
		return cells, nil, nil
	}
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
	cells := strings.Split(line, string(r.Delimiter))
	var problems []string
	if len(cells) != len(r.Columns) {
		problems = append(problems, fmt.Sprintf("line %v: %v cells instead of %v", r.line, len(cells), len(r.Columns)))
	}
	return cells, problems, nil
}
