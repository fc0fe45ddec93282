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
	"fmt"
	"io"

	"github.com/exascience/elqc/qc"
)

const ctxCheckInterval = 1024

// flagProblems checks that the FLAG bits of a record are internally
// consistent.
func flagProblems(aln *Alignment, record int64) []string {
	var problems []string
	if !aln.IsMultiple() && aln.FlagSome(Proper|NextUnmapped|NextReversed|First|Last) {
		problems = append(problems, fmt.Sprintf("record %v: pairing flag bits set on an unpaired record", record))
	}
	if aln.IsNextUnmapped() && aln.PNEXT > 0 {
		problems = append(problems, fmt.Sprintf("record %v: mate unmapped combined with mate position %v", record, aln.PNEXT))
	}
	if aln.IsUnmapped() && aln.IsProper() {
		problems = append(problems, fmt.Sprintf("record %v: unmapped record flagged as properly paired", record))
	}
	if aln.IsSecondary() && aln.IsSupplementary() {
		problems = append(problems, fmt.Sprintf("record %v: record flagged as both secondary and supplementary", record))
	}
	return problems
}

// A Validator checks the structural well-formedness of SAM text or BAM
// binary streams: the header block parses, every record carries the
// mandatory fields, and FLAG bits are internally consistent. Binary
// selects the BAM decoder; CRAM input arrives as SAM text from
// samtools.
type Validator struct {
	MaxErrors int
	Binary    bool
}

// NewValidator returns a Validator with the default error cap.
func NewValidator(binary bool) Validator {
	return Validator{MaxErrors: qc.DefaultMaxValidationErrs, Binary: binary}
}

// Validate implements the qc.Validator contract for alignment streams.
func (v Validator) Validate(ctx context.Context, reader *bufio.Reader) (qc.ValidationResult, error) {
	var result qc.ValidationResult
	var records RecordReader
	var problems []string
	var err error
	if v.Binary {
		records, problems, err = NewBamReader(reader)
	} else {
		var r *Reader
		r, problems, err = NewReader(reader)
		records = r
	}
	result.Errors = append(result.Errors, problems...)
	if err != nil {
		if v.Binary {
			// An unusable BAM header is a structural defect of the
			// file, not an I/O failure of the pipeline.
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
		return result, err
	}
	for i := int64(0); ; i++ {
		if i%ctxCheckInterval == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
		}
		aln, problems, err := records.Read()
		if err == io.EOF {
			break
		}
		result.Errors = append(result.Errors, problems...)
		if aln != nil && len(problems) == 0 {
			result.Errors = append(result.Errors, flagProblems(aln, i+1)...)
		}
		if len(result.Errors) >= v.MaxErrors {
			result.Errors = result.Errors[:v.MaxErrors]
			break
		}
		if err != nil {
			if err != io.ErrUnexpectedEOF {
				return result, err
			}
			break
		}
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}
