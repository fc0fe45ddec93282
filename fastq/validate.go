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
	"io"

	"github.com/exascience/elqc/qc"
)

// ctxCheckInterval is how many records are processed between
// cancellation checks.
const ctxCheckInterval = 1024

// A Validator checks that every record is exactly four lines with a @
// name line, a + separator, matching sequence and quality lengths, and
// quality characters in the Phred+33 printable range. Errors are
// accumulated up to MaxErrors to bound memory on pathological files.
type Validator struct {
	MaxErrors int
}

// NewValidator returns a Validator with the default error cap.
func NewValidator() Validator {
	return Validator{MaxErrors: qc.DefaultMaxValidationErrs}
}

// Validate implements the qc.Validator contract for FASTQ streams.
func (v Validator) Validate(ctx context.Context, reader *bufio.Reader) (qc.ValidationResult, error) {
	var result qc.ValidationResult
	r := NewReader(reader)
	var records int64
	for {
		if records%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return result, err
			}
		}
		record, errs, err := r.Read()
		if err == io.EOF && len(record.Name) == 0 && len(errs) == 0 {
			break
		}
		records++
		result.Errors = append(result.Errors, errs...)
		if len(result.Errors) >= v.MaxErrors {
			result.Errors = result.Errors[:v.MaxErrors]
			break
		}
		if err != nil {
			if err != io.EOF {
				return result, err
			}
			break
		}
	}
	if records == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "no FASTQ records found")
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}
