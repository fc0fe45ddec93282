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

package vcf

import (
	"bufio"
	"context"
	"io"

	"github.com/exascience/elqc/qc"
)

const ctxCheckInterval = 1024

// A Validator checks the structural well-formedness of a VCF stream:
// the header section opens with a fileformat line and declares the
// fixed columns, every data row carries the declared number of columns,
// POS is numeric, and sample fields agree with the FORMAT column.
type Validator struct {
	MaxErrors int
}

// NewValidator returns a Validator with the default error cap.
func NewValidator() Validator {
	return Validator{MaxErrors: qc.DefaultMaxValidationErrs}
}

// Validate implements the qc.Validator contract for VCF streams.
func (v Validator) Validate(ctx context.Context, reader *bufio.Reader) (qc.ValidationResult, error) {
	var result qc.ValidationResult
	records, problems, err := NewReader(reader)
	result.Errors = append(result.Errors, problems...)
	if err != nil {
		return result, err
	}
	for i := int64(0); len(result.Errors) < v.MaxErrors; i++ {
		if i%ctxCheckInterval == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
		}
		_, problems, err := records.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}
		result.Errors = append(result.Errors, problems...)
	}
	if len(result.Errors) > v.MaxErrors {
		result.Errors = result.Errors[:v.MaxErrors]
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}
