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

package qc

import "fmt"

// ErrorKind enumerates the pipeline error classes. All kinds except
// ThresholdConfig are per-file: they are recorded in the owning file's
// report and never abort a batch. ThresholdConfig aborts at startup,
// because no file can be classified without a valid profile.
type ErrorKind int

// The pipeline error kinds.
const (
	// UnsupportedFormat: detection cannot classify the input.
	UnsupportedFormat ErrorKind = iota

	// ValidationFailure: structural errors exceed the configured
	// tolerance.
	ValidationFailure

	// MetricComputationError: a metric domain is violated beyond the
	// skip tolerance.
	MetricComputationError

	// ThresholdConfig: the threshold profile references an unknown
	// format or a malformed bound.
	ThresholdConfig

	// Timeout: the per-file deadline expired.
	Timeout
)

var errorKindNames = []string{
	"unsupported-format",
	"validation-failure",
	"metric-computation-error",
	"threshold-config-error",
	"timeout",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return "unknown"
	}
	return errorKindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for i, name := range errorKindNames {
		if name == string(text) {
			*k = ErrorKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %v", string(text))
}

// A PipelineError is a typed error produced by a pipeline stage, so a
// caller can inspect which stage failed without parsing message
// strings.
type PipelineError struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

// NewError creates a PipelineError of the given kind with a formatted
// message.
func NewError(kind ErrorKind, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsPipelineError returns err as a PipelineError, wrapping it in
// fallback if it is not one already.
func AsPipelineError(err error, fallback ErrorKind) *PipelineError {
	if perr, ok := err.(*PipelineError); ok {
		return perr
	}
	return &PipelineError{Kind: fallback, Message: err.Error()}
}
