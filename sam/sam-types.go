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

// Package sam implements structural validation and quality metrics for
// read alignment files in the SAM, BAM, and CRAM formats. CRAM input is
// converted to SAM text by an external samtools process. See
// http://samtools.github.io/hts-specs/SAMv1.pdf for the format
// definitions.
package sam

import (
	"strconv"

	"github.com/exascience/elqc/utils"
)

// A Reference is an entry in the sequence dictionary of an alignment
// file header.
type Reference struct {
	Name   string
	Length int64
}

// A Header represents the header section of a SAM or BAM file.
type Header struct {
	HD utils.StringMap
	SQ []utils.StringMap
	RG []utils.StringMap
	PG []utils.StringMap
	CO []string
}

// NewHeader allocates and initializes an empty header.
func NewHeader() *Header {
	return &Header{}
}

// References returns the sequence dictionary declared by the @SQ lines.
// Entries with a missing or unparsable LN field are skipped; the
// validator reports them separately.
func (hdr *Header) References() []Reference {
	references := make([]Reference, 0, len(hdr.SQ))
	for _, sq := range hdr.SQ {
		name, ok := sq["SN"]
		if !ok {
			continue
		}
		length, err := strconv.ParseInt(sq["LN"], 10, 64)
		if err != nil || length <= 0 {
			continue
		}
		references = append(references, Reference{Name: name, Length: length})
	}
	return references
}

// An Alignment is the mandatory fields of one read alignment record.
// Optional fields are not needed for quality control and are not
// retained.
type Alignment struct {
	QNAME string
	FLAG  uint16
	RNAME string
	POS   int32
	MAPQ  byte
	CIGAR string
	RNEXT string
	PNEXT int32
	TLEN  int32
	SEQ   string
	QUAL  string
}

// The FLAG bits defined by the SAM format.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsMultiple() bool      { return (aln.FLAG & Multiple) != 0 }
func (aln *Alignment) IsProper() bool        { return (aln.FLAG & Proper) != 0 }
func (aln *Alignment) IsUnmapped() bool      { return (aln.FLAG & Unmapped) != 0 }
func (aln *Alignment) IsNextUnmapped() bool  { return (aln.FLAG & NextUnmapped) != 0 }
func (aln *Alignment) IsReversed() bool      { return (aln.FLAG & Reversed) != 0 }
func (aln *Alignment) IsNextReversed() bool  { return (aln.FLAG & NextReversed) != 0 }
func (aln *Alignment) IsFirst() bool         { return (aln.FLAG & First) != 0 }
func (aln *Alignment) IsLast() bool          { return (aln.FLAG & Last) != 0 }
func (aln *Alignment) IsSecondary() bool     { return (aln.FLAG & Secondary) != 0 }
func (aln *Alignment) IsQCFailed() bool      { return (aln.FLAG & QCFailed) != 0 }
func (aln *Alignment) IsDuplicate() bool     { return (aln.FLAG & Duplicate) != 0 }
func (aln *Alignment) IsSupplementary() bool { return (aln.FLAG & Supplementary) != 0 }

func (aln *Alignment) FlagEvery(flag uint16) bool    { return (aln.FLAG & flag) == flag }
func (aln *Alignment) FlagSome(flag uint16) bool     { return (aln.FLAG & flag) != 0 }
func (aln *Alignment) FlagNotEvery(flag uint16) bool { return (aln.FLAG & flag) != flag }
func (aln *Alignment) FlagNotAny(flag uint16) bool   { return (aln.FLAG & flag) == 0 }

// IsPrimary tells whether the record is the primary line for its read.
func (aln *Alignment) IsPrimary() bool {
	return aln.FlagNotAny(Secondary | Supplementary)
}
