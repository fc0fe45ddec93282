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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// bamMagic is the magic string for the BAM format. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
const bamMagic = "BAM\x01"

// BAM 4-bit sequence encoding and CIGAR operation order. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
const (
	bamNibbles         = "=ACMGRSVTWYHKDBN"
	bamCigarOperations = "MIDNSHP=X"
)

// fixedRecordSize is the size of the fixed-width portion of a BAM
// alignment record, after the block_size field.
const fixedRecordSize = 32

// A BamReader reads alignment records from the decompressed content of
// a BAM file. The reader accepts truncated streams gracefully: a record
// cut off by the end of the stream is reported as a structural error
// instead of a panic, because truncation is exactly what validation is
// for.
type BamReader struct {
	reader     *bufio.Reader
	header     *Header
	references []Reference
	record     int64
	buffer     []byte
}

// NewBamReader parses the BAM magic, the embedded SAM header text, and
// the binary sequence dictionary. A malformed or truncated header makes
// the stream unusable and is returned as an error; the caller reports
// it as a structural failure.
func NewBamReader(reader *bufio.Reader) (*BamReader, []string, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, nil, fmt.Errorf("truncated BAM stream: %v", err)
	}
	if string(magic) != bamMagic {
		return nil, nil, fmt.Errorf("invalid BAM magic %q", magic)
	}
	var lText int32
	if err := binary.Read(reader, binary.LittleEndian, &lText); err != nil {
		return nil, nil, fmt.Errorf("truncated BAM header: %v", err)
	}
	if lText < 0 {
		return nil, nil, fmt.Errorf("negative BAM header text length %v", lText)
	}
	text := make([]byte, lText)
	if _, err := io.ReadFull(reader, text); err != nil {
		return nil, nil, fmt.Errorf("truncated BAM header: %v", err)
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	hdr, problems, err := ParseHeader(bufio.NewReader(bytes.NewReader(text)))
	if err != nil {
		return nil, problems, err
	}
	references, err := readBamReferences(reader)
	if err != nil {
		return nil, problems, err
	}
	return &BamReader{reader: reader, header: hdr, references: references}, problems, nil
}

func readBamReferences(reader io.Reader) ([]Reference, error) {
	var nRef int32
	if err := binary.Read(reader, binary.LittleEndian, &nRef); err != nil {
		return nil, fmt.Errorf("truncated BAM sequence dictionary: %v", err)
	}
	if nRef < 0 {
		return nil, fmt.Errorf("negative BAM reference count %v", nRef)
	}
	references := make([]Reference, 0, nRef)
	for i := int32(0); i < nRef; i++ {
		var lName int32
		if err := binary.Read(reader, binary.LittleEndian, &lName); err != nil {
			return nil, fmt.Errorf("truncated BAM sequence dictionary: %v", err)
		}
		if lName < 1 {
			return nil, fmt.Errorf("invalid BAM reference name length %v", lName)
		}
		name := make([]byte, lName)
		if _, err := io.ReadFull(reader, name); err != nil {
			return nil, fmt.Errorf("truncated BAM sequence dictionary: %v", err)
		}
		var lRef int32
		if err := binary.Read(reader, binary.LittleEndian, &lRef); err != nil {
			return nil, fmt.Errorf("truncated BAM sequence dictionary: %v", err)
		}
		references = append(references, Reference{Name: string(name[:lName-1]), Length: int64(lRef)})
	}
	return references, nil
}

// Header returns the header parsed from the BAM header text.
func (r *BamReader) Header() *Header {
	return r.header
}

// References returns the binary sequence dictionary.
func (r *BamReader) References() []Reference {
	return r.references
}

func (r *BamReader) refName(refID int32) (string, bool) {
	if refID == -1 {
		return "*", true
	}
	if refID < 0 || int(refID) >= len(r.references) {
		return "*", false
	}
	return r.references[refID].Name, true
}

// Read decodes the next alignment record. Envelope violations and
// truncation are returned as structural error descriptions; err is
// io.EOF at the clean end of the stream and io.ErrUnexpectedEOF when a
// record is cut off.
func (r *BamReader) Read() (*Alignment, []string, error) {
	var blockSize int32
	if err := binary.Read(r.reader, binary.LittleEndian, &blockSize); err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		r.record++
		return nil, []string{fmt.Sprintf("record %v: truncated BAM record", r.record)}, io.ErrUnexpectedEOF
	}
	r.record++
	if blockSize < fixedRecordSize {
		return nil, []string{fmt.Sprintf("record %v: BAM block size %v below the fixed record size", r.record, blockSize)}, io.ErrUnexpectedEOF
	}
	if cap(r.buffer) < int(blockSize) {
		r.buffer = make([]byte, blockSize)
	}
	record := r.buffer[:blockSize]
	if _, err := io.ReadFull(r.reader, record); err != nil {
		return nil, []string{fmt.Sprintf("record %v: truncated BAM record", r.record)}, io.ErrUnexpectedEOF
	}
	refID := int32(binary.LittleEndian.Uint32(record[0:4]))
	pos := int32(binary.LittleEndian.Uint32(record[4:8]))
	lReadName := int(record[8])
	mapq := record[9]
	nCigarOp := int(binary.LittleEndian.Uint16(record[12:14]))
	flag := binary.LittleEndian.Uint16(record[14:16])
	lSeq := int(int32(binary.LittleEndian.Uint32(record[16:20])))
	nextRefID := int32(binary.LittleEndian.Uint32(record[20:24]))
	nextPos := int32(binary.LittleEndian.Uint32(record[24:28]))
	tlen := int32(binary.LittleEndian.Uint32(record[28:32]))
	var problems []string
	if lReadName < 1 {
		return nil, []string{fmt.Sprintf("record %v: BAM read name length %v below 1", r.record, lReadName)}, io.ErrUnexpectedEOF
	}
	if lSeq < 0 {
		return nil, []string{fmt.Sprintf("record %v: negative BAM sequence length %v", r.record, lSeq)}, io.ErrUnexpectedEOF
	}
	end := fixedRecordSize + lReadName + 4*nCigarOp + (lSeq+1)/2 + lSeq
	if end > int(blockSize) {
		return nil, []string{fmt.Sprintf("record %v: BAM record fields exceed block size %v", r.record, blockSize)}, io.ErrUnexpectedEOF
	}
	aln := &Alignment{
		QNAME: string(record[fixedRecordSize : fixedRecordSize+lReadName-1]),
		FLAG:  flag,
		POS:   pos + 1,
		MAPQ:  mapq,
		PNEXT: nextPos + 1,
		TLEN:  tlen,
	}
	var ok bool
	if aln.RNAME, ok = r.refName(refID); !ok {
		problems = append(problems, fmt.Sprintf("record %v: BAM reference id %v outside the sequence dictionary", r.record, refID))
	}
	if aln.RNEXT, ok = r.refName(nextRefID); !ok {
		problems = append(problems, fmt.Sprintf("record %v: BAM mate reference id %v outside the sequence dictionary", r.record, nextRefID))
	}
	cigarStart := fixedRecordSize + lReadName
	aln.CIGAR, ok = decodeCigar(record[cigarStart : cigarStart+4*nCigarOp])
	if !ok {
		problems = append(problems, fmt.Sprintf("record %v: invalid BAM CIGAR operation", r.record))
	}
	seqStart := cigarStart + 4*nCigarOp
	aln.SEQ = decodeSeq(record[seqStart:seqStart+(lSeq+1)/2], lSeq)
	qualStart := seqStart + (lSeq+1)/2
	aln.QUAL = decodeQual(record[qualStart : qualStart+lSeq])
	return aln, problems, nil
}

func decodeCigar(data []byte) (string, bool) {
	if len(data) == 0 {
		return "*", true
	}
	var cigar []byte
	ok := true
	for i := 0; i+4 <= len(data); i += 4 {
		value := binary.LittleEndian.Uint32(data[i : i+4])
		op := value & 0xf
		if op >= uint32(len(bamCigarOperations)) {
			ok = false
			continue
		}
		cigar = appendUint(cigar, value>>4)
		cigar = append(cigar, bamCigarOperations[op])
	}
	return string(cigar), ok
}

func appendUint(buf []byte, value uint32) []byte {
	if value == 0 {
		return append(buf, '0')
	}
	var digits [10]byte
	i := len(digits)
	for value > 0 {
		i--
		digits[i] = byte('0' + value%10)
		value /= 10
	}
	return append(buf, digits[i:]...)
}

func decodeSeq(data []byte, lSeq int) string {
	if lSeq == 0 {
		return "*"
	}
	seq := make([]byte, lSeq)
	for i := 0; i < lSeq; i++ {
		nibble := data[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		seq[i] = bamNibbles[nibble&0xf]
	}
	return string(seq)
}

func decodeQual(data []byte) string {
	if len(data) == 0 || data[0] == 0xff {
		return "*"
	}
	qual := make([]byte, len(data))
	for i, q := range data {
		if q > 93 {
			q = 93
		}
		qual[i] = q + 33
	}
	return string(qual)
}
