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

package formats

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"os/exec"
)

// A File is an opened input file together with its detected format and
// compression. Reader is positioned at the first content byte, with
// gzip/BGZF compression already stripped, and for CRAM input at the
// first byte of the SAM text produced by samtools. A File is owned by
// the pipeline run that opened it and must be closed on every exit
// path.
type File struct {
	Path        string
	Format      Format
	Compression Compression
	Reader      *bufio.Reader

	closers []io.Closer
	cmd     *exec.Cmd
}

// Open opens the named file and detects its format and compression.
func Open(name string) (*File, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReaderSize(file, peekLen)
	format, compression, err := Detect(reader, name)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return newFile(name, file, reader, format, compression)
}

// OpenAs opens the named file for a format and compression that were
// detected before, for example for the metrics pass after a separate
// validation pass. The detected format of a file never changes between
// passes.
func OpenAs(name string, format Format, compression Compression) (*File, error) {
	if format == Cram {
		return openCram(name)
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return newFile(name, file, bufio.NewReaderSize(file, peekLen), format, compression)
}

func newFile(name string, file *os.File, reader *bufio.Reader, format Format, compression Compression) (*File, error) {
	if format == Cram {
		_ = file.Close()
		return openCram(name)
	}
	f := &File{
		Path:        name,
		Format:      format,
		Compression: compression,
		closers:     []io.Closer{file},
	}
	if compression == Plain {
		f.Reader = reader
		return f, nil
	}
	// The reader has only been peeked at, so the gzip decompressor
	// still sees the stream from the first byte.
	gz, err := gzip.NewReader(reader)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	f.closers = append([]io.Closer{gz}, f.closers...)
	f.Reader = bufio.NewReaderSize(gz, 1<<16)
	return f, nil
}

// openCram pipes a CRAM file through samtools view, the same way elprep
// reads CRAM input, because there is no native Go CRAM codec. The
// resulting stream is SAM text including the header.
func openCram(name string) (*File, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, err
	}
	cmd := exec.Command("samtools", "view", "-h", name)
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &File{
		Path:        name,
		Format:      Cram,
		Compression: Plain,
		Reader:      bufio.NewReader(outPipe),
		closers:     []io.Closer{outPipe},
		cmd:         cmd,
	}, nil
}

// Close releases the underlying file, decompressor, and samtools
// process, if any.
func (f *File) Close() error {
	var err error
	for _, closer := range f.closers {
		if nerr := closer.Close(); err == nil {
			err = nerr
		}
	}
	f.closers = nil
	if f.cmd != nil {
		nerr := f.cmd.Wait()
		f.cmd = nil
		if err == nil {
			err = nerr
		}
	}
	return err
}
