// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package gzip implements writing of gzip format compressed files as
// specified in RFC 1952, on top of the DEFLATE compressor.
package gzip

import (
	"hash/crc32"
	"io"

	"github.com/intel/fastzip/compress/flate"
)

// Compression level constants, re-exported from the flate package.
const (
	NoCompression      = flate.NoCompression
	BestSpeed          = flate.BestSpeed
	BestCompression    = flate.BestCompression
	DefaultCompression = flate.DefaultCompression
	HuffmanOnly        = flate.HuffmanOnly
)

// The fixed 10-byte member header: magic, method 8 (deflate), no
// flags, zero mtime, no extra flags, OS 3 (Unix).
var header = [10]byte{0x1f, 0x8b, 8, 0, 0, 0, 0, 0, 0, 3}

// Writer compresses written data into a gzip stream: the fixed member
// header, the DEFLATE body and the CRC-32/ISIZE trailer.
type Writer struct {
	w           io.Writer
	fw          *flate.Writer
	digest      uint32
	size        uint32
	wroteHeader bool
	closed      bool
	err         error
}

// NewWriter creates a gzip Writer at the default compression level.
func NewWriter(w io.Writer) *Writer {
	z, _ := NewWriterLevel(w, DefaultCompression)
	return z
}

// NewWriterLevel creates a gzip Writer at the given compression level.
func NewWriterLevel(w io.Writer, level int) (*Writer, error) {
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, fw: fw}, nil
}

func (z *Writer) writeHeader() error {
	z.wroteHeader = true
	if _, err := z.w.Write(header[:]); err != nil {
		z.err = err
	}
	return z.err
}

// Write compresses p, updating the running CRC-32 and uncompressed
// size. The header goes out before the first compressed byte.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if !z.wroteHeader {
		if err := z.writeHeader(); err != nil {
			return 0, err
		}
	}
	z.size += uint32(len(p))
	z.digest = crc32.Update(z.digest, crc32.IEEETable, p)
	n, err := z.fw.Write(p)
	if err != nil {
		z.err = err
	}
	return n, z.err
}

// Flush pushes everything written so far through to the underlying
// writer as a decodable prefix. It does not complete the stream.
func (z *Writer) Flush() error {
	if z.err != nil {
		return z.err
	}
	if !z.wroteHeader {
		if err := z.writeHeader(); err != nil {
			return err
		}
	}
	z.err = z.fw.Flush()
	return z.err
}

// Close finishes the DEFLATE body and writes the 8-byte trailer: the
// CRC-32 of the uncompressed data and its length mod 2^32, both
// little-endian. It does not close the underlying writer.
func (z *Writer) Close() error {
	if z.err != nil {
		return z.err
	}
	if z.closed {
		return nil
	}
	z.closed = true
	if !z.wroteHeader {
		if err := z.writeHeader(); err != nil {
			return err
		}
	}
	if err := z.fw.Close(); err != nil {
		z.err = err
		return err
	}
	var trailer [8]byte
	le32(trailer[0:4], z.digest)
	le32(trailer[4:8], z.size)
	if _, err := z.w.Write(trailer[:]); err != nil {
		z.err = err
	}
	return z.err
}

// Reset discards the Writer's state and starts a new gzip stream on w,
// reusing the internal compressor.
func (z *Writer) Reset(w io.Writer) {
	z.w = w
	z.fw.Reset(w)
	z.digest = 0
	z.size = 0
	z.wroteHeader = false
	z.closed = false
	z.err = nil
}

func le32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
