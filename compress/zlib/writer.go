// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package zlib implements writing of zlib format compressed data as
// specified in RFC 1950, on top of the DEFLATE compressor.
package zlib

import (
	"hash"
	"hash/adler32"
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

// The fixed 2-byte stream header: CMF 0x78 (deflate, 32K window) and
// FLG 0x9C (FLEVEL 2, no preset dictionary, valid FCHECK).
var header = [2]byte{0x78, 0x9c}

// Writer compresses written data into a zlib stream: the 2-byte
// header, the DEFLATE body and the big-endian Adler-32 trailer.
type Writer struct {
	w           io.Writer
	fw          *flate.Writer
	digest      hash.Hash32
	wroteHeader bool
	closed      bool
	err         error
}

// NewWriter creates a zlib Writer at the default compression level.
func NewWriter(w io.Writer) *Writer {
	z, _ := NewWriterLevel(w, DefaultCompression)
	return z
}

// NewWriterLevel creates a zlib Writer at the given compression level.
func NewWriterLevel(w io.Writer, level int) (*Writer, error) {
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, fw: fw, digest: adler32.New()}, nil
}

func (z *Writer) writeHeader() error {
	z.wroteHeader = true
	if _, err := z.w.Write(header[:]); err != nil {
		z.err = err
	}
	return z.err
}

// Write compresses p, updating the running Adler-32. The header goes
// out before the first compressed byte.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if !z.wroteHeader {
		if err := z.writeHeader(); err != nil {
			return 0, err
		}
	}
	z.digest.Write(p)
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

// Close finishes the DEFLATE body and writes the Adler-32 of the
// uncompressed data, big-endian. It does not close the underlying
// writer.
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
	sum := z.digest.Sum32()
	trailer := [4]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	if _, err := z.w.Write(trailer[:]); err != nil {
		z.err = err
	}
	return z.err
}

// Reset discards the Writer's state and starts a new zlib stream on w,
// reusing the internal compressor.
func (z *Writer) Reset(w io.Writer) {
	z.w = w
	z.fw.Reset(w)
	z.digest.Reset()
	z.wroteHeader = false
	z.closed = false
	z.err = nil
}
