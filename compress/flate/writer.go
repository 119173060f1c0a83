// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package flate implements DEFLATE compressed data encoding as
// described in RFC 1951. Only compression is provided; any RFC 1951
// decoder can read the output.
package flate

import (
	"io"

	"github.com/intel/fastzip/compress/flate/internal/deflate"
)

// Compression level constants.
const (
	NoCompression      = deflate.NoCompression      // Store only, no compression
	BestSpeed          = deflate.BestSpeed          // Level 4: fastest match finding
	BestCompression    = deflate.BestCompression    // Level 9: best compression ratio
	DefaultCompression = deflate.DefaultCompression // Alias for level 6
	HuffmanOnly        = deflate.HuffmanOnly        // Entropy coding without matches
)

// Writer compresses written data into a raw DEFLATE stream.
type Writer = deflate.Writer

// NewWriter creates a compressor writing a raw DEFLATE stream to under.
// Levels 4 (BestSpeed) through 9 (BestCompression) select the match
// finder effort; NoCompression and HuffmanOnly select the stored-only
// and literal-only modes.
func NewWriter(under io.Writer, level int) (w *Writer, err error) {
	return deflate.NewWriter(under, level)
}
