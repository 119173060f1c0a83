// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package deflate

import "github.com/intel/fastzip/compress/flate/internal/huffman"

const (
	maxNumLit       = 286
	offsetCodeCount = 30
	// Count of symbols in the code length alphabet.
	codegenCodeCount = 19
)

var (
	fixedLiteralEncoding = generateFixedLiteralEncoding()
	fixedOffsetEncoding  = generateFixedOffsetEncoding()
	// huffOffset carries the one-symbol distance code used by
	// literal-only dynamic blocks.
	huffOffset = generateHuffOffset()
)

// generateFixedLiteralEncoding builds the RFC 1951 3.2.6 literal/length
// code: 0-143 in 8 bits from 48, 144-255 in 9 bits from 400, 256-279 in
// 7 bits from 0, 280-285 in 8 bits from 192. The table stops at symbol
// 285; the unused symbols 286 and 287 are not built.
func generateFixedLiteralEncoding() *huffman.Encoder {
	h := huffman.NewEncoder(maxNumLit)
	var ch uint16
	for ch = 0; ch < maxNumLit; ch++ {
		var bits uint16
		var size uint16
		switch {
		case ch < 144:
			bits = ch + 48
			size = 8
		case ch < 256:
			bits = ch + 400 - 144
			size = 9
		case ch < 280:
			bits = ch - 256
			size = 7
		default:
			bits = ch + 192 - 280
			size = 8
		}
		h.Codes[ch] = huffman.Code{Code: huffman.Reverse(bits, size), Len: size}
	}
	return h
}

func generateFixedOffsetEncoding() *huffman.Encoder {
	h := huffman.NewEncoder(offsetCodeCount)
	for ch := uint16(0); ch < offsetCodeCount; ch++ {
		h.Codes[ch] = huffman.Code{Code: huffman.Reverse(ch, 5), Len: 5}
	}
	return h
}

func generateHuffOffset() *huffman.Encoder {
	w := huffman.NewEncoder(offsetCodeCount)
	var offsetFreq [offsetCodeCount]int32
	offsetFreq[0] = 1
	w.Generate(offsetFreq[:], 15)
	return w
}
