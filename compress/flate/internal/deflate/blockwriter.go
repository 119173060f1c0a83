// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package deflate

import (
	"io"

	"github.com/intel/fastzip/compress/flate/internal/huffman"
)

const (
	// The code length RLE alphabet: 16 copies the previous length 3-6
	// times, 17 and 18 encode zero runs of 3-10 and 11-138.
	numRepeat3x6     = 16
	zeroRepeat3x10   = 17
	zeroRepeat11x138 = 18

	// badCode terminates the codegen scratch buffer.
	badCode = 255

	maxStoreBlockSize = 65535
)

// The odd order in which the code length code lengths are transmitted.
var codegenOrder = [codegenCodeCount]uint32{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// blockWriter turns one batch of tokens into a complete DEFLATE block.
// It accumulates per-block symbol frequencies, prices the stored, fixed
// and dynamic encodings, and emits the cheapest through its bit sink.
// All tables are reset per block, never reallocated.
type blockWriter struct {
	b bitBuf

	literalFreq [maxNumLit]int32
	offsetFreq  [offsetCodeCount]int32
	codegenFreq [codegenCodeCount]int32
	// RLE-compressed code lengths of both data alphabets, with 16/17/18
	// extra values interleaved and a badCode terminator.
	codegen [maxNumLit + offsetCodeCount + 1]uint8

	literalEncoding *huffman.Encoder
	offsetEncoding  *huffman.Encoder
	codegenEncoding *huffman.Encoder
}

func newBlockWriter(w io.Writer) *blockWriter {
	bw := &blockWriter{
		literalEncoding: huffman.NewEncoder(maxNumLit),
		offsetEncoding:  huffman.NewEncoder(offsetCodeCount),
		codegenEncoding: huffman.NewEncoder(codegenCodeCount),
	}
	bw.b.reset(w)
	return bw
}

func (w *blockWriter) reset(dst io.Writer) {
	w.b.reset(dst)
}

func (w *blockWriter) err() error { return w.b.err }

// indexTokens counts token symbol frequencies and returns the used
// alphabet sizes: trailing zero frequencies are dropped, keeping at
// least 257 literal/length symbols (the end-of-block symbol is always
// counted) and one distance symbol.
func (w *blockWriter) indexTokens(tokens []token) (numLiterals, numOffsets int) {
	for i := range w.literalFreq {
		w.literalFreq[i] = 0
	}
	for i := range w.offsetFreq {
		w.offsetFreq[i] = 0
	}
	for _, t := range tokens {
		if t.isLiteral() {
			w.literalFreq[t.literal()]++
			continue
		}
		w.literalFreq[lengthCodesStart+lengthCode(t.length())]++
		w.offsetFreq[offsetCode(t.offset())]++
	}
	w.literalFreq[endBlockMarker]++

	numLiterals = len(w.literalFreq)
	for w.literalFreq[numLiterals-1] == 0 {
		numLiterals--
	}
	numOffsets = len(w.offsetFreq)
	for numOffsets > 0 && w.offsetFreq[numOffsets-1] == 0 {
		numOffsets--
	}
	if numOffsets == 0 {
		// Everything is a literal; the distance code still needs one
		// symbol to be transmittable.
		w.offsetFreq[0] = 1
		numOffsets = 1
	}
	return
}

// extraBitSize sums the length and distance extra bits the token batch
// will carry, which is identical for the fixed and dynamic encodings.
func (w *blockWriter) extraBitSize(numLiterals, numOffsets int) int {
	total := 0
	for lengthCode := lengthCodesStart + 8; lengthCode < numLiterals; lengthCode++ {
		// The first eight length codes have no extra bits.
		total += int(w.literalFreq[lengthCode]) * int(lengthExtraBits[lengthCode-lengthCodesStart])
	}
	for offsetCode := 4; offsetCode < numOffsets; offsetCode++ {
		// The first four distance codes have no extra bits.
		total += int(w.offsetFreq[offsetCode]) * int(offsetExtraBits[offsetCode])
	}
	return total
}

// generateCodegen RLE-encodes the concatenated literal/length and
// distance code lengths into the codegen buffer over the 19-symbol code
// length alphabet, counting alphabet frequencies as it goes. The result
// is terminated by badCode.
func (w *blockWriter) generateCodegen(numLiterals, numOffsets int, litEnc, offEnc *huffman.Encoder) {
	for i := range w.codegenFreq {
		w.codegenFreq[i] = 0
	}
	codegen := w.codegen[:]
	cgnl := codegen[:numLiterals]
	for i := range cgnl {
		cgnl[i] = uint8(litEnc.Codes[i].Len)
	}
	cgnl = codegen[numLiterals : numLiterals+numOffsets]
	for i := range cgnl {
		cgnl[i] = uint8(offEnc.Codes[i].Len)
	}
	codegen[numLiterals+numOffsets] = badCode

	size := codegen[0]
	count := 1
	outIndex := 0
	for inIndex := 1; size != badCode; inIndex++ {
		// We have seen count copies of size that have not yet had
		// output generated for them.
		nextSize := codegen[inIndex]
		if nextSize == size {
			count++
			continue
		}
		if size != 0 {
			codegen[outIndex] = size
			outIndex++
			w.codegenFreq[size]++
			count--
			for count >= 3 {
				n := 6
				if n > count {
					n = count
				}
				codegen[outIndex] = numRepeat3x6
				outIndex++
				codegen[outIndex] = uint8(n - 3)
				outIndex++
				w.codegenFreq[numRepeat3x6]++
				count -= n
			}
		} else {
			for count >= 11 {
				n := 138
				if n > count {
					n = count
				}
				codegen[outIndex] = zeroRepeat11x138
				outIndex++
				codegen[outIndex] = uint8(n - 11)
				outIndex++
				w.codegenFreq[zeroRepeat11x138]++
				count -= n
			}
			if count >= 3 {
				codegen[outIndex] = zeroRepeat3x10
				outIndex++
				codegen[outIndex] = uint8(count - 3)
				outIndex++
				w.codegenFreq[zeroRepeat3x10]++
				count = 0
			}
		}
		count--
		for ; count >= 0; count-- {
			codegen[outIndex] = size
			outIndex++
			w.codegenFreq[size]++
		}
		size = nextSize
		count = 1
	}
	codegen[outIndex] = badCode
}

// dynamicSize prices the dynamic encoding in bits, including the block
// header, and returns the HCLEN symbol count to transmit: the smallest
// count >= 4 covering every non-zero code length code in permuted
// order.
func (w *blockWriter) dynamicSize(litEnc, offEnc *huffman.Encoder, extraBits int) (size, numCodegens int) {
	numCodegens = len(w.codegenFreq)
	for numCodegens > 4 && w.codegenFreq[codegenOrder[numCodegens-1]] == 0 {
		numCodegens--
	}
	header := 3 + 5 + 5 + 4 + (3 * numCodegens) +
		w.codegenEncoding.BitLength(w.codegenFreq[:]) +
		int(w.codegenFreq[numRepeat3x6])*2 +
		int(w.codegenFreq[zeroRepeat3x10])*3 +
		int(w.codegenFreq[zeroRepeat11x138])*7
	size = header +
		litEnc.BitLength(w.literalFreq[:]) +
		offEnc.BitLength(w.offsetFreq[:]) +
		extraBits
	return size, numCodegens
}

// fixedSize prices the fixed-table encoding in bits.
func (w *blockWriter) fixedSize(extraBits int) int {
	return 3 +
		fixedLiteralEncoding.BitLength(w.literalFreq[:]) +
		fixedOffsetEncoding.BitLength(w.offsetFreq[:]) +
		extraBits
}

// storedSize prices a stored block. A nil input means the raw bytes are
// no longer available; oversized input is not storable.
func (w *blockWriter) storedSize(in []byte) (size int, storable bool) {
	if in == nil {
		return 0, false
	}
	if len(in) <= maxStoreBlockSize {
		return (len(in) + 5) * 8, true
	}
	return 0, false
}

func (w *blockWriter) writeStoredHeader(length int, isEof bool) {
	var flag uint32
	if isEof {
		flag = 1
	}
	w.b.writeBits(flag, 3)
	w.b.flush()
	w.b.writeBits(uint32(length), 16)
	w.b.writeBits(uint32(^uint16(length)), 16)
}

func (w *blockWriter) writeFixedHeader(isEof bool) {
	var value uint32 = 2
	if isEof {
		value = 3
	}
	w.b.writeBits(value, 3)
}

func (w *blockWriter) writeDynamicHeader(numLiterals, numOffsets, numCodegens int, isEof bool) {
	var firstBits uint32 = 4
	if isEof {
		firstBits = 5
	}
	w.b.writeBits(firstBits, 3)
	w.b.writeBits(uint32(numLiterals-257), 5)
	w.b.writeBits(uint32(numOffsets-1), 5)
	w.b.writeBits(uint32(numCodegens-4), 4)

	for i := 0; i < numCodegens; i++ {
		value := uint32(w.codegenEncoding.Codes[codegenOrder[i]].Len)
		w.b.writeBits(value, 3)
	}

	i := 0
	for {
		codeWord := uint32(w.codegen[i])
		i++
		if codeWord == badCode {
			break
		}
		w.b.writeCode(w.codegenEncoding.Codes[codeWord])
		switch codeWord {
		case numRepeat3x6:
			w.b.writeBits(uint32(w.codegen[i]), 2)
			i++
		case zeroRepeat3x10:
			w.b.writeBits(uint32(w.codegen[i]), 3)
			i++
		case zeroRepeat11x138:
			w.b.writeBits(uint32(w.codegen[i]), 7)
			i++
		}
	}
}

// writeBlock emits tokens as the cheapest of a stored, fixed or dynamic
// block. input holds the raw bytes the tokens were produced from, nil
// when they are gone; a stored block is chosen only when strictly
// smaller than the best Huffman encoding.
func (w *blockWriter) writeBlock(tokens []token, eof bool, input []byte) {
	if w.b.err != nil {
		return
	}
	numLiterals, numOffsets := w.indexTokens(tokens)
	var extraBits int
	storedSize, storable := w.storedSize(input)
	if storable {
		extraBits = w.extraBitSize(numLiterals, numOffsets)
	}

	literalEncoding := fixedLiteralEncoding
	offsetEncoding := fixedOffsetEncoding
	size := w.fixedSize(extraBits)

	w.literalEncoding.Generate(w.literalFreq[:], 15)
	w.offsetEncoding.Generate(w.offsetFreq[:], 15)
	w.generateCodegen(numLiterals, numOffsets, w.literalEncoding, w.offsetEncoding)
	w.codegenEncoding.Generate(w.codegenFreq[:], 7)
	dynamicSize, numCodegens := w.dynamicSize(w.literalEncoding, w.offsetEncoding, extraBits)

	if dynamicSize < size {
		size = dynamicSize
		literalEncoding = w.literalEncoding
		offsetEncoding = w.offsetEncoding
	}

	if storable && storedSize < size {
		w.writeStoredHeader(len(input), eof)
		w.b.writeBytes(input)
		return
	}

	if literalEncoding == fixedLiteralEncoding {
		w.writeFixedHeader(eof)
	} else {
		w.writeDynamicHeader(numLiterals, numOffsets, numCodegens, eof)
	}
	w.writeTokens(tokens, literalEncoding.Codes, offsetEncoding.Codes)
}

// writeTokens emits the token batch under the given code tables and
// terminates it with the end-of-block symbol.
func (w *blockWriter) writeTokens(tokens []token, leCodes, oeCodes []huffman.Code) {
	for _, t := range tokens {
		if t.isLiteral() {
			w.b.writeCode(leCodes[t.literal()])
			continue
		}
		code, extraBits, extra := t.lengthEncoding()
		w.b.writeCode(leCodes[code])
		if extraBits > 0 {
			w.b.writeBits(extra, uint(extraBits))
		}
		code, extraBits, extra = t.distanceEncoding()
		w.b.writeCode(oeCodes[code])
		if extraBits > 0 {
			w.b.writeBits(extra, uint(extraBits))
		}
	}
	w.b.writeCode(leCodes[endBlockMarker])
}

// writeBlockHuff emits input as a literal-only dynamic block with the
// prebuilt one-symbol distance code. A stored block is used instead
// only when smaller than the Huffman size plus a sixteenth.
func (w *blockWriter) writeBlockHuff(eof bool, input []byte) {
	if w.b.err != nil {
		return
	}
	for i := range w.literalFreq {
		w.literalFreq[i] = 0
	}
	for i := range w.offsetFreq {
		w.offsetFreq[i] = 0
	}
	for _, t := range input {
		w.literalFreq[t]++
	}
	w.literalFreq[endBlockMarker] = 1
	const numLiterals = endBlockMarker + 1
	w.offsetFreq[0] = 1
	const numOffsets = 1

	w.literalEncoding.Generate(w.literalFreq[:], 15)
	w.generateCodegen(numLiterals, numOffsets, w.literalEncoding, huffOffset)
	w.codegenEncoding.Generate(w.codegenFreq[:], 7)
	size, numCodegens := w.dynamicSize(w.literalEncoding, huffOffset, 0)

	if ssize, storable := w.storedSize(input); storable && ssize < (size+size>>4) {
		w.writeStoredHeader(len(input), eof)
		w.b.writeBytes(input)
		return
	}

	w.writeDynamicHeader(numLiterals, numOffsets, numCodegens, eof)
	encoding := w.literalEncoding.Codes[:257]
	for _, t := range input {
		w.b.writeCode(encoding[t])
	}
	w.b.writeCode(encoding[endBlockMarker])
}
