// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

// Package deflate implements the RFC 1951 DEFLATE compressor core: a
// hash-chained sliding-window match finder with lazy matching feeding a
// block encoder that picks the cheapest of the stored, fixed and
// dynamic encodings per block.
package deflate

import (
	"errors"
	"fmt"
	"io"
)

var errWriterClosed = errors.New("deflate: writer is closed")

const (
	// A block is cut once this many tokens have accumulated.
	maxTokens = 1 << 15
)

// compressor drives one DEFLATE stream. It owns every buffer it needs
// (window, hash chain, token batch, block writer) and reuses them
// across blocks and resets; nothing on the hot path allocates.
type compressor struct {
	params levelParams
	win    window
	chain  hashChain
	bw     *blockWriter
	tokens []token

	// blockEnd is the window position one past the last byte covered
	// by emitted tokens; buf[fp:blockEnd] are the raw bytes of the
	// block being accumulated.
	blockEnd int

	// Lazy matcher state, carried between tokenize calls: a literal
	// waiting for the next position's verdict and, with it, a deferred
	// match that a longer one may still displace.
	litPending   bool
	lit          byte
	matchPending bool
	matchDist    int
	matchLen     int

	// Literal-only and stored-only operating modes.
	huffMode  bool
	storeMode bool

	closed bool
	err    error
}

func newCompressor(w io.Writer, level int) (*compressor, error) {
	d := &compressor{
		bw:     newBlockWriter(w),
		tokens: make([]token, 0, maxTokens),
	}
	switch {
	case level == NoCompression:
		d.storeMode = true
	case level == HuffmanOnly:
		d.huffMode = true
	case level == DefaultCompression:
		d.params = levels[defaultLevel]
	case BestSpeed <= level && level <= BestCompression:
		d.params = levels[level]
	default:
		return nil, fmt.Errorf("deflate: invalid compression level %d: want 4-9, NoCompression, HuffmanOnly or DefaultCompression", level)
	}
	return d, nil
}

func (d *compressor) write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.closed {
		return 0, errWriterClosed
	}
	if d.storeMode || d.huffMode {
		return d.fillChunked(p)
	}
	total := len(p)
	for {
		n := d.win.fill(p)
		p = p[n:]
		if err := d.tokenize(false); err != nil {
			return total - len(p), err
		}
		if len(p) == 0 {
			return total, nil
		}
		// The window is full; history past 32K is compressed, so the
		// upper half can move down.
		d.slide()
	}
}

func (d *compressor) slide() {
	d.win.slide()
	d.chain.slide(windowSize)
	d.blockEnd -= windowSize
	if d.blockEnd < 0 {
		d.blockEnd = 0
	}
}

// fillChunked accumulates input for the store and huffman-only modes,
// emitting a maximal block whenever the chunk buffer fills.
func (d *compressor) fillChunked(p []byte) (int, error) {
	total := len(p)
	for {
		n := copy(d.win.buf[d.win.wp:maxStoreBlockSize], p)
		d.win.wp += n
		p = p[n:]
		if len(p) == 0 {
			return total, nil
		}
		if err := d.writeChunk(false); err != nil {
			return total - len(p), err
		}
	}
}

func (d *compressor) writeChunk(eof bool) error {
	chunk := d.win.buf[:d.win.wp]
	if d.storeMode {
		d.bw.writeStoredHeader(len(chunk), eof)
		d.bw.b.writeBytes(chunk)
	} else {
		d.bw.writeBlockHuff(eof, chunk)
	}
	d.win.wp = 0
	d.err = d.bw.err()
	return d.err
}

// tokenize runs the lazy match finder over the available lookahead.
// With flush set it consumes the lookahead completely and drains any
// pending literal; otherwise it stops once the lookahead reserve is
// reached and resumes from the carried state on the next call.
func (d *compressor) tokenize(flush bool) error {
	for {
		look := d.win.lookahead(flush)
		if look == nil {
			break
		}
		pos := d.win.rp
		minLen := 0
		if d.matchPending {
			minLen = d.matchLen
		}
		var length, dist int
		if len(look) > minMatchLength {
			prev := d.chain.add(look, pos)
			length, dist = d.findMatch(pos, prev, minLen)
		}

		if length > minLen {
			// A match better than anything pending. The held literal
			// is real either way; a displaced pending match is not.
			if d.litPending {
				if err := d.emitLiteral(d.lit, pos); err != nil {
					return err
				}
				d.litPending = false
			}
			d.matchPending = false
			if length >= d.params.lazy {
				if err := d.emitMatch(dist, length, pos+length); err != nil {
					return err
				}
				d.advance(pos, length)
				continue
			}
			// Defer one step: the next position may hold a longer
			// match covering this one.
			d.lit = look[0]
			d.litPending = true
			d.matchDist, d.matchLen = dist, length
			d.matchPending = true
			d.advance(pos, 1)
			continue
		}

		if d.matchPending {
			// Nothing longer ahead; the deferred match wins and its
			// stashed literal is covered by it.
			d.matchPending = false
			d.litPending = false
			if err := d.emitMatch(d.matchDist, d.matchLen, pos-1+d.matchLen); err != nil {
				return err
			}
			d.advance(pos, d.matchLen-1)
			continue
		}

		if d.litPending {
			if err := d.emitLiteral(d.lit, pos); err != nil {
				return err
			}
		}
		d.lit = look[0]
		d.litPending = true
		d.advance(pos, 1)
	}
	if flush && d.litPending {
		d.litPending = false
		if err := d.emitLiteral(d.lit, d.win.rp); err != nil {
			return err
		}
	}
	return nil
}

// findMatch walks the hash chain from prevHead looking for the longest
// match at pos that beats minLen, within the level's chain budget.
func (d *compressor) findMatch(pos, prevHead, minLen int) (length, dist int) {
	length = minLen
	tries := d.params.chain
	prev := prevHead
	for tries > 0 && prev > 0 {
		offset := pos - prev
		if offset <= 0 || offset > windowSize {
			break
		}
		if n := d.win.match(prev, pos, length); n > length {
			length = n
			dist = offset
			if n >= d.params.nice {
				break
			}
			if n >= d.params.good {
				tries >>= 1
			}
		}
		prev = d.chain.prev(prev)
		tries--
	}
	if dist == 0 {
		return 0, 0
	}
	return length, dist
}

// advance moves the compression position by step, indexing the skipped
// positions into the hash chain first. The position itself was indexed
// by the search.
func (d *compressor) advance(pos, step int) {
	if step > 1 {
		first := pos + 1
		last := pos + step - 1
		if max := d.win.wp - minMatchLength - 1; last > max {
			last = max
		}
		d.chain.bulkAdd(d.win.buf[:], first, last-first+1)
	}
	d.win.rp = pos + step
}

func (d *compressor) emitLiteral(b byte, end int) error {
	d.tokens = append(d.tokens, literalToken(b))
	d.blockEnd = end
	if len(d.tokens) == maxTokens {
		return d.flushBlock(false)
	}
	return nil
}

func (d *compressor) emitMatch(dist, length, end int) error {
	d.tokens = append(d.tokens, matchToken(dist, length))
	d.blockEnd = end
	if len(d.tokens) == maxTokens {
		return d.flushBlock(false)
	}
	return nil
}

// flushBlock writes the accumulated token batch as one block and starts
// the next one at the current coverage boundary.
func (d *compressor) flushBlock(eof bool) error {
	var input []byte
	if d.win.fp >= 0 {
		input = d.win.buf[d.win.fp:d.blockEnd]
	}
	d.bw.writeBlock(d.tokens, eof, input)
	d.tokens = d.tokens[:0]
	d.win.fp = d.blockEnd
	d.err = d.bw.err()
	return d.err
}

// syncFlush completes a block from everything received so far and
// aligns the stream on a byte boundary with an empty stored block, so
// all bytes written before the call are decodable from the sink.
func (d *compressor) syncFlush() error {
	if d.err != nil {
		return d.err
	}
	if d.closed {
		return errWriterClosed
	}
	if d.storeMode || d.huffMode {
		if d.win.wp > 0 {
			if err := d.writeChunk(false); err != nil {
				return err
			}
		}
	} else {
		if err := d.tokenize(true); err != nil {
			return err
		}
		if len(d.tokens) > 0 {
			if err := d.flushBlock(false); err != nil {
				return err
			}
		}
	}
	d.bw.writeStoredHeader(0, false)
	d.bw.b.flush()
	d.err = d.bw.err()
	return d.err
}

func (d *compressor) close() error {
	if d.err != nil {
		return d.err
	}
	if d.closed {
		return nil
	}
	d.closed = true
	if d.storeMode || d.huffMode {
		if err := d.writeChunk(true); err != nil {
			return err
		}
	} else {
		if err := d.tokenize(true); err != nil {
			return err
		}
		if err := d.flushBlock(true); err != nil {
			return err
		}
	}
	d.bw.b.flush()
	d.err = d.bw.err()
	return d.err
}

func (d *compressor) reset(w io.Writer) {
	d.bw.reset(w)
	d.win.reset()
	d.chain.reset()
	d.tokens = d.tokens[:0]
	d.blockEnd = 0
	d.litPending = false
	d.matchPending = false
	d.closed = false
	d.err = nil
}

// Writer compresses data written to it into a raw DEFLATE stream on
// the underlying writer. Errors are sticky: once a write fails the
// Writer is unusable.
type Writer struct {
	d *compressor
}

// NewWriter creates a DEFLATE compressor writing to under. Supported
// levels are 4 (BestSpeed) through 9 (BestCompression) plus the
// NoCompression, HuffmanOnly and DefaultCompression aliases.
func NewWriter(under io.Writer, level int) (*Writer, error) {
	d, err := newCompressor(under, level)
	if err != nil {
		return nil, err
	}
	return &Writer{d: d}, nil
}

// Write compresses p. It always consumes all of p unless the sink
// fails.
func (w *Writer) Write(p []byte) (n int, err error) {
	return w.d.write(p)
}

// Flush completes the current block and emits a sync marker, making
// everything written so far decodable from the output.
func (w *Writer) Flush() error {
	return w.d.syncFlush()
}

// Close writes the final block and flushes all buffered output. It
// does not close the underlying writer.
func (w *Writer) Close() error {
	return w.d.close()
}

// Reset discards the writer's state and starts a new stream on under,
// reusing all internal buffers.
func (w *Writer) Reset(under io.Writer) {
	w.d.reset(under)
}
