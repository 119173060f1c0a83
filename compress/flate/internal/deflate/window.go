// Copyright (c) 2024, Intel Corporation.
// SPDX-License-Identifier: BSD-3-Clause

package deflate

const (
	windowSize = 1 << 15
	bufSize    = 2 * windowSize

	minMatchLength = 3
	maxMatchLength = 258

	// Normal tokenization keeps this much lookahead in reserve so a
	// maximal match starting anywhere in it is never truncated.
	minLookahead = minMatchLength + maxMatchLength
)

// window is the 64 KiB compression buffer: a 32 KiB history region
// followed by unread lookahead. wp is the write position, rp the
// compression position and fp the start of the raw bytes belonging to
// the current block (negative once a slide dropped them).
type window struct {
	buf [bufSize]byte
	wp  int
	rp  int
	fp  int
}

func (w *window) reset() {
	w.wp = 0
	w.rp = 0
	w.fp = 0
}

// fill copies input into the free region and returns how much fit.
func (w *window) fill(p []byte) int {
	n := copy(w.buf[w.wp:], p)
	w.wp += n
	return n
}

func (w *window) full() bool { return w.wp == bufSize }

// lookahead returns the unread region when it is long enough to work
// on: more than minLookahead normally, any non-empty amount when a
// flush is pending.
func (w *window) lookahead(flush bool) []byte {
	n := w.wp - w.rp
	if n > minLookahead || (flush && n > 0) {
		return w.buf[w.rp:w.wp]
	}
	return nil
}

// slide moves the upper half of the buffer down and rebases all
// cursors. The caller must have compressed past the lower half.
func (w *window) slide() {
	copy(w.buf[:windowSize], w.buf[windowSize:])
	w.wp -= windowSize
	w.rp -= windowSize
	if w.fp >= windowSize {
		w.fp -= windowSize
	} else {
		w.fp = -1
	}
}

// match compares the bytes at prev and curr and returns the match
// length, or 0 when shorter than minMatchLength. A positive minLen is a
// current best: the candidate is rejected outright unless it can exceed
// it, tested cheaply at offset minLen first.
func (w *window) match(prev, curr, minLen int) int {
	max := w.wp - curr
	if max > maxMatchLength {
		max = maxMatchLength
	}
	if minLen > 0 {
		if minLen >= max {
			return 0
		}
		if w.buf[prev+minLen] != w.buf[curr+minLen] {
			return 0
		}
	}
	n := 0
	for n < max && w.buf[prev+n] == w.buf[curr+n] {
		n++
	}
	if n < minMatchLength {
		return 0
	}
	return n
}
