// Package ringbuf implements a two-region (forward/wraparound) shared
// buffer: a producer writes into dst[0..capacity), a consumer reads a
// contiguous [iter, stop) view of it, and the producer may wrap back to
// offset 0 once the consumer has drained the forward region far enough
// for it to be worthwhile.
package ringbuf

import (
	"bytes"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// ChunkSize mirrors codec.ChunkSize; duplicated here (rather than
// importing codec) to keep ringbuf free of a dependency on the codec
// package, since both are leaves of the dependency graph.
const ChunkSize = 1 << 20

// MinCapacity is the smallest capacity any buffer (borrowed or owned) may
// have: borrowed capacity must be at least 2·ChunkSize.
const MinCapacity = 2 * ChunkSize

// MaxTokenLen bounds a single token in token-stream mode
// (EnforcedMaxLineLen == 0): a fixed constant, not configurable.
const MaxTokenLen = 1 << 20

// Buffer is the region shared between a single producer and a single
// consumer: a forward write region plus, while a wrap is in flight, a
// separate circular region preceding it.
type Buffer struct {
	Dst   []byte
	Owned bool

	AvailableEnd   int
	CurCircularEnd int // -1 means "not set"
	ConsumeTail    int

	EnforcedMaxLineLen int // 0 means token-stream mode
}

// New allocates an owned buffer of the given initial capacity.
func New(capacity int, enforcedMaxLineLen int) *Buffer {
	return &Buffer{
		Dst:                make([]byte, capacity),
		Owned:              true,
		CurCircularEnd:     -1,
		EnforcedMaxLineLen: enforcedMaxLineLen,
	}
}

// NewBorrowed wraps a caller-provided buffer that must never be
// reallocated.
func NewBorrowed(dst []byte, enforcedMaxLineLen int) *Buffer {
	return &Buffer{
		Dst:                dst,
		Owned:              false,
		CurCircularEnd:     -1,
		EnforcedMaxLineLen: enforcedMaxLineLen,
	}
}

// Validate checks the capacity invariants for a newly constructed buffer.
func Validate(capacity, enforcedMaxLineLen int, borrowed bool) error {
	if enforcedMaxLineLen != 0 && enforcedMaxLineLen < ChunkSize {
		return linestreamerr.ErrImproperFunctionCall
	}
	if borrowed {
		if capacity < MinCapacity {
			return linestreamerr.ErrImproperFunctionCall
		}
		if enforcedMaxLineLen != 0 && enforcedMaxLineLen+ChunkSize < capacity {
			return linestreamerr.ErrImproperFunctionCall
		}
	}
	return nil
}

// Grow doubles capacity (or grows to fit the enforced line/token bound
// plus one chunk, whichever is larger) and copies existing content over.
// It is illegal to call on a borrowed buffer; callers must check Owned
// first.
func (b *Buffer) Grow(minCapacity int) error {
	if !b.Owned {
		return linestreamerr.ErrImproperFunctionCall
	}

	target := len(b.Dst) * 2
	want := b.EnforcedMaxLineLen + ChunkSize
	if b.EnforcedMaxLineLen == 0 {
		want = MaxTokenLen + ChunkSize
	}
	if want > target {
		target = want
	}
	if target < minCapacity {
		target = minCapacity
	}

	grown := make([]byte, target)
	copy(grown, b.Dst)
	b.Dst = grown
	return nil
}

// CheckLineLength reports a pathologically long line: it scans
// [lineStart, knownEnd) for a '\n' within enforcedMaxLineLen bytes of
// lineStart. alreadyScanned is how much of that range has already been
// scanned by a previous incremental call, allowing the check to be run
// repeatedly as more bytes arrive without rescanning from the top.
//
// enforcedMaxLineLen == 0 selects token-stream semantics: the bound is
// MaxTokenLen and the boundary byte is any of " \t\r\n" rather than '\n'
// alone (see indexWhitespaceOrEoln below).
func CheckLineLength(data []byte, lineStart, alreadyScanned, knownEnd, enforcedMaxLineLen int) error {
	limit := enforcedMaxLineLen
	tokenMode := enforcedMaxLineLen == 0
	if tokenMode {
		limit = MaxTokenLen
	}

	if knownEnd-lineStart <= limit {
		return nil
	}
	if alreadyScanned >= limit {
		return linestreamerr.ErrMalformedInput
	}

	searchFrom := lineStart + alreadyScanned
	window := data[searchFrom:knownEnd]
	remaining := limit - alreadyScanned
	if remaining > len(window) {
		remaining = len(window)
	}

	for {
		var rel int
		if tokenMode {
			rel = indexWhitespaceOrEoln(window[:remaining])
		} else {
			rel = bytes.IndexByte(window[:remaining], '\n')
		}
		if rel < 0 {
			return linestreamerr.ErrMalformedInput
		}
		pos := searchFrom + rel
		if pos >= knownEnd-(limit+1) {
			return nil
		}
		window = data[pos+1 : knownEnd]
		remaining = limit
		if remaining > len(window) {
			remaining = len(window)
		}
		searchFrom = pos + 1
	}
}

func indexWhitespaceOrEoln(b []byte) int {
	return bytes.IndexAny(b, " \t\r\n")
}
