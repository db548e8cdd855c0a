package linestream

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

// advanceRegion implements the Advance primitive atop any fill function:
// it returns whatever bytes are currently buffered (refilling once if
// empty) and hands ownership of the whole run to the caller. Shared by
// Rfile and Rstream, which differ only in how fill works.
func advanceRegion(region *[]byte, fill func() error) ([]byte, error) {
	if len(*region) == 0 {
		if err := fill(); err != nil {
			return nil, err
		}
	}
	out := *region
	*region = nil
	return out, nil
}

// nextNonemptyLine implements next_nonempty_line: advance one line at a
// time, left-stripping horizontal whitespace, returning the first line
// that isn't empty after stripping along with a 1-based line counter.
func nextNonemptyLine(region *[]byte, lineNo *int, fill func() error) ([]byte, int, error) {
	for {
		if len(*region) == 0 {
			if err := fill(); err != nil {
				return nil, *lineNo, err
			}
		}

		nl := bytes.IndexByte(*region, '\n')
		if nl < 0 {
			// Every published region ends on a boundary byte; a region
			// with no '\n' at all only happens in token-stream mode,
			// where the boundary may be a plain space/tab instead.
			nl = len(*region) - 1
		}
		line := (*region)[:nl]
		*region = (*region)[nl+1:]
		*lineNo++

		stripped := bytes.TrimLeft(line, " \t")
		if len(stripped) > 0 {
			return stripped, *lineNo, nil
		}
	}
}

// skipNLines implements skip_n_lines(k): advance past k '\n' occurrences,
// transparently refilling when the current region is exhausted.
func skipNLines(region *[]byte, k int, fill func() error) error {
	for k > 0 {
		if len(*region) == 0 {
			if err := fill(); err != nil {
				return err
			}
		}
		consumed, found := countNewlines(*region, k)
		*region = (*region)[consumed:]
		k -= found
	}
	return nil
}

// countNewlines returns how many leading bytes of region to consume to
// pass exactly min(k, total newlines in region) '\n' bytes, and how many
// it actually found. It scans 8 bytes at a time with a SWAR byte-equality
// trick plus math/bits.OnesCount64, falling back to a byte-at-a-time scan
// once the target count might fall inside the current word (the
// 64-bit-platform vectorized fast path described in the core design).
func countNewlines(region []byte, k int) (consumed, found int) {
	i := 0
	for i < len(region) {
		if i+8 <= len(region) {
			word := binary.LittleEndian.Uint64(region[i:])
			cnt := bits.OnesCount64(newlineMask(word))
			if found+cnt < k {
				found += cnt
				i += 8
				continue
			}
		}
		if region[i] == '\n' {
			found++
			if found == k {
				return i + 1, found
			}
		}
		i++
	}
	return len(region), found
}

// newlineMask sets the high bit of exactly those byte lanes in word that
// equal '\n', via an exact SWAR zero-byte test applied to word^'\n'
// repeated across all eight lanes. Each lane's high bit is masked off
// before the add, so no carry crosses into a neighbouring lane.
func newlineMask(word uint64) uint64 {
	const lo7 = 0x7F7F7F7F7F7F7F7F
	const nlRepeat = 0x0A0A0A0A0A0A0A0A
	x := word ^ nlRepeat
	return ^(((x & lo7) + lo7) | x | lo7)
}
