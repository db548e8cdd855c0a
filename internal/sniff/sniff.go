// Package sniff classifies an input file by its leading bytes.
package sniff

import (
	"io"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// FileType is the codec a file was classified as, by magic bytes.
type FileType int

const (
	Uncompressed FileType = iota
	Gzip
	Bgzf
	Zstd
)

func (t FileType) String() string {
	switch t {
	case Uncompressed:
		return "uncompressed"
	case Gzip:
		return "gzip"
	case Bgzf:
		return "bgzf"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ProbeSize is the number of leading bytes read and classified.
const ProbeSize = 16

// zstdMagic is RFC 8478's frame magic number; isZstdFrame ignores its
// low nibble, which carries version bits (0xFD2FB528 is the
// currently-assigned value; older draft versions used 0x22..0x28).
const zstdMagic = 0xFD2FB528

// Sniff reads up to ProbeSize bytes from r and classifies the stream.
//
// The returned slice is always the bytes actually read (even on a short
// read below ProbeSize) so a codec can seed its input buffer from it
// without re-reading. Sniff never logs; it is safe to call from a
// background goroutine.
func Sniff(r io.Reader) (FileType, []byte, error) {
	buf := make([]byte, ProbeSize)
	n, err := io.ReadFull(r, buf)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		err = nil
	default:
		return Uncompressed, buf[:n], linestreamerr.WrapRead(err)
	}
	buf = buf[:n]
	return classify(buf), buf, nil
}

func classify(buf []byte) FileType {
	if len(buf) < 4 {
		return Uncompressed
	}

	magic4 := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if isZstdFrame(magic4) {
		return Zstd
	}

	if buf[0] != 0x1f || buf[1] != 0x8b || buf[2] != 0x08 {
		return Uncompressed
	}

	if len(buf) == ProbeSize && isBgzfHeader(buf) {
		return Bgzf
	}
	return Gzip
}

// isZstdFrame matches RFC 8478's frame magic number. Skippable frames
// (0x184D2A5{0..F}) are deliberately not treated as content frames here;
// only the frame magic itself is recognized.
func isZstdFrame(magic4 uint32) bool {
	return magic4&0xFFFFFFF0 == zstdMagic&0xFFFFFFF0
}

// isBgzfHeader checks for the BGZF extra-field signature (RFC 1952 FEXTRA
// with subfield SI1='B', SI2='C') at the fixed offsets a compliant BGZF
// header places it, given exactly 16 probe bytes.
func isBgzfHeader(buf []byte) bool {
	if buf[3]&0x04 == 0 { // FLG.FEXTRA not set
		return false
	}
	// buf[10:12] = XLEN (LE16); BGZF always writes XLEN=6 with a single
	// BC subfield immediately following the fixed 10-byte gzip header, so
	// SI1/SI2 land at offset 12/13 within the 16-byte probe.
	return buf[12] == 'B' && buf[13] == 'C'
}
