package linestream

import (
	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/sniff"
)

// Sentinel errors returned by Advance/NextNonemptyLine/SkipNLines/
// Retarget/Rewind/Open, comparable with errors.Is.
var (
	// EOF is returned once the stream is exhausted. It is io.EOF itself,
	// so errors.Is(err, io.EOF) also holds.
	EOF = linestreamerr.EOF

	ErrOpenFail             = linestreamerr.ErrOpenFail
	ErrReadFail             = linestreamerr.ErrReadFail
	ErrDecompressFail       = linestreamerr.ErrDecompressFail
	ErrMalformedInput       = linestreamerr.ErrMalformedInput
	ErrMalformedBgzf        = linestreamerr.ErrMalformedBgzf
	ErrNoMem                = linestreamerr.ErrNoMem
	ErrImproperFunctionCall = linestreamerr.ErrImproperFunctionCall
	ErrClosed               = linestreamerr.ErrClosed
)

// FileType identifies the on-disk framing a file was classified as.
type FileType int

const (
	Uncompressed FileType = iota
	Gzip
	Bgzf
	Zstd
)

func (t FileType) String() string {
	return sniff.FileType(t).String()
}

// fromSniffType converts the internal classification into the public
// enum; the two are kept as distinct types so sniff can stay a leaf
// package with no dependency on the root package's API surface.
func fromSniffType(ft sniff.FileType) FileType {
	return FileType(ft)
}
