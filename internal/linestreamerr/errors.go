// Package linestreamerr defines the sentinel errors returned across the
// module boundary.
package linestreamerr

import (
	"errors"
	"io"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const (
	ErrOpenFail       constError = "linestream: open failed"
	ErrReadFail       constError = "linestream: read failed"
	ErrDecompressFail constError = "linestream: decompress failed"

	// ErrMalformedInput is returned when a line (or, in token-stream mode, a
	// token) exceeds the caller's enforced length bound.
	ErrMalformedInput constError = "linestream: malformed input"

	ErrMalformedBgzf        constError = "linestream: malformed bgzf block"
	ErrNoMem                constError = "linestream: allocation failed"
	ErrImproperFunctionCall constError = "linestream: improper function call"
	ErrClosed               constError = "linestream: reader closed"
)

// EOF is the sentinel returned when the stream is exhausted. It is
// io.EOF itself (not a wrapper), so errors.Is(err, io.EOF) and
// errors.Is(err, EOF) are interchangeable everywhere.
var EOF = io.EOF

// WrapOpen wraps err as an open failure.
func WrapOpen(err error) error {
	return errors.Join(ErrOpenFail, err)
}

// WrapDecompress wraps err as a decompression failure.
func WrapDecompress(err error) error {
	return errors.Join(ErrDecompressFail, err)
}

// WrapRead wraps err as an I/O read failure.
func WrapRead(err error) error {
	return errors.Join(ErrReadFail, err)
}

// IsFatal reports whether err is a terminal error that should not be
// cleared by Rewind/Retarget (only io.EOF is clearable).
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, io.EOF)
}
