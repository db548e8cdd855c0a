// Package codec adapts each supported on-disk framing (uncompressed, gzip,
// BGZF, Zstd) behind a single "fill this output window from this input
// file" interface.
package codec

import (
	"io"
	"os"

	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/sniff"
)

// Codec uniformly drives a single codec's state machine against an open
// file. FillInto writes as much decompressed data as fits in dst, and
// returns io.EOF — possibly together with the final bytes — once the
// underlying stream is exhausted, following the usual io.Reader
// convention. Calling FillInto again after io.EOF returns (0, io.EOF)
// until Rewind or RetargetInPlace resets the stream.
type Codec interface {
	// FillInto decompresses into dst, returning the number of bytes
	// written. Returns io.EOF when the underlying stream is exhausted,
	// or a wrapped linestreamerr on failure.
	FillInto(dst []byte) (n int, err error)

	// Rewind resets codec-local state so a subsequent FillInto resumes
	// reading from the start of a freshly-rewound file.
	Rewind() error

	// RetargetInPlace resets codec state for reuse against a different,
	// already-open file of the same codec type, pointing the codec at f
	// and seeding its input buffer with the bytes already consumed by
	// the sniffer.
	RetargetInPlace(f *os.File, probe []byte) error

	// Close releases codec-local resources (not the file handle).
	Close() error
}

// Options bundles the subset of configuration codecs need to construct
// themselves.
type Options struct {
	DecompressThreadCt int
	WorkerPool         WorkerPool
}

// WorkerPool is the subset of a worker-pool dependency ParallelBgzfCodec
// needs. gammazero/workerpool satisfies this directly.
type WorkerPool interface {
	Submit(task func())
}

// New constructs the Codec arm matching ft, seeding its input from probe
// (the bytes already consumed by sniff.Sniff) and reading further input
// from f as needed. Each arm gets its own explicit case with an explicit
// return, so retargeting onto a file of a different codec type can never
// fall through into the wrong arm's state.
func New(ft sniff.FileType, f *os.File, probe []byte, opts Options) (Codec, error) {
	switch ft {
	case sniff.Uncompressed:
		return newUncompressed(f, probe), nil
	case sniff.Gzip:
		return newGzip(f, probe)
	case sniff.Bgzf:
		if opts.DecompressThreadCt > 1 {
			return newBgzfParallel(f, probe, opts)
		}
		return newBgzf(f, probe)
	case sniff.Zstd:
		return newZstd(f, probe)
	default:
		return nil, linestreamerr.ErrImproperFunctionCall
	}
}

// readChunk issues a bounded read from f into buf, used by every codec
// arm's refill step. Capping at ChunkSize keeps any single syscall
// request from growing unbounded when a caller hands in a larger buf.
func readChunk(f *os.File, buf []byte) (int, error) {
	if len(buf) > ChunkSize {
		buf = buf[:ChunkSize]
	}
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return n, linestreamerr.WrapRead(err)
	}
	return n, err
}
