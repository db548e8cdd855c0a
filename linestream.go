// Package linestream presents decompressed, newline-aligned byte
// regions from uncompressed, gzip, BGZF, or Zstandard files to a caller
// that wants to scan line-by-line (or token-by-token) without copying
// individual lines out of a shared buffer.
//
// Rstream overlaps disk I/O and decompression with consumer work on a
// background goroutine; Rfile is the synchronous degenerate case that
// does the same work on the calling goroutine. Both share the same
// sniffing, codec, and ring-buffer machinery in internal/.
package linestream

import (
	"os"

	"github.com/linestream/linestream/internal/codec"
	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/lsopts"
	"github.com/linestream/linestream/internal/ringbuf"
	"github.com/linestream/linestream/internal/sniff"
)

// Stream is the consumer-facing surface common to Rfile and Rstream:
// advance through newline- (or token-) aligned regions, retarget or
// rewind the underlying file, and release resources. Most callers should
// just use Open or OpenFile directly and keep the concrete type; Stream
// exists for code that wants to accept either interchangeably (for
// instance, a caller that starts with a synchronous Rfile and later
// decides, based on the first few lines, whether to Promote it).
type Stream interface {
	Advance() ([]byte, error)
	NextNonemptyLine() ([]byte, int, error)
	SkipNLines(n int) error
	Retarget(fname string) error
	Rewind() error
	Type() FileType
	Close() error
}

var (
	_ Stream = (*Rfile)(nil)
	_ Stream = (*Rstream)(nil)
)

// openAndSniff opens fname and classifies it by its leading bytes,
// returning the probe bytes so the codec can be seeded without a second
// read of the file.
func openAndSniff(fname string) (*os.File, sniff.FileType, []byte, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, 0, nil, linestreamerr.WrapOpen(err)
	}
	ft, probe, err := sniff.Sniff(f)
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return f, ft, probe, nil
}

// newCodec constructs the Codec arm matching ft per the options in o.
func newCodec(ft sniff.FileType, f *os.File, probe []byte, o *lsopts.OptsT) (codec.Codec, error) {
	return codec.New(ft, f, probe, codec.Options{
		DecompressThreadCt: o.DecompressThreadCt,
		WorkerPool:         o.WorkerPool,
	})
}

// newBuffer allocates (or validates and wraps) the ring buffer per o and
// its capacity invariants.
func newBuffer(o *lsopts.OptsT) (*ringbuf.Buffer, error) {
	if o.Buffer != nil {
		if err := ringbuf.Validate(len(o.Buffer), o.EnforcedMaxLineLen, true); err != nil {
			return nil, err
		}
		return ringbuf.NewBorrowed(o.Buffer, o.EnforcedMaxLineLen), nil
	}
	if err := ringbuf.Validate(ringbuf.MinCapacity, o.EnforcedMaxLineLen, false); err != nil {
		return nil, err
	}
	return ringbuf.New(ringbuf.MinCapacity, o.EnforcedMaxLineLen), nil
}
