package linestream

import (
	"bytes"
	"io"
	"os"

	"github.com/linestream/linestream/internal/codec"
	"github.com/linestream/linestream/internal/handoff"
	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/lsopts"
	"github.com/linestream/linestream/internal/reader"
	"github.com/linestream/linestream/internal/ringbuf"
	"github.com/linestream/linestream/internal/sniff"
)

// Rfile is the synchronous degenerate case of Rstream: it drives the
// same sniffing, codec, and ring-buffer machinery on the calling
// goroutine instead of overlapping it with a background reader. It has
// no handoff, no wraparound (nothing benefits from the two-region
// discipline when producer and consumer are the same goroutine), and no
// retarget/rewind interrupt plumbing — those are resolved synchronously,
// inline.
//
// An Rfile may be Promote()d into an Rstream to pick up asynchronous
// overlap mid-stream, transferring the open file, ring buffer, and codec
// state; the source Rfile is left closed and empty.
type Rfile struct {
	o     lsopts.OptsT
	fname string

	f   *os.File
	ft  sniff.FileType
	cd  codec.Codec
	buf *ringbuf.Buffer

	blockStart int
	readHead   int
	readStop   int
	scanFrom   int
	dstPos     int64
	reterr     error

	region []byte
	lineNo int
	closed bool
}

// OpenFile starts a synchronous reader against fname, sniffing its codec
// and allocating (or validating a caller-supplied) ring buffer per the
// options in optFuncs. Unlike Open, no background goroutine is started;
// all work happens on calls made by the caller.
func OpenFile(fname string, optFuncs ...OptT) (*Rfile, error) {
	o := parseOpts(optFuncs...)

	f, ft, probe, err := openAndSniff(fname)
	if err != nil {
		return nil, err
	}
	buf, err := newBuffer(&o)
	if err != nil {
		f.Close()
		return nil, err
	}
	cd, err := newCodec(ft, f, probe, &o)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Rfile{
		o:        o,
		fname:    fname,
		f:        f,
		ft:       ft,
		cd:       cd,
		buf:      buf,
		readStop: len(buf.Dst),
	}, nil
}

// Type reports the on-disk framing rs was classified as when opened (or
// most recently retargeted onto).
func (rs *Rfile) Type() FileType {
	return fromSniffType(rs.ft)
}

// Advance returns the next available region, filling it synchronously if
// necessary.
func (rs *Rfile) Advance() ([]byte, error) {
	return advanceRegion(&rs.region, rs.fill)
}

// NextNonemptyLine returns the next line whose content is non-empty once
// leading horizontal whitespace is stripped, along with a 1-based line
// counter spanning the whole stream.
func (rs *Rfile) NextNonemptyLine() ([]byte, int, error) {
	return nextNonemptyLine(&rs.region, &rs.lineNo, rs.fill)
}

// SkipNLines advances past exactly k newline-terminated lines.
func (rs *Rfile) SkipNLines(k int) error {
	return skipNLines(&rs.region, k, rs.fill)
}

// Retarget redirects the reader at a new file, reusing the current codec
// if the new file classifies the same way, or replacing it if it
// doesn't. A fatal error already latched on rs is never cleared by
// Retarget; only Close recovers from one.
func (rs *Rfile) Retarget(fname string) error {
	if rs.closed {
		return linestreamerr.ErrClosed
	}
	if linestreamerr.IsFatal(rs.reterr) {
		return rs.reterr
	}

	f, ft, probe, err := openAndSniff(fname)
	if err != nil {
		rs.reterr = err
		return err
	}

	if ft == rs.ft {
		if err := rs.cd.RetargetInPlace(f, probe); err != nil {
			f.Close()
			rs.reterr = err
			return err
		}
		rs.f.Close()
		rs.f = f
	} else {
		cd, err := newCodec(ft, f, probe, &rs.o)
		if err != nil {
			f.Close()
			rs.reterr = err
			return err
		}
		rs.cd.Close()
		rs.f.Close()
		rs.f, rs.ft, rs.cd = f, ft, cd
	}

	rs.fname = fname
	rs.resetState()
	return nil
}

// Rewind seeks the current file back to its start and resets codec and
// ring-buffer state, without reclassifying or reopening anything.
func (rs *Rfile) Rewind() error {
	if rs.closed {
		return linestreamerr.ErrClosed
	}
	if linestreamerr.IsFatal(rs.reterr) {
		return rs.reterr
	}
	if _, err := rs.f.Seek(0, io.SeekStart); err != nil {
		werr := linestreamerr.WrapRead(err)
		rs.reterr = werr
		return werr
	}
	if err := rs.cd.Rewind(); err != nil {
		rs.reterr = err
		return err
	}
	rs.resetState()
	return nil
}

// Close releases the codec and file handle. It is idempotent and safe to
// call regardless of the reader's current state.
func (rs *Rfile) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	cdErr := rs.cd.Close()
	fErr := rs.f.Close()
	if cdErr != nil {
		return cdErr
	}
	return fErr
}

// Promote transfers fname, the open file, codec, and ring buffer into a
// freshly started Rstream, leaving rs closed and empty. Both the not-yet-
// drained remainder of the current region and the in-flight,
// not-yet-boundary-terminated tail are carried over; the Rstream's
// background goroutine resumes scanning exactly where rs left off.
func (rs *Rfile) Promote() (*Rstream, error) {
	if rs.closed {
		return nil, linestreamerr.ErrClosed
	}
	if linestreamerr.IsFatal(rs.reterr) {
		return nil, rs.reterr
	}

	// Slide everything still live (unconsumed region remainder plus the
	// unterminated tail) down to offset 0, so the background loop starts
	// from the same state it maintains after its own memmove case.
	regionStart := rs.blockStart - len(rs.region)
	readHead := copy(rs.buf.Dst, rs.buf.Dst[regionStart:rs.readHead])
	blockStart := rs.blockStart - regionStart

	rs.buf.ConsumeTail = 0
	rs.buf.AvailableEnd = blockStart
	rs.buf.CurCircularEnd = -1

	out := &Rstream{
		o:      rs.o,
		fname:  rs.fname,
		h:      handoff.New(rs.buf),
		done:   make(chan struct{}),
		lineNo: rs.lineNo,
	}

	worker := reader.NewAt(out.h, rs.buf, rs.cd, rs.f, rs.ft, rs.fname, rsSource{&out.o}, rs.o.Handler, blockStart, readHead)
	go func() {
		worker.Run()
		close(out.done)
	}()

	*rs = Rfile{closed: true}
	return out, nil
}

// fill is the synchronous analogue of reader.Worker's step loop: make
// room, pull more bytes from the codec, and either record a finished
// region, handle EOF, or loop back for more space. There is no waiting
// involved, since the same goroutine that just consumed everything
// before blockStart is the one about to produce more.
func (rs *Rfile) fill() error {
	if rs.closed {
		return linestreamerr.ErrClosed
	}
	if rs.reterr != nil {
		return rs.reterr
	}

	for {
		if err := rs.ensureSpace(); err != nil {
			rs.reterr = err
			return err
		}

		window := rs.buf.Dst[rs.readHead:rs.readStop]
		n, rerr := rs.cd.FillInto(window)
		rs.readHead += n
		rs.reportProgress(n)

		// End-of-stream is only acted on from a short fill; a completely
		// filled window defers it to the next (necessarily short) call,
		// so finishAtEOF always has a spare byte for the synthetic '\n'.
		if rerr == io.EOF && n == len(window) {
			rerr = nil
		}

		switch {
		case rerr == nil:
			if pos := rs.scanBoundary(); pos >= 0 {
				return rs.publish(pos + 1)
			}
		case linestreamerr.IsFatal(rerr):
			rs.reterr = rerr
			return rerr
		default: // io.EOF
			return rs.finishAtEOF()
		}
	}
}

// ensureSpace implements the same structural cases as
// reader.Worker.ensureSpace, minus the circular-region and
// wait-for-consumer branches: a single-goroutine reader never has a live
// wraparound region, and the "consumer" has, by construction, already
// taken everything before blockStart by the time fill is called again.
func (rs *Rfile) ensureSpace() error {
	for rs.readHead == rs.readStop {
		bufEnd := len(rs.buf.Dst)
		switch {
		case rs.readStop == bufEnd && rs.blockStart == 0:
			// The in-flight line/token occupies the entire buffer with no
			// boundary found. Once capacity has reached the enforced
			// bound, the line provably exceeds it.
			bound := rs.buf.EnforcedMaxLineLen
			if bound == 0 {
				bound = ringbuf.MaxTokenLen
			}
			if bufEnd >= bound {
				return linestreamerr.ErrMalformedInput
			}
			if !rs.buf.Owned {
				return linestreamerr.ErrImproperFunctionCall
			}
			if err := rs.buf.Grow(bufEnd + ringbuf.ChunkSize); err != nil {
				return err
			}
			rs.readStop = len(rs.buf.Dst)

		case rs.readStop == bufEnd:
			n := copy(rs.buf.Dst, rs.buf.Dst[rs.blockStart:rs.readHead])
			rs.readHead = n
			rs.blockStart = 0
			rs.scanFrom = 0
			rs.readStop = bufEnd

		default:
			rs.readStop = bufEnd
		}
	}
	return nil
}

// scanBoundary mirrors reader.Worker.scanBoundary.
func (rs *Rfile) scanBoundary() int {
	dst := rs.buf.Dst
	chunk := dst[rs.scanFrom:rs.readHead]

	var rel int
	if rs.buf.EnforcedMaxLineLen == 0 {
		rel = bytes.LastIndexAny(chunk, " \t\r\n")
	} else {
		rel = bytes.LastIndexByte(chunk, '\n')
	}
	if rel < 0 {
		rs.scanFrom = rs.readHead
		return -1
	}
	return rs.scanFrom + rel
}

// publish runs the long-line check over the just-completed line/token
// ending at end (exclusive) and records it as the current region.
func (rs *Rfile) publish(end int) error {
	if err := ringbuf.CheckLineLength(rs.buf.Dst, rs.blockStart, 0, end, rs.buf.EnforcedMaxLineLen); err != nil {
		rs.reterr = err
		return err
	}
	rs.region = rs.buf.Dst[rs.blockStart:end]
	rs.blockStart = end
	rs.scanFrom = end
	return nil
}

// finishAtEOF mirrors reader.Worker.finishAtEOF: append a synthetic
// newline if the stream didn't end on one, run the final long-line
// check, and latch Eof after handing back the last region (if any).
func (rs *Rfile) finishAtEOF() error {
	dst := rs.buf.Dst
	cur := rs.readHead

	// cur < len(dst) always holds here: EOF is only recognized on a short
	// fill, so the window it came from has at least one unwritten byte.
	if cur > rs.blockStart && dst[cur-1] != '\n' {
		dst[cur] = '\n'
		cur++
		rs.readHead = cur
	}

	if cur == rs.blockStart {
		rs.reterr = linestreamerr.EOF
		return rs.reterr
	}

	if err := ringbuf.CheckLineLength(dst, rs.blockStart, 0, cur, rs.buf.EnforcedMaxLineLen); err != nil {
		rs.reterr = err
		return err
	}

	rs.region = dst[rs.blockStart:cur]
	rs.blockStart = cur
	rs.scanFrom = cur
	rs.reterr = linestreamerr.EOF
	return nil
}

// reportProgress mirrors reader.Worker.reportProgress.
func (rs *Rfile) reportProgress(n int) {
	if n <= 0 || rs.o.Handler == nil {
		return
	}
	rs.dstPos += int64(n)
	srcPos, _ := rs.f.Seek(0, io.SeekCurrent)
	rs.o.Handler(srcPos, rs.dstPos)
}

// resetState clears all consumer- and producer-visible position state,
// used by both Retarget and Rewind.
func (rs *Rfile) resetState() {
	rs.blockStart, rs.readHead, rs.scanFrom = 0, 0, 0
	rs.readStop = len(rs.buf.Dst)
	rs.dstPos = 0
	rs.region = nil
	rs.lineNo = 0
	rs.reterr = nil
}
