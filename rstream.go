package linestream

import (
	"os"

	"github.com/linestream/linestream/internal/codec"
	"github.com/linestream/linestream/internal/handoff"
	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/lsopts"
	"github.com/linestream/linestream/internal/reader"
	"github.com/linestream/linestream/internal/sniff"
)

// Rstream is the asynchronous consumer: a background goroutine fills the
// shared ring buffer while the caller scans previously-published regions,
// overlapping disk I/O and decompression with consumer work. See Rfile
// for the synchronous degenerate case.
type Rstream struct {
	o     lsopts.OptsT
	fname string

	h    *handoff.Handoff
	done chan struct{}

	region  []byte
	iterAbs int
	lineNo  int
	closed  bool
}

// Open starts a background reader goroutine against fname, sniffing its
// codec and allocating (or validating a caller-supplied) ring buffer per
// the options in optFuncs.
func Open(fname string, optFuncs ...OptT) (*Rstream, error) {
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

	rs := &Rstream{
		o:     o,
		fname: fname,
		h:     handoff.New(buf),
		done:  make(chan struct{}),
	}

	worker := reader.New(rs.h, buf, cd, f, ft, fname, rsSource{&rs.o}, o.Handler)
	go func() {
		worker.Run()
		close(rs.done)
	}()
	return rs, nil
}

// rsSource implements reader.Source on behalf of the worker goroutine:
// it reopens and reclassifies a filename when a Retarget request names a
// new file, and constructs a fresh Codec when the retarget lands on a
// file of a different type than the one currently in use. It is a
// separate type (rather than methods on Rstream) so the Source surface
// stays out of the public API.
type rsSource struct {
	o *lsopts.OptsT
}

func (s rsSource) Open(fname string) (*os.File, sniff.FileType, []byte, error) {
	return openAndSniff(fname)
}

func (s rsSource) NewCodec(ft sniff.FileType, f *os.File, probe []byte) (codec.Codec, error) {
	return newCodec(ft, f, probe, s.o)
}

// Type reports the on-disk framing rs was classified as when opened (or
// most recently retargeted onto). Safe to call concurrently with the
// background reader.
func (rs *Rstream) Type() FileType {
	rs.h.Mu.Lock()
	defer rs.h.Mu.Unlock()
	return fromSniffType(rs.h.FileType)
}

// Advance returns the next available region, blocking until the
// background reader has published one (or reports EOF/an error).
func (rs *Rstream) Advance() ([]byte, error) {
	return advanceRegion(&rs.region, rs.fill)
}

// NextNonemptyLine returns the next line whose content is non-empty once
// leading horizontal whitespace is stripped, along with a 1-based line
// counter spanning the whole stream.
func (rs *Rstream) NextNonemptyLine() ([]byte, int, error) {
	return nextNonemptyLine(&rs.region, &rs.lineNo, rs.fill)
}

// SkipNLines advances past exactly k newline-terminated lines.
func (rs *Rstream) SkipNLines(k int) error {
	return skipNLines(&rs.region, k, rs.fill)
}

// fill implements the consumer side of Advance: it publishes the
// consumer's current position to the producer, determines how far the
// already-filled region currently extends, and either returns that
// region immediately or parks until the producer makes more progress.
func (rs *Rstream) fill() error {
	h := rs.h
	h.Mu.Lock()
	defer h.Mu.Unlock()

	for {
		if rs.closed {
			return linestreamerr.ErrClosed
		}
		if linestreamerr.IsFatal(h.Reterr) {
			return h.Reterr
		}

		if h.Buf.CurCircularEnd >= 0 && rs.iterAbs == h.Buf.CurCircularEnd {
			h.Buf.CurCircularEnd = -1
			rs.iterAbs = 0
		}

		h.Buf.ConsumeTail = rs.iterAbs
		h.SignalConsumerProgress()

		stop := h.Buf.AvailableEnd
		if h.Buf.CurCircularEnd >= 0 {
			stop = h.Buf.CurCircularEnd
		}

		if rs.iterAbs != stop {
			rs.region = h.Buf.Dst[rs.iterAbs:stop]
			rs.iterAbs = stop
			return nil
		}

		if h.Reterr != nil {
			return h.Reterr
		}

		h.WaitReaderProgress()
		// The producer rebases ConsumeTail to 0 when it slides an
		// unterminated tail back to the front of the buffer; pick up the
		// rebased position before re-deriving the next region from it.
		rs.iterAbs = h.Buf.ConsumeTail
	}
}

// Retarget redirects the stream at a new file, reusing the current codec
// if the new file classifies the same way, or replacing it if it
// doesn't. A fatal error already latched by the reader is never cleared
// by Retarget; only Close recovers from one.
func (rs *Rstream) Retarget(fname string) error {
	h := rs.h
	h.Mu.Lock()
	if rs.closed {
		h.Mu.Unlock()
		return linestreamerr.ErrClosed
	}
	if linestreamerr.IsFatal(h.Reterr) {
		err := h.Reterr
		h.Mu.Unlock()
		return err
	}

	h.NewFname = fname
	h.HasFname = true
	h.Raise(handoff.InterruptRetarget)
	h.SignalConsumerProgress()
	for h.Interrupt != handoff.InterruptNone {
		h.WaitReaderProgress()
	}
	err := h.Reterr
	h.Mu.Unlock()

	rs.region = nil
	rs.iterAbs = 0
	rs.lineNo = 0
	rs.fname = fname
	if linestreamerr.IsFatal(err) {
		return err
	}
	return nil
}

// Rewind seeks the current file back to its start and resets codec and
// ring-buffer state, without reclassifying or reopening anything.
func (rs *Rstream) Rewind() error {
	h := rs.h
	h.Mu.Lock()
	if rs.closed {
		h.Mu.Unlock()
		return linestreamerr.ErrClosed
	}
	if linestreamerr.IsFatal(h.Reterr) {
		err := h.Reterr
		h.Mu.Unlock()
		return err
	}

	h.HasFname = false
	h.NewFname = ""
	h.Raise(handoff.InterruptRetarget)
	h.SignalConsumerProgress()
	for h.Interrupt != handoff.InterruptNone {
		h.WaitReaderProgress()
	}
	err := h.Reterr
	h.Mu.Unlock()

	rs.region = nil
	rs.iterAbs = 0
	rs.lineNo = 0
	if linestreamerr.IsFatal(err) {
		return err
	}
	return nil
}

// Close raises Shutdown and waits for the background goroutine to exit,
// releasing the codec and file handle. It is idempotent and safe to call
// regardless of the stream's current state (mid-fill, parked on EOF, or
// already in an error state).
func (rs *Rstream) Close() error {
	h := rs.h
	h.Mu.Lock()
	if rs.closed {
		h.Mu.Unlock()
		return nil
	}
	rs.closed = true
	h.Raise(handoff.InterruptShutdown)
	h.SignalConsumerProgress()
	h.Mu.Unlock()

	<-rs.done
	return nil
}
