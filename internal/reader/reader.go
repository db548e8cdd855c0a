// Package reader implements the background goroutine that drives a
// codec.Codec into a shared ringbuf.Buffer, publishing newline- (or, in
// token-stream mode, whitespace-) aligned regions to a consumer through
// a handoff.Handoff, and servicing the consumer's retarget/rewind/
// shutdown requests.
//
// This is the producer half of the module's single producer/single
// consumer pipeline; Rstream's Advance path is the consumer half.
package reader

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/linestream/linestream/internal/codec"
	"github.com/linestream/linestream/internal/handoff"
	"github.com/linestream/linestream/internal/linestreamerr"
	"github.com/linestream/linestream/internal/ringbuf"
	"github.com/linestream/linestream/internal/sniff"
)

// Source reopens and reclassifies a filename on behalf of the worker
// when a retarget request arrives, and builds a fresh Codec when the
// newly-opened file's type differs from the one currently in use. It is
// implemented by the owning Rstream, which alone holds the codec.Options
// (worker pool, thread count) needed to construct a new Codec.
type Source interface {
	Open(fname string) (f *os.File, ft sniff.FileType, probe []byte, err error)
	NewCodec(ft sniff.FileType, f *os.File, probe []byte) (codec.Codec, error)
}

// Worker owns exactly the local shadow state the background reader needs
// to make forward progress without touching the shared handoff: the
// destination buffer and its end live in buf, the rest are plain fields
// here. Everything else (ConsumeTail/AvailableEnd/CurCircularEnd/
// Reterr/Interrupt/NewFname) lives in h and is touched only under
// h.Mu.
type Worker struct {
	h     *handoff.Handoff
	buf   *ringbuf.Buffer
	cd    codec.Codec
	f     *os.File
	ft    sniff.FileType
	fname string
	src   Source

	curBlockStart int
	readHead      int
	readStop      int
	scanFrom      int

	dstPos   int64
	progress func(srcPos, dstPos int64)
}

// New constructs a Worker ready to be launched with `go w.Run()`. f/ft/cd
// are the already-opened, already-sniffed, already-constructed inputs
// for fname (the first file); buf is shared with the consumer and must
// already be sized per ringbuf's capacity invariants. progress may be
// nil; otherwise it is invoked after every codec fill with the file's
// current offset and the cumulative decompressed byte count.
func New(h *handoff.Handoff, buf *ringbuf.Buffer, cd codec.Codec, f *os.File, ft sniff.FileType, fname string, src Source, progress func(int64, int64)) *Worker {
	return NewAt(h, buf, cd, f, ft, fname, src, progress, 0, 0)
}

// NewAt is New, but resumes from an already partially-filled buffer
// instead of starting empty: blockStart/readHead are the in-flight
// region's bounds a synchronous Rfile had already read before being
// promoted to an Rstream. buf.Dst[0:blockStart) is the published region
// (h.Buf.AvailableEnd must equal blockStart); whatever part of it the
// consumer has not yet drained is tracked by h.Buf.ConsumeTail as usual.
func NewAt(h *handoff.Handoff, buf *ringbuf.Buffer, cd codec.Codec, f *os.File, ft sniff.FileType, fname string, src Source, progress func(int64, int64), blockStart, readHead int) *Worker {
	h.FileType = ft
	return &Worker{
		h: h, buf: buf, cd: cd, f: f, ft: ft, fname: fname, src: src,
		curBlockStart: blockStart,
		readHead:      readHead,
		scanFrom:      blockStart,
		readStop:      len(buf.Dst),
		progress:      progress,
	}
}

// internal-only control-flow sentinels; never surfaced to a caller.
// Distinct values from every linestreamerr sentinel, so a genuine
// ErrImproperFunctionCall/ErrClosed from the buffer layer is published as
// a fatal error instead of being mistaken for an interrupt.
var (
	errShutdown = errors.New("shutdown requested")
	errRetarget = errors.New("retarget requested")
)

// cacheline is the alignment readStop is rounded down to when it is
// derived from the consumer's live tail position.
const cacheline = 64

type stepResult int

const (
	stepContinue stepResult = iota
	stepExit
)

// Run is the goroutine's entire lifetime. It releases the codec and file
// handle before returning, regardless of which path ended the loop
// (Shutdown, or a fatal error followed by Shutdown), so Close never has
// to reach back into worker-private state.
func (w *Worker) Run() {
	for w.step() == stepContinue {
	}
	w.cd.Close()
	w.f.Close()
}

// step performs one unit of forward progress: make room, pull more bytes
// from the codec, and either publish a finished region, handle EOF,
// handle a fatal error, or loop back to acquire more space.
func (w *Worker) step() stepResult {
	if err := w.ensureSpace(); err != nil {
		switch err {
		case errShutdown:
			return stepExit
		case errRetarget:
			return w.serviceInterrupt()
		default:
			return w.publishFatalAndWait(err)
		}
	}

	dst := w.buf.Dst
	stop := w.readStop
	if stop-w.readHead > ringbuf.ChunkSize {
		stop = w.readHead + ringbuf.ChunkSize
	}
	n, rerr := w.cd.FillInto(dst[w.readHead:stop])
	w.readHead += n
	w.reportProgress(n)

	// End-of-stream is only acted on from a short fill; a completely
	// filled window defers it to the next (necessarily short) call, so
	// finishAtEOF always has a spare byte for the synthetic '\n'.
	if rerr == io.EOF && w.readHead == stop {
		rerr = nil
	}

	switch {
	case rerr == nil:
		if pos := w.scanBoundary(); pos >= 0 {
			return w.publishAndAdvance(pos + 1)
		}
		return stepContinue

	case linestreamerr.IsFatal(rerr):
		return w.publishFatalAndWait(rerr)

	default: // io.EOF
		return w.finishAtEOF()
	}
}

// ensureSpace guarantees readHead < readStop, implementing the core
// design's four structural "out of space" cases: grow when the in-flight
// line/token already spans the whole buffer, slide the tail to offset 0
// once the consumer has drained past it, or wait for an outstanding
// wraparound region to be fully consumed before reclaiming the rest of
// the buffer for forward writes.
func (w *Worker) ensureSpace() error {
	for w.readHead == w.readStop {
		if w.circularLive() {
			if err := w.waitCircularCleared(); err != nil {
				return err
			}
			w.readStop = len(w.buf.Dst)
			continue
		}

		bufEnd := len(w.buf.Dst)
		switch {
		case w.readStop == bufEnd && w.curBlockStart == 0:
			// The in-flight line/token occupies the entire buffer with no
			// boundary found. Once capacity has reached the enforced
			// bound, the line provably exceeds it.
			bound := w.buf.EnforcedMaxLineLen
			if bound == 0 {
				bound = ringbuf.MaxTokenLen
			}
			if bufEnd >= bound {
				return linestreamerr.ErrMalformedInput
			}
			if !w.buf.Owned {
				return linestreamerr.ErrImproperFunctionCall
			}
			if err := w.grow(bufEnd + ringbuf.ChunkSize); err != nil {
				return err
			}

		case w.readStop == bufEnd:
			if err := w.waitConsumeTailAtLeast(w.curBlockStart); err != nil {
				return err
			}
			w.slideToFront()

		default:
			// Left over from a prior wrap whose circular region has
			// since cleared; reclaim the rest of the buffer.
			w.readStop = bufEnd
		}
	}
	return nil
}

// reportProgress invokes the caller's progress callback (if any) with
// the file's current offset and the cumulative decompressed byte count,
// after n more decompressed bytes have landed in the buffer.
func (w *Worker) reportProgress(n int) {
	if n <= 0 || w.progress == nil {
		return
	}
	w.dstPos += int64(n)
	srcPos, _ := w.f.Seek(0, io.SeekCurrent)
	w.progress(srcPos, w.dstPos)
}

func (w *Worker) circularLive() bool {
	h := w.h
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return h.Buf.CurCircularEnd >= 0
}

func (w *Worker) waitCircularCleared() error {
	h := w.h
	h.Mu.Lock()
	defer h.Mu.Unlock()
	for h.Buf.CurCircularEnd >= 0 {
		if err := w.checkInterruptLocked(); err != nil {
			return err
		}
		h.WaitConsumerProgress()
	}
	return nil
}

func (w *Worker) waitConsumeTailAtLeast(bound int) error {
	h := w.h
	h.Mu.Lock()
	defer h.Mu.Unlock()
	for h.Buf.ConsumeTail < bound {
		if err := w.checkInterruptLocked(); err != nil {
			return err
		}
		h.WaitConsumerProgress()
	}
	return nil
}

// checkInterruptLocked re-checks the pending interrupt before the caller
// blocks, so a request raised between the predicate check and the wait
// call is never missed (the condition a condvar's first-iteration check
// guards against). Must be called with h.Mu held.
func (w *Worker) checkInterruptLocked() error {
	switch {
	case w.h.Interrupt >= handoff.InterruptShutdown:
		return errShutdown
	case w.h.Interrupt >= handoff.InterruptRetarget:
		return errRetarget
	default:
		return nil
	}
}

// grow extends the shared buffer, which must be replaced under lock
// since the consumer reads buf.Dst directly.
func (w *Worker) grow(minCap int) error {
	h := w.h
	h.Mu.Lock()
	defer h.Mu.Unlock()
	if err := w.buf.Grow(minCap); err != nil {
		return err
	}
	w.readStop = len(w.buf.Dst)
	h.DstReallocated = true
	return nil
}

// slideToFront moves the unterminated tail [curBlockStart, readHead)
// down to offset 0. It is only reachable once waitConsumeTailAtLeast has
// confirmed the consumer has drained everything before curBlockStart, at
// which point ConsumeTail and AvailableEnd both equal curBlockStart and
// can be rebased to 0 together with the move.
func (w *Worker) slideToFront() {
	h := w.h
	dst := w.buf.Dst

	h.Mu.Lock()
	n := copy(dst, dst[w.curBlockStart:w.readHead])
	h.Buf.ConsumeTail = 0
	h.Buf.AvailableEnd = 0
	h.Mu.Unlock()

	w.readHead = n
	w.curBlockStart = 0
	w.scanFrom = 0
	w.readStop = len(dst)
}

// scanBoundary scans the newly-filled bytes [scanFrom, readHead) for a
// line boundary ('\n') or, in token-stream mode, the last run-ending
// whitespace byte, returning its absolute offset or -1 if none was
// found yet (advancing scanFrom so the next scan doesn't repeat work).
func (w *Worker) scanBoundary() int {
	dst := w.buf.Dst
	chunk := dst[w.scanFrom:w.readHead]

	var rel int
	if w.buf.EnforcedMaxLineLen == 0 {
		rel = bytes.LastIndexAny(chunk, " \t\r\n")
	} else {
		rel = bytes.LastIndexByte(chunk, '\n')
	}
	if rel < 0 {
		w.scanFrom = w.readHead
		return -1
	}
	return w.scanFrom + rel
}

// publishAndAdvance runs the long-line check over the just-completed
// line/token ending at end (exclusive), then decides whether to wrap —
// recycling the front of the buffer for the next forward region while
// publishing [curBlockStart, end) as a separate circular region — or to
// simply extend the forward region, and signals the consumer either way.
func (w *Worker) publishAndAdvance(end int) stepResult {
	dst := w.buf.Dst
	if err := ringbuf.CheckLineLength(dst, w.curBlockStart, 0, end, w.buf.EnforcedMaxLineLen); err != nil {
		return w.publishFatalAndWait(err)
	}

	h := w.h
	h.Mu.Lock()

	latestTail := h.Buf.ConsumeTail
	allLaterConsumed := latestTail <= w.curBlockStart
	wrapWorthwhile := h.Buf.CurCircularEnd < 0 &&
		allLaterConsumed &&
		latestTail >= ringbuf.ChunkSize

	if wrapWorthwhile {
		// The fill window is capped at ChunkSize, so the trailing bytes
		// being recycled to the front never reach latestTail.
		tailLen := copy(dst, dst[end:w.readHead])

		h.Buf.CurCircularEnd = end
		h.Buf.AvailableEnd = 0

		w.curBlockStart = 0
		w.readHead = tailLen
		w.scanFrom = 0
		w.readStop = latestTail &^ (cacheline - 1)
	} else {
		h.Buf.AvailableEnd = end
		if allLaterConsumed {
			w.readStop = len(dst)
		} else {
			// A wraparound region is still live behind us; stop short of
			// the consumer's tail (rounded down a cacheline to reduce
			// false sharing).
			w.readStop = latestTail &^ (cacheline - 1)
		}
		w.curBlockStart = end
		w.scanFrom = end
	}

	h.ClearConsumerProgressSticky()
	h.SignalReaderProgress()
	interrupted := h.Interrupt != handoff.InterruptNone
	h.Mu.Unlock()

	// A retarget/rewind/shutdown request may have arrived while this
	// fill was in flight; service it now rather than only at the next
	// point the loop would otherwise block, so Close()/Retarget() latency
	// isn't tied to how rarely this stream needs more buffer space.
	if interrupted {
		return w.awaitInterrupt()
	}
	return stepContinue
}

// finishAtEOF appends a synthetic newline if the stream didn't end on
// one, runs the final long-line check, publishes the last region (if
// any), and parks until the consumer raises an interrupt.
func (w *Worker) finishAtEOF() stepResult {
	dst := w.buf.Dst
	cur := w.readHead

	// cur < len(dst) always holds here: EOF is only recognized on a short
	// fill, so the window it came from has at least one unwritten byte.
	if cur > w.curBlockStart && dst[cur-1] != '\n' {
		dst[cur] = '\n'
		cur++
		w.readHead = cur
	}

	if cur > w.curBlockStart {
		if err := ringbuf.CheckLineLength(dst, w.curBlockStart, 0, cur, w.buf.EnforcedMaxLineLen); err != nil {
			return w.publishFatalAndWait(err)
		}
	}

	h := w.h
	h.Mu.Lock()
	if cur > w.curBlockStart {
		h.Buf.AvailableEnd = cur
	}
	h.Reterr = linestreamerr.EOF
	h.SignalReaderProgress()
	h.Mu.Unlock()

	return w.awaitInterrupt()
}

// publishFatalAndWait stores a terminal, non-EOF error and parks the
// worker until Close raises Shutdown; a fatal error is never cleared by
// a subsequent Retarget/Rewind.
func (w *Worker) publishFatalAndWait(err error) stepResult {
	h := w.h
	h.Mu.Lock()
	h.Reterr = err
	h.SignalReaderProgress()
	h.Mu.Unlock()
	return w.awaitShutdownOnly()
}

// awaitInterrupt parks until any interrupt is raised, then services a
// Retarget/Rewind request or exits on Shutdown.
func (w *Worker) awaitInterrupt() stepResult {
	h := w.h
	h.Mu.Lock()
	for h.Interrupt == handoff.InterruptNone {
		h.WaitConsumerProgress()
	}
	interrupt := h.Interrupt
	h.Mu.Unlock()

	if interrupt == handoff.InterruptShutdown {
		return stepExit
	}
	return w.serviceInterrupt()
}

// awaitShutdownOnly parks ignoring anything but Shutdown: once a fatal
// error has been latched, only Close can recover the worker.
func (w *Worker) awaitShutdownOnly() stepResult {
	h := w.h
	h.Mu.Lock()
	for h.Interrupt != handoff.InterruptShutdown {
		h.WaitConsumerProgress()
	}
	h.Mu.Unlock()
	return stepExit
}

// serviceInterrupt performs the pending Retarget/Rewind, resets local and
// shared state for a fresh read from the start of the (possibly new)
// file, and resumes the fill loop — unless the retarget attempt itself
// failed, in which case it falls back to awaiting Shutdown only.
func (w *Worker) serviceInterrupt() stepResult {
	h := w.h
	h.Mu.Lock()
	fname := h.NewFname
	hasFname := h.HasFname
	h.Mu.Unlock()

	err := w.retarget(fname, hasFname)

	h.Mu.Lock()
	if h.Interrupt >= handoff.InterruptShutdown {
		// Shutdown arrived while the retarget was in flight and takes
		// precedence; leave it raised so Close's handshake completes.
		h.SignalReaderProgress()
		h.Mu.Unlock()
		return stepExit
	}
	h.Interrupt = handoff.InterruptNone
	h.HasFname = false
	h.NewFname = ""
	h.Buf.ConsumeTail = 0
	h.Buf.AvailableEnd = 0
	h.Buf.CurCircularEnd = -1
	h.Reterr = err
	if err == nil {
		h.FileType = w.ft
	}
	h.SignalReaderProgress()
	h.Mu.Unlock()

	w.curBlockStart, w.readHead, w.scanFrom = 0, 0, 0
	w.readStop = len(w.buf.Dst)
	w.dstPos = 0

	if err != nil {
		return w.awaitShutdownOnly()
	}
	return stepContinue
}

// retarget implements the two kinds of interrupt-driven repositioning: a
// bare rewind (hasFname false) resets the current codec in place against
// the same, already-rewound file; a retarget to a new filename opens it,
// sniffs it, and either reuses the current codec (same type) or replaces
// it outright (different type).
func (w *Worker) retarget(fname string, hasFname bool) error {
	if !hasFname {
		if _, err := w.f.Seek(0, io.SeekStart); err != nil {
			return linestreamerr.WrapRead(err)
		}
		return w.cd.Rewind()
	}

	f, ft, probe, err := w.src.Open(fname)
	if err != nil {
		return err
	}

	if ft == w.ft {
		if err := w.cd.RetargetInPlace(f, probe); err != nil {
			f.Close()
			return err
		}
		w.f.Close()
		w.f, w.fname = f, fname
		return nil
	}

	cd, err := w.src.NewCodec(ft, f, probe)
	if err != nil {
		f.Close()
		return err
	}
	w.cd.Close()
	w.f.Close()
	w.f, w.ft, w.cd, w.fname = f, ft, cd, fname
	return nil
}
