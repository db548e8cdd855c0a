// Package handoff implements the producer/consumer coordination
// primitive shared between a background reader goroutine and the
// consumer that drains its ring buffer: one mutex guarding the shared
// fields, and a pair of condition variables signaling progress in each
// direction.
package handoff

import (
	"sync"

	"github.com/linestream/linestream/internal/ringbuf"
	"github.com/linestream/linestream/internal/sniff"
)

// Interrupt is the consumer's request to the background reader. It is
// monotonic per request: raising Shutdown always wins over a pending
// Retarget, which always wins over None.
type Interrupt int

const (
	InterruptNone Interrupt = iota
	InterruptRetarget
	InterruptShutdown
)

// Handoff is shared between exactly one producer (the reader goroutine)
// and one consumer. Every field below is read or written only while
// holding Mu; Buf is the shared ring buffer whose index triple
// (ConsumeTail, AvailableEnd, CurCircularEnd) the same rule applies to.
type Handoff struct {
	Mu sync.Mutex

	Buf *ringbuf.Buffer

	// Reterr is the terminal status last observed by the reader: nil
	// while streaming, io.EOF (linestreamerr.EOF) at end of stream, or a
	// fatal error that persists until Close.
	Reterr error

	// DstReallocated is set whenever the reader has replaced Buf.Dst
	// with a newly allocated, larger slice. Byte offsets into Buf.Dst
	// stay valid across a reallocation (Grow always copies from index
	// 0), so no consumer-side pointer rebase is required; the flag is
	// kept as a signal a caller-instrumented Buffer inspector can
	// observe.
	DstReallocated bool

	Interrupt Interrupt
	NewFname  string
	HasFname  bool

	// FileType is the codec classification of the file currently being
	// read. It is set once before the reader goroutine starts and
	// updated after a successful retarget, so a consumer can inspect
	// which on-disk framing is in play (for logging or metrics) without
	// racing the background reader.
	FileType sniff.FileType

	consumerProgress       sync.Cond
	consumerProgressSticky bool
	readerProgress         sync.Cond
}

// New creates a Handoff over buf, binding both the readerProgress and
// consumerProgress condition variables to Mu via Cond.L assignment.
func New(buf *ringbuf.Buffer) *Handoff {
	h := &Handoff{Buf: buf}
	h.readerProgress.L = &h.Mu
	h.consumerProgress.L = &h.Mu
	return h
}

// SignalReaderProgress wakes any consumer parked in WaitReaderProgress.
// Must be called with Mu held.
func (h *Handoff) SignalReaderProgress() {
	h.readerProgress.Broadcast()
}

// WaitReaderProgress blocks until SignalReaderProgress is called. Must be
// called with Mu held; releases and reacquires it internally.
func (h *Handoff) WaitReaderProgress() {
	h.readerProgress.Wait()
}

// SignalConsumerProgress sets the sticky "consumer made progress" flag
// and wakes the reader. The flag is sticky (rather than a bare
// broadcast) so the reader does not miss a signal that arrives before it
// starts waiting, and so it tolerates the spurious wakeups sync.Cond
// permits. Must be called with Mu held.
func (h *Handoff) SignalConsumerProgress() {
	h.consumerProgressSticky = true
	h.consumerProgress.Broadcast()
}

// ClearConsumerProgressSticky drops a stale signal so a later
// WaitConsumerProgress call only returns for progress that happens after
// this point. Must be called with Mu held.
func (h *Handoff) ClearConsumerProgressSticky() {
	h.consumerProgressSticky = false
}

// WaitConsumerProgress blocks until the sticky flag has been set at
// least once since it was last consumed, then consumes it. Must be
// called with Mu held.
func (h *Handoff) WaitConsumerProgress() {
	for !h.consumerProgressSticky {
		h.consumerProgress.Wait()
	}
	h.consumerProgressSticky = false
}

// Raise sets Interrupt to i unless a higher-precedence interrupt is
// already pending (Shutdown > Retarget > None). Must be called with Mu
// held.
func (h *Handoff) Raise(i Interrupt) {
	if i > h.Interrupt {
		h.Interrupt = i
	}
}
