package linestream

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linestream/linestream/internal/ringbuf"
)

// Borrowed-buffer capacity invariants are checked up front at open time,
// rather than deferred to the first time the reader thread needs more
// room.
func TestOpenRejectsUndersizedBorrowedBuffer(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.txt")
	if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tooSmall := make([]byte, ringbuf.ChunkSize) // < 2*ChunkSize
	if _, err := OpenFile(p, WithBuffer(tooSmall)); !errors.Is(err, ErrImproperFunctionCall) {
		t.Fatalf("got %v, want ErrImproperFunctionCall", err)
	}
}

func TestOpenRejectsMaxLineLenBelowChunkSize(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.txt")
	if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := OpenFile(p, WithEnforcedMaxLineLen(ringbuf.ChunkSize-1)); !errors.Is(err, ErrImproperFunctionCall) {
		t.Fatalf("got %v, want ErrImproperFunctionCall", err)
	}
}

func TestWithProgressCallback(t *testing.T) {
	dir := t.TempDir()
	payload := make([]byte, 0, 2*ringbuf.ChunkSize)
	for len(payload) < 2*ringbuf.ChunkSize {
		payload = append(payload, []byte("0123456789\n")...)
	}
	p := filepath.Join(dir, "progress.txt")
	if err := os.WriteFile(p, payload, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var calls int
	var lastDst int64
	rf, err := OpenFile(p, WithProgress(func(srcPos, dstPos int64) {
		calls++
		lastDst = dstPos
	}))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer rf.Close()

	for {
		_, err := rf.Advance()
		if errors.Is(err, EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	if calls == 0 {
		t.Fatalf("expected progress callback to be invoked")
	}
	if lastDst != int64(len(payload)) {
		t.Fatalf("got final dstPos %d, want %d", lastDst, len(payload))
	}
}
