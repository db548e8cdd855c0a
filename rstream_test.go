package linestream

import (
	"bytes"
	"compress/gzip"
	"errors"
	"testing"

	"github.com/linestream/linestream/internal/ringbuf"
)

// Same scenarios as rfile_test.go's, but against the asynchronous Rstream,
// exercising the background-goroutine/handoff path instead of the
// synchronous one.

func TestRstreamScenarioSimpleLines(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "simple.txt", []byte("a\nb\nc\n"))

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	regions := drainAll(t, rs)
	if len(regions) != 1 || string(regions[0]) != "a\nb\nc\n" {
		t.Fatalf("got %q, want single region %q", regions, "a\nb\nc\n")
	}
}

func TestRstreamScenarioSyntheticNewline(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "hello.txt", []byte("hello"))

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	regions := drainAll(t, rs)
	if len(regions) != 1 || string(regions[0]) != "hello\n" {
		t.Fatalf("got %q, want %q", regions, "hello\n")
	}
}

func TestRstreamScenarioEmptyFile(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "empty.txt", nil)

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	if _, err := rs.Advance(); !errors.Is(err, EOF) {
		t.Fatalf("got %v, want Eof", err)
	}
}

// Streams more than 3×ChunkSize of short lines through the 2×ChunkSize
// ring buffer, so the producer must recycle buffer space while the
// consumer drains it, and checks that the regions reassemble to the input.
// With 44-byte lines no region ends at or past ChunkSize before the buffer
// fills, so the space is recycled by reader.Worker.slideToFront; the
// wraparound-publish branch in publishAndAdvance is not reached by this
// input.
func TestRstreamWraparound(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	lineCount := 0
	for buf.Len() < 3*ringbuf.ChunkSize {
		buf.WriteString("the quick brown fox jumps over the lazy dog\n")
		lineCount++
	}
	p := writeTempFile(t, dir, "many.txt", buf.Bytes())

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	var reassembled bytes.Buffer
	regions := 0
	for {
		r, err := rs.Advance()
		if errors.Is(err, EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		reassembled.Write(r)
		regions++
	}

	if !bytes.Equal(reassembled.Bytes(), buf.Bytes()) {
		t.Fatalf("reassembled content does not match input (got %d bytes, want %d)",
			reassembled.Len(), buf.Len())
	}
	if regions < 2 {
		t.Fatalf("expected multiple regions from a wrapping buffer, got %d", regions)
	}
}

func TestRstreamGzipRewind(t *testing.T) {
	dir := t.TempDir()
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write([]byte("line1\nline2\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	p := writeTempFile(t, dir, "lines.gz", gz.Bytes())

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	first := drainAll(t, rs)
	if err := rs.Rewind(); err != nil {
		t.Fatalf("Rewind: %v", err)
	}
	second := drainAll(t, rs)

	joinedFirst := bytes.Join(first, nil)
	joinedSecond := bytes.Join(second, nil)
	if !bytes.Equal(joinedFirst, joinedSecond) {
		t.Fatalf("rewind produced different bytes: %q vs %q", joinedFirst, joinedSecond)
	}
	if string(joinedFirst) != "line1\nline2\n" {
		t.Fatalf("got %q, want %q", joinedFirst, "line1\nline2\n")
	}
}

func TestRstreamRetargetAcrossCodecs(t *testing.T) {
	dir := t.TempDir()
	aPath := writeTempFile(t, dir, "a.txt", []byte("a1\n"))

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write([]byte("b1\nb2\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	bPath := writeTempFile(t, dir, "b.gz", gz.Bytes())

	rs, err := Open(aPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	region, err := rs.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if string(region) != "a1\n" {
		t.Fatalf("got %q, want %q", region, "a1\n")
	}

	if err := rs.Retarget(bPath); err != nil {
		t.Fatalf("Retarget: %v", err)
	}

	regions := drainAll(t, rs)
	joined := bytes.Join(regions, nil)
	if string(joined) != "b1\nb2\n" {
		t.Fatalf("got %q, want %q", joined, "b1\nb2\n")
	}
}

func TestRstreamSkipNLines(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "lines.txt", []byte("1\n2\n3\n4\n5\n"))

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	if err := rs.SkipNLines(3); err != nil {
		t.Fatalf("SkipNLines: %v", err)
	}

	region, err := rs.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if string(region) != "4\n5\n" {
		t.Fatalf("got %q, want %q", region, "4\n5\n")
	}
}

func TestRstreamCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "x.txt", []byte("x\n"))

	rs, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rs.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// Promote carries the in-flight tail of an already-started Rfile into a
// freshly started Rstream without losing or duplicating bytes.
func TestPromote(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "promote.txt", []byte("a\nb\nc\nd\n"))

	rf, err := OpenFile(p)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	first, err := rf.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if string(first) != "a\nb\nc\nd\n" {
		t.Fatalf("got %q, want %q", first, "a\nb\nc\nd\n")
	}

	rs, err := rf.Promote()
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	defer rs.Close()

	if _, err := rs.Advance(); !errors.Is(err, EOF) {
		t.Fatalf("got %v, want Eof after promoting past the only region", err)
	}
}

// Promoting mid-region keeps the not-yet-drained remainder: lines the
// Rfile never handed out reappear, exactly once, from the Rstream.
func TestPromotePartiallyConsumed(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "partial.txt", []byte("a\nb\nc\nd\n"))

	rf, err := OpenFile(p)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	line, lineNo, err := rf.NextNonemptyLine()
	if err != nil {
		t.Fatalf("NextNonemptyLine: %v", err)
	}
	if string(line) != "a" || lineNo != 1 {
		t.Fatalf("got (%q, %d), want (%q, 1)", line, lineNo, "a")
	}

	rs, err := rf.Promote()
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	defer rs.Close()

	regions := drainAll(t, rs)
	joined := bytes.Join(regions, nil)
	if string(joined) != "b\nc\nd\n" {
		t.Fatalf("got %q, want %q", joined, "b\nc\nd\n")
	}
}

// Scenario 4 against the asynchronous reader: a line exceeding the
// enforced bound is rejected rather than growing the buffer forever.
func TestRstreamLongLineRejected(t *testing.T) {
	dir := t.TempDir()
	payload := append(bytes.Repeat([]byte("x"), 3*ringbuf.ChunkSize), '\n')
	p := writeTempFile(t, dir, "toolong.txt", payload)

	rs, err := Open(p, WithEnforcedMaxLineLen(2*ringbuf.ChunkSize))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rs.Close()

	if _, err := rs.Advance(); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("got %v, want ErrMalformedInput", err)
	}
}
