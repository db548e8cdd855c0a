package linestream

import (
	"bytes"
	"testing"
)

func TestCountNewlines(t *testing.T) {
	tests := map[string]struct {
		region       string
		k            int
		wantConsumed int
		wantFound    int
	}{
		"no newlines":             {region: "abcdefgh", k: 3, wantConsumed: 8, wantFound: 0},
		"exact single newline":    {region: "abc\ndef", k: 1, wantConsumed: 4, wantFound: 1},
		"stop at kth of several":  {region: "a\nb\nc\nd\n", k: 2, wantConsumed: 4, wantFound: 2},
		"want more than present":  {region: "a\nb\n", k: 5, wantConsumed: 4, wantFound: 2},
		"newline straddling word": {region: bytes32Plus("x", 10) + "\n" + "rest", k: 1, wantConsumed: 11, wantFound: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			consumed, found := countNewlines([]byte(tt.region), tt.k)
			if consumed != tt.wantConsumed || found != tt.wantFound {
				t.Fatalf("countNewlines(%q, %d) = (%d, %d), want (%d, %d)",
					tt.region, tt.k, consumed, found, tt.wantConsumed, tt.wantFound)
			}
		})
	}
}

func bytes32Plus(s string, n int) string {
	return string(bytes.Repeat([]byte(s), n))
}

func TestSkipNLines(t *testing.T) {
	fills := []string{"a\nb\n", "c\nd\ne\n"}
	i := 0
	var region []byte

	fill := func() error {
		if i >= len(fills) {
			return EOF
		}
		region = []byte(fills[i])
		i++
		return nil
	}

	if err := skipNLines(&region, 3, fill); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(region) != "d\ne\n" {
		t.Fatalf("got %q, want %q", region, "d\ne\n")
	}
}

func TestNextNonemptyLine(t *testing.T) {
	region := []byte("  \nfoo\n\t\nbar\n")
	lineNo := 0
	fill := func() error { return EOF }

	line, n, err := nextNonemptyLine(&region, &lineNo, fill)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(line) != "foo" || n != 2 {
		t.Fatalf("got (%q, %d), want (%q, %d)", line, n, "foo", 2)
	}

	line, n, err = nextNonemptyLine(&region, &lineNo, fill)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(line) != "bar" || n != 4 {
		t.Fatalf("got (%q, %d), want (%q, %d)", line, n, "bar", 4)
	}
}

func TestAdvanceRegion(t *testing.T) {
	var region []byte
	calls := 0
	fill := func() error {
		calls++
		region = []byte("payload")
		return nil
	}

	out, err := advanceRegion(&region, fill)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "payload" {
		t.Fatalf("got %q, want %q", out, "payload")
	}
	if calls != 1 {
		t.Fatalf("fill called %d times, want 1", calls)
	}
	if region != nil {
		t.Fatalf("region not cleared after hand-off")
	}
}
