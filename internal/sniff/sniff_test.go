package sniff

import (
	"bytes"
	"compress/gzip"
	"testing"
)

func TestSniffUncompressed(t *testing.T) {
	tests := map[string]struct {
		in []byte
	}{
		"empty":       {in: nil},
		"short":       {in: []byte("ab")},
		"plain text":  {in: []byte("a\nb\nc\n")},
		"almost gzip": {in: []byte{0x1f, 0x8b, 0x01, 0x00}}, // CM != 8
		"not 1f8b":    {in: []byte{0x00, 0x01, 0x02, 0x03}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ft, probe, err := Sniff(bytes.NewReader(tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ft != Uncompressed {
				t.Fatalf("got %v, want Uncompressed", ft)
			}
			if !bytes.Equal(probe, tt.in) {
				t.Fatalf("probe bytes mismatch: got %v, want %v", probe, tt.in)
			}
		})
	}
}

func TestSniffGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("hello\nworld\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ft, probe, err := Sniff(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft != Gzip {
		t.Fatalf("got %v, want Gzip", ft)
	}
	if len(probe) == 0 {
		t.Fatalf("expected nonempty probe")
	}
}

func TestSniffBgzf(t *testing.T) {
	// A minimal BGZF-framed header: gzip fixed header with FEXTRA set and
	// a single BC subfield, exactly 16 bytes so the sniffer can recognize
	// it without needing the rest of the block.
	hdr := []byte{
		0x1f, 0x8b, 0x08, 0x04, // ID1 ID2 CM FLG(FEXTRA)
		0x00, 0x00, 0x00, 0x00, // MTIME
		0x00, 0xff, // XFL OS
		0x06, 0x00, // XLEN=6
		'B', 'C', // SI1 SI2
		0x02, 0x00, // SLEN=2
	}
	if len(hdr) != ProbeSize {
		t.Fatalf("test fixture length %d != %d", len(hdr), ProbeSize)
	}

	ft, probe, err := Sniff(bytes.NewReader(hdr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft != Bgzf {
		t.Fatalf("got %v, want Bgzf", ft)
	}
	if len(probe) != ProbeSize {
		t.Fatalf("expected full probe, got %d bytes", len(probe))
	}
}

func TestSniffGzipShortOfBgzfProbe(t *testing.T) {
	// Fewer than 16 bytes available (short file): even with FEXTRA/BC
	// present, classification must fall back to Gzip since the sniffer
	// can't confirm the full BGZF signature.
	hdr := []byte{
		0x1f, 0x8b, 0x08, 0x04,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0xff,
		0x06, 0x00,
		'B', 'C',
	}
	ft, _, err := Sniff(bytes.NewReader(hdr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft != Gzip {
		t.Fatalf("got %v, want Gzip", ft)
	}
}

func TestSniffZstd(t *testing.T) {
	// RFC 8478 frame magic, little-endian on the wire.
	magic := []byte{0x28, 0xb5, 0x2f, 0xfd}
	rest := []byte{0x00, 0x00, 0x00, 0x00}
	ft, _, err := Sniff(bytes.NewReader(append(magic, rest...)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft != Zstd {
		t.Fatalf("got %v, want Zstd", ft)
	}
}

func TestFileTypeString(t *testing.T) {
	tests := map[FileType]string{
		Uncompressed: "uncompressed",
		Gzip:         "gzip",
		Bgzf:         "bgzf",
		Zstd:         "zstd",
		FileType(99): "unknown",
	}
	for ft, want := range tests {
		if got := ft.String(); got != want {
			t.Errorf("FileType(%d).String() = %q, want %q", ft, got, want)
		}
	}
}
