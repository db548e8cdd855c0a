package codec

import (
	"io"
	"os"
)

// uncompressedCodec is the trivial arm: plain file reads, issued in
// ChunkSize-bounded chunks so a single FillInto call never blocks on an
// oversized single-shot I/O request.
type uncompressedCodec struct {
	f      *os.File
	probe  []byte
	probeN int
}

func newUncompressed(f *os.File, probe []byte) *uncompressedCodec {
	return &uncompressedCodec{f: f, probe: probe}
}

func (c *uncompressedCodec) FillInto(dst []byte) (int, error) {
	var n int

	if c.probeN < len(c.probe) {
		cnt := copy(dst, c.probe[c.probeN:])
		c.probeN += cnt
		n += cnt
		dst = dst[cnt:]
	}

	for len(dst) > 0 {
		cnt, err := readChunk(c.f, dst)
		n += cnt
		dst = dst[cnt:]
		if err != nil {
			if err == io.EOF {
				return n, io.EOF
			}
			return n, err
		}
		if cnt == 0 {
			break
		}
	}
	return n, nil
}

func (c *uncompressedCodec) Rewind() error {
	c.probeN = len(c.probe)
	return nil
}

func (c *uncompressedCodec) RetargetInPlace(f *os.File, probe []byte) error {
	c.f = f
	c.probe = probe
	c.probeN = 0
	return nil
}

func (c *uncompressedCodec) Close() error {
	return nil
}
