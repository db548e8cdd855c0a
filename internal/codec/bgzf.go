package codec

import (
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// bgzfCodec loops over complete BGZF blocks, decoding each one's raw
// DEFLATE payload with a single flate.Reader reused across blocks via
// flate.Resetter instead of being reallocated per block.
type bgzfCodec struct {
	blocks *bgzfBlockReader

	fr     io.ReadCloser
	frInit bool

	out    []byte
	outPos int
	outLen int
}

func newBgzf(f *os.File, probe []byte) (*bgzfCodec, error) {
	return &bgzfCodec{
		blocks: newBgzfBlockReader(f, probe),
		out:    make([]byte, bgzfMaxOutSize),
	}, nil
}

func (c *bgzfCodec) FillInto(dst []byte) (int, error) {
	var n int

	for n < len(dst) {
		if c.outPos < c.outLen {
			cnt := copy(dst[n:], c.out[c.outPos:c.outLen])
			c.outPos += cnt
			n += cnt
			continue
		}

		blk, err := c.blocks.Next()
		if err != nil {
			if err == io.EOF {
				return n, io.EOF
			}
			return n, err
		}

		if blk.outSize == 0 {
			// EOF-marker-style empty block: keep going without
			// reporting progress.
			c.outPos, c.outLen = 0, 0
			continue
		}

		written, err := c.inflate(blk.payload, c.out[:blk.outSize])
		if err != nil {
			return n, err
		}
		c.outPos, c.outLen = 0, written
	}
	return n, nil
}

func (c *bgzfCodec) inflate(payload, dst []byte) (int, error) {
	pr := &payloadReader{data: payload}
	if !c.frInit {
		c.fr = flate.NewReader(pr)
		c.frInit = true
	} else if err := c.fr.(flate.Resetter).Reset(pr, nil); err != nil {
		return 0, linestreamerr.WrapDecompress(err)
	}

	// A block that inflates to fewer bytes than its declared ISIZE is
	// corrupt, same as a corrupt body.
	n, err := io.ReadFull(c.fr, dst)
	if err != nil {
		return n, linestreamerr.WrapDecompress(err)
	}
	return n, nil
}

func (c *bgzfCodec) Rewind() error {
	if _, err := c.blocks.f.Seek(0, io.SeekStart); err != nil {
		return linestreamerr.WrapRead(err)
	}
	c.blocks.reset(nil)
	c.outPos, c.outLen = 0, 0
	return nil
}

func (c *bgzfCodec) RetargetInPlace(f *os.File, probe []byte) error {
	c.blocks.retarget(f, probe)
	c.outPos, c.outLen = 0, 0
	return nil
}

func (c *bgzfCodec) Close() error {
	c.blocks.close()
	if c.fr != nil {
		return c.fr.Close()
	}
	return nil
}

// payloadReader is a minimal io.Reader over an in-memory BGZF block
// payload, used so flate.Reader can be Reset cheaply per block without
// an intermediate bytes.Reader allocation each time.
type payloadReader struct {
	data []byte
	pos  int
}

func (r *payloadReader) Read(dst []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(dst, r.data[r.pos:])
	r.pos += n
	return n, nil
}
