package codec

import (
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// zstdCodec drives klauspost/compress/zstd's streaming decoder, keeping a
// single *zstd.Decoder alive across Rewind/Retarget calls via Reset rather
// than allocating a fresh one each time.
type zstdCodec struct {
	f   *os.File
	src *fileSource
	dec *zstd.Decoder
}

func newZstd(f *os.File, probe []byte) (*zstdCodec, error) {
	src := newFileSource(f, probe)
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, linestreamerr.WrapDecompress(err)
	}
	return &zstdCodec{f: f, src: src, dec: dec}, nil
}

func (c *zstdCodec) FillInto(dst []byte) (int, error) {
	var n int
	for n < len(dst) {
		cnt, err := c.dec.Read(dst[n:])
		n += cnt
		if err != nil {
			if err == io.EOF {
				return n, io.EOF
			}
			return n, linestreamerr.WrapDecompress(err)
		}
		if cnt == 0 {
			break
		}
	}
	return n, nil
}

func (c *zstdCodec) Rewind() error {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return linestreamerr.WrapRead(err)
	}
	c.src.reset(nil)
	if err := c.dec.Reset(c.src); err != nil {
		return linestreamerr.WrapDecompress(err)
	}
	return nil
}

func (c *zstdCodec) RetargetInPlace(f *os.File, probe []byte) error {
	c.f = f
	c.src.retarget(f, probe)
	if err := c.dec.Reset(c.src); err != nil {
		return linestreamerr.WrapDecompress(err)
	}
	return nil
}

func (c *zstdCodec) Close() error {
	c.dec.Close()
	return nil
}
