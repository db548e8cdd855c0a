package codec

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// gzipCodec drives klauspost/compress/gzip's streaming inflate, reusing a
// single *gzip.Reader across Rewind/Retarget calls via Reset.
type gzipCodec struct {
	f   *os.File
	src *fileSource
	gr  *gzip.Reader
}

func newGzip(f *os.File, probe []byte) (*gzipCodec, error) {
	src := newFileSource(f, probe)
	gr, err := gzip.NewReader(src)
	if err != nil {
		return nil, wrapGzipErr(err)
	}
	return &gzipCodec{f: f, src: src, gr: gr}, nil
}

// FillInto loops gr.Read until dst is full or the gzip stream legitimately
// ends. A truncated deflate stream surfaces as io.ErrUnexpectedEOF from
// gr.Read itself, which is reported as a decompress failure rather than a
// clean io.EOF.
func (c *gzipCodec) FillInto(dst []byte) (int, error) {
	var n int
	for n < len(dst) {
		cnt, err := c.gr.Read(dst[n:])
		n += cnt
		if err != nil {
			if err == io.EOF {
				return n, io.EOF
			}
			return n, wrapGzipErr(err)
		}
		if cnt == 0 {
			break
		}
	}
	return n, nil
}

func (c *gzipCodec) Rewind() error {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return linestreamerr.WrapRead(err)
	}
	c.src.reset(nil)
	if err := c.gr.Reset(c.src); err != nil {
		return wrapGzipErr(err)
	}
	return nil
}

func (c *gzipCodec) RetargetInPlace(f *os.File, probe []byte) error {
	c.f = f
	c.src.retarget(f, probe)
	if err := c.gr.Reset(c.src); err != nil {
		return wrapGzipErr(err)
	}
	return nil
}

func (c *gzipCodec) Close() error {
	return c.gr.Close()
}

func wrapGzipErr(err error) error {
	return linestreamerr.WrapDecompress(err)
}
