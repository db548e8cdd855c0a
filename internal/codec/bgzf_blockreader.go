package codec

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// bgzfBlockHeaderLen is the fixed gzip header (12 bytes) plus the BGZF
// BC extra-field subfield (6 bytes): ID1,ID2,CM,FLG,MTIME(4),XFL,OS,
// XLEN(2),SI1,SI2,SLEN(2),BSIZE-1(2).
const bgzfBlockHeaderLen = 18

// bgzfTrailerLen is the gzip trailer: CRC32(4) + ISIZE(4).
const bgzfTrailerLen = 8

// bgzfMaxOutSize is the maximum decompressed size of a single BGZF block.
const bgzfMaxOutSize = 65536

// bgzfBlockReader reads whole, framed BGZF blocks sequentially off an
// open file, shifting unconsumed bytes to the front of a reused staging
// buffer and refilling in ChunkSize reads. It is shared by the
// sequential bgzfCodec and the dispatch goroutine of bgzfParallelCodec —
// both need identical block framing, only what happens to the payload
// afterward differs.
type bgzfBlockReader struct {
	f *os.File

	in       []byte
	inPos    int
	inLen    int
	probe    []byte
	probeN   int
	fileDone bool
}

func newBgzfBlockReader(f *os.File, probe []byte) *bgzfBlockReader {
	return &bgzfBlockReader{f: f, in: borrowChunk(), probe: probe}
}

// bgzfRawBlock is one framed block: its raw DEFLATE payload (valid only
// until the next Next call, unless copied out) and its declared
// decompressed size.
type bgzfRawBlock struct {
	payload []byte
	outSize int
}

// Next decodes the framing of the next block, returning io.EOF once the
// file is exhausted cleanly on a block boundary.
func (r *bgzfBlockReader) Next() (bgzfRawBlock, error) {
	hdr, err := r.ensure(bgzfBlockHeaderLen)
	if err != nil {
		return bgzfRawBlock{}, err
	}

	xlen := int(binary.LittleEndian.Uint16(hdr[10:12]))
	if xlen != 6 || hdr[12] != 'B' || hdr[13] != 'C' {
		return bgzfRawBlock{}, linestreamerr.ErrMalformedBgzf
	}
	bsizeMinus1 := int(binary.LittleEndian.Uint16(hdr[16:18]))
	blockLen := bsizeMinus1 + 1
	if blockLen < bgzfBlockHeaderLen+bgzfTrailerLen {
		return bgzfRawBlock{}, linestreamerr.ErrMalformedBgzf
	}

	payloadLen := blockLen - bgzfBlockHeaderLen - bgzfTrailerLen

	rest, err := r.ensure(blockLen)
	if err != nil {
		return bgzfRawBlock{}, linestreamerr.WrapDecompress(err)
	}

	payload := rest[bgzfBlockHeaderLen : bgzfBlockHeaderLen+payloadLen]
	trailer := rest[bgzfBlockHeaderLen+payloadLen : blockLen]
	outSize := int(binary.LittleEndian.Uint32(trailer[4:8]))
	if outSize > bgzfMaxOutSize {
		return bgzfRawBlock{}, linestreamerr.ErrMalformedBgzf
	}

	r.inPos += blockLen
	return bgzfRawBlock{payload: payload, outSize: outSize}, nil
}

// ensure guarantees at least n bytes are available at r.in[r.inPos:],
// refilling from the sniffed probe bytes and then the file.
func (r *bgzfBlockReader) ensure(n int) ([]byte, error) {
	if n > cap(r.in) {
		grown := make([]byte, n)
		copy(grown, r.in[r.inPos:r.inLen])
		r.inLen -= r.inPos
		r.inPos = 0
		r.in = grown
	}

	for r.inLen-r.inPos < n {
		if r.inPos > 0 {
			copy(r.in, r.in[r.inPos:r.inLen])
			r.inLen -= r.inPos
			r.inPos = 0
		}
		if r.inLen == cap(r.in) {
			grown := make([]byte, r.inLen*2)
			copy(grown, r.in[:r.inLen])
			r.in = grown
		}

		if r.probeN < len(r.probe) {
			cnt := copy(r.in[r.inLen:cap(r.in)], r.probe[r.probeN:])
			r.probeN += cnt
			r.inLen += cnt
			continue
		}

		if r.fileDone {
			if r.inLen-r.inPos == 0 {
				return nil, io.EOF
			}
			return nil, linestreamerr.ErrMalformedBgzf
		}

		cnt, err := readChunk(r.f, r.in[r.inLen:cap(r.in)])
		r.inLen += cnt
		if err == io.EOF {
			r.fileDone = true
		} else if err != nil {
			return nil, err
		}
	}

	return r.in[r.inPos : r.inPos+n], nil
}

func (r *bgzfBlockReader) reset(probe []byte) {
	r.inPos, r.inLen, r.fileDone = 0, 0, false
	r.probe, r.probeN = probe, 0
}

// retarget points the block reader at a different, already-open file,
// discarding any staged bytes from the previous file.
func (r *bgzfBlockReader) retarget(f *os.File, probe []byte) {
	r.f = f
	r.reset(probe)
}

func (r *bgzfBlockReader) close() {
	returnChunk(r.in)
	r.in = nil
}
