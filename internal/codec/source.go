package codec

import "os"

// fileSource is an io.Reader over an *os.File that first replays a probe
// prefix (bytes already consumed by sniff.Sniff) before reading fresh
// bytes from the file, in ChunkSize-bounded chunks. Streaming codecs
// (gzip, zstd) wrap one of these as their underlying io.Reader so they
// never need to special-case "the first 16 bytes were already stolen".
type fileSource struct {
	f      *os.File
	probe  []byte
	probeN int
}

func newFileSource(f *os.File, probe []byte) *fileSource {
	return &fileSource{f: f, probe: probe}
}

func (s *fileSource) Read(dst []byte) (int, error) {
	if s.probeN < len(s.probe) {
		n := copy(dst, s.probe[s.probeN:])
		s.probeN += n
		return n, nil
	}
	return readChunk(s.f, dst)
}

// reset rewinds the probe replay, used after a codec-local Rewind/Reset
// so streaming decompressors that call Read again from byte 0 of the
// frame see the same probe bytes they saw the first time.
func (s *fileSource) reset(probe []byte) {
	s.probe = probe
	s.probeN = 0
}

// retarget points the source at a different, already-open file, used
// when RetargetInPlace is retargeting onto a new filename of the same
// codec type rather than rewinding the current one.
func (s *fileSource) retarget(f *os.File, probe []byte) {
	s.f = f
	s.reset(probe)
}
