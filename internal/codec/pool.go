package codec

import "sync"

// ChunkSize is the fixed decompression/read unit and the minimum
// borrowed-buffer capacity divisor.
const ChunkSize = 1 << 20 // 1 MiB

// chunkPool reuses ChunkSize-sized staging buffers across codec instances:
// a BGZF block reader borrows one when it is constructed and returns it on
// Close. The gzip and Zstd arms do not use it.
var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

func borrowChunk() []byte {
	return *(chunkPool.Get().(*[]byte))
}

func returnChunk(b []byte) {
	if cap(b) != ChunkSize {
		return
	}
	b = b[:ChunkSize]
	chunkPool.Put(&b)
}
