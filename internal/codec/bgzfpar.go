package codec

import (
	"io"
	"os"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/klauspost/compress/flate"

	"github.com/linestream/linestream/internal/linestreamerr"
)

// bgzfParallelCodec decompresses BGZF blocks across a worker pool: one
// dispatcher goroutine reads block framing sequentially off the file and
// hands payloads to pool workers over inChan, which may finish out of
// order; a pending map keyed by block index reassembles results in order
// before FillInto hands them to the caller.
type bgzfParallelCodec struct {
	blocks   *bgzfBlockReader
	wp       WorkerPool
	ownPool  bool
	nWorkers int

	inChan   chan inBgzfBlk
	outChan  chan outBgzfBlk
	finChan  chan struct{}
	semChan  chan struct{}
	dispDone chan struct{}
	pending  map[int]outBgzfBlk
	nextIdx  int
	wg       sync.WaitGroup

	out    []byte
	outPos int
	outLen int

	// term latches the terminal status (io.EOF or a failure) once the
	// in-order drain has delivered it, so further FillInto calls return
	// it immediately instead of blocking on a drained pipeline. Cleared
	// by Rewind/RetargetInPlace.
	term error
}

type inBgzfBlk struct {
	idx     int
	payload []byte
	outSize int
}

type outBgzfBlk struct {
	idx  int
	data []byte
	n    int
	err  error
}

func newBgzfParallel(f *os.File, probe []byte, opts Options) (*bgzfParallelCodec, error) {
	n := opts.DecompressThreadCt
	if n < 1 {
		n = 1
	}

	c := &bgzfParallelCodec{
		blocks:   newBgzfBlockReader(f, probe),
		wp:       opts.WorkerPool,
		nWorkers: n,
	}
	if c.wp == nil {
		c.wp = workerpool.New(n)
		c.ownPool = true
	}
	c.start()
	return c, nil
}

func (c *bgzfParallelCodec) start() {
	c.inChan = make(chan inBgzfBlk)
	c.outChan = make(chan outBgzfBlk)
	c.finChan = make(chan struct{})
	c.semChan = make(chan struct{}, c.nWorkers*2)
	c.dispDone = make(chan struct{})
	c.pending = make(map[int]outBgzfBlk, c.nWorkers)
	c.nextIdx = 0
	c.outPos, c.outLen = 0, 0
	c.term = nil

	go c.dispatch()

	c.wg.Add(c.nWorkers)
	for range c.nWorkers {
		c.wp.Submit(c.decompressLoop)
	}
}

func (c *bgzfParallelCodec) dispatch() {
	defer close(c.dispDone)

	idx, err := c.readLoop()
	close(c.inChan)
	close(c.semChan)
	if err != nil {
		select {
		case c.outChan <- outBgzfBlk{idx: idx, err: err}:
		case <-c.finChan:
		}
	}
}

func (c *bgzfParallelCodec) readLoop() (int, error) {
	idx := 0
LOOP:
	for {
		select {
		case c.semChan <- struct{}{}:
		case <-c.finChan:
			break LOOP
		}

		blk, err := c.blocks.Next()
		if err != nil {
			return idx, err
		}

		payload := append(borrowPayload(len(blk.payload)), blk.payload...)

		select {
		case c.inChan <- inBgzfBlk{idx: idx, payload: payload, outSize: blk.outSize}:
		case <-c.finChan:
			returnPayload(payload)
			break LOOP
		}
		idx++
	}
	return idx, nil
}

func (c *bgzfParallelCodec) decompressLoop() {
	defer c.wg.Done()

	var fr io.ReadCloser
	frInit := false

LOOP:
	for blk := range c.inChan {
		var (
			data []byte
			n    int
			err  error
		)
		if blk.outSize > 0 {
			data = make([]byte, blk.outSize)
			pr := &payloadReader{data: blk.payload}
			if !frInit {
				fr = flate.NewReader(pr)
				frInit = true
			} else {
				err = fr.(flate.Resetter).Reset(pr, nil)
			}
			if err == nil {
				// A block that inflates to fewer bytes than its declared
				// ISIZE is corrupt, same as a corrupt body.
				n, err = io.ReadFull(fr, data)
			}
			if err != nil {
				err = linestreamerr.WrapDecompress(err)
			}
		}
		returnPayload(blk.payload)

		select {
		case c.outChan <- outBgzfBlk{idx: blk.idx, data: data, n: n, err: err}:
		case <-c.finChan:
			break LOOP
		}
	}

	if frInit {
		fr.Close()
	}
}

// FillInto drains decoded blocks in order, the parallel-codec analogue of
// bgzfCodec.FillInto.
func (c *bgzfParallelCodec) FillInto(dst []byte) (int, error) {
	var n int

	for n < len(dst) {
		if c.outPos < c.outLen {
			cnt := copy(dst[n:], c.out[c.outPos:c.outLen])
			c.outPos += cnt
			n += cnt
			continue
		}

		if c.term != nil {
			return n, c.term
		}

		data, dn, err := c.nextBlock()
		if err != nil {
			c.term = err
			if err == io.EOF {
				return n, io.EOF
			}
			return n, err
		}
		c.out, c.outPos, c.outLen = data, 0, dn
		if dn == 0 {
			continue
		}
	}
	return n, nil
}

func (c *bgzfParallelCodec) nextBlock() ([]byte, int, error) {
	if p, ok := c.pending[c.nextIdx]; ok {
		<-c.semChan
		delete(c.pending, c.nextIdx)
		c.nextIdx++
		return p.data, p.n, p.err
	}

	for {
		blk, ok := <-c.outChan
		if !ok {
			return nil, 0, io.EOF
		}
		if blk.idx == c.nextIdx {
			<-c.semChan
			c.nextIdx++
			return blk.data, blk.n, blk.err
		}
		c.pending[blk.idx] = blk
	}
}

func (c *bgzfParallelCodec) stop() {
	select {
	case <-c.finChan:
		return
	default:
	}
	close(c.finChan)
	// The dispatcher must be fully gone before start() may reassign the
	// channels it closes; every point it can block on selects finChan.
	<-c.dispDone
	c.wg.Wait()

	for range c.inChan {
	}

drain:
	for {
		select {
		case <-c.outChan:
		default:
			break drain
		}
	}
	c.pending = nil
}

func (c *bgzfParallelCodec) Rewind() error {
	c.stop()
	if _, err := c.blocks.f.Seek(0, io.SeekStart); err != nil {
		return linestreamerr.WrapRead(err)
	}
	c.blocks.reset(nil)
	c.start()
	return nil
}

func (c *bgzfParallelCodec) RetargetInPlace(f *os.File, probe []byte) error {
	c.stop()
	c.blocks.retarget(f, probe)
	c.start()
	return nil
}

func (c *bgzfParallelCodec) Close() error {
	c.stop()
	c.blocks.close()
	if c.ownPool {
		c.wp.(*workerpool.WorkerPool).StopWait()
	}
	return nil
}

var payloadPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, bgzfMaxOutSize+bgzfBlockHeaderLen+bgzfTrailerLen)
		return &b
	},
}

func borrowPayload(minCap int) []byte {
	p := *(payloadPool.Get().(*[]byte))
	if cap(p) < minCap {
		return make([]byte, 0, minCap)
	}
	return p[:0]
}

func returnPayload(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:0]
	payloadPool.Put(&b)
}
