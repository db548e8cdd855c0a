package linestream

import "github.com/linestream/linestream/internal/lsopts"

// OptT sets an option at open time, using the usual functional-options
// pattern: a slice of these is folded over a struct of defaults.
type OptT func(*lsopts.OptsT)

// WorkerPool is supplied by a caller that wants the parallel BGZF codec
// to share a pool with the rest of its program rather than spin up its
// own. gammazero/workerpool satisfies this directly.
type WorkerPool = lsopts.WorkerPool

// CbProgressT is the progress callback type for WithProgress.
type CbProgressT = lsopts.ProgressFuncT

// WithEnforcedMaxLineLen bounds the length of any single line (or, in
// token-stream mode, selected by passing 0, any single token). It must
// be at least the module's internal chunk size; 0 selects token-stream
// mode, where the boundary is the last whitespace-or-newline in a fill
// window rather than '\n' alone.
func WithEnforcedMaxLineLen(n int) OptT {
	return func(o *lsopts.OptsT) {
		o.EnforcedMaxLineLen = n
	}
}

// WithBuffer supplies a caller-owned buffer the core must never
// reallocate. len(dst) becomes the borrowed capacity, and must satisfy
// dst_capacity >= 2*CHUNK and enforced_max_line_blen+CHUNK >= dst_capacity.
func WithBuffer(dst []byte) OptT {
	return func(o *lsopts.OptsT) {
		o.Buffer = dst
	}
}

// WithDecompressThreadCount forwards to the parallel BGZF codec; n<=1
// keeps the sequential codec. Only meaningful for BGZF input.
func WithDecompressThreadCount(n int) OptT {
	return func(o *lsopts.OptsT) {
		o.DecompressThreadCt = n
	}
}

// WithWorkerPool supplies a pool for the parallel BGZF path. If unset,
// the parallel codec constructs its own gammazero/workerpool.
func WithWorkerPool(wp WorkerPool) OptT {
	return func(o *lsopts.OptsT) {
		o.WorkerPool = wp
	}
}

// WithProgress registers a callback invoked after each codec fill with
// the cumulative compressed bytes read and decompressed bytes produced.
func WithProgress(cb CbProgressT) OptT {
	return func(o *lsopts.OptsT) {
		if cb != nil {
			o.Handler = cb
		}
	}
}

func parseOpts(optFuncs ...OptT) lsopts.OptsT {
	raw := make([]func(*lsopts.OptsT), len(optFuncs))
	for i, f := range optFuncs {
		raw[i] = f
	}
	return lsopts.Parse(raw...)
}
