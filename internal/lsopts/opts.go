// Package lsopts holds the parsed open-time configuration shared by
// Rfile and Rstream: a single options struct built by folding functional
// options over a set of defaults.
package lsopts

// ProgressFuncT is invoked after each codec fill (srcPos, dstPos are the
// raw compressed and decompressed byte counts consumed/produced so far).
type ProgressFuncT func(srcPos, dstPos int64)

// WorkerPool is the subset of a worker-pool dependency the parallel BGZF
// codec needs; gammazero/workerpool satisfies this directly, and so does
// any caller-supplied pool with a compatible Submit method.
type WorkerPool interface {
	Submit(task func())
}

// OptsT is the fully-parsed option set. Zero value is not meaningful on
// its own; always build one via Parse.
type OptsT struct {
	EnforcedMaxLineLen int
	Buffer             []byte
	DecompressThreadCt int
	WorkerPool         WorkerPool
	Handler            ProgressFuncT
}

// Parse folds optFuncs over the module's defaults. Handler stays nil
// unless set; a nil handler skips the per-fill file-offset lookup
// entirely.
func Parse(optFuncs ...func(*OptsT)) OptsT {
	o := OptsT{
		EnforcedMaxLineLen: DefaultEnforcedMaxLineLen,
		DecompressThreadCt: 1,
	}
	for _, f := range optFuncs {
		f(&o)
	}
	return o
}

// DefaultEnforcedMaxLineLen is a generous, caller-tunable default: large
// enough that ordinary text lines never trip it, small enough that a
// pathological line is still bounded.
const DefaultEnforcedMaxLineLen = 64 << 20 // 64 MiB
