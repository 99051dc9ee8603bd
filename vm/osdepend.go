package vm

import (
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// OS adapter
// ---------------------------------------------------------------------------
//
// The engine's own logic is host-independent; the few primitives it needs
// from the host sit behind this seam so tests (and unusual hosts) can
// substitute their own.

// OSAdapter supplies host primitives: allocation, stable sorting, and the
// IEEE power functions.
type OSAdapter interface {
	// Alloc returns a zeroed block of the given size, or nil on failure.
	Alloc(size uint32) []byte

	// Realloc resizes a block with ANSI semantics: on failure it returns
	// nil and the original block is untouched. The contents are preserved
	// up to the smaller of the old and new sizes.
	Realloc(block []byte, size uint32) []byte

	// Free releases a block. For garbage-collected hosts this may be a
	// no-op.
	Free(block []byte)

	// Sort performs a stable comparator sort.
	Sort(data sort.Interface)

	// Pow is the host's raw double-precision power function. Callers go
	// through the VM's Pow/Powf wrappers, which handle the special cases
	// the host is not trusted with.
	Pow(x, y float64) float64
}

// HostOS is the default OSAdapter backed by the Go runtime.
type HostOS struct{}

func (HostOS) Alloc(size uint32) []byte {
	return make([]byte, size)
}

func (HostOS) Realloc(block []byte, size uint32) []byte {
	if uint64(size) == uint64(len(block)) {
		return block
	}
	next := make([]byte, size)
	copy(next, block)
	return next
}

func (HostOS) Free(block []byte) {}

func (HostOS) Sort(data sort.Interface) {
	sort.Stable(data)
}

func (HostOS) Pow(x, y float64) float64 {
	return math.Pow(x, y)
}

// ---------------------------------------------------------------------------
// Power functions
// ---------------------------------------------------------------------------
//
// The special cases are pinned down here, ahead of the host function:
// x^0 is 1 for every x including NaN, 1^y is 1 for every y, and
// (-1)^(+/-inf) is 1.

// Powf computes x**y in single precision.
func (m *VM) Powf(x, y float32) float32 {
	if x == 1.0 {
		return 1.0
	}
	if y == 0.0 { // matches -0.0 as well
		return 1.0
	}
	if x == -1.0 && math.IsInf(float64(y), 0) {
		return 1.0
	}
	return float32(m.os.Pow(float64(x), float64(y)))
}

// Pow computes x**y in double precision.
func (m *VM) Pow(x, y float64) float64 {
	if x == 1.0 {
		return 1.0
	}
	if y == 0.0 {
		return 1.0
	}
	if x == -1.0 && math.IsInf(y, 0) {
		return 1.0
	}
	return m.os.Pow(x, y)
}
