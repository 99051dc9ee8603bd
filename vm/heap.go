package vm

// ---------------------------------------------------------------------------
// Heap allocator
// ---------------------------------------------------------------------------
//
// The @malloc/@mfree heap lives at the top of the memory image, starting
// at whatever endmem was when the first allocation activated it. The
// allocator is deliberately boring: live blocks are kept sorted by
// address and allocation is first-fit over the gaps. Boring is the point;
// two executions replayed from the same summary must hand out identical
// addresses, or save files would desynchronize.

// heapBlock records one live allocation.
type heapBlock struct {
	addr uint32
	size uint32
}

type heapState struct {
	active bool
	start  uint32
	blocks []heapBlock // sorted ascending by addr
}

func (h *heapState) clear() {
	h.active = false
	h.start = 0
	h.blocks = nil
}

// blocksByAddr sorts heap blocks by address for the OS adapter's sort
// primitive.
type blocksByAddr []heapBlock

func (b blocksByAddr) Len() int           { return len(b) }
func (b blocksByAddr) Less(i, j int) bool { return b[i].addr < b[j].addr }
func (b blocksByAddr) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

func roundUp256(val uint32) uint32 {
	return (val + 0xFF) &^ uint32(0xFF)
}

// HeapActive reports whether any allocations are live.
func (m *VM) HeapActive() bool {
	return m.heap.active
}

// HeapStart returns the base address of the heap, or zero if the heap has
// never been activated (or has emptied out).
func (m *VM) HeapStart() uint32 {
	if !m.heap.active {
		return 0
	}
	return m.heap.start
}

// HeapAlloc allocates size bytes on the heap and returns the address, or
// zero if the memory image could not grow to fit it. The first allocation
// activates the heap at the current end of memory.
func (m *VM) HeapAlloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, fatal("heap allocation of zero bytes")
	}

	h := &m.heap
	if !h.active {
		h.active = true
		h.start = m.endmem
	}

	// First fit: scan the gaps between live blocks.
	pos := h.start
	for ix, blk := range h.blocks {
		if blk.addr-pos >= size {
			h.blocks = append(h.blocks, heapBlock{})
			copy(h.blocks[ix+1:], h.blocks[ix:])
			h.blocks[ix] = heapBlock{addr: pos, size: size}
			return pos, nil
		}
		pos = blk.addr + blk.size
	}

	// No gap: place after the last block, growing memory if needed.
	if uint64(pos)+uint64(size) > uint64(m.endmem) {
		newlen := roundUp256(pos + size)
		res, err := m.changeMemSize(newlen, true)
		if err != nil {
			return 0, err
		}
		if res != 0 {
			return 0, nil
		}
	}
	h.blocks = append(h.blocks, heapBlock{addr: pos, size: size})
	return pos, nil
}

// HeapFree releases the block at addr. Freeing an address that is not a
// live block is a fatal condition. When the last block goes, the heap
// deactivates and memory shrinks back to where the heap began.
func (m *VM) HeapFree(addr uint32) error {
	h := &m.heap
	if !h.active {
		return fatalValue("heap free with no active heap", addr)
	}
	for ix, blk := range h.blocks {
		if blk.addr == addr {
			h.blocks = append(h.blocks[:ix], h.blocks[ix+1:]...)
			if len(h.blocks) == 0 {
				start := h.start
				h.clear()
				if _, err := m.changeMemSize(start, true); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return fatalValue("heap free of a bad address", addr)
}

// ---------------------------------------------------------------------------
// Heap summaries
// ---------------------------------------------------------------------------
//
// A summary is the serializable description of the live heap:
//
//	heapstart, blockcount, addr0, size0, addr1, size1, ...
//
// with blocks in ascending address order. Replaying allocations against
// ApplyHeapSummary reproduces the allocator's exact address choices.

// HeapSummary captures the live-allocation summary, or nil if the heap is
// inactive.
func (m *VM) HeapSummary() []uint32 {
	h := &m.heap
	if !h.active {
		return nil
	}
	summary := make([]uint32, 0, 2+2*len(h.blocks))
	summary = append(summary, h.start, uint32(len(h.blocks)))
	for _, blk := range h.blocks {
		summary = append(summary, blk.addr, blk.size)
	}
	return summary
}

// ApplyHeapSummary rebuilds heap state from a previously captured summary.
// The heap must be inactive. The summary's block order is not trusted;
// blocks are re-sorted, then checked for overlap and range before the
// memory image is grown to cover them.
func (m *VM) ApplyHeapSummary(summary []uint32) error {
	if m.heap.active {
		return fatal("cannot apply a heap summary over an active heap")
	}
	if len(summary) == 0 {
		return nil
	}
	if len(summary) < 2 || uint64(len(summary)) != 2+2*uint64(summary[1]) {
		return fatal("heap summary is malformed")
	}

	start := summary[0]
	count := summary[1]
	if count == 0 {
		return nil
	}
	if start < m.origendmem {
		return fatalValue("heap summary starts inside the memory image", start)
	}

	blocks := make([]heapBlock, count)
	for ix := range blocks {
		blocks[ix] = heapBlock{addr: summary[2+2*ix], size: summary[3+2*ix]}
	}
	m.os.Sort(blocksByAddr(blocks))

	end := start
	for _, blk := range blocks {
		if blk.addr < end || blk.size == 0 {
			return fatalValue("heap summary blocks overlap", blk.addr)
		}
		if uint64(blk.addr)+uint64(blk.size) > uint64(^uint32(0)) {
			return fatalValue("heap summary block out of range", blk.addr)
		}
		end = blk.addr + blk.size
	}

	newlen := roundUp256(end)
	if newlen < m.endmem {
		newlen = m.endmem
	}
	res, err := m.changeMemSize(newlen, true)
	if err != nil {
		return err
	}
	if res != 0 {
		return fatal("cannot grow memory to restore the heap")
	}

	m.heap.active = true
	m.heap.start = start
	m.heap.blocks = blocks
	return nil
}
