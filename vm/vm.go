package vm

// ---------------------------------------------------------------------------
// VM: one Glulx machine instance
// ---------------------------------------------------------------------------
//
// All interpreter state lives in an explicit VM value owned by the caller.
// Multiple instances may coexist; each owns its own memory image, stack,
// and cursors, and nothing here is shared or locked. Execution is strictly
// synchronous: every operation runs to completion before control returns
// to the dispatcher.

// VM holds the complete state of one running machine.
type VM struct {
	memmap []byte // the memory image, length endmem
	stack  []byte // the call-frame/value stack, length stacksize

	gamefile []byte // the original image, preserved for restart
	header   Header

	ramstart   uint32 // start of writable RAM
	endmem     uint32 // current end of the memory image
	origendmem uint32 // ENDMEM as loaded; memory never shrinks below this
	stacksize  uint32 // fixed stack capacity

	// Execution cursors. The dispatcher reads and writes these directly.
	PC       uint32
	PrevPC   uint32
	StackPtr uint32
	FramePtr uint32

	// Derived frame boundaries, recomputed on every frame change.
	valstackbase uint32
	localsbase   uint32

	memCeiling uint32 // resize ceiling; 0 means unbounded
	heap       heapState
	os         OSAdapter
}

// Options configures a new VM instance.
type Options struct {
	// MemCeiling caps ChangeMemSize growth. Zero means no ceiling.
	MemCeiling uint32

	// SkipVerify disables the gamefile checksum check at setup.
	SkipVerify bool

	// OS overrides the host adapter. Nil selects HostOS.
	OS OSAdapter
}

// NewVM validates a gamefile image and builds a machine ready for its
// start function to be entered. The image bytes are copied; the caller may
// reuse the slice.
func NewVM(data []byte, opts Options) (*VM, error) {
	if err := initFloat(); err != nil {
		return nil, err
	}

	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if !opts.SkipVerify {
		if err := VerifyChecksum(data); err != nil {
			return nil, err
		}
	}

	os := opts.OS
	if os == nil {
		os = HostOS{}
	}

	m := &VM{
		gamefile:   append([]byte(nil), data...),
		header:     h,
		ramstart:   h.RAMStart,
		endmem:     h.EndMem,
		origendmem: h.EndMem,
		stacksize:  h.StackSize,
		memCeiling: opts.MemCeiling,
		os:         os,
	}

	m.memmap = os.Alloc(h.EndMem)
	if m.memmap == nil {
		return nil, fatal("cannot allocate memory image")
	}
	copy(m.memmap, data[:h.ExtStart])

	m.stack = os.Alloc(h.StackSize)
	if m.stack == nil {
		return nil, fatal("cannot allocate stack")
	}

	return m, nil
}

// Header returns the parsed gamefile header.
func (m *VM) Header() Header {
	return m.header
}

// RAMStart returns the start of writable RAM.
func (m *VM) RAMStart() uint32 { return m.ramstart }

// EndMem returns the current end of the memory image.
func (m *VM) EndMem() uint32 { return m.endmem }

// StackSize returns the fixed stack capacity.
func (m *VM) StackSize() uint32 { return m.stacksize }

// ValStackBase returns the operand-stack base of the current frame.
func (m *VM) ValStackBase() uint32 { return m.valstackbase }

// LocalsBase returns the locals base of the current frame.
func (m *VM) LocalsBase() uint32 { return m.localsbase }

// Restart rebuilds guest-visible state as it was at load time: RAM is
// re-read from the original image, extended memory is zeroed, the heap is
// cleared, and the stack and cursors are reset. The dispatcher then
// re-enters the start function.
func (m *VM) Restart() error {
	m.heap.clear()
	if _, err := m.changeMemSize(m.origendmem, true); err != nil {
		return err
	}
	copy(m.memmap[m.ramstart:m.header.ExtStart], m.gamefile[m.ramstart:m.header.ExtStart])
	clear(m.memmap[m.header.ExtStart:m.endmem])
	clear(m.stack)
	m.StackPtr = 0
	m.FramePtr = 0
	m.PC = 0
	m.PrevPC = 0
	m.valstackbase = 0
	m.localsbase = 0
	return nil
}

// ---------------------------------------------------------------------------
// Memory resizing
// ---------------------------------------------------------------------------

// ChangeMemSize grows or shrinks the memory image on behalf of the guest
// (@setmemsize). It returns 0 on success and 1 if the request was refused;
// refusal is the one graceful failure in the engine, since the calling
// instruction can legitimately carry on after it. Shrinking below the
// original ENDMEM or resizing off a 256-byte boundary is a fatal
// condition, and resizing while the heap is active is refused.
func (m *VM) ChangeMemSize(newlen uint32) (uint32, error) {
	if m.heap.active {
		return 1, nil
	}
	return m.changeMemSize(newlen, false)
}

// changeMemSize is the internal resize path, also used by the heap and by
// restore. Internal callers bypass the heap-active refusal.
func (m *VM) changeMemSize(newlen uint32, internal bool) (uint32, error) {
	if newlen == m.endmem {
		return 0, nil
	}
	if newlen < m.origendmem {
		return 0, fatal("cannot resize memory space smaller than it started")
	}
	if newlen&0xFF != 0 {
		return 0, fatal("can only resize memory space to a 256-byte boundary")
	}
	if m.memCeiling != 0 && newlen > m.memCeiling {
		return 1, nil
	}

	next := m.os.Realloc(m.memmap, newlen)
	if next == nil {
		return 1, nil
	}
	if newlen > m.endmem {
		clear(next[m.endmem:newlen])
	}
	m.memmap = next
	m.endmem = newlen
	return 0, nil
}

// ---------------------------------------------------------------------------
// Argument gathering
// ---------------------------------------------------------------------------

// PopArguments collects count call arguments for the dispatcher. With addr
// zero the values are popped off the operand stack (first argument on
// top); otherwise they are read from a memory array at addr.
func (m *VM) PopArguments(count, addr uint32) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	if addr == 0 {
		if uint64(m.StackPtr) < uint64(m.valstackbase)+4*uint64(count) {
			return nil, fatal("stack underflow in arguments")
		}
		args := make([]uint32, count)
		for ix := uint32(0); ix < count; ix++ {
			m.StackPtr -= 4
			val, err := m.Stk4(m.StackPtr)
			if err != nil {
				return nil, err
			}
			args[ix] = val
		}
		return args, nil
	}
	if err := m.VerifyArrayAddresses(addr, count, 4); err != nil {
		return nil, err
	}
	args := make([]uint32, count)
	for ix := uint32(0); ix < count; ix++ {
		val, err := m.Mem4(addr + 4*ix)
		if err != nil {
			return nil, err
		}
		args[ix] = val
	}
	return args, nil
}
