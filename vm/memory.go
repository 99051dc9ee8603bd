package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Memory image
// ---------------------------------------------------------------------------
//
// The machine's address space is a flat byte slice of length endmem.
// Addresses below ramstart are the read-only program image; the range
// [ramstart, endmem) is writable RAM, resizable up to the configured
// ceiling. All values are stored big-endian.
//
// Every access goes through the verify methods below before touching the
// backing slice. They are the single enforcement point for memory safety:
// a failed check is a fatal condition, and the caller must not continue.

// verifyAddress confirms that [addr, addr+count) lies inside the memory
// image.
func (m *VM) verifyAddress(addr, count uint32) error {
	if uint64(addr)+uint64(count) > uint64(m.endmem) {
		return fatalValue("memory access out of range", addr)
	}
	return nil
}

// verifyAddressWrite confirms that [addr, addr+count) lies inside writable
// RAM. Writes below ramstart would clobber the program image.
func (m *VM) verifyAddressWrite(addr, count uint32) error {
	if addr < m.ramstart {
		return fatalValue("memory write to read-only address", addr)
	}
	if uint64(addr)+uint64(count) > uint64(m.endmem) {
		return fatalValue("memory access out of range", addr)
	}
	return nil
}

// VerifyArrayAddresses confirms that an array of count elements of the
// given element size starting at addr lies inside the memory image. The
// count*size product is checked in 64 bits so a hostile length cannot
// wrap.
func (m *VM) VerifyArrayAddresses(addr, count, size uint32) error {
	bytecount := uint64(count) * uint64(size)
	if uint64(addr)+bytecount > uint64(m.endmem) {
		return fatalValue("memory access way out of range", addr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Memory accessors
// ---------------------------------------------------------------------------

// Mem1 reads one byte from the memory image.
func (m *VM) Mem1(addr uint32) (uint8, error) {
	if err := m.verifyAddress(addr, 1); err != nil {
		return 0, err
	}
	return m.memmap[addr], nil
}

// Mem2 reads a big-endian 16-bit value from the memory image.
func (m *VM) Mem2(addr uint32) (uint16, error) {
	if err := m.verifyAddress(addr, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(m.memmap[addr:]), nil
}

// Mem4 reads a big-endian 32-bit value from the memory image.
func (m *VM) Mem4(addr uint32) (uint32, error) {
	if err := m.verifyAddress(addr, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(m.memmap[addr:]), nil
}

// MemW1 writes one byte to RAM.
func (m *VM) MemW1(addr uint32, val uint8) error {
	if err := m.verifyAddressWrite(addr, 1); err != nil {
		return err
	}
	m.memmap[addr] = val
	return nil
}

// MemW2 writes a big-endian 16-bit value to RAM.
func (m *VM) MemW2(addr uint32, val uint16) error {
	if err := m.verifyAddressWrite(addr, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.memmap[addr:], val)
	return nil
}

// MemW4 writes a big-endian 32-bit value to RAM.
func (m *VM) MemW4(addr uint32, val uint32) error {
	if err := m.verifyAddressWrite(addr, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(m.memmap[addr:], val)
	return nil
}

// ---------------------------------------------------------------------------
// Block operations
// ---------------------------------------------------------------------------

// MemZero zero-fills count bytes of RAM starting at addr.
func (m *VM) MemZero(addr, count uint32) error {
	if count == 0 {
		return nil
	}
	if err := m.verifyAddressWrite(addr, count); err != nil {
		return err
	}
	clear(m.memmap[addr : addr+count])
	return nil
}

// MemCopy copies count bytes from src to dest within the memory image.
// Overlapping ranges behave like memmove.
func (m *VM) MemCopy(dest, src, count uint32) error {
	if count == 0 {
		return nil
	}
	if err := m.verifyAddress(src, count); err != nil {
		return err
	}
	if err := m.verifyAddressWrite(dest, count); err != nil {
		return err
	}
	copy(m.memmap[dest:dest+count], m.memmap[src:src+count])
	return nil
}
