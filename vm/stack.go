package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// VM stack
// ---------------------------------------------------------------------------
//
// A single byte region of fixed capacity holds the nested call frames and,
// above the innermost frame, its operand stack. Two cursors track the
// current frame: FramePtr marks the start of the innermost frame and
// StackPtr the live top of stack, with FramePtr <= StackPtr <= stacksize.
//
// Stack values are stored big-endian, like memory, so that a serialized
// stack is portable across hosts.

// verifyAddressStack confirms that [pos, pos+count) lies inside the stack
// region.
func (m *VM) verifyAddressStack(pos, count uint32) error {
	if uint64(pos)+uint64(count) > uint64(m.stacksize) {
		return fatalValue("stack access out of range", pos)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stack accessors
// ---------------------------------------------------------------------------

// Stk1 reads one byte from the stack region.
func (m *VM) Stk1(pos uint32) (uint8, error) {
	if err := m.verifyAddressStack(pos, 1); err != nil {
		return 0, err
	}
	return m.stack[pos], nil
}

// Stk2 reads a big-endian 16-bit value from the stack region.
func (m *VM) Stk2(pos uint32) (uint16, error) {
	if err := m.verifyAddressStack(pos, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(m.stack[pos:]), nil
}

// Stk4 reads a big-endian 32-bit value from the stack region.
func (m *VM) Stk4(pos uint32) (uint32, error) {
	if err := m.verifyAddressStack(pos, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(m.stack[pos:]), nil
}

// StkW1 writes one byte to the stack region.
func (m *VM) StkW1(pos uint32, val uint8) error {
	if err := m.verifyAddressStack(pos, 1); err != nil {
		return err
	}
	m.stack[pos] = val
	return nil
}

// StkW2 writes a big-endian 16-bit value to the stack region.
func (m *VM) StkW2(pos uint32, val uint16) error {
	if err := m.verifyAddressStack(pos, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.stack[pos:], val)
	return nil
}

// StkW4 writes a big-endian 32-bit value to the stack region.
func (m *VM) StkW4(pos uint32, val uint32) error {
	if err := m.verifyAddressStack(pos, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(m.stack[pos:], val)
	return nil
}

// ---------------------------------------------------------------------------
// Operand stack push/pop
// ---------------------------------------------------------------------------

// PushStack pushes a 32-bit value onto the operand stack of the current
// frame.
func (m *VM) PushStack(val uint32) error {
	if m.StackPtr+4 > m.stacksize {
		return fatal("stack overflow in operand")
	}
	binary.BigEndian.PutUint32(m.stack[m.StackPtr:], val)
	m.StackPtr += 4
	return nil
}

// PopStack pops a 32-bit value from the operand stack of the current
// frame. Popping below the frame's value-stack base indicates engine
// corruption and is a fatal condition.
func (m *VM) PopStack() (uint32, error) {
	if m.StackPtr < m.valstackbase+4 {
		return 0, fatal("stack underflow in operand")
	}
	m.StackPtr -= 4
	return binary.BigEndian.Uint32(m.stack[m.StackPtr:]), nil
}

// StackPeek returns the 32-bit value depth slots below the top of the
// operand stack without popping it.
func (m *VM) StackPeek(depth uint32) (uint32, error) {
	pos := m.StackPtr - 4*(depth+1)
	if pos < m.valstackbase || pos >= m.StackPtr {
		return 0, fatal("stack peek outside current frame")
	}
	return binary.BigEndian.Uint32(m.stack[pos:]), nil
}

// StackCount returns the number of 32-bit values on the current frame's
// operand stack.
func (m *VM) StackCount() uint32 {
	return (m.StackPtr - m.valstackbase) / 4
}
