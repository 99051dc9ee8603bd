package vm

// ---------------------------------------------------------------------------
// Call frames and callstubs
// ---------------------------------------------------------------------------
//
// A call frame lives on the stack at FramePtr:
//
//	+0  frame length   (4 bytes: through the end of the locals)
//	+4  locals position (4 bytes: offset of the locals data)
//	+8  locals-format list, (type, count) byte pairs, zero-terminated,
//	    padded to an even number of pairs
//	    locals data, zeroed then populated, padded to a 4-byte boundary
//	    operand stack
//
// Only the two header words are stored; localsbase and valstackbase are
// always recomputed from them, so a frame popped off the stack on return
// fully reconstructs itself.

// Function-type tags at a callee's entry address.
const (
	FuncTypeStackArgs  = 0xC0 // arguments pushed on the stack, count last
	FuncTypeLocalsArgs = 0xC1 // arguments copied into the locals
)

// Callstub destination types. The string-decoding types are only legal in
// PopCallstubString.
const (
	DestTypeDiscard = 0 // throw the result away
	DestTypeMem     = 1 // write the result to memory
	DestTypeLocal   = 2 // write the result to a local of the caller
	DestTypeStack   = 3 // push the result on the caller's stack

	DestTypeResumeCompStr = 0x10 // resume a compressed string at a bit offset
	DestTypeTerminate     = 0x11 // end of string output
	DestTypeResumeInt     = 0x12 // resume printing a decimal integer
	DestTypeResumeCStr    = 0x13 // resume an uncompressed Latin-1 string
	DestTypeResumeUniStr  = 0x14 // resume an uncompressed Unicode string
)

// callstubSize is the fixed size of the four-word continuation record.
const callstubSize = 16

// EnterFunction writes a new call frame onto the stack at StackPtr and
// leaves FramePtr pointing at it. argv carries the call arguments; it may
// be nil when argc is zero. On success PC is left at the callee's first
// instruction.
func (m *VM) EnterFunction(funcaddr, argc uint32, argv []uint32) error {
	addr := funcaddr

	// Check the Glulx type identifier byte.
	functype, err := m.Mem1(addr)
	if err != nil {
		return err
	}
	if functype != FuncTypeStackArgs && functype != FuncTypeLocalsArgs {
		if functype >= 0xC0 && functype <= 0xDF {
			return fatalValue("call to unknown type of function", funcaddr)
		}
		return fatalValue("call to non-function", funcaddr)
	}
	addr++

	// Bump the frame pointer to the top.
	m.FramePtr = m.StackPtr

	// Walk the locals-format list, copying it into the frame while
	// accumulating the padded length of the locals region.
	ix := uint32(0)
	locallen := uint32(0)
	for {
		loctype, err := m.Mem1(addr)
		if err != nil {
			return err
		}
		addr++
		locnum, err := m.Mem1(addr)
		if err != nil {
			return err
		}
		addr++

		// The format pair lands in the frame before the overflow test
		// below, so bound the copy itself.
		if m.FramePtr+8+2*ix+2 > m.stacksize {
			return trapError(TrapStackExhausted)
		}
		m.stack[m.FramePtr+8+2*ix] = loctype
		m.stack[m.FramePtr+8+2*ix+1] = locnum
		ix++

		if loctype == 0 {
			// Pad the list to an even number of pairs.
			if ix&1 != 0 {
				if m.FramePtr+8+2*ix+2 > m.stacksize {
					return trapError(TrapStackExhausted)
				}
				m.stack[m.FramePtr+8+2*ix] = 0
				m.stack[m.FramePtr+8+2*ix+1] = 0
				ix++
			}
			break
		}

		switch loctype {
		case 4:
			for locallen&3 != 0 {
				locallen++
			}
		case 2:
			for locallen&1 != 0 {
				locallen++
			}
		case 1:
			// no padding
		default:
			return fatal("illegal local type in locals-format list")
		}

		locallen += uint32(loctype) * uint32(locnum)
	}

	// Pad the locals region to 4-byte alignment.
	for locallen&3 != 0 {
		locallen++
	}

	m.localsbase = m.FramePtr + 8 + 2*ix
	m.valstackbase = m.localsbase + locallen

	if m.valstackbase >= m.stacksize {
		return trapError(TrapStackExhausted)
	}

	// Fill in the frame header.
	if err := m.StkW4(m.FramePtr+4, 8+2*ix); err != nil {
		return err
	}
	if err := m.StkW4(m.FramePtr, 8+2*ix+locallen); err != nil {
		return err
	}

	m.StackPtr = m.valstackbase
	m.PC = addr

	// Zero the locals.
	clear(m.stack[m.localsbase : m.localsbase+locallen])

	if functype == FuncTypeStackArgs {
		// Push the arguments in reverse order, then the count.
		if uint64(m.StackPtr)+4*(uint64(argc)+1) >= uint64(m.stacksize) {
			return trapError(TrapStackExhausted)
		}
		for jx := uint32(0); jx < argc; jx++ {
			if err := m.StkW4(m.StackPtr, argv[(argc-1)-jx]); err != nil {
				return err
			}
			m.StackPtr += 4
		}
		if err := m.StkW4(m.StackPtr, argc); err != nil {
			return err
		}
		m.StackPtr += 4
		return nil
	}

	// FuncTypeLocalsArgs: copy the arguments into the locals, following
	// the format list a second time. Missing arguments stay zero; excess
	// arguments are silently dropped.
	modeaddr := m.FramePtr + 8
	opaddr := m.localsbase
	argix := uint32(0)
	for argix < argc {
		loctype, err := m.Stk1(modeaddr)
		if err != nil {
			return err
		}
		modeaddr++
		locnum, err := m.Stk1(modeaddr)
		if err != nil {
			return err
		}
		modeaddr++
		if loctype == 0 {
			break
		}
		switch loctype {
		case 4:
			for opaddr&3 != 0 {
				opaddr++
			}
			for argix < argc && locnum > 0 {
				if err := m.StkW4(opaddr, argv[argix]); err != nil {
					return err
				}
				opaddr += 4
				argix++
				locnum--
			}
		case 2:
			for opaddr&1 != 0 {
				opaddr++
			}
			for argix < argc && locnum > 0 {
				if err := m.StkW2(opaddr, uint16(argv[argix])); err != nil {
					return err
				}
				opaddr += 2
				argix++
				locnum--
			}
		case 1:
			for argix < argc && locnum > 0 {
				if err := m.StkW1(opaddr, uint8(argv[argix])); err != nil {
					return err
				}
				opaddr++
				argix++
				locnum--
			}
		}
	}
	return nil
}

// LeaveFunction pops the current call frame off the stack. The caller's
// frame boundaries are reconstructed afterwards by PopCallstub.
func (m *VM) LeaveFunction() {
	m.StackPtr = m.FramePtr
}

// PushCallstub pushes the four-word continuation record: result
// destination, saved PC, and saved frame pointer.
func (m *VM) PushCallstub(desttype, destaddr uint32) error {
	if m.StackPtr+callstubSize > m.stacksize {
		return trapError(TrapStackExhausted)
	}
	if err := m.StkW4(m.StackPtr+0, desttype); err != nil {
		return err
	}
	if err := m.StkW4(m.StackPtr+4, destaddr); err != nil {
		return err
	}
	if err := m.StkW4(m.StackPtr+8, m.PC); err != nil {
		return err
	}
	if err := m.StkW4(m.StackPtr+12, m.FramePtr); err != nil {
		return err
	}
	m.StackPtr += callstubSize
	return nil
}

// PopCallstub removes the continuation record, restores PC and the frame
// boundaries, and only then delivers returnvalue to the recorded
// destination. Delivering first would let a stack destination land in the
// region about to be reclaimed.
func (m *VM) PopCallstub(returnvalue uint32) error {
	if m.StackPtr < callstubSize {
		return fatal("stack underflow in callstub")
	}
	m.StackPtr -= callstubSize

	newframeptr, err := m.Stk4(m.StackPtr + 12)
	if err != nil {
		return err
	}
	newpc, err := m.Stk4(m.StackPtr + 8)
	if err != nil {
		return err
	}
	destaddr, err := m.Stk4(m.StackPtr + 4)
	if err != nil {
		return err
	}
	desttype, err := m.Stk4(m.StackPtr + 0)
	if err != nil {
		return err
	}

	m.PC = newpc
	m.FramePtr = newframeptr

	// Recompute valstackbase and localsbase from the restored frame.
	framelen, err := m.Stk4(m.FramePtr)
	if err != nil {
		return err
	}
	localspos, err := m.Stk4(m.FramePtr + 4)
	if err != nil {
		return err
	}
	m.valstackbase = m.FramePtr + framelen
	m.localsbase = m.FramePtr + localspos

	switch desttype {
	case DestTypeResumeCompStr, DestTypeTerminate, DestTypeResumeInt,
		DestTypeResumeCStr, DestTypeResumeUniStr:
		return fatal("unexpected callstub type")
	default:
		return m.StoreOperand(desttype, destaddr, returnvalue)
	}
}

// PopCallstubString removes the continuation record and interprets it as a
// string restart state. It returns zero for a termination stub, or the
// resume address with the bit offset written to bitnum.
func (m *VM) PopCallstubString(bitnum *int) (uint32, error) {
	if m.StackPtr < callstubSize {
		return 0, fatal("stack underflow in callstub")
	}
	m.StackPtr -= callstubSize

	newpc, err := m.Stk4(m.StackPtr + 8)
	if err != nil {
		return 0, err
	}
	destaddr, err := m.Stk4(m.StackPtr + 4)
	if err != nil {
		return 0, err
	}
	desttype, err := m.Stk4(m.StackPtr + 0)
	if err != nil {
		return 0, err
	}

	m.PC = newpc

	if desttype == DestTypeTerminate {
		return 0, nil
	}
	if desttype == DestTypeResumeCompStr {
		*bitnum = int(destaddr)
		return m.PC, nil
	}
	return 0, fatal("function-terminator call stub at end of string")
}

// ---------------------------------------------------------------------------
// Result delivery
// ---------------------------------------------------------------------------

// StoreOperand delivers a 32-bit result to a destination described by a
// (desttype, destaddr) pair.
func (m *VM) StoreOperand(desttype, destaddr, storeval uint32) error {
	switch desttype {
	case DestTypeDiscard:
		return nil
	case DestTypeMem:
		return m.MemW4(destaddr, storeval)
	case DestTypeLocal:
		if destaddr&3 != 0 {
			return fatalValue("store to misaligned local", destaddr)
		}
		return m.StkW4(m.localsbase+destaddr, storeval)
	case DestTypeStack:
		if m.StackPtr+4 > m.stacksize {
			return fatal("stack overflow in store operand")
		}
		if err := m.StkW4(m.StackPtr, storeval); err != nil {
			return err
		}
		m.StackPtr += 4
		return nil
	default:
		return fatalValue("unknown destination type in store operand", desttype)
	}
}

// StoreOperandS delivers a 16-bit result. Memory and local destinations
// take two bytes; a stack destination still pushes a full truncated word.
func (m *VM) StoreOperandS(desttype, destaddr, storeval uint32) error {
	switch desttype {
	case DestTypeDiscard:
		return nil
	case DestTypeMem:
		return m.MemW2(destaddr, uint16(storeval))
	case DestTypeLocal:
		if destaddr&1 != 0 {
			return fatalValue("store to misaligned local", destaddr)
		}
		return m.StkW2(m.localsbase+destaddr, uint16(storeval))
	case DestTypeStack:
		return m.StoreOperand(desttype, destaddr, storeval&0xFFFF)
	default:
		return fatalValue("unknown destination type in store operand", desttype)
	}
}

// StoreOperandB delivers an 8-bit result, with the same stack behavior as
// StoreOperandS.
func (m *VM) StoreOperandB(desttype, destaddr, storeval uint32) error {
	switch desttype {
	case DestTypeDiscard:
		return nil
	case DestTypeMem:
		return m.MemW1(destaddr, uint8(storeval))
	case DestTypeLocal:
		return m.StkW1(m.localsbase+destaddr, uint8(storeval))
	case DestTypeStack:
		return m.StoreOperand(desttype, destaddr, storeval&0xFF)
	default:
		return fatalValue("unknown destination type in store operand", desttype)
	}
}
