package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Function entry and exit
// ---------------------------------------------------------------------------

// TestEnterLeaveRestoresStack verifies that entering a function and
// immediately leaving it restores StackPtr exactly, with no change to
// anything below the new frame.
func TestEnterLeaveRestoresStack(t *testing.T) {
	// funcaddr codeBase: type 0xC1, locals [(4,2),(0,0)]
	code := []byte{0xC1, 4, 2, 0, 0}
	m := newTestVM(t, code, imageParams{})

	mustEnter(t, m, codeBase, 0, nil)
	if err := m.PushStack(0x11111111); err != nil {
		t.Fatalf("PushStack: %v", err)
	}
	if err := m.PushStack(0x22222222); err != nil {
		t.Fatalf("PushStack: %v", err)
	}

	before := m.StackPtr
	outerFrame := m.FramePtr
	low, err := m.Stk4(outerFrame)
	if err != nil {
		t.Fatalf("Stk4: %v", err)
	}

	mustEnter(t, m, codeBase, 0, nil)
	if m.FramePtr != before {
		t.Errorf("inner FramePtr = %d, want %d", m.FramePtr, before)
	}
	m.LeaveFunction()

	if m.StackPtr != before {
		t.Errorf("StackPtr after enter/leave = %d, want %d", m.StackPtr, before)
	}
	if got, _ := m.Stk4(outerFrame); got != low {
		t.Errorf("outer frame header changed: %#x vs %#x", got, low)
	}
	if got, _ := m.Stk4(before - 4); got != 0x22222222 {
		t.Errorf("outer operand stack changed: %#x", got)
	}
}

// TestLocalsLayout checks the padded frame layout for the format list
// [(4,1),(2,1),(0,0)]: an 8-byte locals region (the 2-byte field pads the
// total to the next 4-byte boundary) and a format list padded to an even
// number of pairs.
func TestLocalsLayout(t *testing.T) {
	code := []byte{0xC1, 4, 1, 2, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})
	mustEnter(t, m, codeBase, 0, nil)

	framelen, _ := m.Stk4(m.FramePtr)
	localspos, _ := m.Stk4(m.FramePtr + 4)

	// Three pairs plus one pair of padding: 8 bytes of format list.
	if localspos != 8+8 {
		t.Errorf("locals position = %d, want 16", localspos)
	}
	if framelen-localspos != 8 {
		t.Errorf("locals length = %d, want 8", framelen-localspos)
	}
	if m.LocalsBase() != m.FramePtr+localspos {
		t.Errorf("LocalsBase = %d, want %d", m.LocalsBase(), m.FramePtr+localspos)
	}
	if m.ValStackBase() != m.FramePtr+framelen {
		t.Errorf("ValStackBase = %d, want %d", m.ValStackBase(), m.FramePtr+framelen)
	}
	if m.StackPtr != m.ValStackBase() {
		t.Errorf("StackPtr = %d, want %d", m.StackPtr, m.ValStackBase())
	}
	if m.PC != codeBase+7 {
		t.Errorf("PC = %#x, want %#x", m.PC, codeBase+7)
	}

	// The copied format list, including the padding pair.
	want := []byte{4, 1, 2, 1, 0, 0, 0, 0}
	for ix, wb := range want {
		if got, _ := m.Stk1(m.FramePtr + 8 + uint32(ix)); got != wb {
			t.Errorf("format byte %d = %d, want %d", ix, got, wb)
		}
	}
}

// TestEnterFunctionStackArgs checks the 0xC0 convention: arguments are
// pushed in reverse order, then the count.
func TestEnterFunctionStackArgs(t *testing.T) {
	code := []byte{0xC0, 0, 0}
	m := newTestVM(t, code, imageParams{})
	mustEnter(t, m, codeBase, 3, []uint32{10, 20, 30})

	count, err := m.PopStack()
	if err != nil {
		t.Fatalf("PopStack: %v", err)
	}
	if count != 3 {
		t.Fatalf("argc on stack = %d, want 3", count)
	}
	for _, want := range []uint32{10, 20, 30} {
		got, err := m.PopStack()
		if err != nil {
			t.Fatalf("PopStack: %v", err)
		}
		if got != want {
			t.Errorf("popped %d, want %d", got, want)
		}
	}
}

// TestEnterFunctionLocalsArgs checks the 0xC1 convention: arguments are
// copied into the locals in format order, narrowed to the field width,
// with extras dropped and missing locals left zero.
func TestEnterFunctionLocalsArgs(t *testing.T) {
	// Locals: one 4-byte, two 1-byte, one 2-byte.
	code := []byte{0xC1, 4, 1, 1, 2, 2, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})
	mustEnter(t, m, codeBase, 5, []uint32{0xAABBCCDD, 0x1FF, 0x02, 0x12345, 0x99})

	base := m.LocalsBase()
	if got, _ := m.Stk4(base); got != 0xAABBCCDD {
		t.Errorf("4-byte local = %#x, want 0xAABBCCDD", got)
	}
	// 1-byte locals narrow to the low byte.
	if got, _ := m.Stk1(base + 4); got != 0xFF {
		t.Errorf("1-byte local = %#x, want 0xFF", got)
	}
	if got, _ := m.Stk1(base + 5); got != 0x02 {
		t.Errorf("1-byte local = %#x, want 0x02", got)
	}
	// The 2-byte local pads to a 2-byte boundary and narrows to 16 bits.
	if got, _ := m.Stk2(base + 6); got != 0x2345 {
		t.Errorf("2-byte local = %#x, want 0x2345", got)
	}
	// The fifth argument had no local to land in: silently dropped, and
	// the operand stack stays empty.
	if m.StackPtr != m.ValStackBase() {
		t.Errorf("operand stack not empty after entry")
	}
}

func TestEnterFunctionMissingArgsStayZero(t *testing.T) {
	code := []byte{0xC1, 4, 3, 0, 0}
	m := newTestVM(t, code, imageParams{})
	mustEnter(t, m, codeBase, 1, []uint32{7})

	base := m.LocalsBase()
	if got, _ := m.Stk4(base); got != 7 {
		t.Errorf("local 0 = %d, want 7", got)
	}
	for ix := uint32(1); ix < 3; ix++ {
		if got, _ := m.Stk4(base + 4*ix); got != 0 {
			t.Errorf("local %d = %d, want 0", ix, got)
		}
	}
}

func TestEnterFunctionBadType(t *testing.T) {
	// 0xC2 is an unknown function type; 0x90 is not a function at all.
	code := []byte{0xC2, 0, 0, 0x90, 0, 0}
	m := newTestVM(t, code, imageParams{})

	err := m.EnterFunction(codeBase, 0, nil)
	if !isFatal(err) {
		t.Errorf("call to 0xC2: err = %v, want fatal", err)
	}
	err = m.EnterFunction(codeBase+3, 0, nil)
	if !isFatal(err) {
		t.Errorf("call to 0x90: err = %v, want fatal", err)
	}
}

func TestEnterFunctionIllegalLocalType(t *testing.T) {
	code := []byte{0xC1, 3, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})
	if err := m.EnterFunction(codeBase, 0, nil); !isFatal(err) {
		t.Errorf("locals-format type 3: err = %v, want fatal", err)
	}
}

// TestEnterFunctionStackExhaustion verifies that a frame too large for the
// stack raises the stack-exhaustion trap rather than a generic fatal
// condition.
func TestEnterFunctionStackExhaustion(t *testing.T) {
	// 255 four-byte locals: over 1020 bytes of frame per call.
	code := []byte{0xC1, 4, 255, 0, 0}
	m := newTestVM(t, code, imageParams{stacksize: 0x100})
	err := m.EnterFunction(codeBase, 0, nil)
	if trapCode(err) != TrapStackExhausted {
		t.Errorf("err = %v, want stack-exhaustion trap", err)
	}
}

func TestEnterFunctionStackArgsExhaustion(t *testing.T) {
	code := []byte{0xC0, 0, 0}
	m := newTestVM(t, code, imageParams{stacksize: 0x100})
	args := make([]uint32, 80)
	err := m.EnterFunction(codeBase, uint32(len(args)), args)
	if trapCode(err) != TrapStackExhausted {
		t.Errorf("err = %v, want stack-exhaustion trap", err)
	}
}

// ---------------------------------------------------------------------------
// Callstubs
// ---------------------------------------------------------------------------

// TestCallstubRoundTrip runs the full call protocol: push a stub, enter a
// callee, return through PopCallstub, and check that PC and FramePtr come
// back exactly and the return value lands on the caller's stack.
func TestCallstubRoundTrip(t *testing.T) {
	code := []byte{0xC1, 4, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})

	mustEnter(t, m, codeBase, 0, nil)
	m.PC = 0x1234 // pretend the caller is mid-instruction

	savedPC := m.PC
	savedFP := m.FramePtr
	if err := m.PushCallstub(DestTypeStack, 0); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}

	mustEnter(t, m, codeBase, 0, nil)
	m.LeaveFunction()
	if err := m.PopCallstub(0xCAFE); err != nil {
		t.Fatalf("PopCallstub: %v", err)
	}

	if m.PC != savedPC {
		t.Errorf("PC = %#x, want %#x", m.PC, savedPC)
	}
	if m.FramePtr != savedFP {
		t.Errorf("FramePtr = %d, want %d", m.FramePtr, savedFP)
	}
	got, err := m.PopStack()
	if err != nil {
		t.Fatalf("PopStack: %v", err)
	}
	if got != 0xCAFE {
		t.Errorf("returned value = %#x, want 0xCAFE", got)
	}
}

// TestCallstubMemDestination delivers the result to memory and checks the
// frame boundaries were recomputed before delivery.
func TestCallstubMemDestination(t *testing.T) {
	code := []byte{0xC1, 4, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})

	mustEnter(t, m, codeBase, 0, nil)
	if err := m.PushCallstub(DestTypeMem, 0x180); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	mustEnter(t, m, codeBase, 0, nil)
	m.LeaveFunction()
	if err := m.PopCallstub(0xFEEDBEEF); err != nil {
		t.Fatalf("PopCallstub: %v", err)
	}

	if got, _ := m.Mem4(0x180); got != 0xFEEDBEEF {
		t.Errorf("memory destination = %#x, want 0xFEEDBEEF", got)
	}
	// Frame: 8-byte header, two format pairs, one 4-byte local.
	if m.ValStackBase() != m.FramePtr+16 {
		t.Errorf("ValStackBase not recomputed: %d", m.ValStackBase())
	}
}

func TestCallstubLocalDestination(t *testing.T) {
	code := []byte{0xC1, 4, 2, 0, 0}
	m := newTestVM(t, code, imageParams{})

	mustEnter(t, m, codeBase, 0, nil)
	if err := m.PushCallstub(DestTypeLocal, 4); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	mustEnter(t, m, codeBase, 0, nil)
	m.LeaveFunction()
	if err := m.PopCallstub(42); err != nil {
		t.Fatalf("PopCallstub: %v", err)
	}

	if got, _ := m.Stk4(m.LocalsBase() + 4); got != 42 {
		t.Errorf("local 1 = %d, want 42", got)
	}
}

func TestCallstubDiscardDestination(t *testing.T) {
	code := []byte{0xC1, 0, 0}
	m := newTestVM(t, code, imageParams{})

	mustEnter(t, m, codeBase, 0, nil)
	if err := m.PushCallstub(DestTypeDiscard, 0); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	before := m.StackPtr
	mustEnter(t, m, codeBase, 0, nil)
	m.LeaveFunction()
	if err := m.PopCallstub(123); err != nil {
		t.Fatalf("PopCallstub: %v", err)
	}
	if m.StackPtr != before-callstubSize {
		t.Errorf("StackPtr = %d, want %d", m.StackPtr, before-callstubSize)
	}
}

func TestCallstubUnderflow(t *testing.T) {
	m := newTestVM(t, []byte{0xC1, 0, 0}, imageParams{})
	if err := m.PopCallstub(0); !isFatal(err) {
		t.Errorf("PopCallstub on empty stack: err = %v, want fatal", err)
	}
}

// TestCallstubStringTypesRejected checks that the string-decoding
// destination types are a fatal condition in the function variant.
func TestCallstubStringTypesRejected(t *testing.T) {
	for _, desttype := range []uint32{
		DestTypeResumeCompStr, DestTypeTerminate, DestTypeResumeInt,
		DestTypeResumeCStr, DestTypeResumeUniStr,
	} {
		m := newTestVM(t, []byte{0xC1, 0, 0}, imageParams{})
		mustEnter(t, m, codeBase, 0, nil)
		if err := m.PushCallstub(desttype, 0); err != nil {
			t.Fatalf("PushCallstub: %v", err)
		}
		if err := m.PopCallstub(0); !isFatal(err) {
			t.Errorf("desttype %#x: err = %v, want fatal", desttype, err)
		}
	}
}

func TestCallstubExhaustion(t *testing.T) {
	code := []byte{0xC1, 0, 0}
	m := newTestVM(t, code, imageParams{stacksize: 0x100})
	mustEnter(t, m, codeBase, 0, nil)
	var err error
	for err == nil {
		err = m.PushCallstub(DestTypeDiscard, 0)
	}
	if trapCode(err) != TrapStackExhausted {
		t.Errorf("err = %v, want stack-exhaustion trap", err)
	}
}

// ---------------------------------------------------------------------------
// String callstubs
// ---------------------------------------------------------------------------

func TestPopCallstubStringTerminate(t *testing.T) {
	m := newTestVM(t, []byte{0xC1, 0, 0}, imageParams{})
	mustEnter(t, m, codeBase, 0, nil)
	m.PC = 0x500
	if err := m.PushCallstub(DestTypeTerminate, 0); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	m.PC = 0x999

	bitnum := -1
	addr, err := m.PopCallstubString(&bitnum)
	if err != nil {
		t.Fatalf("PopCallstubString: %v", err)
	}
	if addr != 0 {
		t.Errorf("terminate stub returned %#x, want 0", addr)
	}
	if m.PC != 0x500 {
		t.Errorf("PC = %#x, want 0x500", m.PC)
	}
}

func TestPopCallstubStringResume(t *testing.T) {
	m := newTestVM(t, []byte{0xC1, 0, 0}, imageParams{})
	mustEnter(t, m, codeBase, 0, nil)
	m.PC = 0x600
	if err := m.PushCallstub(DestTypeResumeCompStr, 5); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	m.PC = 0x999

	var bitnum int
	addr, err := m.PopCallstubString(&bitnum)
	if err != nil {
		t.Fatalf("PopCallstubString: %v", err)
	}
	if addr != 0x600 {
		t.Errorf("resume address = %#x, want 0x600", addr)
	}
	if bitnum != 5 {
		t.Errorf("bitnum = %d, want 5", bitnum)
	}
}

func TestPopCallstubStringFunctionStub(t *testing.T) {
	m := newTestVM(t, []byte{0xC1, 0, 0}, imageParams{})
	mustEnter(t, m, codeBase, 0, nil)
	if err := m.PushCallstub(DestTypeStack, 0); err != nil {
		t.Fatalf("PushCallstub: %v", err)
	}
	var bitnum int
	if _, err := m.PopCallstubString(&bitnum); !isFatal(err) {
		t.Errorf("function stub in string context: err = %v, want fatal", err)
	}
}

// ---------------------------------------------------------------------------
// StoreOperand
// ---------------------------------------------------------------------------

func TestStoreOperandVariants(t *testing.T) {
	code := []byte{0xC1, 4, 1, 2, 1, 1, 1, 0, 0}
	m := newTestVM(t, code, imageParams{})
	mustEnter(t, m, codeBase, 0, nil)

	if err := m.StoreOperand(DestTypeMem, 0x180, 0x01020304); err != nil {
		t.Fatalf("StoreOperand mem: %v", err)
	}
	if got, _ := m.Mem4(0x180); got != 0x01020304 {
		t.Errorf("mem dest = %#x", got)
	}

	if err := m.StoreOperandS(DestTypeMem, 0x190, 0xABCD1234); err != nil {
		t.Fatalf("StoreOperandS mem: %v", err)
	}
	if got, _ := m.Mem2(0x190); got != 0x1234 {
		t.Errorf("16-bit mem dest = %#x, want 0x1234", got)
	}

	if err := m.StoreOperandB(DestTypeMem, 0x192, 0xABCD1234); err != nil {
		t.Fatalf("StoreOperandB mem: %v", err)
	}
	if got, _ := m.Mem1(0x192); got != 0x34 {
		t.Errorf("8-bit mem dest = %#x, want 0x34", got)
	}

	if err := m.StoreOperand(DestTypeStack, 0, 77); err != nil {
		t.Fatalf("StoreOperand stack: %v", err)
	}
	if got, _ := m.PopStack(); got != 77 {
		t.Errorf("stack dest = %d, want 77", got)
	}

	if err := m.StoreOperand(99, 0, 0); !isFatal(err) {
		t.Errorf("unknown desttype: err = %v, want fatal", err)
	}
	if err := m.StoreOperand(DestTypeLocal, 2, 0); !isFatal(err) {
		t.Errorf("misaligned local: err = %v, want fatal", err)
	}
}
