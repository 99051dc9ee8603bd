package vm

import (
	"encoding/binary"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers: minimal gamefile images
// ---------------------------------------------------------------------------

// codeBase is where test function code lands, directly after the header.
const codeBase = HeaderSize

// imageParams tweaks the synthesized gamefile layout. Zero values pick the
// defaults.
type imageParams struct {
	extstart  uint32
	endmem    uint32
	stacksize uint32
}

// buildImage synthesizes a valid gamefile whose code section starts at
// codeBase. The checksum field is filled in so the image passes
// verification.
func buildImage(t *testing.T, code []byte, p imageParams) []byte {
	t.Helper()

	if p.extstart == 0 {
		p.extstart = 0x200
	}
	if p.endmem == 0 {
		p.endmem = 0x400
	}
	if p.stacksize == 0 {
		p.stacksize = 0x1000
	}
	if codeBase+len(code) > int(p.extstart) {
		t.Fatalf("test code too large: %d bytes", len(code))
	}

	data := make([]byte, p.extstart)
	copy(data[0:4], "Glul")
	binary.BigEndian.PutUint32(data[posVersion:], 0x00030102)
	binary.BigEndian.PutUint32(data[posRAMStart:], 0x100)
	binary.BigEndian.PutUint32(data[posExtStart:], p.extstart)
	binary.BigEndian.PutUint32(data[posEndMem:], p.endmem)
	binary.BigEndian.PutUint32(data[posStackSize:], p.stacksize)
	binary.BigEndian.PutUint32(data[posStartFunc:], codeBase)
	copy(data[codeBase:], code)

	var sum uint32
	for pos := 0; pos < len(data); pos += 4 {
		sum += binary.BigEndian.Uint32(data[pos:])
	}
	binary.BigEndian.PutUint32(data[posChecksum:], sum)
	return data
}

// newTestVM builds a machine around the given code section.
func newTestVM(t *testing.T, code []byte, p imageParams) *VM {
	t.Helper()
	m, err := NewVM(buildImage(t, code, p), Options{})
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	return m
}

// mustEnter calls EnterFunction and fails the test on error.
func mustEnter(t *testing.T, m *VM, addr, argc uint32, argv []uint32) {
	t.Helper()
	if err := m.EnterFunction(addr, argc, argv); err != nil {
		t.Fatalf("EnterFunction(%#x): %v", addr, err)
	}
}

// isFatal reports whether err is a fatal condition.
func isFatal(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}

// trapCode returns the trap code of err, or -1 if err is not a trap.
func trapCode(err error) int {
	if trap, ok := err.(*Trap); ok {
		return trap.Code
	}
	return -1
}
