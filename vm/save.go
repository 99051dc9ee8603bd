package vm

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Save states
// ---------------------------------------------------------------------------
//
// A snapshot is everything guest-visible: RAM, the in-use stack, the
// execution cursors, and the heap summary. Encoding is canonical CBOR so
// that identical machine states always serialize to identical bytes.
// Doubles held in memory or on the stack are already in their two-word
// wire form, so the snapshot inherits the float64 wire format for free.

// cborEncMode is the canonical-mode encoder for deterministic output.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the serialized form of a paused machine.
type Snapshot struct {
	Version  uint32   `cbor:"version"`  // gamefile version, for matching
	Checksum uint32   `cbor:"checksum"` // gamefile checksum, for matching
	EndMem   uint32   `cbor:"endmem"`
	RAM      []byte   `cbor:"ram"`   // memmap[ramstart:endmem]
	Stack    []byte   `cbor:"stack"` // stack[:stackptr]
	PC       uint32   `cbor:"pc"`
	StackPtr uint32   `cbor:"stackptr"`
	FramePtr uint32   `cbor:"frameptr"`
	Heap     []uint32 `cbor:"heap"` // heap summary, empty if inactive
}

// CaptureSnapshot records the machine's guest-visible state. The world is
// stopped while this runs; snapshots never interleave with execution.
func (m *VM) CaptureSnapshot() *Snapshot {
	return &Snapshot{
		Version:  m.header.Version,
		Checksum: m.header.Checksum,
		EndMem:   m.endmem,
		RAM:      append([]byte(nil), m.memmap[m.ramstart:m.endmem]...),
		Stack:    append([]byte(nil), m.stack[:m.StackPtr]...),
		PC:       m.PC,
		StackPtr: m.StackPtr,
		FramePtr: m.FramePtr,
		Heap:     m.HeapSummary(),
	}
}

// SaveState writes a snapshot of the machine to w.
func (m *VM) SaveState(w io.Writer) error {
	data, err := cborEncMode.Marshal(m.CaptureSnapshot())
	if err != nil {
		return fmt.Errorf("vm: marshal snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("vm: write snapshot: %w", err)
	}
	return nil
}

// RestoreState replaces the machine's guest-visible state with a snapshot
// read from r. The snapshot must come from the same gamefile.
func (m *VM) RestoreState(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("vm: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return m.ApplySnapshot(&snap)
}

// ApplySnapshot installs a captured snapshot.
func (m *VM) ApplySnapshot(snap *Snapshot) error {
	if snap.Version != m.header.Version || snap.Checksum != m.header.Checksum {
		return fatal("save state is from a different gamefile")
	}
	if snap.EndMem < m.origendmem || snap.EndMem&0xFF != 0 {
		return fatal("save state has a bad memory size")
	}
	if uint64(len(snap.RAM)) != uint64(snap.EndMem)-uint64(m.ramstart) {
		return fatal("save state RAM does not match its memory size")
	}
	if snap.StackPtr != uint32(len(snap.Stack)) || snap.StackPtr > m.stacksize {
		return fatal("save state stack does not fit")
	}
	if snap.FramePtr > snap.StackPtr {
		return fatal("save state frame pointer is out of range")
	}

	m.heap.clear()
	res, err := m.changeMemSize(snap.EndMem, true)
	if err != nil {
		return err
	}
	if res != 0 {
		return fatal("cannot resize memory to restore the save state")
	}
	copy(m.memmap[m.ramstart:m.endmem], snap.RAM)

	clear(m.stack)
	copy(m.stack, snap.Stack)
	m.PC = snap.PC
	m.StackPtr = snap.StackPtr
	m.FramePtr = snap.FramePtr

	// Recompute the frame boundaries from the restored frame header.
	if m.StackPtr > 0 {
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
	} else {
		m.valstackbase = 0
		m.localsbase = 0
	}

	return m.ApplyHeapSummary(snap.Heap)
}
