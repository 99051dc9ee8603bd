package vm

// ---------------------------------------------------------------------------
// Gestalt capability negotiation
// ---------------------------------------------------------------------------

// Gestalt selectors. The numbering is fixed by the Glulx specification.
const (
	GestaltGlulxVersion = 0
	GestaltTerpVersion  = 1
	GestaltResizeMem    = 2
	GestaltUndo         = 3
	GestaltIOSystem     = 4
	GestaltUnicode      = 5
	GestaltMemCopy      = 6
	GestaltMAlloc       = 7
	GestaltMAllocHeap   = 8
	GestaltAcceleration = 9
	GestaltAccelFunc    = 10
	GestaltFloat        = 11
	GestaltExtUndo      = 12
	GestaltDouble       = 13
)

// Version constants reported to the guest.
const (
	// GlulxVersion is the Glulx machine version implemented, 3.1.3.
	GlulxVersion = 0x00030103

	// TerpVersion is this interpreter's own version, 0.6.1.
	TerpVersion = 0x00000601
)

// DoGestalt answers a capability query from the running program. It is a
// pure lookup with no side effects; unknown selectors answer zero. aux is
// the second query argument, unused by every selector this engine
// implements.
func (m *VM) DoGestalt(selector, aux uint32) uint32 {
	switch selector {

	case GestaltGlulxVersion:
		return GlulxVersion

	case GestaltTerpVersion:
		return TerpVersion

	case GestaltResizeMem:
		return 1 // @setmemsize works

	case GestaltMemCopy:
		return 1 // @mcopy/@mzero work

	case GestaltMAlloc:
		return 1 // @malloc/@mfree work

	case GestaltMAllocHeap:
		return m.HeapStart()

	case GestaltAcceleration:
		return 1 // @accelfunc/@accelparam work

	case GestaltFloat:
		return 1 // floating-point opcodes work

	case GestaltDouble:
		return 1 // double-precision opcodes work

	default:
		return 0
	}
}
