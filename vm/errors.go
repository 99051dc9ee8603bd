package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Fatal conditions and traps
// ---------------------------------------------------------------------------
//
// The engine has exactly two failure kinds, and both are terminal:
//
//   - FatalError: an engine-internal invariant was violated (bad header,
//     malformed locals-format list, callstub underflow, ...). Carries a
//     free-form message and optionally an associated value.
//   - Trap: a guest-triggerable runtime fault with a fixed small code and a
//     canned message.
//
// Neither is recoverable. Operations surface them as ordinary Go errors so
// that the single top-level boundary (cmd/glux) decides how to report and
// terminate, and so that tests can observe "this would have trapped"
// without ending the test process.

// Trap codes. The numbering is part of the guest-visible contract.
const (
	TrapUnreachable          = 0
	TrapIntegerOverflow      = 1
	TrapIntegerDivideByZero  = 2
	TrapInvalidConversion    = 3
	TrapMemoryOutOfBounds    = 4
	TrapIndirectCallMismatch = 5
	TrapTableOutOfBounds     = 6
	TrapUndefinedElement     = 7
	TrapUninitializedElement = 8
	TrapStackExhausted       = 9
)

// trapMessages maps trap codes to their canned diagnostics. The final
// entry is the fallback for out-of-range codes.
var trapMessages = []string{
	"unreachable",
	"integer overflow",
	"integer divide by zero",
	"invalid conversion to integer",
	"out of bounds memory access",
	"indirect call type mismatch",
	"out of bounds table access",
	"undefined element",
	"uninitialized element",
	"call stack exhausted",
	"unknown trap code",
}

// FatalError reports an engine-internal invariant violation. It is always
// terminal: the VM that produced it must not be resumed.
type FatalError struct {
	Msg    string
	HasVal bool
	Val    uint32
}

func (e *FatalError) Error() string {
	if e.HasVal {
		return fmt.Sprintf("%s: %x", e.Msg, e.Val)
	}
	return e.Msg
}

// Trap reports a guest-triggerable runtime fault. Like FatalError it is
// terminal within a run.
type Trap struct {
	Code int
}

// Message returns the canned diagnostic for the trap code. Codes outside
// the known range collapse to the "unknown trap code" message.
func (t *Trap) Message() string {
	if t.Code < 0 || t.Code >= len(trapMessages)-1 {
		return trapMessages[len(trapMessages)-1]
	}
	return trapMessages[t.Code]
}

func (t *Trap) Error() string {
	return t.Message()
}

// fatal constructs a fatal-condition error with a bare message.
func fatal(msg string) error {
	return &FatalError{Msg: msg}
}

// fatalValue constructs a fatal-condition error with an associated value,
// typically an address.
func fatalValue(msg string, val uint32) error {
	return &FatalError{Msg: msg, HasVal: true, Val: val}
}

// trapError constructs a trap error for the given code.
func trapError(code int) error {
	return &Trap{Code: code}
}
