// Package vm implements the core of a Glulx virtual machine.
//
// This package contains:
//   - The linear memory image and its bounds-checked accessors
//   - The interleaved call-frame/value stack and callstub protocol
//   - Exact-bit IEEE-754 float32/float64 encoding
//   - Gestalt capability negotiation
//   - The trap and fatal-condition taxonomy
//   - A deterministic heap allocator and save-state snapshots
//
// The fetch/decode/dispatch loop and the Glk I/O layer are external
// collaborators; they drive this package through EnterFunction,
// PushCallstub/PopCallstub, the memory and stack accessors, and DoGestalt.
package vm
