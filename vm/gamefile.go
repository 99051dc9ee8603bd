package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Gamefile header
// ---------------------------------------------------------------------------

// Header field offsets and sizes within a Glulx gamefile.
const (
	HeaderSize = 36

	posMagic       = 0
	posVersion     = 4
	posRAMStart    = 8
	posExtStart    = 12
	posEndMem      = 16
	posStackSize   = 20
	posStartFunc   = 24
	posDecodingTbl = 28
	posChecksum    = 32
)

// Supported gamefile versions: 2.0 through 3.1.*.
const (
	minGameVersion = 0x20000
	maxGameVersion = 0x30200
)

// gameMagic is the four-byte signature at the start of every Glulx file.
var gameMagic = [4]byte{'G', 'l', 'u', 'l'}

// Header is the parsed 36-byte gamefile header.
type Header struct {
	Version     uint32
	RAMStart    uint32
	ExtStart    uint32
	EndMem      uint32
	StackSize   uint32
	StartFunc   uint32
	DecodingTbl uint32
	Checksum    uint32
}

// IsGamefileValid checks the magic number and version window of a gamefile
// image. Any violation is a fatal condition; the file must be rejected
// before execution begins.
func IsGamefileValid(data []byte) error {
	if len(data) < 8 {
		return fatal("this is too short to be a valid Glulx file")
	}
	if data[0] != gameMagic[0] || data[1] != gameMagic[1] ||
		data[2] != gameMagic[2] || data[3] != gameMagic[3] {
		return fatal("this is not a valid Glulx file")
	}
	version := binary.BigEndian.Uint32(data[posVersion:])
	if version < minGameVersion {
		return fatal("this Glulx file is too old a version to execute")
	}
	if version >= maxGameVersion {
		return fatal("this Glulx file is too new a version to execute")
	}
	return nil
}

// ParseHeader validates a gamefile image and returns its parsed header.
// Beyond the magic/version check this enforces the layout constraints the
// memory model depends on: RAMSTART at or above 0x100, the three memory
// boundaries and the stack size on 256-byte multiples, and the boundaries
// in nondecreasing order with EXTSTART matching the file length.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if err := IsGamefileValid(data); err != nil {
		return h, err
	}
	if len(data) < HeaderSize {
		return h, fatal("this is too short to be a valid Glulx file")
	}

	h.Version = binary.BigEndian.Uint32(data[posVersion:])
	h.RAMStart = binary.BigEndian.Uint32(data[posRAMStart:])
	h.ExtStart = binary.BigEndian.Uint32(data[posExtStart:])
	h.EndMem = binary.BigEndian.Uint32(data[posEndMem:])
	h.StackSize = binary.BigEndian.Uint32(data[posStackSize:])
	h.StartFunc = binary.BigEndian.Uint32(data[posStartFunc:])
	h.DecodingTbl = binary.BigEndian.Uint32(data[posDecodingTbl:])
	h.Checksum = binary.BigEndian.Uint32(data[posChecksum:])

	if h.RAMStart < 0x100 {
		return h, fatalValue("RAMSTART is too low", h.RAMStart)
	}
	if h.RAMStart&0xFF != 0 || h.ExtStart&0xFF != 0 || h.EndMem&0xFF != 0 {
		return h, fatal("memory boundaries are not 256-byte aligned")
	}
	if h.StackSize&0xFF != 0 {
		return h, fatal("stack size is not 256-byte aligned")
	}
	if h.RAMStart > h.ExtStart || h.ExtStart > h.EndMem {
		return h, fatal("memory boundaries are out of order")
	}
	if uint64(h.ExtStart) != uint64(len(data)) {
		return h, fatal("gamefile length does not match header")
	}
	return h, nil
}

// VerifyChecksum computes the gamefile checksum and compares it against
// the header field. The checksum is the sum of every big-endian 32-bit
// word in the file, with the checksum field itself read as zero.
func VerifyChecksum(data []byte) error {
	if len(data) < HeaderSize {
		return fatal("this is too short to be a valid Glulx file")
	}
	if len(data)%4 != 0 {
		return fatal("gamefile length is not a multiple of four")
	}
	want := binary.BigEndian.Uint32(data[posChecksum:])
	var sum uint32
	for pos := 0; pos < len(data); pos += 4 {
		if pos == posChecksum {
			continue
		}
		sum += binary.BigEndian.Uint32(data[pos:])
	}
	if sum != want {
		return fatalValue("gamefile checksum does not match", sum)
	}
	return nil
}
