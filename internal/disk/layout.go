package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed layout of the D88 container and the loader's file system.
const (
	TrackTableOffset = 0x20
	MaxTracks        = 164
	trackEntrySize   = 4

	ChainTableOffset = 0x810
	ChainTableSize   = 0x100

	DirectoryOffset  = 0x910
	DirectorySectors = 4

	SectorHeaderSize = 0x10
	SectorSize       = 0x100
	sectorStride     = SectorHeaderSize + SectorSize

	SectorsPerBlock = 8
	BlockSize       = SectorsPerBlock * SectorSize

	// DefaultTerminator is the lowest next-block value treated as end of chain.
	DefaultTerminator = 0xC0

	// PadByte fills unused directory entries and the tail of partly used sectors.
	PadByte = 0xFF
)

var (
	// ErrFormat reports an image or table shorter than, or different from, the fixed layout.
	ErrFormat = errors.New("disk format")
	// ErrOutOfRange reports a block or track index outside the table bounds.
	ErrOutOfRange = errors.New("index out of range")
	// ErrCapacity reports content that does not fit the destination block chain.
	ErrCapacity = errors.New("block chain capacity exceeded")
)

// CapacityError carries the sizes involved in a failed write.
type CapacityError struct {
	Need int
	Have int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v: need %d bytes, chain holds %d (%d bytes short)", ErrCapacity, e.Need, e.Have, e.Need-e.Have)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// TrackTable holds the absolute image offset of every track. Zero marks an
// unformatted track.
type TrackTable []uint32

// ReadTrackTable reads the per-track start offsets from the D88 header.
func ReadTrackTable(data []byte) (TrackTable, error) {
	end := TrackTableOffset + MaxTracks*trackEntrySize
	if len(data) < end {
		return nil, fmt.Errorf("%w: image is %d bytes, header needs %d", ErrFormat, len(data), end)
	}

	tracks := make(TrackTable, MaxTracks)
	for i := range tracks {
		off := TrackTableOffset + i*trackEntrySize
		tracks[i] = binary.LittleEndian.Uint32(data[off : off+trackEntrySize])
	}
	return tracks, nil
}

// Address resolves a block index to the image offset of its first sector
// header. A block is half a track: even blocks start at sector 0, odd blocks at
// sector 8.
func (t TrackTable) Address(block byte) (int, error) {
	track := int(block) / 2
	if track >= len(t) {
		return 0, fmt.Errorf("%w: block 0x%02x maps to track %d of %d", ErrOutOfRange, block, track, len(t))
	}
	if t[track] == 0 {
		return 0, fmt.Errorf("%w: block 0x%02x maps to unformatted track %d", ErrOutOfRange, block, track)
	}

	sector := (int(block) % 2) * SectorsPerBlock
	return int(t[track]) + sector*sectorStride, nil
}

// sectorPayloads returns the offsets of the payloads of the sectors starting
// at addr, skipping the header in front of each one.
func sectorPayloads(addr, count int) []int {
	offs := make([]int, count)
	for i := range offs {
		offs[i] = addr + i*sectorStride + SectorHeaderSize
	}
	return offs
}
