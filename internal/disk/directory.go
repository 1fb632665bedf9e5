package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"d88-localizer/internal/textutil"
)

// Directory entry layout.
const (
	EntrySize       = 0x20
	DirectorySize   = DirectorySectors * SectorSize
	EntryCount      = DirectorySize / EntrySize
	EntryNameOffset = 0x12
	EntryNameSize   = 2
	EntryLenOffset  = 0x1B
	EntryStartField = 0x1F

	entryTitleSize = 0x14
)

// Entry is a decoded view of one directory record.
type Entry struct {
	Index  int
	Raw    [EntrySize]byte
	Length int
	Start  byte
}

// Used reports whether the record describes a file.
func (e Entry) Used() bool {
	return e.Raw[0] != PadByte
}

// Name returns the short name field patched by localization builds.
func (e Entry) Name() []byte {
	return e.Raw[EntryNameOffset : EntryNameOffset+EntryNameSize]
}

// Title returns a printable rendering of the leading name bytes.
func (e Entry) Title() string {
	raw := bytes.TrimRight(e.Raw[:entryTitleSize], " \x00\xff")
	if s, err := textutil.DecodeSJIS(raw); err == nil {
		return s
	}
	return fmt.Sprintf("% x", raw)
}

// DirectoryTable holds the 32 fixed-size file records of the loader.
type DirectoryTable struct {
	raw [DirectorySize]byte
}

// ReadDirectoryTable reads the directory sectors, skipping the header in front
// of each sector.
func ReadDirectoryTable(data []byte) (*DirectoryTable, error) {
	d := &DirectoryTable{}
	for i, off := range sectorPayloads(DirectoryOffset, DirectorySectors) {
		if len(data) < off+SectorSize {
			return nil, fmt.Errorf("%w: directory sector %d ends past image end", ErrFormat, i)
		}
		copy(d.raw[i*SectorSize:], data[off:off+SectorSize])
	}
	return d, nil
}

// Entry returns the record at index i.
func (d *DirectoryTable) Entry(i int) (Entry, error) {
	if i < 0 || i >= EntryCount {
		return Entry{}, fmt.Errorf("%w: directory entry %d of %d", ErrOutOfRange, i, EntryCount)
	}

	e := Entry{Index: i}
	copy(e.Raw[:], d.raw[i*EntrySize:(i+1)*EntrySize])
	e.Length = int(binary.BigEndian.Uint16(e.Raw[EntryLenOffset:]))
	e.Start = e.Raw[EntryStartField]
	return e, nil
}

// Entries returns every record, used or not.
func (d *DirectoryTable) Entries() []Entry {
	entries := make([]Entry, EntryCount)
	for i := range entries {
		entries[i], _ = d.Entry(i)
	}
	return entries
}

// SetLength patches the big-endian length field of entry i.
func (d *DirectoryTable) SetLength(i, length int) error {
	if i < 0 || i >= EntryCount {
		return fmt.Errorf("%w: directory entry %d of %d", ErrOutOfRange, i, EntryCount)
	}
	if length < 0 || length > 0xFFFF {
		return fmt.Errorf("%w: length %d does not fit the 16-bit field", ErrCapacity, length)
	}

	off := i*EntrySize + EntryLenOffset
	binary.BigEndian.PutUint16(d.raw[off:off+2], uint16(length))
	return nil
}

// SetName overwrites the short name field of entry i.
func (d *DirectoryTable) SetName(i int, name []byte) error {
	if i < 0 || i >= EntryCount {
		return fmt.Errorf("%w: directory entry %d of %d", ErrOutOfRange, i, EntryCount)
	}
	if len(name) != EntryNameSize {
		return fmt.Errorf("%w: name field takes %d bytes, got %d", ErrFormat, EntryNameSize, len(name))
	}

	off := i*EntrySize + EntryNameOffset
	copy(d.raw[off:off+EntryNameSize], name)
	return nil
}

// Remove deletes count entries starting at start, shifts the following entries
// up and pads the freed records at the end with PadByte.
func (d *DirectoryTable) Remove(start, count int) error {
	if start < 0 || count < 0 || start+count > EntryCount {
		return fmt.Errorf("%w: remove %d entries at %d of %d", ErrOutOfRange, count, start, EntryCount)
	}

	from := (start + count) * EntrySize
	n := copy(d.raw[start*EntrySize:], d.raw[from:])
	for i := start*EntrySize + n; i < DirectorySize; i++ {
		d.raw[i] = PadByte
	}
	return nil
}

// Bytes returns a copy of the raw table.
func (d *DirectoryTable) Bytes() []byte {
	out := make([]byte, DirectorySize)
	copy(out, d.raw[:])
	return out
}
