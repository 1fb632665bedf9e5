// Package disktest builds small synthetic disk images for tests.
package disktest

import (
	"encoding/binary"

	"d88-localizer/internal/disk"
)

const (
	firstTrack  = 0x2B0
	stride      = disk.SectorHeaderSize + disk.SectorSize
	trackStride = 2 * disk.SectorsPerBlock * stride
)

// Builder lays out an image with a fixed number of formatted tracks, an
// all-terminated block chain table and an empty directory.
type Builder struct {
	data []byte
}

// New returns a builder for an image with tracks formatted tracks, holding
// blocks 0 to 2*tracks-1.
func New(tracks int) *Builder {
	data := make([]byte, firstTrack+tracks*trackStride)
	for i := 0; i < tracks; i++ {
		off := disk.TrackTableOffset + i*4
		binary.LittleEndian.PutUint32(data[off:], uint32(firstTrack+i*trackStride))
	}
	for i := 0; i < disk.ChainTableSize; i++ {
		data[disk.ChainTableOffset+i] = 0xC1
	}
	for s := 0; s < disk.DirectorySectors; s++ {
		off := disk.DirectoryOffset + s*stride + disk.SectorHeaderSize
		for i := 0; i < disk.SectorSize; i++ {
			data[off+i] = disk.PadByte
		}
	}
	return &Builder{data: data}
}

// Entry writes directory record index with a space-padded name.
func (b *Builder) Entry(index int, name string, start byte, length int) *Builder {
	pos := index * disk.EntrySize
	off := disk.DirectoryOffset + (pos/disk.SectorSize)*stride + disk.SectorHeaderSize + pos%disk.SectorSize
	rec := b.data[off : off+disk.EntrySize]
	for i := range rec {
		rec[i] = ' '
	}
	copy(rec, name)
	binary.BigEndian.PutUint16(rec[disk.EntryLenOffset:], uint16(length))
	rec[disk.EntryStartField] = start
	return b
}

// Chain links blocks in order and terminates the last one with 0xC1.
func (b *Builder) Chain(blocks ...byte) *Builder {
	for i, blk := range blocks {
		next := byte(0xC1)
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		b.data[disk.ChainTableOffset+int(blk)] = next
	}
	return b
}

// File writes content across the given blocks, sector by sector.
func (b *Builder) File(content []byte, blocks ...byte) *Builder {
	for _, blk := range blocks {
		addr := firstTrack + int(blk/2)*trackStride + int(blk%2)*disk.SectorsPerBlock*stride
		for s := 0; s < disk.SectorsPerBlock; s++ {
			off := addr + s*stride + disk.SectorHeaderSize
			n := copy(b.data[off:off+disk.SectorSize], content)
			content = content[n:]
		}
	}
	return b
}

// Bytes returns the image.
func (b *Builder) Bytes() []byte {
	return b.data
}
