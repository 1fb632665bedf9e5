package disk

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTracks      = 8
	testFirstTrack  = 0x2B0
	testTrackStride = 2 * SectorsPerBlock * sectorStride
)

// newTestImage builds a blank image with testTracks formatted tracks, every
// chain entry terminated and every directory record unused.
func newTestImage(t *testing.T) []byte {
	t.Helper()

	data := make([]byte, testFirstTrack+testTracks*testTrackStride)
	for i := 0; i < testTracks; i++ {
		off := TrackTableOffset + i*trackEntrySize
		binary.LittleEndian.PutUint32(data[off:], uint32(testFirstTrack+i*testTrackStride))
	}
	for i := 0; i < ChainTableSize; i++ {
		data[ChainTableOffset+i] = 0xC1
	}
	for _, off := range sectorPayloads(DirectoryOffset, DirectorySectors) {
		for i := 0; i < SectorSize; i++ {
			data[off+i] = PadByte
		}
	}
	return data
}

// setEntry writes a directory record straight into the image bytes.
func setEntry(data []byte, index int, name string, start byte, length int) {
	sector := index * EntrySize / SectorSize
	off := DirectoryOffset + sector*sectorStride + SectorHeaderSize + (index*EntrySize)%SectorSize
	rec := data[off : off+EntrySize]
	for i := range rec {
		rec[i] = 0x20
	}
	copy(rec, name)
	binary.BigEndian.PutUint16(rec[EntryLenOffset:], uint16(length))
	rec[EntryStartField] = start
}

// setChain links blocks in order and terminates the last one.
func setChain(data []byte, blocks ...byte) {
	for i, b := range blocks {
		next := byte(0xC1)
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		data[ChainTableOffset+int(b)] = next
	}
}

// fillBlock writes a recognisable pattern into every sector payload of a block.
func fillBlock(t *testing.T, data []byte, block byte, seed byte) {
	t.Helper()

	tracks, err := ReadTrackTable(data)
	require.NoError(t, err)
	addr, err := tracks.Address(block)
	require.NoError(t, err)
	for i, off := range sectorPayloads(addr, SectorsPerBlock) {
		for j := 0; j < SectorSize; j++ {
			data[off+j] = seed + byte(i)
		}
	}
}

func TestReadTrackTable(t *testing.T) {
	data := newTestImage(t)

	tracks, err := ReadTrackTable(data)
	require.NoError(t, err)
	assert.Len(t, tracks, MaxTracks)
	assert.Equal(t, uint32(testFirstTrack), tracks[0])
	assert.Equal(t, uint32(0), tracks[testTracks])

	_, err = ReadTrackTable(data[:0x100])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestAddress(t *testing.T) {
	tracks, err := ReadTrackTable(newTestImage(t))
	require.NoError(t, err)

	addr, err := tracks.Address(4)
	require.NoError(t, err)
	assert.Equal(t, testFirstTrack+2*testTrackStride, addr)

	addr, err = tracks.Address(5)
	require.NoError(t, err)
	assert.Equal(t, testFirstTrack+2*testTrackStride+8*0x110, addr)

	_, err = tracks.Address(2 * testTracks)
	assert.ErrorIs(t, err, ErrOutOfRange, "unformatted track")

	_, err = TrackTable{1, 2}.Address(4)
	assert.ErrorIs(t, err, ErrOutOfRange, "track beyond table")
}

func TestOpenRejectsShortImage(t *testing.T) {
	data := newTestImage(t)

	_, err := Open(data[:ChainTableOffset+0x10])
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Open(data[:DirectoryOffset+0x200])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestExtractFile(t *testing.T) {
	data := newTestImage(t)
	setEntry(data, 3, "PROGRAM", 4, 500+BlockSize)
	setChain(data, 4, 7)
	fillBlock(t, data, 4, 0x10)
	fillBlock(t, data, 7, 0x40)

	img, err := Open(data)
	require.NoError(t, err)

	got, err := img.ExtractFile(3)
	require.NoError(t, err)
	require.Len(t, got, 500+BlockSize)

	assert.Equal(t, byte(0x10), got[0])
	assert.Equal(t, byte(0x17), got[BlockSize-1])
	assert.Equal(t, byte(0x40), got[BlockSize])
	assert.Equal(t, byte(0x41), got[BlockSize+SectorSize])
}

func TestExtractFileErrors(t *testing.T) {
	t.Run("declared length beyond chain", func(t *testing.T) {
		data := newTestImage(t)
		setEntry(data, 0, "BIG", 4, BlockSize+1)
		setChain(data, 4)

		img, err := Open(data)
		require.NoError(t, err)
		_, err = img.ExtractFile(0)
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("block on unformatted track", func(t *testing.T) {
		data := newTestImage(t)
		setEntry(data, 0, "FAR", 0x40, 10)
		setChain(data, 0x40)

		img, err := Open(data)
		require.NoError(t, err)
		_, err = img.ExtractFile(0)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("looping chain", func(t *testing.T) {
		data := newTestImage(t)
		setEntry(data, 0, "LOOP", 4, 10)
		data[ChainTableOffset+4] = 5
		data[ChainTableOffset+5] = 4

		img, err := Open(data)
		require.NoError(t, err)
		_, err = img.ExtractFile(0)
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("entry index", func(t *testing.T) {
		img, err := Open(newTestImage(t))
		require.NoError(t, err)
		_, err = img.ExtractFile(EntryCount)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestWriteFile(t *testing.T) {
	data := newTestImage(t)
	setEntry(data, 1, "PROGRAM", 4, 10)
	setChain(data, 4, 5)

	img, err := Open(data)
	require.NoError(t, err)

	content := bytes.Repeat([]byte{0xAB}, SectorSize+3)
	require.NoError(t, img.WriteFile(1, content))
	require.NoError(t, img.Dir.SetLength(1, len(content)))

	got, err := img.ExtractFile(1)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Past the content every sector payload is padding, but the sector
	// headers in between are left alone.
	addr, err := img.Tracks.Address(4)
	require.NoError(t, err)
	offs := sectorPayloads(addr, SectorsPerBlock)
	assert.Equal(t, byte(PadByte), img.Bytes()[offs[1]+3])
	assert.Equal(t, byte(PadByte), img.Bytes()[offs[7]])
	assert.Equal(t, byte(0), img.Bytes()[offs[2]-1])
}

func TestWriteFileCapacity(t *testing.T) {
	data := newTestImage(t)
	setEntry(data, 2, "PROGRAM", 4, 500)
	setChain(data, 4, 5)

	img, err := Open(data)
	require.NoError(t, err)

	before := bytes.Clone(img.Bytes())
	err = img.WriteFile(2, make([]byte, 5000))

	require.ErrorIs(t, err, ErrCapacity)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5000, capErr.Need)
	assert.Equal(t, 2*BlockSize, capErr.Have)
	assert.Equal(t, before, img.Bytes(), "image must not change")

	// Exactly full is fine.
	require.NoError(t, img.WriteFile(2, make([]byte, 2*BlockSize)))
}

func TestDirectoryMutations(t *testing.T) {
	data := newTestImage(t)
	for i := 0; i < 6; i++ {
		setEntry(data, i, "FILE"+string(rune('A'+i)), byte(2+i), 100*i)
	}

	img, err := Open(data)
	require.NoError(t, err)
	before := img.Dir.Bytes()

	t.Run("length", func(t *testing.T) {
		require.NoError(t, img.Dir.SetLength(2, 0x1234))
		after := img.Dir.Bytes()
		require.Len(t, after, DirectorySize)

		e, err := img.Dir.Entry(2)
		require.NoError(t, err)
		assert.Equal(t, 0x1234, e.Length)
		assert.Equal(t, []byte{0x12, 0x34}, after[2*EntrySize+EntryLenOffset:2*EntrySize+EntryLenOffset+2])
		assertOnlyRangeChanged(t, before, after, 2*EntrySize+EntryLenOffset, 2)

		assert.ErrorIs(t, img.Dir.SetLength(2, 0x10000), ErrCapacity)
		require.NoError(t, img.Dir.SetLength(2, 200))
	})

	t.Run("name", func(t *testing.T) {
		require.NoError(t, img.Dir.SetName(1, []byte("EN")))
		after := img.Dir.Bytes()

		e, err := img.Dir.Entry(1)
		require.NoError(t, err)
		assert.Equal(t, []byte("EN"), e.Name())
		assertOnlyRangeChanged(t, before, after, EntrySize+EntryNameOffset, EntryNameSize)

		assert.ErrorIs(t, img.Dir.SetName(1, []byte("ENG")), ErrFormat)
		require.NoError(t, img.Dir.SetName(1, before[EntrySize+EntryNameOffset:EntrySize+EntryNameOffset+2]))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, img.Dir.Remove(1, 3))
		after := img.Dir.Bytes()
		require.Len(t, after, DirectorySize)

		assert.Equal(t, before[:EntrySize], after[:EntrySize])
		assert.Equal(t, before[4*EntrySize:6*EntrySize], after[EntrySize:3*EntrySize])
		assert.Equal(t, bytes.Repeat([]byte{PadByte}, DirectorySize-3*EntrySize), after[3*EntrySize:])

		e, err := img.Dir.Entry(1)
		require.NoError(t, err)
		assert.Equal(t, byte(6), e.Start)
		assert.True(t, e.Used())

		e, err = img.Dir.Entry(3)
		require.NoError(t, err)
		assert.False(t, e.Used())

		assert.ErrorIs(t, img.Dir.Remove(30, 3), ErrOutOfRange)
	})
}

func assertOnlyRangeChanged(t *testing.T, before, after []byte, off, n int) {
	t.Helper()
	assert.Equal(t, before[:off], after[:off])
	assert.Equal(t, before[off+n:], after[off+n:])
}

func TestChainGrow(t *testing.T) {
	data := newTestImage(t)
	setChain(data, 2, 3, 0x5C)
	data[ChainTableOffset+0x5C] = 0xC7

	chain, err := ReadBlockChainTable(data)
	require.NoError(t, err)

	t.Run("enough capacity already", func(t *testing.T) {
		used, err := chain.Grow(2, 3*BlockSize, []byte{0x83, 0x84})
		require.NoError(t, err)
		assert.Empty(t, used)
	})

	t.Run("donates only what is needed", func(t *testing.T) {
		size := 3*BlockSize + 1
		used, err := chain.Grow(2, size, []byte{0x83, 0x84})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x83}, used)

		blocks, err := chain.Walk(2)
		require.NoError(t, err)
		assert.Equal(t, []byte{2, 3, 0x5C, 0x83}, blocks)
		assert.Len(t, blocks, BlocksFor(size))
		assert.Equal(t, byte(0xC7), chain.Next(0x83), "original terminator is carried over")
		assert.GreaterOrEqual(t, chain.Next(0x83), byte(DefaultTerminator))
	})

	t.Run("not enough donors", func(t *testing.T) {
		before := chain.Bytes()
		_, err := chain.Grow(2, 8*BlockSize, []byte{0x84})
		assert.ErrorIs(t, err, ErrCapacity)
		assert.Equal(t, before, chain.Bytes())
	})

	t.Run("donor already in chain", func(t *testing.T) {
		_, err := chain.Grow(2, 5*BlockSize, []byte{3})
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("donor listed twice", func(t *testing.T) {
		before := chain.Bytes()
		_, err := chain.Grow(2, 6*BlockSize, []byte{0x84, 0x84})
		assert.ErrorIs(t, err, ErrFormat)
		assert.NotErrorIs(t, err, ErrCapacity)
		assert.Equal(t, before, chain.Bytes())
	})
}

func TestChainSplice(t *testing.T) {
	data := newTestImage(t)
	setChain(data, 0x10, 0x5C)

	chain, err := ReadBlockChainTable(data)
	require.NoError(t, err)

	chain.Splice(0x5C, 0x83, 0x84)
	blocks, err := chain.Walk(0x10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x5C, 0x83, 0x84}, blocks)
	assert.True(t, chain.IsTerminator(chain.Next(0x84)))
}

func TestChainTerminatorThreshold(t *testing.T) {
	data := newTestImage(t)
	setChain(data, 2, 0xB0)

	chain, err := ReadBlockChainTable(data)
	require.NoError(t, err)

	blocks, err := chain.Walk(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0xB0}, blocks)

	chain.SetTerminator(0xB0)
	blocks, err = chain.Walk(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, blocks)
}

func TestCommitAndSave(t *testing.T) {
	data := newTestImage(t)
	setEntry(data, 0, "PROGRAM", 2, 10)
	setEntry(data, 1, "OTHER", 3, 10)
	setChain(data, 2)
	setChain(data, 3)

	img, err := Open(data)
	require.NoError(t, err)

	img.Chain.Splice(2, 4)
	require.NoError(t, img.Dir.SetLength(0, 3000))
	require.NoError(t, img.Dir.Remove(1, 1))
	img.Commit()

	path := t.TempDir() + "/out.d88"
	require.NoError(t, img.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, img.Chain.Bytes(), reloaded.Chain.Bytes())
	assert.Equal(t, img.Dir.Bytes(), reloaded.Dir.Bytes())

	capacity, err := reloaded.Capacity(0)
	require.NoError(t, err)
	assert.Equal(t, 2*BlockSize, capacity)

	// The sector headers between directory sectors are untouched.
	for _, off := range sectorPayloads(DirectoryOffset, DirectorySectors) {
		assert.Equal(t, make([]byte, SectorHeaderSize), reloaded.Bytes()[off-SectorHeaderSize:off])
	}
}
