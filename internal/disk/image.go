package disk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Image is an in-memory D88 disk image together with the loader tables read
// from it. Table mutations stay in memory until Commit.
type Image struct {
	data []byte

	Tracks TrackTable
	Chain  *BlockChainTable
	Dir    *DirectoryTable
}

// Open parses the tables of an image held in memory. The image takes
// ownership of data.
func Open(data []byte) (*Image, error) {
	tracks, err := ReadTrackTable(data)
	if err != nil {
		return nil, fmt.Errorf("read track table: %w", err)
	}

	chain, err := ReadBlockChainTable(data)
	if err != nil {
		return nil, fmt.Errorf("read block chain table: %w", err)
	}

	dir, err := ReadDirectoryTable(data)
	if err != nil {
		return nil, fmt.Errorf("read directory table: %w", err)
	}

	return &Image{data: data, Tracks: tracks, Chain: chain, Dir: dir}, nil
}

// Load reads and parses an image file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	img, err := Open(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Loaded disk image")
	return img, nil
}

// Bytes returns the raw image. The slice aliases the image.
func (img *Image) Bytes() []byte {
	return img.data
}

// blockSectors resolves the payload offsets of every sector of a chain.
func (img *Image) blockSectors(start byte) ([]int, error) {
	blocks, err := img.Chain.Walk(start)
	if err != nil {
		return nil, err
	}

	var offs []int
	for _, b := range blocks {
		addr, err := img.Tracks.Address(b)
		if err != nil {
			return nil, err
		}
		for _, off := range sectorPayloads(addr, SectorsPerBlock) {
			if off+SectorSize > len(img.data) {
				return nil, fmt.Errorf("%w: block 0x%02x sector at 0x%x ends past image end", ErrFormat, b, off)
			}
			offs = append(offs, off)
		}
	}
	return offs, nil
}

// Capacity returns how many bytes the chain of entry index can hold.
func (img *Image) Capacity(index int) (int, error) {
	e, err := img.Dir.Entry(index)
	if err != nil {
		return 0, err
	}
	blocks, err := img.Chain.Walk(e.Start)
	if err != nil {
		return 0, err
	}
	return len(blocks) * BlockSize, nil
}

// ExtractFile returns the content of directory entry index, following its
// block chain and truncating to the declared length.
func (img *Image) ExtractFile(index int) ([]byte, error) {
	e, err := img.Dir.Entry(index)
	if err != nil {
		return nil, err
	}

	offs, err := img.blockSectors(e.Start)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", index, err)
	}

	buf := make([]byte, 0, len(offs)*SectorSize)
	for _, off := range offs {
		buf = append(buf, img.data[off:off+SectorSize]...)
	}

	if len(buf) < e.Length {
		return nil, fmt.Errorf("%w: entry %d declares %d bytes, chain holds %d", ErrFormat, index, e.Length, len(buf))
	}
	return buf[:e.Length], nil
}

// WriteFile overwrites the sectors of entry index's chain with content,
// padding the rest with PadByte. The chain is never grown: content larger than
// the chain fails with a *CapacityError and leaves the image untouched. The
// directory length field is not updated.
func (img *Image) WriteFile(index int, content []byte) error {
	e, err := img.Dir.Entry(index)
	if err != nil {
		return err
	}

	offs, err := img.blockSectors(e.Start)
	if err != nil {
		return fmt.Errorf("entry %d: %w", index, err)
	}

	if have := len(offs) * SectorSize; len(content) > have {
		return &CapacityError{Need: len(content), Have: have}
	}

	for _, off := range offs {
		n := copy(img.data[off:off+SectorSize], content)
		content = content[n:]
		for i := off + n; i < off+SectorSize; i++ {
			img.data[i] = PadByte
		}
	}
	return nil
}

// Commit writes the block chain and directory tables back into the image.
func (img *Image) Commit() {
	copy(img.data[ChainTableOffset:], img.Chain.Bytes())

	dir := img.Dir.Bytes()
	for i, off := range sectorPayloads(DirectoryOffset, DirectorySectors) {
		copy(img.data[off:off+SectorSize], dir[i*SectorSize:(i+1)*SectorSize])
	}
}

// Save writes the image to path atomically through a temp file in the same
// directory.
func (img *Image) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(img.data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	log.Info().Str("path", path).Int("bytes", len(img.data)).Msg("Wrote disk image")
	return nil
}
