package disk

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
)

// BlockChainTable maps each block to the block that follows it in its file.
type BlockChainTable struct {
	next       [ChainTableSize]byte
	terminator byte
}

// ReadBlockChainTable reads the next-block table from its fixed location.
func ReadBlockChainTable(data []byte) (*BlockChainTable, error) {
	end := ChainTableOffset + ChainTableSize
	if len(data) < end {
		return nil, fmt.Errorf("%w: image is %d bytes, chain table ends at 0x%x", ErrFormat, len(data), end)
	}

	t := &BlockChainTable{terminator: DefaultTerminator}
	copy(t.next[:], data[ChainTableOffset:end])
	return t, nil
}

// SetTerminator changes the lowest value treated as end of chain.
func (t *BlockChainTable) SetTerminator(v byte) {
	t.terminator = v
}

// IsTerminator reports whether v ends a chain.
func (t *BlockChainTable) IsTerminator(v byte) bool {
	return v >= t.terminator
}

// Next returns the successor of block b.
func (t *BlockChainTable) Next(b byte) byte {
	return t.next[b]
}

// Set points block b at next.
func (t *BlockChainTable) Set(b, next byte) {
	t.next[b] = next
}

// Walk returns the blocks of the chain that starts at start, in order.
func (t *BlockChainTable) Walk(start byte) ([]byte, error) {
	var blocks []byte
	var seen [ChainTableSize]bool

	cur := start
	for !t.IsTerminator(cur) {
		if seen[cur] {
			return nil, fmt.Errorf("%w: chain from 0x%02x loops at block 0x%02x", ErrFormat, start, cur)
		}
		seen[cur] = true
		blocks = append(blocks, cur)
		cur = t.next[cur]
	}

	// Terminator values are only known to be >= the threshold; keep the
	// observed value visible when chasing odd images.
	log.Debug().
		Int("start", int(start)).
		Int("blocks", len(blocks)).
		Str("terminator", fmt.Sprintf("0x%02x", cur)).
		Msg("Walked block chain")

	return blocks, nil
}

// Tail returns the last block of a chain and the terminator value it holds.
func (t *BlockChainTable) Tail(start byte) (byte, error) {
	blocks, err := t.Walk(start)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("%w: chain from 0x%02x is empty", ErrFormat, start)
	}
	return blocks[len(blocks)-1], nil
}

// Splice inserts blocks after block after. The old successor of after
// (possibly a terminator) becomes the successor of the last inserted block.
func (t *BlockChainTable) Splice(after byte, blocks ...byte) {
	if len(blocks) == 0 {
		return
	}

	orig := t.next[after]
	prev := after
	for _, b := range blocks {
		t.next[prev] = b
		prev = b
	}
	t.next[prev] = orig
}

// BlocksFor returns how many blocks are needed to hold size bytes.
func BlocksFor(size int) int {
	return (size + BlockSize - 1) / BlockSize
}

// Grow extends the chain starting at start with donor blocks, taken in order,
// until it can hold size bytes. It returns the donors actually used. When the
// donors are not enough the table is left untouched.
func (t *BlockChainTable) Grow(start byte, size int, donors []byte) ([]byte, error) {
	blocks, err := t.Walk(start)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: chain from 0x%02x is empty", ErrFormat, start)
	}

	missing := BlocksFor(size) - len(blocks)
	if missing <= 0 {
		return nil, nil
	}
	if missing > len(donors) {
		return nil, &CapacityError{Need: size, Have: (len(blocks) + len(donors)) * BlockSize}
	}

	used := donors[:missing]
	for i, d := range used {
		if slices.Contains(used[:i], d) {
			return nil, fmt.Errorf("%w: donor 0x%02x is listed twice", ErrFormat, d)
		}
		if t.IsTerminator(d) {
			return nil, fmt.Errorf("%w: donor 0x%02x is a terminator value", ErrOutOfRange, d)
		}
		for _, b := range blocks {
			if b == d {
				return nil, fmt.Errorf("%w: donor 0x%02x already belongs to the chain", ErrFormat, d)
			}
		}
	}

	t.Splice(blocks[len(blocks)-1], used...)
	return used, nil
}

// Bytes returns a copy of the raw table.
func (t *BlockChainTable) Bytes() []byte {
	out := make([]byte, ChainTableSize)
	copy(out, t.next[:])
	return out
}
