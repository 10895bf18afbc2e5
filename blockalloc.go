package slotring

import (
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// BlockAllocator is an Allocator over a fixed arena of equally sized blocks.
//
// Each Allocate hands out one whole block, so requests larger than the block
// size fail. Free block numbers live in a lock-free queue: Allocate and
// Deallocate may be called concurrently from many goroutines.
type BlockAllocator struct {
	free      *freeList
	arena     []byte
	blockSize int
	starts    map[*byte]int // first byte of each block -> block number
	inUse     []atomic.Bool
	mem       *backing
	logger    *logiface.Logger[logiface.Event]
	closed    atomic.Bool

	allocs   atomic.Uint64
	frees    atomic.Uint64
	failures atomic.Uint64
}

// BlockAllocatorStats is a snapshot of a BlockAllocator.
type BlockAllocatorStats struct {
	Blocks    int
	BlockSize int
	InUse     int
	Allocs    uint64
	Frees     uint64
	Failures  uint64
}

// NewBlockAllocator creates an arena of blocks blocks of blockSize bytes.
// The arena itself honors WithStorage (a static arena) and WithAllocator.
func NewBlockAllocator(blocks, blockSize int, opts ...Option) (*BlockAllocator, error) {
	if !validSize(blocks, blockSize) {
		return nil, ErrInvalidArgument
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	mem, err := newBacking(o, blocks*blockSize)
	if err != nil {
		return nil, err
	}

	a := &BlockAllocator{
		free:      newFreeList(blocks),
		arena:     mem.views[0],
		blockSize: blockSize,
		starts:    make(map[*byte]int, blocks),
		inUse:     make([]atomic.Bool, blocks),
		mem:       mem,
		logger:    o.logger,
	}
	for i := 0; i < blocks; i++ {
		a.starts[&a.arena[i*blockSize]] = i
		// the list holds at least blocks entries
		a.free.push(i)
	}
	a.logger.Debug().
		Int(`blocks`, blocks).
		Int(`block_size`, blockSize).
		Log(`block allocator created`)
	return a, nil
}

// Allocate returns one free block. size must be between 1 and the block
// size; the returned region is always a whole block and is not zeroed.
// A closed allocator fails with ErrInvalidArgument.
func (a *BlockAllocator) Allocate(size int) ([]byte, error) {
	if a.closed.Load() {
		return nil, ErrInvalidArgument
	}
	if size <= 0 || size > a.blockSize {
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: %d bytes does not fit a %d byte block", ErrAllocation, size, a.blockSize)
	}
	i, ok := a.free.pop()
	if !ok {
		a.failures.Add(1)
		a.logger.Debug().
			Int(`size`, size).
			Log(`block allocator exhausted`)
		return nil, fmt.Errorf("%w: all %d blocks in use", ErrAllocation, len(a.inUse))
	}
	a.inUse[i].Store(true)
	a.allocs.Add(1)
	off := i * a.blockSize
	return a.arena[off : off+a.blockSize : off+a.blockSize], nil
}

// Deallocate returns the block starting at p[0]. Regions not handed out by
// this allocator, and any region once the allocator is closed, fail with
// ErrInvalidArgument; a second release of the same block fails with
// ErrNotPermitted.
func (a *BlockAllocator) Deallocate(p []byte) error {
	if a.closed.Load() || len(p) == 0 {
		return ErrInvalidArgument
	}
	i, ok := a.starts[&p[0]]
	if !ok {
		return ErrInvalidArgument
	}
	if !a.inUse[i].CompareAndSwap(true, false) {
		return ErrNotPermitted
	}
	// at most len(inUse) blocks are ever free, so the list has room
	if !a.free.push(i) {
		a.inUse[i].Store(true)
		return fmt.Errorf("%w: free list full", ErrNotPermitted)
	}
	a.frees.Add(1)
	return nil
}

// BlockSize returns the size of every block.
func (a *BlockAllocator) BlockSize() int { return a.blockSize }

// Stats returns a snapshot of the allocator counters.
func (a *BlockAllocator) Stats() BlockAllocatorStats {
	frees := a.frees.Load()
	allocs := a.allocs.Load()
	return BlockAllocatorStats{
		Blocks:    len(a.inUse),
		BlockSize: a.blockSize,
		InUse:     int(allocs - frees),
		Allocs:    allocs,
		Frees:     frees,
		Failures:  a.failures.Load(),
	}
}

// Close releases the arena to the allocator it came from. Blocks still in
// use become invalid, and every later call fails with ErrInvalidArgument.
func (a *BlockAllocator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return ErrInvalidArgument
	}
	err := a.mem.release()
	a.logger.Debug().
		Int(`blocks`, len(a.inUse)).
		Bool(`released`, err == nil).
		Log(`block allocator closed`)
	return err
}
