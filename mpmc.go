package slotring

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Bounded lock-free MPMC queue of block numbers, after Dmitry Vyukov:
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

type cell struct {
	seq   atomic.Uint64 // sequence number (controls visibility and cell ownership)
	block int
}

// freeList holds the numbers of the free blocks of a BlockAllocator.
// push and pop may be called concurrently from many goroutines.
type freeList struct {
	_        cpu.CacheLinePad
	mask     uint64
	capacity uint64
	cells    []cell
	_        cpu.CacheLinePad
	enqueue  atomic.Uint64 // logical tail index (releasers)
	_        cpu.CacheLinePad
	dequeue  atomic.Uint64 // logical head index (allocators)
	_        cpu.CacheLinePad
}

// newFreeList returns an empty list able to hold at least n block numbers.
func newFreeList(n int) *freeList {
	capacity := uint64(1)
	for capacity < uint64(n) {
		capacity <<= 1
	}
	cells := make([]cell, capacity)
	for i := uint64(0); i < capacity; i++ {
		// initial sequence for each cell matches its index
		cells[i].seq.Store(i)
	}
	return &freeList{
		mask:     capacity - 1,
		capacity: capacity,
		cells:    cells,
	}
}

// push returns block to the list, reporting false if the list is full.
// A cell whose popper has not finished freeing it is waited for.
func (q *freeList) push(block int) bool {
	var spins uint32
	for {
		pos := q.enqueue.Load()
		c := &q.cells[pos&q.mask]

		diff := int64(c.seq.Load()) - int64(pos)
		switch {
		case diff == 0:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				c.block = block
				// publish: seq = pos+1
				c.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			// full only if no popper has claimed the previous cycle of this
			// cell; otherwise it is about to store the new sequence
			if int64(pos-q.dequeue.Load()) >= int64(q.capacity) {
				return false
			}
		}
		// lost the race, or the cell is still being freed
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// pop takes a free block, reporting false if none is left. A position whose
// pusher has not finished publishing is waited for.
func (q *freeList) pop() (int, bool) {
	var spins uint32
	for {
		pos := q.dequeue.Load()
		c := &q.cells[pos&q.mask]

		diff := int64(c.seq.Load()) - int64(pos+1)
		switch {
		case diff == 0:
			if q.dequeue.CompareAndSwap(pos, pos+1) {
				block := c.block
				// free the cell for the next cycle, at pos+capacity
				c.seq.Store(pos + q.capacity)
				return block, true
			}
		case diff < 0:
			// empty only if no pusher has claimed this position; otherwise
			// it is about to publish
			if int64(q.enqueue.Load()-pos) <= 0 {
				return 0, false
			}
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}
