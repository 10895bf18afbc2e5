package slotring

import (
	"math"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/cpu"
)

// Buffer is a fixed-capacity ring of fixed-size byte slots.
//
// With L = *SlotLock one writer and one reader proceed concurrently; extra
// concurrent writers (or readers) are detected and rejected with ErrBusy
// rather than corrupting state. With L = NopLock the buffer is for
// single-threaded use only.
//
// A slot written by a writer is not visible to readers until it is
// committed (Ready). The write gate only protects the cursor bookkeeping, so
// it is released before the payload is copied.
type Buffer[L Locker] struct {
	_        cpu.CacheLinePad
	head     atomic.Uint64 // logical write cursor, advanced under the write gate
	_        cpu.CacheLinePad
	tail     atomic.Uint64 // logical read cursor, advanced under the read gate
	_        cpu.CacheLinePad
	lock     L
	raw      []byte
	capacity uint64
	elemSize int
	tracking bool
	closed   atomic.Bool
	mem      *backing
	logger   *logiface.Logger[logiface.Event]
	stats    counters
}

// Stats holds operation counters of a Buffer or Queue.
type Stats struct {
	WriteAttempts   uint64
	WriteFailedFull uint64
	WriteFailedBusy uint64

	ReadAttempts    uint64
	ReadFailedEmpty uint64
	ReadFailedBusy  uint64
}

type counters struct {
	writeAttempts   atomic.Uint64
	writeFailedFull atomic.Uint64
	writeFailedBusy atomic.Uint64

	readAttempts    atomic.Uint64
	readFailedEmpty atomic.Uint64
	readFailedBusy  atomic.Uint64
}

// BufferStorageSize returns the number of bytes WithStorage must provide for
// NewBuffer.
func BufferStorageSize(capacity, elemSize int) int {
	return capacity * elemSize
}

// NewBuffer creates a buffer of capacity slots of elemSize bytes each.
//
// Both sizes must be positive. Storage comes from the Go heap unless
// WithAllocator or WithStorage is given.
func NewBuffer[L Locker](capacity, elemSize int, opts ...Option) (*Buffer[L], error) {
	if !validSize(capacity, elemSize) {
		return nil, ErrInvalidArgument
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	mem, err := newBacking(o, BufferStorageSize(capacity, elemSize))
	if err != nil {
		return nil, err
	}
	b := newBuffer[L](mem.views[0], capacity, elemSize, o.logger)
	b.mem = mem
	b.logger.Debug().
		Int(`capacity`, capacity).
		Int(`elem_size`, elemSize).
		Bool(`atomic`, b.tracking).
		Bool(`caller_storage`, mem.alloc == nil).
		Log(`buffer created`)
	return b, nil
}

func newBuffer[L Locker](raw []byte, capacity, elemSize int, logger *logiface.Logger[logiface.Event]) *Buffer[L] {
	return &Buffer[L]{
		lock:     newLocker[L](capacity),
		raw:      raw,
		capacity: uint64(capacity),
		elemSize: elemSize,
		tracking: isAtomic[L](),
		logger:   logger,
	}
}

func validSize(capacity, elemSize int) bool {
	return capacity > 0 && elemSize > 0 && capacity <= math.MaxInt/elemSize
}

func (b *Buffer[L]) slot(i int) []byte {
	off := i * b.elemSize
	return b.raw[off : off+b.elemSize : off+b.elemSize]
}

// Write copies p into the next free slot and commits it, returning the slot
// index used. p may be shorter than the element size; only len(p) bytes are
// copied.
//
// Fails with ErrNoSpace if the buffer is full, and ErrBusy if another writer
// holds the write gate or the head slot has not been released by a reader.
func (b *Buffer[L]) Write(p []byte) (int, error) {
	if len(p) == 0 || len(p) > b.elemSize {
		return 0, ErrInvalidArgument
	}
	i, err := b.claimWrite()
	if err != nil {
		return 0, err
	}
	copy(b.slot(i), p)
	b.lock.SetState(i, SlotReady)
	return i, nil
}

// ClaimWrite reserves the next free slot and returns its index and memory,
// for the caller to fill in place. The slot is published by ReleaseWrite.
func (b *Buffer[L]) ClaimWrite() (int, []byte, error) {
	i, err := b.claimWrite()
	if err != nil {
		return 0, nil, err
	}
	return i, b.slot(i), nil
}

// ReleaseWrite commits slot i, previously returned by ClaimWrite, making it
// available to readers. Fails with ErrNotPermitted if the slot is not
// claimed.
func (b *Buffer[L]) ReleaseWrite(i int) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if !b.lock.ExpectState(i, SlotClaimed, SlotReady) {
		return ErrNotPermitted
	}
	return nil
}

func (b *Buffer[L]) claimWrite() (int, error) {
	if b.closed.Load() {
		return 0, ErrInvalidArgument
	}
	b.stats.writeAttempts.Add(1)
	if !b.lock.AcquireWrite() {
		b.stats.writeFailedBusy.Add(1)
		return 0, ErrBusy
	}
	head := b.head.Load()
	if head-b.tail.Load() >= b.capacity {
		b.lock.ReleaseWrite()
		b.stats.writeFailedFull.Add(1)
		return 0, ErrNoSpace
	}
	i := int(head % b.capacity)
	if !b.lock.ExpectState(i, SlotFree, SlotClaimed) {
		// a reader still holds the slot it just vacated
		b.lock.ReleaseWrite()
		b.stats.writeFailedBusy.Add(1)
		return 0, ErrBusy
	}
	b.head.Store(head + 1)
	b.lock.ReleaseWrite()
	return i, nil
}

// Read copies the oldest committed slot into p and frees it, returning the
// slot index consumed. At most min(len(p), ElemSize()) bytes are copied.
//
// Fails with ErrWouldBlock if the buffer is empty, and ErrBusy if another
// reader holds the read gate or the tail slot is not committed yet.
func (b *Buffer[L]) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	i, err := b.claimRead()
	if err != nil {
		return 0, err
	}
	copy(p, b.slot(i))
	b.lock.SetState(i, SlotFree)
	return i, nil
}

// ClaimRead reserves the oldest committed slot and returns its index and
// memory without copying. The slot is freed by ReleaseRead.
func (b *Buffer[L]) ClaimRead() (int, []byte, error) {
	i, err := b.claimRead()
	if err != nil {
		return 0, nil, err
	}
	return i, b.slot(i), nil
}

// ReleaseRead frees slot i, previously returned by ClaimRead. Fails with
// ErrNotPermitted if the slot is not being read.
func (b *Buffer[L]) ReleaseRead(i int) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if !b.lock.ExpectState(i, SlotReading, SlotFree) {
		return ErrNotPermitted
	}
	return nil
}

func (b *Buffer[L]) claimRead() (int, error) {
	if b.closed.Load() {
		return 0, ErrInvalidArgument
	}
	b.stats.readAttempts.Add(1)
	if !b.lock.AcquireRead() {
		b.stats.readFailedBusy.Add(1)
		return 0, ErrBusy
	}
	tail := b.tail.Load()
	if tail == b.head.Load() {
		b.lock.ReleaseRead()
		b.stats.readFailedEmpty.Add(1)
		return 0, ErrWouldBlock
	}
	i := int(tail % b.capacity)
	if !b.lock.ExpectState(i, SlotReady, SlotReading) {
		// head moved past the slot but its writer has not committed
		b.lock.ReleaseRead()
		b.stats.readFailedBusy.Add(1)
		return 0, ErrBusy
	}
	b.tail.Store(tail + 1)
	b.lock.ReleaseRead()
	return i, nil
}

func (b *Buffer[L]) checkIndex(i int) error {
	if b.closed.Load() || i < 0 || uint64(i) >= b.capacity {
		return ErrInvalidArgument
	}
	return nil
}

// holds reports whether slot i is in state s. Without slot tracking it
// always reports true.
func (b *Buffer[L]) holds(i int, s SlotState) bool {
	return !b.tracking || b.lock.State(i) == s
}

// IsEmpty reports whether the read cursor has caught up with the write cursor.
func (b *Buffer[L]) IsEmpty() bool {
	return b.head.Load() == b.tail.Load()
}

// IsFull reports whether the write cursor has caught up with the read cursor.
func (b *Buffer[L]) IsFull() bool {
	return b.Len() == int(b.capacity)
}

// Len returns the number of slots between the read and write cursors.
// Under concurrent traffic it is a snapshot within [0, Cap()].
func (b *Buffer[L]) Len() int {
	// tail first: head can only have grown since, so the difference never
	// goes negative, but it may overshoot by the slots read in between
	tail := b.tail.Load()
	return int(min(b.head.Load()-tail, b.capacity))
}

// SpaceLeft returns the number of slots a writer could still claim.
func (b *Buffer[L]) SpaceLeft() int {
	return int(b.capacity) - b.Len()
}

// Cap returns the fixed number of slots.
func (b *Buffer[L]) Cap() int {
	return int(b.capacity)
}

// ElemSize returns the size of one slot in bytes.
func (b *Buffer[L]) ElemSize() int {
	return b.elemSize
}

// Head returns the index of the next slot to be written.
func (b *Buffer[L]) Head() int {
	return int(b.head.Load() % b.capacity)
}

// Tail returns the index of the next slot to be read.
func (b *Buffer[L]) Tail() int {
	return int(b.tail.Load() % b.capacity)
}

// Clear logically empties the buffer. Payload bytes are not erased.
//
// Clear takes both gates, and fails with ErrBusy if either is held or any
// slot is mid-flight (claimed by a writer or being read).
func (b *Buffer[L]) Clear() error {
	return b.clear(nil)
}

// clear runs fn, if any, while both gates are still held.
func (b *Buffer[L]) clear(fn func()) error {
	if b.closed.Load() {
		return ErrInvalidArgument
	}
	if !b.lock.AcquireWrite() {
		return ErrBusy
	}
	defer b.lock.ReleaseWrite()
	if !b.lock.AcquireRead() {
		return ErrBusy
	}
	defer b.lock.ReleaseRead()

	if err := resetSlots(b.lock, int(b.capacity)); err != nil {
		return err
	}
	b.head.Store(0)
	b.tail.Store(0)
	if fn != nil {
		fn()
	}
	return nil
}

// resetSlots frees every committed slot, provided none is mid-flight. The
// caller must hold every gate that guards claiming.
func resetSlots[L Locker](lock L, n int) error {
	for i := 0; i < n; i++ {
		switch lock.State(i) {
		case SlotClaimed, SlotReading:
			return ErrBusy
		}
	}
	for i := 0; i < n; i++ {
		lock.ExpectState(i, SlotReady, SlotFree)
	}
	return nil
}

// Stats returns a snapshot of the operation counters.
func (b *Buffer[L]) Stats() Stats {
	return Stats{
		WriteAttempts:   b.stats.writeAttempts.Load(),
		WriteFailedFull: b.stats.writeFailedFull.Load(),
		WriteFailedBusy: b.stats.writeFailedBusy.Load(),
		ReadAttempts:    b.stats.readAttempts.Load(),
		ReadFailedEmpty: b.stats.readFailedEmpty.Load(),
		ReadFailedBusy:  b.stats.readFailedBusy.Load(),
	}
}

// Close releases the backing storage to the allocator it came from. Storage
// provided by WithStorage is left alone. Every later operation fails with
// ErrInvalidArgument.
func (b *Buffer[L]) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrInvalidArgument
	}
	var err error
	if b.mem != nil {
		err = b.mem.release()
	}
	b.logger.Debug().
		Int(`capacity`, int(b.capacity)).
		Bool(`released`, err == nil).
		Log(`buffer closed`)
	return err
}
