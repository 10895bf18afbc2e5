package slotring

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/cpu"
)

// Stack is a fixed-capacity LIFO of fixed-size byte slots.
//
// Push and pop both move the single top index, so with L = *SlotLock they
// share one gate (the lock's write gate) and are fully serialized; a
// contending push or pop fails with ErrBusy. Slot states still guard the
// payload copy, which happens outside the gate.
type Stack[L Locker] struct {
	_        cpu.CacheLinePad
	top      atomic.Uint64 // number of stored elements, moved under the gate
	_        cpu.CacheLinePad
	lock     L
	raw      []byte
	capacity uint64
	elemSize int
	closed   atomic.Bool
	mem      *backing
	logger   *logiface.Logger[logiface.Event]
}

// StackStorageSize returns the number of bytes WithStorage must provide for
// NewStack.
func StackStorageSize(capacity, elemSize int) int {
	return capacity * elemSize
}

// NewStack creates a stack of capacity slots of elemSize bytes each.
func NewStack[L Locker](capacity, elemSize int, opts ...Option) (*Stack[L], error) {
	if !validSize(capacity, elemSize) {
		return nil, ErrInvalidArgument
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	mem, err := newBacking(o, StackStorageSize(capacity, elemSize))
	if err != nil {
		return nil, err
	}
	s := &Stack[L]{
		lock:     newLocker[L](capacity),
		raw:      mem.views[0],
		capacity: uint64(capacity),
		elemSize: elemSize,
		mem:      mem,
		logger:   o.logger,
	}
	s.logger.Debug().
		Int(`capacity`, capacity).
		Int(`elem_size`, elemSize).
		Bool(`atomic`, isAtomic[L]()).
		Bool(`caller_storage`, mem.alloc == nil).
		Log(`stack created`)
	return s, nil
}

func (s *Stack[L]) slot(i int) []byte {
	off := i * s.elemSize
	return s.raw[off : off+s.elemSize : off+s.elemSize]
}

// Push copies p onto the stack and returns the slot index used (the top
// before the push). p may be shorter than the element size.
func (s *Stack[L]) Push(p []byte) (int, error) {
	if len(p) == 0 || len(p) > s.elemSize {
		return 0, ErrInvalidArgument
	}
	i, err := s.claimPush()
	if err != nil {
		return 0, err
	}
	copy(s.slot(i), p)
	s.lock.SetState(i, SlotReady)
	return i, nil
}

// ClaimPush reserves the slot above the top for the caller to fill in place.
// It is published by ReleasePush.
func (s *Stack[L]) ClaimPush() (int, []byte, error) {
	i, err := s.claimPush()
	if err != nil {
		return 0, nil, err
	}
	return i, s.slot(i), nil
}

// ReleasePush publishes slot i, previously returned by ClaimPush.
func (s *Stack[L]) ReleasePush(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if !s.lock.ExpectState(i, SlotClaimed, SlotReady) {
		return ErrNotPermitted
	}
	return nil
}

func (s *Stack[L]) claimPush() (int, error) {
	if s.closed.Load() {
		return 0, ErrInvalidArgument
	}
	if !s.lock.AcquireWrite() {
		return 0, ErrBusy
	}
	top := s.top.Load()
	if top == s.capacity {
		s.lock.ReleaseWrite()
		return 0, ErrNoSpace
	}
	i := int(top)
	if !s.lock.ExpectState(i, SlotFree, SlotClaimed) {
		// a pop of this slot has not finished copying out
		s.lock.ReleaseWrite()
		return 0, ErrBusy
	}
	s.top.Store(top + 1)
	s.lock.ReleaseWrite()
	return i, nil
}

// Pop copies the top element into p and returns its slot index. At most
// min(len(p), ElemSize()) bytes are copied.
func (s *Stack[L]) Pop(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	i, err := s.claimPop()
	if err != nil {
		return 0, err
	}
	copy(p, s.slot(i))
	s.lock.SetState(i, SlotFree)
	return i, nil
}

// ClaimPop reserves the top element and returns its slot index and memory
// without copying. The slot is freed by ReleasePop.
func (s *Stack[L]) ClaimPop() (int, []byte, error) {
	i, err := s.claimPop()
	if err != nil {
		return 0, nil, err
	}
	return i, s.slot(i), nil
}

// ReleasePop frees slot i, previously returned by ClaimPop.
func (s *Stack[L]) ReleasePop(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if !s.lock.ExpectState(i, SlotReading, SlotFree) {
		return ErrNotPermitted
	}
	return nil
}

func (s *Stack[L]) claimPop() (int, error) {
	if s.closed.Load() {
		return 0, ErrInvalidArgument
	}
	if !s.lock.AcquireWrite() {
		return 0, ErrBusy
	}
	top := s.top.Load()
	if top == 0 {
		s.lock.ReleaseWrite()
		return 0, ErrWouldBlock
	}
	i := int(top - 1)
	if !s.lock.ExpectState(i, SlotReady, SlotReading) {
		// pushed but not yet published
		s.lock.ReleaseWrite()
		return 0, ErrBusy
	}
	s.top.Store(top - 1)
	s.lock.ReleaseWrite()
	return i, nil
}

func (s *Stack[L]) checkIndex(i int) error {
	if s.closed.Load() || i < 0 || uint64(i) >= s.capacity {
		return ErrInvalidArgument
	}
	return nil
}

// Top returns the number of stored elements.
func (s *Stack[L]) Top() int { return int(s.top.Load()) }

func (s *Stack[L]) Len() int { return s.Top() }

func (s *Stack[L]) Cap() int { return int(s.capacity) }

func (s *Stack[L]) ElemSize() int { return s.elemSize }

func (s *Stack[L]) IsEmpty() bool { return s.top.Load() == 0 }

func (s *Stack[L]) IsFull() bool { return s.top.Load() == s.capacity }

// Clear logically empties the stack without erasing payload bytes. It fails
// with ErrBusy if the gate is held or any slot is mid-flight.
func (s *Stack[L]) Clear() error {
	if s.closed.Load() {
		return ErrInvalidArgument
	}
	if !s.lock.AcquireWrite() {
		return ErrBusy
	}
	defer s.lock.ReleaseWrite()
	if err := resetSlots(s.lock, int(s.capacity)); err != nil {
		return err
	}
	s.top.Store(0)
	return nil
}

// Close releases the backing storage to the allocator it came from. Every
// later operation fails with ErrInvalidArgument.
func (s *Stack[L]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrInvalidArgument
	}
	err := s.mem.release()
	s.logger.Debug().
		Int(`capacity`, int(s.capacity)).
		Bool(`released`, err == nil).
		Log(`stack closed`)
	return err
}
