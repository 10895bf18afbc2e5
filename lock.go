package slotring

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Locker is the synchronization strategy a container is instantiated with.
//
// *SlotLock arbitrates concurrent claimants with atomic gates and per-slot
// states; NopLock is for single-threaded use and always succeeds.
type Locker interface {
	*SlotLock | NopLock

	// AcquireWrite takes the write gate; it reports false if the gate is
	// already held. It never blocks.
	AcquireWrite() bool
	ReleaseWrite()
	// AcquireRead takes the read gate, independently of the write gate.
	AcquireRead() bool
	ReleaseRead()
	// SetState stores s as the state of slot i unconditionally.
	SetState(i int, s SlotState)
	// ExpectState moves slot i from expected to s, reporting whether the
	// slot was in the expected state.
	ExpectState(i int, expected, s SlotState) bool
	// State loads the state of slot i.
	State(i int) SlotState
}

// SlotLock holds two independent binary gates (read side and write side) and
// one state word per slot.
//
// At most one claimant holds each gate at a time. The gates do not exclude
// each other, so a writer and a reader can advance concurrently on different
// slots.
type SlotLock struct {
	_      cpu.CacheLinePad
	write  atomic.Bool
	_      cpu.CacheLinePad
	read   atomic.Bool
	_      cpu.CacheLinePad
	states []atomic.Uint32
}

// NewSlotLock returns a lock managing n slots, all Free.
func NewSlotLock(n int) *SlotLock {
	if n <= 0 {
		return nil
	}
	return &SlotLock{states: make([]atomic.Uint32, n)}
}

func (l *SlotLock) AcquireWrite() bool { return l.write.CompareAndSwap(false, true) }

func (l *SlotLock) ReleaseWrite() { l.write.Store(false) }

func (l *SlotLock) AcquireRead() bool { return l.read.CompareAndSwap(false, true) }

func (l *SlotLock) ReleaseRead() { l.read.Store(false) }

func (l *SlotLock) SetState(i int, s SlotState) { l.states[i].Store(uint32(s)) }

func (l *SlotLock) ExpectState(i int, expected, s SlotState) bool {
	return l.states[i].CompareAndSwap(uint32(expected), uint32(s))
}

func (l *SlotLock) State(i int) SlotState { return SlotState(l.states[i].Load()) }

// Len returns the number of slots managed by the lock.
func (l *SlotLock) Len() int { return len(l.states) }

// NopLock is the single-threaded strategy: gates and state transitions always
// succeed and nothing is recorded.
type NopLock struct{}

func (NopLock) AcquireWrite() bool { return true }

func (NopLock) ReleaseWrite() {}

func (NopLock) AcquireRead() bool { return true }

func (NopLock) ReleaseRead() {}

func (NopLock) SetState(int, SlotState) {}

func (NopLock) ExpectState(int, SlotState, SlotState) bool { return true }

func (NopLock) State(int) SlotState { return SlotFree }

// newLocker builds the strategy L for n slots.
func newLocker[L Locker](n int) L {
	var l L
	if _, ok := any(l).(*SlotLock); ok {
		return any(NewSlotLock(n)).(L)
	}
	return l
}

// isAtomic reports whether L records slot states.
func isAtomic[L Locker]() bool {
	var l L
	_, ok := any(l).(*SlotLock)
	return ok
}
