package slotring

// Error is a comparable, allocation-free error value.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrInvalidArgument reports an empty payload, a zero capacity or element
	// size, a payload longer than the element size, or use of a closed container.
	ErrInvalidArgument Error = "slotring: invalid argument"

	// ErrNoSpace is returned by write-side operations on a full container.
	ErrNoSpace Error = "slotring: no space"

	// ErrWouldBlock is returned by read-side operations on an empty container.
	ErrWouldBlock Error = "slotring: would block"

	// ErrBusy reports transient contention: another claimant holds the gate,
	// or the target slot is not in the state required to claim it.
	// Nothing is retried internally.
	ErrBusy Error = "slotring: busy"

	// ErrNotPermitted reports protocol misuse of the split claim/release API,
	// e.g. releasing a slot that was never claimed.
	ErrNotPermitted Error = "slotring: not permitted"

	// ErrAllocation is wrapped by every allocator failure.
	ErrAllocation Error = "slotring: allocation failure"
)
