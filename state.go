package slotring

import "strconv"

// SlotState is the per-slot state of a lock-managed container.
//
// A slot cycles Free -> Claimed -> Ready -> Reading -> Free. Every transition
// out of an intermediate state is a single compare-and-set from the expected
// prior state.
type SlotState uint32

const (
	// SlotFree is unused and available to a writer.
	SlotFree SlotState = iota
	// SlotClaimed is reserved by a writer that has not committed yet.
	SlotClaimed
	// SlotReady holds committed data available to a reader.
	SlotReady
	// SlotReading is being consumed by a reader.
	SlotReading
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotClaimed:
		return "claimed"
	case SlotReady:
		return "ready"
	case SlotReading:
		return "reading"
	default:
		return "SlotState(" + strconv.FormatUint(uint64(s), 10) + ")"
	}
}
