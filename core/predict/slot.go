package predict

import "time"

// NextSlot returns the first slot boundary strictly after t. A time already
// on a boundary advances to the following one.
func NextSlot(t time.Time, slot time.Duration) time.Time {
	return t.Truncate(slot).Add(slot)
}
