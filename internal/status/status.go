// Package status packs per-sub-task retry counters into a single 32-bit
// integer persisted as the download_status column. Bit 31 is the completed
// flag; bits 0..14 hold up to five 3-bit slots, slot 0 in the low bits.
//
// Slot values: 0 = not started, 1..3 = retry count, 4 = retry limit reached,
// 7 = succeeded.
package status

import "fmt"

const (
	// SlotCount is the number of sub-task slots tracked per row. Both the
	// video level and the page level use five sub-tasks.
	SlotCount = 5

	completedBit = uint32(1) << 31

	slotSucceeded = uint32(7)
	slotSaturated = uint32(4)
)

// TaskResult classifies the outcome of one sub-task run.
type TaskResult int

const (
	// Skipped means the slot was already succeeded and the task did not run.
	Skipped TaskResult = iota
	// Succeeded means the task ran and completed.
	Succeeded
	// Ignored is a well-known noise failure: not retried this cycle, but the
	// retry counter is left untouched.
	Ignored
	// Failed increments the retry counter.
	Failed
)

func (r TaskResult) String() string {
	switch r {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("TaskResult(%d)", int(r))
}

// Status is the packed bitfield. The zero value means nothing has run.
type Status uint32

// New wraps a raw column value.
func New(v uint32) Status { return Status(v) }

// Value returns the raw integer for persistence.
func (s Status) Value() uint32 { return uint32(s) }

func (s Status) slot(i int) uint32 {
	return (uint32(s) >> (i * 3)) & 0x7
}

func (s *Status) setSlot(i int, v uint32) {
	mask := uint32(0x7) << (i * 3)
	*s = Status((uint32(*s) &^ mask) | (v&0x7)<<(i*3))
}

// Completed reports whether the top completed bit is set.
func (s Status) Completed() bool { return uint32(s)&completedBit != 0 }

// ShouldRun reports whether slot i still has work: it has neither succeeded
// nor exhausted its retries.
func (s Status) ShouldRun(i int) bool { return s.slot(i) < slotSaturated }

// Succeeded reports whether slot i holds the succeeded value.
func (s Status) Succeeded(i int) bool { return s.slot(i) == slotSucceeded }

// Apply folds one result vector into the bitfield. len(results) is the number
// of active slots; trailing slots beyond it are left as-is. The completed bit
// is recomputed over the first len(results) slots.
func (s *Status) Apply(results []TaskResult) {
	for i, r := range results {
		switch r {
		case Succeeded, Skipped:
			s.setSlot(i, slotSucceeded)
		case Failed:
			if v := s.slot(i); v < slotSaturated {
				s.setSlot(i, v+1)
			}
		case Ignored:
			// leave the counter alone
		}
	}
	done := true
	for i := range results {
		if s.ShouldRun(i) {
			done = false
			break
		}
	}
	if done {
		*s = Status(uint32(*s) | completedBit)
	} else {
		*s = Status(uint32(*s) &^ completedBit)
	}
}

// ResetFailed returns every terminally- or partially-failed slot (1..4) to
// not-started and clears the completed flag, so the next cycle retries them.
func (s *Status) ResetFailed(n int) {
	for i := 0; i < n; i++ {
		if v := s.slot(i); v >= 1 && v <= slotSaturated {
			s.setSlot(i, 0)
			*s = Status(uint32(*s) &^ completedBit)
		}
	}
}

// ForceResetFailed is ResetFailed plus a stale-completed correction: a row
// written before a new sub-task slot existed may carry completed=1 while the
// new slot is still runnable.
func (s *Status) ForceResetFailed(n int) {
	s.ResetFailed(n)
	for i := 0; i < n; i++ {
		if s.ShouldRun(i) {
			*s = Status(uint32(*s) &^ completedBit)
			return
		}
	}
}

// Slots returns the first n slot values, for logging.
func (s Status) Slots(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = s.slot(i)
	}
	return out
}

// SQL WHERE fragments over the raw download_status column. They mirror the
// slot semantics: succeeded = every slot 7, failed = any slot in 1..6,
// waiting = some slot 0 and none failed.

// SucceededExpr matches rows whose first n slots are all 7.
func SucceededExpr(col string, n int) string {
	return fmt.Sprintf("(%s & %d) = %d", col, slotsMask(n), allSucceeded(n))
}

// FailedExpr matches rows with at least one slot in 1..6.
func FailedExpr(col string, n int) string {
	clauses := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			clauses += " OR "
		}
		clauses += fmt.Sprintf("((%s >> %d) & 7) BETWEEN 1 AND 6", col, i*3)
	}
	return "(" + clauses + ")"
}

// WaitingExpr matches rows with at least one untouched slot and no failures.
func WaitingExpr(col string, n int) string {
	anyZero := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			anyZero += " OR "
		}
		anyZero += fmt.Sprintf("((%s >> %d) & 7) = 0", col, i*3)
	}
	return fmt.Sprintf("((%s) AND NOT %s)", anyZero, FailedExpr(col, n))
}

// UnfinishedExpr matches rows whose completed bit is unset.
func UnfinishedExpr(col string) string {
	return fmt.Sprintf("(%s & %d) = 0", col, completedBit)
}

func slotsMask(n int) uint32 {
	var m uint32
	for i := 0; i < n; i++ {
		m |= 0x7 << (i * 3)
	}
	return m
}

func allSucceeded(n int) uint32 {
	var m uint32
	for i := 0; i < n; i++ {
		m |= slotSucceeded << (i * 3)
	}
	return m
}
