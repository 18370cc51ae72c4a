package paluwagan

// =============================================================================
// CYCLE SCHEDULING - Pure date arithmetic, no persistence
// =============================================================================

// CycleWindow is one cycle's inclusive date range [Start, Due].
type CycleWindow struct {
	Start Date
	Due   Date
}

// CycleDates maps (group start date, cycle number, frequency) to the cycle's
// window. Windows are contiguous and non-overlapping: cycle k+1 starts the
// day after cycle k's due date.
//
//   weekly:   start + 7(k-1) days, 7-day window (due = start + 6)
//   biweekly: start + 14(k-1) days, 14-day window (due = start + 13)
//   monthly:  start + (k-1) months, due = (start + k months) - 1 day,
//             i.e. the last day of the monthly window, with day-of-month
//             clamping for short months and leap years
//
// cycleNumber is 1-based and always positive; callers own that invariant.
func CycleDates(start Date, cycleNumber int, freq Frequency) CycleWindow {
	k := cycleNumber - 1
	switch freq {
	case FreqWeekly:
		s := start.AddDays(7 * k)
		return CycleWindow{Start: s, Due: s.AddDays(6)}
	case FreqBiweekly:
		s := start.AddDays(14 * k)
		return CycleWindow{Start: s, Due: s.AddDays(13)}
	default: // monthly
		return CycleWindow{
			Start: start.AddMonthsClamped(k),
			Due:   start.AddMonthsClamped(cycleNumber).AddDays(-1),
		}
	}
}

// Schedule returns the full set of cycle windows for a group: one per member
// slot, numbered 1..capacity.
func Schedule(start Date, capacity int, freq Frequency) []CycleWindow {
	windows := make([]CycleWindow, capacity)
	for n := 1; n <= capacity; n++ {
		windows[n-1] = CycleDates(start, n, freq)
	}
	return windows
}
