// Package stats derives a user's journaling statistics from their entries.
package stats

import "time"

// dayKey is the calendar-day key used for streaks.
const dayKey = "2006-01-02"

// Stats are the derived counters stored on a user record.
type Stats struct {
	TotalEntries  int
	WritingStreak int
}

// Compute returns the entry count and the writing streak for a set of entry
// dates as seen at now.
//
// The streak is the number of consecutive UTC calendar days, ending with
// now's UTC day, that have at least one entry. If today has no entry the
// streak is zero, even when yesterday does.
func Compute(dates []time.Time, now time.Time) Stats {
	days := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		days[d.UTC().Format(dayKey)] = struct{}{}
	}

	today := now.UTC()
	streak := 0
	for {
		key := today.AddDate(0, 0, -streak).Format(dayKey)
		if _, ok := days[key]; !ok {
			break
		}
		streak++
	}

	return Stats{TotalEntries: len(dates), WritingStreak: streak}
}
