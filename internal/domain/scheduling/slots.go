package scheduling

import (
	"iter"
	"slices"
	"time"

	"github.com/medcenter/portal/internal/platform/civil"
)

// SlotTimes yields the bookable start times of every entry on day, walking
// each window at step granularity in ascending start order. A start t is
// yielded only when t+step fits inside its window, so partial remainders
// are dropped. Output is strictly ascending; a time reachable from two
// windows is yielded once.
//
// The sequence is finite and restartable: each range over it walks a
// private sorted copy of entries, so later changes to the caller's slice
// do not affect it.
func SlotTimes(entries []*ScheduleEntry, day time.Weekday, step time.Duration) iter.Seq[civil.Time] {
	stepMin := int(step / time.Minute)

	matching := make([]*ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil && e.DayOfWeek == day {
			matching = append(matching, e)
		}
	}
	slices.SortStableFunc(matching, func(a, b *ScheduleEntry) int {
		return a.StartTime.Compare(b.StartTime)
	})

	return func(yield func(civil.Time) bool) {
		if stepMin <= 0 {
			return
		}
		last := -1
		for _, e := range matching {
			end := e.EndTime.Minutes()
			for m := e.StartTime.Minutes(); m+stepMin <= end; m += stepMin {
				if m <= last {
					continue
				}
				if !yield(civil.FromMinutes(m)) {
					return
				}
				last = m
			}
		}
	}
}
