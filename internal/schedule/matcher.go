package schedule

import "time"

// Match returns a Trigger for every (source, window) pair whose window has
// just opened: window.Day equals now's weekday and now falls inside
// [start, start+tolerance). It is pure and repeatable; most calls return
// nil. Tolerance should equal or exceed the polling tick so at least one
// tick observes the opening instant, and stay small enough that two
// consecutive ticks rarely both land inside it (the coordinator dedups the
// remainder).
//
// Overlapping windows are not collapsed: every matching pair yields its own
// trigger.
func Match(now time.Time, sources []Source, tolerance time.Duration) []Trigger {
	var out []Trigger
	for _, src := range sources {
		for _, w := range src.Windows {
			if w.Day != now.Weekday() {
				continue
			}
			start := w.Start.On(now)
			if now.Before(start) || !now.Before(start.Add(tolerance)) {
				continue
			}
			out = append(out, Trigger{
				Source:      src,
				WindowStart: start,
				WindowEnd:   w.End.On(now),
			})
		}
	}
	return out
}

// NextWindow returns the next time at or after now that any of the source's
// windows opens, and the window itself. ok is false when the source has no
// windows.
func NextWindow(now time.Time, src Source) (time.Time, Window, bool) {
	var (
		best  time.Time
		bestW Window
		found bool
	)
	for _, w := range src.Windows {
		// Windows recur weekly; scan the next 7 days.
		for d := 0; d < 8; d++ {
			day := now.AddDate(0, 0, d)
			if day.Weekday() != w.Day {
				continue
			}
			start := w.Start.On(day)
			if start.Before(now) {
				continue
			}
			if !found || start.Before(best) {
				best, bestW, found = start, w, true
			}
			break
		}
	}
	return best, bestW, found
}
