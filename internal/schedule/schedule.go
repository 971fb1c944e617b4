package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a single day (no date, no zone).
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses "HH:mm" (24h) into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:mm)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// On resolves the time of day to an absolute timestamp on the calendar day
// of ref, in ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseWeekday maps a weekday name ("monday", "Mon", ...) to time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Window is a recurring weekly interval during which a source is captured.
// Start must precede End within the same day; cross-midnight windows are
// not supported.
type Window struct {
	Day   time.Weekday `json:"day"`
	Start TimeOfDay    `json:"start"`
	End   TimeOfDay    `json:"end"`
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return time.Duration(w.End.Minutes()-w.Start.Minutes()) * time.Minute
}

// Validate checks the start < end invariant.
func (w Window) Validate() error {
	if w.Start.Minutes() >= w.End.Minutes() {
		return fmt.Errorf("window %s %s-%s: start must be before end", w.Day, w.Start, w.End)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s %s-%s", w.Day, w.Start, w.End)
}

// Source is a named capture target with its weekly windows. Sources are
// immutable after load and owned by the coordinator for the process
// lifetime.
type Source struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Windows []Window `json:"windows"`
}

// Validate checks per-source invariants.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source requires a name")
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("source %s requires a url", s.Name)
	}
	for _, w := range s.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", s.Name, err)
		}
	}
	return nil
}

// ValidateAll validates every source and enforces name uniqueness.
func ValidateAll(sources []Source) error {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Trigger is one opened (source, window) pair resolved to absolute
// timestamps. It is created by Match at the moment a window opens and
// consumed immediately by a capture job; it is not persisted.
type Trigger struct {
	Source      Source    `json:"source"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Duration returns WindowEnd - WindowStart.
func (t Trigger) Duration() time.Duration { return t.WindowEnd.Sub(t.WindowStart) }

// Key identifies a trigger for in-flight deduplication: two ticks that both
// observe the same window opening produce the same key.
func (t Trigger) Key() string {
	return t.Source.Name + "@" + strconv.FormatInt(t.WindowStart.Unix(), 10)
}
