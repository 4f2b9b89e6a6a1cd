package roster

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a wall-clock time of day in minutes after midnight. 24:00 is
// allowed so a shift can end exactly at midnight.
type Clock int

func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidEntry, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidEntry, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidEntry, raw)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidEntry, raw)
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// span reports whether the [start, end) window covers at and how many
// minutes have elapsed since start. Windows whose end is before their start
// run over midnight into the following day.
func span(start, end, at Clock) (covered bool, elapsed int, length int) {
	at = at % minutesPerDay
	if end >= start {
		length = int(end - start)
		if at >= start && at < end {
			return true, int(at - start), length
		}
		return false, 0, length
	}
	length = minutesPerDay - int(start) + int(end)
	if at >= start {
		return true, int(at - start), length
	}
	if at < end {
		return true, minutesPerDay - int(start) + int(at), length
	}
	return false, 0, length
}
