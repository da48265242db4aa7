// Package clock provides time-of-day arithmetic and per-entity timeshifts.
// All times are expressed in seconds since local midnight.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is the length of a day in seconds.
const Day = 24 * 3600

// HalfDay is the timeshift clamp boundary (12 hours).
const HalfDay = 12 * 3600

// SecondsFromMidnight returns the current local time as seconds since midnight.
func SecondsFromMidnight() int {
	return SecondsFromMidnightAt(time.Now())
}

// SecondsFromMidnightAt returns t's local time as seconds since midnight.
func SecondsFromMidnightAt(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ToHHMMSS formats seconds since midnight as HH:MM:SS.
func ToHHMMSS(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseTime parses HH:MM or HH:MM:SS into seconds since midnight.
func ParseTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		nums[i] = n
	}

	h, m := nums[0], nums[1]
	sec := 0
	if len(nums) == 3 {
		sec = nums[2]
	}

	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}

	return h*3600 + m*60 + sec, nil
}
