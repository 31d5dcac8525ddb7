package schedule

import (
	"fmt"
	"sort"
	"time"
)

// SecondsSinceMidnight returns the wall-clock offset of t within its day.
func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// Median returns the median of values. An even count yields the mean of the
// two middle values truncated to whole seconds. Median of nothing is 0.
func Median(values []int) int {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// FormatClock renders seconds since midnight as zero-padded HH:MM:SS.
func FormatClock(sec int) string {
	sec %= 86400
	if sec < 0 {
		sec += 86400
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
