// Package interval detects settlement intervals from sample spacing, for
// venues that do not report them directly.
package interval

import (
	"math"
	"time"
)

// DefaultHours is assumed when detection has nothing to work with.
const DefaultHours = 8

// Detect returns the most frequent whole-hour gap between temporally
// adjacent samples. Ties resolve to the gap encountered first. Fewer than
// two samples, or no positive gap, yields DefaultHours.
func Detect(times []time.Time) int {
	if len(times) < 2 {
		return DefaultHours
	}

	counts := make(map[int]int)
	var order []int
	for i := 1; i < len(times); i++ {
		diff := times[i-1].Sub(times[i])
		if diff < 0 {
			diff = -diff
		}
		hours := int(math.Round(diff.Hours()))
		if hours <= 0 {
			continue
		}
		if counts[hours] == 0 {
			order = append(order, hours)
		}
		counts[hours]++
	}

	best, bestCount := 0, 0
	for _, hours := range order {
		if counts[hours] > bestCount {
			best, bestCount = hours, counts[hours]
		}
	}
	if best == 0 {
		return DefaultHours
	}
	return best
}

// Min returns the smallest positive value, or DefaultHours when the set is
// empty. Used to pick the bucketing width across exchange series.
func Min(intervals []int) int {
	min := 0
	for _, v := range intervals {
		if v <= 0 {
			continue
		}
		if min == 0 || v < min {
			min = v
		}
	}
	if min == 0 {
		return DefaultHours
	}
	return min
}
