// Package dice aggregates coverage differences into a ranked list of suspect
// locations and computes how much of the crash's coverage the ranking keeps.
package dice

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
)

// Entry is one ranked suspect location.
type Entry struct {
	Location coverage.Location
	Count    int
}

// Counter is a multiset of locations. A location is added once per
// crash-vs-ancestor comparison in which it was exclusive to the crash.
type Counter struct {
	counts map[coverage.Location]int
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[coverage.Location]int)}
}

// Add records one occurrence of loc.
func (c *Counter) Add(loc coverage.Location) {
	c.counts[loc]++
}

// AddSet records one occurrence of every location in s.
func (c *Counter) AddSet(s coverage.Set) {
	for loc := range s {
		c.counts[loc]++
	}
}

// Count returns the occurrences recorded for loc.
func (c *Counter) Count(loc coverage.Location) int {
	return c.counts[loc]
}

// Len returns the number of distinct locations.
func (c *Counter) Len() int {
	return len(c.counts)
}

// Ranked returns the locations ordered by count descending. Ties are broken
// by [coverage.Location.Compare] so the order is deterministic.
func (c *Counter) Ranked() []Entry {
	entries := make([]Entry, 0, len(c.counts))

	for loc, n := range c.counts {
		entries = append(entries, Entry{Location: loc, Count: n})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if byCount := cmp.Compare(b.Count, a.Count); byCount != 0 {
			return byCount
		}

		return a.Location.Compare(b.Location)
	})

	return entries
}

// Singles converts a plain set into entries of count one, ordered by location.
func Singles(s coverage.Set) []Entry {
	sorted := s.Sorted()
	entries := make([]Entry, len(sorted))

	for i, loc := range sorted {
		entries[i] = Entry{Location: loc, Count: 1}
	}

	return entries
}
