package coverage

import "slices"

// Set is a set of locations produced by one execution of the target.
type Set map[Location]struct{}

// NewSet creates a set holding the given locations.
func NewSet(locs ...Location) Set {
	s := make(Set, len(locs))

	for _, loc := range locs {
		s[loc] = struct{}{}
	}

	return s
}

// Add inserts loc into the set.
func (s Set) Add(loc Location) {
	s[loc] = struct{}{}
}

// Contains reports whether loc is in the set.
func (s Set) Contains(loc Location) bool {
	_, ok := s[loc]

	return ok
}

// Len returns the number of distinct locations.
func (s Set) Len() int {
	return len(s)
}

// Difference returns the locations of s that are not in other.
// Neither operand is modified.
func (s Set) Difference(other Set) Set {
	out := make(Set)

	for loc := range s {
		if !other.Contains(loc) {
			out[loc] = struct{}{}
		}
	}

	return out
}

// Sorted returns the locations ordered by [Location.Compare].
func (s Set) Sorted() []Location {
	out := make([]Location, 0, len(s))

	for loc := range s {
		out = append(out, loc)
	}

	slices.SortFunc(out, Location.Compare)

	return out
}
