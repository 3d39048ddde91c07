package dedupe

import "sort"

// Set is an exact-string set. The zero value is not usable; call NewSet.
// Iteration order is irrelevant: every exported view is sorted.
type Set struct {
	items map[string]struct{}
}

// NewSet creates a set holding items.
func NewSet(items ...string) *Set {
	s := &Set{items: make(map[string]struct{}, len(items))}
	for _, item := range items {
		s.items[item] = struct{}{}
	}
	return s
}

// Add inserts key and reports whether it was new.
func (s *Set) Add(key string) bool {
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = struct{}{}
	return true
}

// Contains reports membership.
func (s *Set) Contains(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	return len(s.items)
}

// Sorted returns the keys in ascending order. Never nil.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Minus returns the keys of s that are not in other.
func (s *Set) Minus(other *Set) *Set {
	out := NewSet()
	for k := range s.items {
		if !other.Contains(k) {
			out.items[k] = struct{}{}
		}
	}
	return out
}

// IntersectionLen counts keys present in both sets.
func (s *Set) IntersectionLen(other *Set) int {
	small, large := s, other
	if large.Len() < small.Len() {
		small, large = large, small
	}
	n := 0
	for k := range small.items {
		if large.Contains(k) {
			n++
		}
	}
	return n
}
