package util

// Set is a generic set implementation for comparable values
type Set[K comparable] map[K]struct{}

// SetOf creates a new set containing the given elements
func SetOf[K comparable](elements ...K) Set[K] {
	s := make(Set[K], len(elements))
	for _, elem := range elements {
		s[elem] = struct{}{}
	}
	return s
}

// Add adds an element to the set
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

// Contains returns true if the element exists in the set
func (s Set[K]) Contains(key K) bool {
	_, exists := s[key]
	return exists
}

// Len returns the number of elements in the set
func (s Set[K]) Len() int {
	return len(s)
}

// AppendUnique appends the values not already present in dst, preserving
// insertion order
func AppendUnique[K comparable](dst []K, values ...K) []K {
	seen := SetOf(dst...)
	res := dst
	for _, v := range values {
		if seen.Contains(v) {
			continue
		}
		seen.Add(v)
		res = append(res, v)
	}
	return res
}
