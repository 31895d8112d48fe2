package util

import "sort"

// Keys returns the keys of a map in no particular order
func Keys[K comparable, V any](val map[K]V) []K {
	out := make([]K, 0, len(val))
	for k := range val {
		out = append(out, k)
	}
	return out
}

// SortedKeys returns the keys of a map in ascending order, or nil if the map is empty
func SortedKeys[V any](val map[string]V) []string {
	if len(val) == 0 {
		return nil
	}
	out := Keys(val)
	sort.Strings(out)
	return out
}
