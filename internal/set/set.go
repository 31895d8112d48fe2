package set

import "sort"

type ordered interface {
	~int | ~string
}

// Set is a set of values of type V, indexed by keys of type K. We require an orderable type, so that we can
// provide a deterministic output.
type Set[K ordered, V any] struct {
	valuesByKey map[K]V
	getKey      func(V) K
}

func NewSet[T ordered](vals ...T) *Set[T, T] {
	return NewSetWithCustomKey(func(v T) T {
		return v
	}, vals...)
}

func NewSetWithCustomKey[K ordered, V any](getKey func(V) K, vals ...V) *Set[K, V] {
	set := &Set[K, V]{
		valuesByKey: make(map[K]V),
		getKey:      getKey,
	}
	set.Add(vals...)
	return set
}

func (s *Set[K, V]) Add(vals ...V) {
	for _, val := range vals {
		s.valuesByKey[s.getKey(val)] = val
	}
}

func (s *Set[K, V]) Has(val V) bool {
	return s.HasKey(s.getKey(val))
}

func (s *Set[K, V]) HasKey(key K) bool {
	_, ok := s.valuesByKey[key]
	return ok
}

func (s *Set[K, V]) Len() int {
	return len(s.valuesByKey)
}

func (s *Set[K, V]) Values() []V {
	values := make([]V, 0, len(s.valuesByKey))
	for _, val := range s.valuesByKey {
		values = append(values, val)
	}
	sort.Slice(values, func(i, j int) bool {
		return s.getKey(values[i]) < s.getKey(values[j])
	})
	return values
}

// OrderedSet is a set that remembers the order in which values were first added. Re-adding a value
// keeps its original position.
type OrderedSet[K comparable, V any] struct {
	indexByKey map[K]int
	values     []V
	removed    []bool
	removals   int
	getKey     func(V) K
}

func NewOrderedSet[K comparable, V any](getKey func(V) K) *OrderedSet[K, V] {
	return &OrderedSet[K, V]{
		indexByKey: make(map[K]int),
		getKey:     getKey,
	}
}

// Add adds the value and returns true if it was not already present
func (s *OrderedSet[K, V]) Add(val V) bool {
	key := s.getKey(val)
	if _, ok := s.indexByKey[key]; ok {
		return false
	}
	s.indexByKey[key] = len(s.values)
	s.values = append(s.values, val)
	s.removed = append(s.removed, false)
	return true
}

func (s *OrderedSet[K, V]) Has(val V) bool {
	return s.HasKey(s.getKey(val))
}

func (s *OrderedSet[K, V]) HasKey(key K) bool {
	_, ok := s.indexByKey[key]
	return ok
}

// Remove removes the value and returns true if it was present
func (s *OrderedSet[K, V]) Remove(val V) bool {
	key := s.getKey(val)
	idx, ok := s.indexByKey[key]
	if !ok {
		return false
	}
	delete(s.indexByKey, key)
	s.removed[idx] = true
	s.removals++
	return true
}

func (s *OrderedSet[K, V]) Len() int {
	return len(s.values) - s.removals
}

// Values returns a copy of the values in insertion order
func (s *OrderedSet[K, V]) Values() []V {
	values := make([]V, 0, s.Len())
	for i, val := range s.values {
		if !s.removed[i] {
			values = append(values, val)
		}
	}
	return values
}
