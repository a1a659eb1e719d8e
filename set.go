// Copyright 2024 NVIDIA Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cuco

// Set is a fixed-capacity concurrent set of keys. Insert and the query
// operations are safe for use by any number of goroutines; Clear, Close and
// All require quiescence.
//
// The key type must fit in 8 bytes, contain no pointers, and must never
// equal the empty sentinel supplied at construction. The capacity is fixed
// at construction; the set never grows.
type Set[K comparable] struct {
	table[K]
}

// NewSet constructs a set with at least the requested capacity. emptyKey is
// the reserved sentinel marking vacant slots; inserting or querying it is
// undefined behavior. A capacity <= 0 panics.
func NewSet[K comparable](capacity int, emptyKey K, options ...option[K]) *Set[K] {
	s := &Set[K]{}
	s.init(capacity, emptyKey, newConfig(options))
	return s
}

// Insert adds key if no equal key is present. It returns true if the key
// was newly inserted, and false with a nil error for a duplicate. The error
// is ErrCapacityExhausted if the probe sequence was exhausted, in which case
// the key was not stored.
func (s *Set[K]) Insert(key K) (bool, error) {
	h1, h2 := s.hashKey(key)
	_, inserted, err := s.claim(key, h1, h2)
	return inserted, err
}

// Contains reports whether a key equal to key is present.
func (s *Set[K]) Contains(key K) bool {
	h1, h2 := s.hashKey(key)
	_, ok := s.lookup(h1, h2, func(stored K) bool { return s.eq(stored, key) })
	return ok
}

// Find returns the stored key equal to key. The stored key is the canonical
// instance committed by the winning insert, which makes Find usable for
// interning when the equality function is coarser than ==.
func (s *Set[K]) Find(key K) (K, bool) {
	h1, h2 := s.hashKey(key)
	i, ok := s.lookup(h1, h2, func(stored K) bool { return s.eq(stored, key) })
	if !ok {
		var zero K
		return zero, false
	}
	return keyOf[K](s.words.At(i).Load()), true
}

// All calls yield for each key in the set, in slot order, until yield
// returns false. Keys whose insert is still in flight may or may not be
// seen; run All on a quiescent set for exact results.
func (s *Set[K]) All(yield func(key K) bool) {
	for i := range s.backing {
		w := s.backing[i].Load()
		if w == s.emptyWord {
			continue
		}
		if !yield(keyOf[K](w)) {
			return
		}
	}
}

// Clear resets every slot to the empty sentinel. Not safe to call
// concurrently with any other operation.
func (s *Set[K]) Clear() {
	s.reset()
}

// Close releases the slot storage back to the configured allocator. It is
// unnecessary with the default allocator. Using the set after Close is
// invalid; Close itself is idempotent.
func (s *Set[K]) Close() {
	s.release()
}
