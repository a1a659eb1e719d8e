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

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Map is a fixed-capacity concurrent map. Keys follow the same rules as
// Set; values are stored in a parallel word array under the same
// constraints (at most 8 bytes, pointer-free) and carry their own reserved
// sentinel, emptyValue, which must never be stored as a real value.
//
// A value is published by the goroutine that won the key slot, after the
// key CAS commits, via a CAS of the value word away from the sentinel (so a
// concurrent Put that already overwrote the entry is not reverted). A
// reader that observes the key before the value has landed spins until the
// value word leaves the sentinel state; the atomic load of the value word
// orders the read after the writer's store.
type Map[K comparable, V comparable] struct {
	table[K]
	vals         unsafeSlice[atomic.Uint64]
	valsBacking  []atomic.Uint64
	emptyValue   V
	emptyValWord uint64
}

// NewMap constructs a map with at least the requested capacity. emptyKey
// and emptyValue are the reserved sentinels for vacant key slots and
// not-yet-published values; neither may appear as an application key or
// value. A capacity <= 0 panics.
func NewMap[K comparable, V comparable](capacity int, emptyKey K, emptyValue V, options ...option[K]) *Map[K, V] {
	desc := keyTypeDesc[V]()
	if desc.Size_ > 8 {
		panic(fmt.Sprintf("cuco: value type is %d bytes, slots hold at most 8", desc.Size_))
	}
	if desc.PtrBytes != 0 {
		panic("cuco: value type must not contain pointers")
	}

	m := &Map[K, V]{}
	m.init(capacity, emptyKey, newConfig(options))
	m.emptyValue = emptyValue
	m.emptyValWord = wordOf(emptyValue)
	m.valsBacking = m.allocator.AllocWords(int(m.slots))
	m.vals = makeUnsafeSlice(m.valsBacking)
	for i := range m.valsBacking {
		m.valsBacking[i].Store(m.emptyValWord)
	}
	return m
}

// Insert adds key with value if no equal key is present. It returns true if
// the pair was newly inserted; a duplicate key leaves the existing value in
// place and returns false. The error is ErrCapacityExhausted if the probe
// sequence was exhausted.
func (m *Map[K, V]) Insert(key K, value V) (bool, error) {
	m.assertNotEmptyValue(value)
	h1, h2 := m.hashKey(key)
	idx, inserted, err := m.claim(key, h1, h2)
	if err != nil {
		return false, err
	}
	if inserted {
		// Publish with a CAS rather than a plain store: a concurrent Put
		// that observed the committed key may have overwritten the value
		// already, and its acknowledged overwrite must survive. A lost CAS
		// means exactly that, so the sentinel state is gone either way.
		m.vals.At(idx).CompareAndSwap(m.emptyValWord, wordOf(value))
	}
	return inserted, nil
}

// Put inserts the pair, or atomically overwrites the value of the existing
// entry when key is a duplicate. It returns true if the key was newly
// inserted. With concurrent Puts of the same key, the value present once
// all calls return is that of one of them.
func (m *Map[K, V]) Put(key K, value V) (bool, error) {
	m.assertNotEmptyValue(value)
	h1, h2 := m.hashKey(key)
	idx, inserted, err := m.claim(key, h1, h2)
	if err != nil {
		return false, err
	}
	m.vals.At(idx).Store(wordOf(value))
	return inserted, nil
}

// Get retrieves the value for a key equal to key, returning ok=false if no
// such key is present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	h1, h2 := m.hashKey(key)
	idx, ok := m.lookup(h1, h2, func(stored K) bool { return m.eq(stored, key) })
	if !ok {
		return value, false
	}
	return m.waitValue(idx), true
}

// Contains reports whether a key equal to key is present.
func (m *Map[K, V]) Contains(key K) bool {
	h1, h2 := m.hashKey(key)
	_, ok := m.lookup(h1, h2, func(stored K) bool { return m.eq(stored, key) })
	return ok
}

// waitValue loads the value word for a committed key slot, spinning through
// the window between the key CAS and the value store.
func (m *Map[K, V]) waitValue(idx uint64) V {
	slot := m.vals.At(idx)
	for spins := 0; ; spins++ {
		w := slot.Load()
		if w != m.emptyValWord {
			return keyOf[V](w)
		}
		if spins > 64 {
			runtime.Gosched()
		}
	}
}

// All calls yield for each committed pair, in slot order, until yield
// returns false. Entries whose value publication is still in flight are
// skipped; run All on a quiescent map for exact results.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for i := range m.backing {
		w := m.backing[i].Load()
		if w == m.emptyWord {
			continue
		}
		vw := m.valsBacking[i].Load()
		if vw == m.emptyValWord {
			continue
		}
		if !yield(keyOf[K](w), keyOf[V](vw)) {
			return
		}
	}
}

// Clear resets every slot to the sentinels. Not safe to call concurrently
// with any other operation.
func (m *Map[K, V]) Clear() {
	m.reset()
	for i := range m.valsBacking {
		m.valsBacking[i].Store(m.emptyValWord)
	}
}

// Close releases the slot storage back to the configured allocator. It is
// unnecessary with the default allocator. Using the map after Close is
// invalid; Close itself is idempotent.
func (m *Map[K, V]) Close() {
	m.release()
	if m.valsBacking != nil {
		m.allocator.FreeWords(m.valsBacking)
		m.valsBacking = nil
		m.vals = unsafeSlice[atomic.Uint64]{}
	}
}

func (m *Map[K, V]) assertNotEmptyValue(value V) {
	if invariants {
		if wordOf(value) == m.emptyValWord {
			panic(fmt.Sprintf("cuco: value %v equals the empty sentinel", value))
		}
	}
}
