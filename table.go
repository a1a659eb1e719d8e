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
	"sync/atomic"
	"unsafe"

	"golang.org/x/exp/rand"
)

// wordOf bit-casts a key into a slot word. Only the low Sizeof(K) bytes are
// significant; the remainder stays zero, so two keys produce equal words iff
// their bit patterns are equal. table.init verifies Sizeof(K) <= 8. Key
// types with interior padding bytes are not bitwise-comparable and must not
// be used.
func wordOf[K comparable](key K) uint64 {
	var w uint64
	*(*K)(unsafe.Pointer(&w)) = key
	return w
}

func keyOf[K comparable](w uint64) K {
	return *(*K)(unsafe.Pointer(&w))
}

// unsafeSlice provides semi-ergonomic limited slice-like functionality
// without bounds checking for fixed sized slices.
type unsafeSlice[T any] struct {
	ptr unsafe.Pointer
}

func makeUnsafeSlice[T any](s []T) unsafeSlice[T] {
	return unsafeSlice[T]{ptr: unsafe.Pointer(unsafe.SliceData(s))}
}

// At returns a pointer to the element at index i.
func (s unsafeSlice[T]) At(i uint64) *T {
	var t T
	return (*T)(unsafe.Add(s.ptr, uintptr(i)*unsafe.Sizeof(t)))
}

// Allocator specifies an interface for acquiring and releasing the slot
// storage used by a container. The default allocator uses Go's builtin
// make() and lets the GC reclaim memory.
//
// If the allocator manually manages memory, Set.Close or Map.Close must be
// called to guarantee FreeWords runs.
type Allocator interface {
	// AllocWords should return a slice equivalent to make([]atomic.Uint64, n).
	AllocWords(n int) []atomic.Uint64

	// FreeWords can optionally release the memory associated with the
	// supplied slice, which is guaranteed to have been allocated by
	// AllocWords.
	FreeWords(v []atomic.Uint64)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocWords(n int) []atomic.Uint64 { return make([]atomic.Uint64, n) }
func (defaultAllocator) FreeWords(v []atomic.Uint64)      {}

// table is the open-addressing core shared by Set and Map: the key slot
// array, the probing configuration and the claim/commit insert protocol.
// The slot array is the only shared mutable state; the sole permitted
// transition is the one-time CAS of a slot word from the empty sentinel to
// a committed key.
type table[K comparable] struct {
	words   unsafeSlice[atomic.Uint64]
	backing []atomic.Uint64 // same storage as words; kept for scans and release
	slots   uint64          // physical extent, a multiple of the window width
	windows uint64

	shape     probeShape
	scheme    ProbingScheme[K]
	eq        func(K, K) bool
	seed      uint64
	emptyKey  K
	emptyWord uint64

	used        atomic.Int64
	allocator   Allocator
	parallelism int
}

func (t *table[K]) init(capacity int, emptyKey K, cfg config[K]) {
	desc := keyTypeDesc[K]()
	if desc.Size_ > 8 {
		panic(fmt.Sprintf("cuco: key type is %d bytes, slots hold at most 8", desc.Size_))
	}
	if desc.PtrBytes != 0 {
		panic("cuco: key type must not contain pointers")
	}

	t.scheme = resolveScheme(cfg.scheme)
	t.shape = t.scheme.shape()
	if cfg.primeWindows {
		t.slots = primeExtent(capacity, t.shape.width)
	} else {
		t.slots = validExtent(capacity, t.shape.width)
	}
	t.windows = t.slots / t.shape.width

	t.eq = cfg.eq
	if cfg.seedSet {
		t.seed = cfg.seed
	} else {
		t.seed = rand.Uint64()
	}
	t.allocator = cfg.allocator
	t.parallelism = cfg.parallelism

	t.emptyKey = emptyKey
	t.emptyWord = wordOf(emptyKey)
	t.backing = t.allocator.AllocWords(int(t.slots))
	t.words = makeUnsafeSlice(t.backing)
	for i := range t.backing {
		t.backing[i].Store(t.emptyWord)
	}
}

// release returns the slot storage to the allocator. Idempotent.
func (t *table[K]) release() {
	if t.backing != nil {
		t.allocator.FreeWords(t.backing)
		t.backing = nil
		t.words = unsafeSlice[atomic.Uint64]{}
		t.slots = 0
		t.windows = 0
		t.used.Store(0)
	}
}

// reset returns every slot to the empty sentinel. Not safe to call
// concurrently with any other operation.
func (t *table[K]) reset() {
	for i := range t.backing {
		t.backing[i].Store(t.emptyWord)
	}
	t.used.Store(0)
}

func (t *table[K]) hashKey(key K) (uint64, uint64) {
	return t.scheme.hashes(key, t.seed)
}

// claim runs the insert protocol for key with hash pair (h1, h2): walk the
// probe sequence and CAS the first empty slot word from the sentinel to the
// key word. Returns the slot index and whether this call committed it. A
// failed CAS re-examines the observed word; an equal key there (or anywhere
// along the sequence) reports a duplicate at that slot. Exhausting the
// sequence reports ErrCapacityExhausted.
func (t *table[K]) claim(key K, h1, h2 uint64) (idx uint64, inserted bool, err error) {
	t.assertNotSentinel(key)
	kw := wordOf(key)
	seq := makeProbeSeq(t.shape, h1, h2, t.slots)
	if debug {
		fmt.Printf("claim(%v): %s\n", key, seq)
	}

	for ; !seq.done(t.windows); seq = seq.next() {
		for lane := uint64(0); lane < t.shape.width; lane++ {
			i := seq.offset + lane
			slot := t.words.At(i)
			w := slot.Load()
			for w == t.emptyWord {
				if slot.CompareAndSwap(t.emptyWord, kw) {
					t.used.Add(1)
					if debug {
						fmt.Printf("claim(%v): committed slot %d\n", key, i)
					}
					return i, true, nil
				}
				// Lost the race for this slot; re-examine what won it.
				w = slot.Load()
			}
			if w == kw || t.eq(keyOf[K](w), key) {
				return i, false, nil
			}
		}
	}
	return 0, false, ErrCapacityExhausted
}

// lookup walks the probe sequence for hash pair (h1, h2) and returns the
// first slot whose key satisfies match. The first empty slot terminates the
// walk: with deletion unsupported, an empty slot on the probe path proves no
// insert ever passed through it, so the key cannot appear later in the
// sequence.
func (t *table[K]) lookup(h1, h2 uint64, match func(K) bool) (idx uint64, ok bool) {
	seq := makeProbeSeq(t.shape, h1, h2, t.slots)
	for ; !seq.done(t.windows); seq = seq.next() {
		for lane := uint64(0); lane < t.shape.width; lane++ {
			i := seq.offset + lane
			w := t.words.At(i).Load()
			if w == t.emptyWord {
				return 0, false
			}
			if match(keyOf[K](w)) {
				return i, true
			}
		}
	}
	return 0, false
}

// Len returns the number of committed keys. The value is exact once all
// concurrent inserts have returned.
func (t *table[K]) Len() int {
	return int(t.used.Load())
}

// Capacity returns the physical slot count, which is the requested capacity
// rounded up to the extent policy.
func (t *table[K]) Capacity() int {
	return int(t.slots)
}

// LoadFactor returns the ratio of committed keys to physical capacity.
func (t *table[K]) LoadFactor() float64 {
	if t.slots == 0 {
		return 0
	}
	return float64(t.used.Load()) / float64(t.slots)
}

// EmptyKey returns the sentinel key configured at construction.
func (t *table[K]) EmptyKey() K {
	return t.emptyKey
}

func (t *table[K]) assertNotSentinel(key K) {
	if invariants {
		if wordOf(key) == t.emptyWord {
			panic(fmt.Sprintf("cuco: key %v equals the empty sentinel", key))
		}
	}
}
