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

import "fmt"

// SetView adapts a Set for heterogeneous lookup: queries probe with keys of
// type P, which may be shaped differently from the stored key type K. The
// view's probing scheme must have the same kind and CGSize as the set's so
// that a probe key replays the identical window sequence, and its hash
// functions must agree with the set's on related keys: whenever
// eq(stored, probe) holds, probe must hash to the same values stored did.
// That agreement is the caller's obligation.
//
// A view borrows the set; it holds no storage of its own and is safe for
// concurrent use wherever the underlying set is.
type SetView[K comparable, P any] struct {
	set    *Set[K]
	scheme ProbingScheme[P]
	eq     func(stored K, probe P) bool
}

// NewSetView constructs a heterogeneous view over s. probing supplies the
// probe-key hash functions; its kind and CGSize must match the scheme s was
// built with, and every hash function must be set explicitly.
func NewSetView[K comparable, P any](s *Set[K], probing ProbingScheme[P], eq func(stored K, probe P) bool) *SetView[K, P] {
	scheme := resolveViewScheme(probing)
	checkViewShape(scheme.shape(), s.shape)
	return &SetView[K, P]{set: s, scheme: scheme, eq: eq}
}

// Contains reports whether a stored key equal to probe is present.
func (v *SetView[K, P]) Contains(probe P) bool {
	h1, h2 := v.scheme.hashes(probe, v.set.seed)
	_, ok := v.set.lookup(h1, h2, func(stored K) bool { return v.eq(stored, probe) })
	return ok
}

// Find returns the stored key equal to probe.
func (v *SetView[K, P]) Find(probe P) (K, bool) {
	h1, h2 := v.scheme.hashes(probe, v.set.seed)
	i, ok := v.set.lookup(h1, h2, func(stored K) bool { return v.eq(stored, probe) })
	if !ok {
		var zero K
		return zero, false
	}
	return keyOf[K](v.set.words.At(i).Load()), true
}

// MapView is SetView's counterpart for Map: heterogeneous containment and
// retrieval with probe keys of type P. The same shape and hash-agreement
// obligations apply.
type MapView[K comparable, V comparable, P any] struct {
	m      *Map[K, V]
	scheme ProbingScheme[P]
	eq     func(stored K, probe P) bool
}

// NewMapView constructs a heterogeneous view over m.
func NewMapView[K comparable, V comparable, P any](m *Map[K, V], probing ProbingScheme[P], eq func(stored K, probe P) bool) *MapView[K, V, P] {
	scheme := resolveViewScheme(probing)
	checkViewShape(scheme.shape(), m.shape)
	return &MapView[K, V, P]{m: m, scheme: scheme, eq: eq}
}

// Contains reports whether a stored key equal to probe is present.
func (v *MapView[K, V, P]) Contains(probe P) bool {
	h1, h2 := v.scheme.hashes(probe, v.m.seed)
	_, ok := v.m.lookup(h1, h2, func(stored K) bool { return v.eq(stored, probe) })
	return ok
}

// Get retrieves the value stored under a key equal to probe.
func (v *MapView[K, V, P]) Get(probe P) (value V, ok bool) {
	h1, h2 := v.scheme.hashes(probe, v.m.seed)
	idx, ok := v.m.lookup(h1, h2, func(stored K) bool { return v.eq(stored, probe) })
	if !ok {
		return value, false
	}
	return v.m.waitValue(idx), true
}

func checkViewShape(view, container probeShape) {
	if view != container {
		panic(fmt.Sprintf("cuco: view probing shape (kind=%d width=%d) does not match container (kind=%d width=%d)",
			view.kind, view.width, container.kind, container.width))
	}
}
