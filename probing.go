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
	"math/bits"
)

// A ProbingScheme maps a key to the deterministic, cyclic sequence of
// windows a container examines on its behalf. The scheme also fixes the
// cooperative-group width (CGSize): one probe step covers CGSize contiguous
// slots which are examined together before the sequence advances.
//
// For a fixed key, seed and extent the sequence is identical across calls
// and across insert vs. query. Inserts and queries must therefore use
// schemes that agree on shape (kind and width) and hashing; heterogeneous
// views enforce the shape part and leave hash agreement to the caller.
type ProbingScheme[K any] interface {
	shape() probeShape
	// hashes returns the window hash h1 and, for double hashing, the
	// stride hash h2.
	hashes(key K, seed uint64) (h1, h2 uint64)
}

type probeKind uint8

const (
	probeLinear probeKind = iota
	probeDouble
)

type probeShape struct {
	kind  probeKind
	width uint64
}

// LinearProbing probes windows at a constant stride of one window:
// window(i) = (h1 + i) mod windows. Simplest scheme, but prone to
// clustering under skewed hash distributions.
//
// CGSize is the cooperative-group width; it must be a power of two between
// 1 and 32. A zero CGSize defaults to DefaultCGSize. A nil Hash defaults to
// the runtime hasher for K.
type LinearProbing[K any] struct {
	CGSize int
	Hash   HashFn[K]
}

// DoubleHashing derives the window stride from a second hash:
// window(i) = (h1 + i*(h2 mod (windows-1) + 1)) mod windows. The stride is
// never zero, so the sequence always makes progress. It visits all windows
// when the stride is coprime with the window count, which is guaranteed for
// every stride when the window count is prime (see WithPrimeWindows);
// otherwise it covers windows/gcd(stride, windows) windows before cycling.
// Reduces clustering relative to linear probing at the cost of a second
// hash evaluation.
type DoubleHashing[K any] struct {
	CGSize int
	Hash1  HashFn[K]
	Hash2  HashFn[K]
}

// DefaultCGSize is the cooperative-group width used when a probing scheme
// leaves CGSize zero.
const DefaultCGSize = 4

func (p LinearProbing[K]) shape() probeShape {
	return probeShape{kind: probeLinear, width: checkWidth(p.CGSize)}
}

func (p LinearProbing[K]) hashes(key K, seed uint64) (uint64, uint64) {
	h := p.Hash
	if h == nil {
		panic("cuco: LinearProbing used before hash resolution")
	}
	return h(key, seed), 0
}

func (p DoubleHashing[K]) shape() probeShape {
	return probeShape{kind: probeDouble, width: checkWidth(p.CGSize)}
}

func (p DoubleHashing[K]) hashes(key K, seed uint64) (uint64, uint64) {
	h1, h2 := p.Hash1, p.Hash2
	if h1 == nil || h2 == nil {
		panic("cuco: DoubleHashing used before hash resolution")
	}
	return h1(key, seed), h2(key, seed^strideSeed)
}

// resolveScheme fills in defaulted fields, returning the scheme the
// container actually stores.
func resolveScheme[K comparable](p ProbingScheme[K]) ProbingScheme[K] {
	switch s := p.(type) {
	case LinearProbing[K]:
		if s.CGSize == 0 {
			s.CGSize = DefaultCGSize
		}
		if s.Hash == nil {
			s.Hash = DefaultHash[K]()
		}
		return s
	case DoubleHashing[K]:
		if s.CGSize == 0 {
			s.CGSize = DefaultCGSize
		}
		if s.Hash1 == nil {
			s.Hash1 = DefaultHash[K]()
		}
		if s.Hash2 == nil {
			s.Hash2 = DefaultHash[K]()
		}
		return s
	default:
		return p
	}
}

// resolveViewScheme is resolveScheme for probe-key schemes. The probe type
// need not be comparable, so there is no default hash to fall back on; the
// caller must supply every hash function.
func resolveViewScheme[P any](p ProbingScheme[P]) ProbingScheme[P] {
	switch s := p.(type) {
	case LinearProbing[P]:
		if s.CGSize == 0 {
			s.CGSize = DefaultCGSize
		}
		if s.Hash == nil {
			panic("cuco: probe views require explicit hash functions")
		}
		return s
	case DoubleHashing[P]:
		if s.CGSize == 0 {
			s.CGSize = DefaultCGSize
		}
		if s.Hash1 == nil || s.Hash2 == nil {
			panic("cuco: probe views require explicit hash functions")
		}
		return s
	default:
		return p
	}
}

func checkWidth(cgSize int) uint64 {
	if cgSize == 0 {
		cgSize = DefaultCGSize
	}
	if cgSize < 1 || cgSize > 32 || bits.OnesCount(uint(cgSize)) != 1 {
		panic(fmt.Sprintf("cuco: cooperative-group size %d is not a power of two in [1,32]", cgSize))
	}
	return uint64(cgSize)
}

// probeSeq is the per-operation probe state: a generator over window start
// offsets. It is a plain value, recomputed on every operation and never
// cached across calls.
type probeSeq struct {
	offset uint64 // slot index of the current window start, window-aligned
	stride uint64 // slots advanced per step, a multiple of the width
	index  uint64 // windows visited so far
	slots  uint64 // physical extent
}

// makeProbeSeq builds the sequence for hash pair (h1, h2) over a table of
// the given shape and extent. slots must be a positive multiple of
// shape.width.
func makeProbeSeq(shape probeShape, h1, h2, slots uint64) probeSeq {
	windows := slots / shape.width
	s := probeSeq{
		offset: (h1 % windows) * shape.width,
		stride: shape.width,
		slots:  slots,
	}
	if shape.kind == probeDouble && windows > 1 {
		s.stride = (h2%(windows-1) + 1) * shape.width
	}
	return s
}

func (s probeSeq) next() probeSeq {
	s.offset = (s.offset + s.stride) % s.slots
	s.index++
	return s
}

// done reports whether the sequence has cycled through as many steps as the
// table has windows. Probing past this point cannot visit new windows.
func (s probeSeq) done(windows uint64) bool {
	return s.index >= windows
}

func (s probeSeq) String() string {
	return fmt.Sprintf("offset=%d stride=%d index=%d slots=%d", s.offset, s.stride, s.index, s.slots)
}
