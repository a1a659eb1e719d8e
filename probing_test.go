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
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func genOffsets(shape probeShape, h1, h2, slots uint64, n int) []uint64 {
	seq := makeProbeSeq(shape, h1, h2, slots)
	offsets := make([]uint64, n)
	for i := 0; i < n; i++ {
		offsets[i] = seq.offset
		seq = seq.next()
	}
	return offsets
}

func TestProbeSeqDeterministicReplay(t *testing.T) {
	shapes := []probeShape{
		{kind: probeLinear, width: 1},
		{kind: probeLinear, width: 4},
		{kind: probeDouble, width: 1},
		{kind: probeDouble, width: 8},
	}
	rng := rand.New(rand.NewSource(1))
	for _, shape := range shapes {
		t.Run(fmt.Sprintf("kind=%d,width=%d", shape.kind, shape.width), func(t *testing.T) {
			for i := 0; i < 100; i++ {
				h1, h2 := rng.Uint64(), rng.Uint64()
				slots := (rng.Uint64()%128 + 1) * shape.width
				a := genOffsets(shape, h1, h2, slots, 3*int(slots/shape.width))
				b := genOffsets(shape, h1, h2, slots, 3*int(slots/shape.width))
				require.Equal(t, a, b)
			}
		})
	}
}

func TestProbeSeqWindowAligned(t *testing.T) {
	shape := probeShape{kind: probeDouble, width: 8}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		h1, h2 := rng.Uint64(), rng.Uint64()
		slots := (rng.Uint64()%64 + 1) * shape.width
		for _, off := range genOffsets(shape, h1, h2, slots, 200) {
			require.Zero(t, off%shape.width)
			require.Less(t, off, slots)
		}
	}
}

func TestLinearProbingCoversAllWindows(t *testing.T) {
	shape := probeShape{kind: probeLinear, width: 4}
	const windows = 16
	slots := uint64(windows) * shape.width

	// Every start offset must yield a sequence touching each window exactly
	// once per cycle.
	for h1 := uint64(0); h1 < windows; h1++ {
		offsets := genOffsets(shape, h1, 0, slots, windows)
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		for i := 0; i < windows; i++ {
			require.Equal(t, uint64(i)*shape.width, offsets[i])
		}
	}
}

func TestDoubleHashingStride(t *testing.T) {
	shape := probeShape{kind: probeDouble, width: 4}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		windows := rng.Uint64()%100 + 2
		slots := windows * shape.width
		seq := makeProbeSeq(shape, rng.Uint64(), rng.Uint64(), slots)
		require.NotZero(t, seq.stride)
		require.Zero(t, seq.stride%shape.width)
		require.Less(t, seq.stride, slots)
	}
}

func TestDoubleHashingPrimeWindowsFullCoverage(t *testing.T) {
	// With a prime window count every stride is coprime with it, so the
	// sequence visits each window exactly once per cycle.
	shape := probeShape{kind: probeDouble, width: 2}
	windows := nextPrime(31)
	slots := windows * shape.width

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		offsets := genOffsets(shape, rng.Uint64(), rng.Uint64(), slots, int(windows))
		seen := make(map[uint64]struct{}, windows)
		for _, off := range offsets {
			seen[off] = struct{}{}
		}
		require.Len(t, seen, int(windows))
	}
}

func TestDoubleHashingSingleWindow(t *testing.T) {
	shape := probeShape{kind: probeDouble, width: 4}
	seq := makeProbeSeq(shape, 123, 456, shape.width)
	require.Zero(t, seq.offset)
	require.True(t, seq.next().done(1))
}

func TestCheckWidth(t *testing.T) {
	for _, w := range []int{1, 2, 4, 8, 16, 32} {
		require.Equal(t, uint64(w), checkWidth(w))
	}
	require.Equal(t, uint64(DefaultCGSize), checkWidth(0))
	for _, w := range []int{-1, 3, 6, 33, 64} {
		require.Panics(t, func() { checkWidth(w) }, "width=%d", w)
	}
}

func TestSchemeDefaults(t *testing.T) {
	s := resolveScheme[int](DoubleHashing[int]{})
	d, ok := s.(DoubleHashing[int])
	require.True(t, ok)
	require.Equal(t, DefaultCGSize, d.CGSize)
	require.NotNil(t, d.Hash1)
	require.NotNil(t, d.Hash2)

	// The two hash streams must differ even when backed by one function.
	h1, h2 := d.hashes(42, 7)
	require.NotEqual(t, h1, h2)

	l, ok := resolveScheme[int](LinearProbing[int]{CGSize: 8}).(LinearProbing[int])
	require.True(t, ok)
	require.Equal(t, 8, l.CGSize)
	require.NotNil(t, l.Hash)
}

func TestViewSchemeRequiresHash(t *testing.T) {
	require.Panics(t, func() { resolveViewScheme[int](LinearProbing[int]{CGSize: 4}) })
	require.Panics(t, func() {
		resolveViewScheme[int](DoubleHashing[int]{CGSize: 4, Hash1: DefaultHash[int]()})
	})
	require.NotPanics(t, func() {
		resolveViewScheme[int](LinearProbing[int]{CGSize: 4, Hash: DefaultHash[int]()})
	})
}

func TestDefaultHashSeedSensitivity(t *testing.T) {
	h := DefaultHash[int]()
	// Identical inputs hash identically; distinct seeds should disagree on
	// at least some inputs.
	require.Equal(t, h(1234, 1), h(1234, 1))
	var diff bool
	for i := 0; i < 64 && !diff; i++ {
		diff = h(i, 1) != h(i, 2)
	}
	require.True(t, diff)
}
