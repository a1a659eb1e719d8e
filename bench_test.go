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
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"golang.org/x/exp/rand"
)

func BenchmarkSetInsert(b *testing.B) {
	b.Run("probing=linear", benchSizes(benchmarkSetInsert(
		WithProbing[int64](LinearProbing[int64]{}))))
	b.Run("probing=double", benchSizes(benchmarkSetInsert(
		WithPrimeWindows[int64]())))
}

func BenchmarkSetContainsHit(b *testing.B) {
	b.Run("probing=linear", benchSizes(benchmarkSetContains(true,
		WithProbing[int64](LinearProbing[int64]{}))))
	b.Run("probing=double", benchSizes(benchmarkSetContains(true,
		WithPrimeWindows[int64]())))
}

func BenchmarkSetContainsMiss(b *testing.B) {
	b.Run("probing=linear", benchSizes(benchmarkSetContains(false,
		WithProbing[int64](LinearProbing[int64]{}))))
	b.Run("probing=double", benchSizes(benchmarkSetContains(false,
		WithPrimeWindows[int64]())))
}

func BenchmarkSetInsertParallel(b *testing.B) {
	benchSizes(benchmarkSetInsertParallel)(b)
}

func BenchmarkSetInsertAll(b *testing.B) {
	benchSizes(benchmarkSetInsertAll)(b)
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetHit))
	b.Run("impl=cucoMap", benchSizes(benchmarkCucoMapGetHit))
}

func BenchmarkMapInsert(b *testing.B) {
	benchSizes(benchmarkMapInsert)(b)
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		64,
		256,
		1024,
		4096,
		1 << 16,
		1 << 20,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

func genBenchKeys(n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i)
	}
	rng := rand.New(rand.NewSource(uint64(n)))
	rng.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	return keys
}

func benchmarkSetInsert(options ...option[int64]) func(b *testing.B, n int) {
	return func(b *testing.B, n int) {
		c := perfbench.Open(b)
		keys := genBenchKeys(n)
		b.ResetTimer()
		c.Reset()
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			c.Stop()
			s := NewSet[int64](2*n, emptyInt64, options...)
			b.StartTimer()
			c.Start()
			for _, k := range keys {
				_, _ = s.Insert(k)
			}
		}
	}
}

func benchmarkSetContains(hit bool, options ...option[int64]) func(b *testing.B, n int) {
	return func(b *testing.B, n int) {
		c := perfbench.Open(b)
		s := NewSet[int64](2*n, emptyInt64, options...)
		keys := genBenchKeys(n)
		for _, k := range keys {
			_, _ = s.Insert(k)
		}
		probes := keys
		if !hit {
			probes = make([]int64, n)
			for i := range probes {
				probes[i] = int64(n + i)
			}
		}
		b.ResetTimer()
		c.Reset()
		var ok bool
		for i := 0; i < b.N; i++ {
			ok = s.Contains(probes[i%n])
		}
		b.StopTimer()
		fmt.Fprint(io.Discard, ok)
	}
}

func benchmarkSetInsertParallel(b *testing.B, n int) {
	c := perfbench.Open(b)
	keys := genBenchKeys(n)
	workers := 8
	if workers > n {
		workers = n
	}
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c.Stop()
		s := NewSet[int64](2*n, emptyInt64, WithPrimeWindows[int64]())
		b.StartTimer()
		c.Start()

		var wg sync.WaitGroup
		chunk := n / workers
		for w := 0; w < workers; w++ {
			lo := w * chunk
			hi := lo + chunk
			if w == workers-1 {
				hi = n
			}
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				for _, k := range keys[lo:hi] {
					_, _ = s.Insert(k)
				}
			}(lo, hi)
		}
		wg.Wait()
	}
}

func benchmarkSetInsertAll(b *testing.B, n int) {
	c := perfbench.Open(b)
	keys := genBenchKeys(n)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c.Stop()
		s := NewSet[int64](2*n, emptyInt64, WithPrimeWindows[int64]())
		b.StartTimer()
		c.Start()
		_, _ = s.InsertAll(keys)
	}
}

func benchmarkRuntimeMapGetHit(b *testing.B, n int) {
	c := perfbench.Open(b)
	m := make(map[int64]int64, n)
	keys := genBenchKeys(n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkCucoMapGetHit(b *testing.B, n int) {
	c := perfbench.Open(b)
	m := NewMap[int64, int64](2*n, emptyInt64, emptyInt64, WithPrimeWindows[int64]())
	keys := genBenchKeys(n)
	for _, k := range keys {
		_, _ = m.Insert(k, k)
	}
	b.ResetTimer()
	c.Reset()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkMapInsert(b *testing.B, n int) {
	c := perfbench.Open(b)
	keys := genBenchKeys(n)
	b.ResetTimer()
	c.Reset()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		c.Stop()
		m := NewMap[int64, int64](2*n, emptyInt64, emptyInt64, WithPrimeWindows[int64]())
		b.StartTimer()
		c.Start()
		for _, k := range keys {
			_, _ = m.Insert(k, k)
		}
	}
}
