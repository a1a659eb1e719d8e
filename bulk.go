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
	"sync"

	"golang.org/x/sys/cpu"
)

// Bulk operations process each element of an input range independently and
// in parallel. Results land in output ranges parallel to the inputs, so
// out[i] always answers for in[i] regardless of how the range was sharded:
// permuting the input permutes the output identically. There is no ordering
// guarantee across distinct keys beyond that.

// minBulkParallel is the smallest input size worth fanning out for; below
// it the goroutine overhead dominates.
const minBulkParallel = 256

// bulkShard is one worker's accumulator. Padded so neighboring workers
// don't share a cache line.
type bulkShard struct {
	inserted int64
	err      error
	_        cpu.CacheLinePad
}

// forChunks runs fn over contiguous chunks of [0, n), fanning out to at
// most t.parallelism workers, and merges the shard accumulators after the
// join. The first recorded error wins.
func (t *table[K]) forChunks(n int, fn func(s *bulkShard, lo, hi int)) (int, error) {
	workers := t.parallelism
	if workers > n {
		workers = n
	}
	if n < minBulkParallel || workers <= 1 {
		var s bulkShard
		fn(&s, 0, n)
		return int(s.inserted), s.err
	}

	shards := make([]bulkShard, workers)
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(s *bulkShard, lo, hi int) {
			defer wg.Done()
			fn(s, lo, hi)
		}(&shards[w], lo, hi)
	}
	wg.Wait()

	total, err := 0, error(nil)
	for i := range shards {
		total += int(shards[i].inserted)
		if err == nil {
			err = shards[i].err
		}
	}
	return total, err
}

func checkParallel(nin, nout int, what string) {
	if nin != nout {
		panic(fmt.Sprintf("cuco: %s range length %d does not match input length %d", what, nout, nin))
	}
}

// InsertAll inserts every key in the range and returns how many were newly
// inserted. Duplicates are counted out silently; if any key exhausted its
// probe sequence the error is ErrCapacityExhausted, and the remaining keys
// were still attempted (no key is silently skipped).
func (s *Set[K]) InsertAll(keys []K) (int, error) {
	return s.InsertEach(keys, nil)
}

// InsertEach is InsertAll with a per-key outcome range: out[i] reports
// whether keys[i] was newly inserted. A nil out discards the outcomes;
// otherwise its length must match keys.
func (s *Set[K]) InsertEach(keys []K, out []bool) (int, error) {
	if out != nil {
		checkParallel(len(keys), len(out), "outcome")
	}
	return s.forChunks(len(keys), func(sh *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			inserted, err := s.Insert(keys[i])
			if err != nil && sh.err == nil {
				sh.err = err
			}
			if inserted {
				sh.inserted++
			}
			if out != nil {
				out[i] = inserted
			}
		}
	})
}

// ContainsAll answers containment for every key in the range: out[i]
// reports whether keys[i] is present.
func (s *Set[K]) ContainsAll(keys []K, out []bool) {
	checkParallel(len(keys), len(out), "output")
	s.forChunks(len(keys), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = s.Contains(keys[i])
		}
	})
}

// InsertAll inserts every pair from the parallel key and value ranges and
// returns how many were newly inserted.
func (m *Map[K, V]) InsertAll(keys []K, values []V) (int, error) {
	return m.InsertEach(keys, values, nil)
}

// InsertEach is InsertAll with a per-key outcome range; see Set.InsertEach.
func (m *Map[K, V]) InsertEach(keys []K, values []V, out []bool) (int, error) {
	checkParallel(len(keys), len(values), "value")
	if out != nil {
		checkParallel(len(keys), len(out), "outcome")
	}
	return m.forChunks(len(keys), func(sh *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			inserted, err := m.Insert(keys[i], values[i])
			if err != nil && sh.err == nil {
				sh.err = err
			}
			if inserted {
				sh.inserted++
			}
			if out != nil {
				out[i] = inserted
			}
		}
	})
}

// ContainsAll answers containment for every key in the range.
func (m *Map[K, V]) ContainsAll(keys []K, out []bool) {
	checkParallel(len(keys), len(out), "output")
	m.forChunks(len(keys), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = m.Contains(keys[i])
		}
	})
}

// GetAll retrieves the value for every key in the range: outValues[i] and
// outOK[i] mirror Get(keys[i]). Values for missing keys are left untouched.
func (m *Map[K, V]) GetAll(keys []K, outValues []V, outOK []bool) {
	checkParallel(len(keys), len(outValues), "value output")
	checkParallel(len(keys), len(outOK), "ok output")
	m.forChunks(len(keys), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			if v, ok := m.Get(keys[i]); ok {
				outValues[i] = v
				outOK[i] = true
			} else {
				outOK[i] = false
			}
		}
	})
}

// ContainsAll answers containment for every probe key in the range.
func (v *SetView[K, P]) ContainsAll(probes []P, out []bool) {
	checkParallel(len(probes), len(out), "output")
	v.set.forChunks(len(probes), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = v.Contains(probes[i])
		}
	})
}

// FindAll retrieves the stored key for every probe key in the range:
// outKeys[i] and outOK[i] mirror Find(probes[i]).
func (v *SetView[K, P]) FindAll(probes []P, outKeys []K, outOK []bool) {
	checkParallel(len(probes), len(outKeys), "key output")
	checkParallel(len(probes), len(outOK), "ok output")
	v.set.forChunks(len(probes), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			if k, ok := v.Find(probes[i]); ok {
				outKeys[i] = k
				outOK[i] = true
			} else {
				outOK[i] = false
			}
		}
	})
}

// ContainsAll answers containment for every probe key in the range.
func (v *MapView[K, V, P]) ContainsAll(probes []P, out []bool) {
	checkParallel(len(probes), len(out), "output")
	v.m.forChunks(len(probes), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = v.Contains(probes[i])
		}
	})
}

// GetAll retrieves the value for every probe key in the range.
func (v *MapView[K, V, P]) GetAll(probes []P, outValues []V, outOK []bool) {
	checkParallel(len(probes), len(outValues), "value output")
	checkParallel(len(probes), len(outOK), "ok output")
	v.m.forChunks(len(probes), func(_ *bulkShard, lo, hi int) {
		for i := lo; i < hi; i++ {
			if val, ok := v.Get(probes[i]); ok {
				outValues[i] = val
				outOK[i] = true
			} else {
				outOK[i] = false
			}
		}
	})
}
