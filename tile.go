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
	"sync"
)

// A Tile is one member's handle onto a cooperative group: a fixed-size set
// of goroutines executing the same operation in lockstep. Collectives
// (Sync, Ballot, Broadcast) block until every member of the group has
// arrived, so all members observe the same decision at each step.
//
// Every member must participate in every collective, in the same order.
// A member that skips a collective the others execute deadlocks the group;
// this is a usage error, not a recoverable condition.
type Tile struct {
	shared *tileShared
	rank   int
}

type tileShared struct {
	width   int
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	round   uint64
	// Collective scratch, double-buffered on round parity: the scratch for
	// round r+1 is cleared by the last arriver of round r, at which point
	// every member has finished reading round r-1's results.
	votes [2]uint32
	bcast [2]uint64
}

// RunTile spawns a cooperative group of the given width, invoking fn once
// per member with that member's Tile, and joins all members. The width must
// be a power of two in [1,32], matching the CGSize of any container the
// group operates on.
func RunTile(width int, fn func(t *Tile)) {
	checkWidth(width)
	sh := &tileShared{width: width}
	sh.cond = sync.NewCond(&sh.mu)
	var wg sync.WaitGroup
	for r := 0; r < width; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			fn(&Tile{shared: sh, rank: rank})
		}(r)
	}
	wg.Wait()
}

// Rank returns this member's index within the group, in [0, Width).
func (t *Tile) Rank() int { return t.rank }

// Width returns the group size.
func (t *Tile) Width() int { return t.shared.width }

// arriveLocked is the barrier: the caller holds sh.mu. Returns the parity
// index of the round the caller arrived in, which selects the collective
// scratch the round's result lives in.
func (sh *tileShared) arriveLocked() int {
	cur := int(sh.round & 1)
	sh.arrived++
	if sh.arrived == sh.width {
		sh.arrived = 0
		sh.votes[cur^1] = 0
		sh.bcast[cur^1] = 0
		sh.round++
		sh.cond.Broadcast()
	} else {
		gen := sh.round
		for sh.round == gen {
			sh.cond.Wait()
		}
	}
	return cur
}

// Sync blocks until every member of the group has called Sync.
func (t *Tile) Sync() {
	sh := t.shared
	sh.mu.Lock()
	sh.arriveLocked()
	sh.mu.Unlock()
}

// Ballot collects one predicate per member and returns the combined vote
// mask to all of them: bit r is set iff member r passed true.
func (t *Tile) Ballot(pred bool) uint32 {
	sh := t.shared
	sh.mu.Lock()
	if pred {
		sh.votes[sh.round&1] |= 1 << t.rank
	}
	cur := sh.arriveLocked()
	res := sh.votes[cur]
	sh.mu.Unlock()
	return res
}

// Broadcast returns member src's v to every member of the group. The v of
// all other members is ignored.
func (t *Tile) Broadcast(v uint64, src int) uint64 {
	sh := t.shared
	sh.mu.Lock()
	if t.rank == src {
		sh.bcast[sh.round&1] = v
	}
	cur := sh.arriveLocked()
	res := sh.bcast[cur]
	sh.mu.Unlock()
	return res
}

const (
	coopWon  = iota // the electing member committed the slot
	coopDup         // the slot holds an equal key
	coopLost        // the slot was taken by a different key; retry window
)

// CoopInsert is the group-synchronous formulation of Insert: the group's
// members jointly evaluate one probe window per step, each inspecting its
// rank's lane, and agree by ballot whether the window holds a duplicate, an
// empty slot to claim, or neither. At most one member performs the CAS and
// the outcome is broadcast, so every member returns the same result.
//
// All members must call CoopInsert together with the same key, and the
// tile width must equal the set's CGSize.
func (s *Set[K]) CoopInsert(t *Tile, key K) (bool, error) {
	s.checkTile(t)
	s.assertNotSentinel(key)
	kw := wordOf(key)
	h1, h2 := s.hashKey(key)
	rank := uint64(t.Rank())
	seq := makeProbeSeq(s.shape, h1, h2, s.slots)

	for !seq.done(s.windows) {
		slot := s.words.At(seq.offset + rank)
		w := slot.Load()
		empty := w == s.emptyWord
		match := !empty && (w == kw || s.eq(keyOf[K](w), key))

		if t.Ballot(match) != 0 {
			return false, nil
		}
		empties := t.Ballot(empty)
		if empties == 0 {
			seq = seq.next()
			continue
		}

		src := bits.TrailingZeros32(empties)
		outcome := uint64(coopLost)
		if t.Rank() == src {
			if slot.CompareAndSwap(s.emptyWord, kw) {
				s.used.Add(1)
				outcome = coopWon
			} else if w = slot.Load(); w == kw || s.eq(keyOf[K](w), key) {
				outcome = coopDup
			}
		}
		switch t.Broadcast(outcome, src) {
		case coopWon:
			return true, nil
		case coopDup:
			return false, nil
		default:
			// Lost the slot to a different key; re-examine this window.
		}
	}
	return false, ErrCapacityExhausted
}

// CoopContains is the group-synchronous formulation of Contains; see
// CoopInsert for the participation contract.
func (s *Set[K]) CoopContains(t *Tile, key K) bool {
	s.checkTile(t)
	h1, h2 := s.hashKey(key)
	rank := uint64(t.Rank())
	for seq := makeProbeSeq(s.shape, h1, h2, s.slots); !seq.done(s.windows); seq = seq.next() {
		w := s.words.At(seq.offset + rank).Load()
		empty := w == s.emptyWord
		match := !empty && s.eq(keyOf[K](w), key)
		if t.Ballot(match) != 0 {
			return true
		}
		if t.Ballot(empty) != 0 {
			return false
		}
	}
	return false
}

// CoopInsert is the group-synchronous formulation of Map.Insert. The member
// that wins the key slot publishes the value before the outcome broadcast.
func (m *Map[K, V]) CoopInsert(t *Tile, key K, value V) (bool, error) {
	m.checkTile(t)
	m.assertNotSentinel(key)
	m.assertNotEmptyValue(value)
	kw := wordOf(key)
	h1, h2 := m.hashKey(key)
	rank := uint64(t.Rank())
	seq := makeProbeSeq(m.shape, h1, h2, m.slots)

	for !seq.done(m.windows) {
		i := seq.offset + rank
		slot := m.words.At(i)
		w := slot.Load()
		empty := w == m.emptyWord
		match := !empty && (w == kw || m.eq(keyOf[K](w), key))

		if t.Ballot(match) != 0 {
			return false, nil
		}
		empties := t.Ballot(empty)
		if empties == 0 {
			seq = seq.next()
			continue
		}

		src := bits.TrailingZeros32(empties)
		outcome := uint64(coopLost)
		if t.Rank() == src {
			if slot.CompareAndSwap(m.emptyWord, kw) {
				// CAS, not Store: a concurrent Put that already overwrote
				// this entry must not be reverted.
				m.vals.At(i).CompareAndSwap(m.emptyValWord, wordOf(value))
				m.used.Add(1)
				outcome = coopWon
			} else if w = slot.Load(); w == kw || m.eq(keyOf[K](w), key) {
				outcome = coopDup
			}
		}
		switch t.Broadcast(outcome, src) {
		case coopWon:
			return true, nil
		case coopDup:
			return false, nil
		default:
		}
	}
	return false, ErrCapacityExhausted
}

// CoopGet is the group-synchronous formulation of Map.Get: every member
// returns the same value and presence result.
func (m *Map[K, V]) CoopGet(t *Tile, key K) (value V, ok bool) {
	m.checkTile(t)
	h1, h2 := m.hashKey(key)
	rank := uint64(t.Rank())
	for seq := makeProbeSeq(m.shape, h1, h2, m.slots); !seq.done(m.windows); seq = seq.next() {
		w := m.words.At(seq.offset + rank).Load()
		empty := w == m.emptyWord
		match := !empty && m.eq(keyOf[K](w), key)
		if matches := t.Ballot(match); matches != 0 {
			idx := seq.offset + uint64(bits.TrailingZeros32(matches))
			return m.waitValue(idx), true
		}
		if t.Ballot(empty) != 0 {
			return value, false
		}
	}
	return value, false
}

func (t *table[K]) checkTile(tile *Tile) {
	if uint64(tile.Width()) != t.shape.width {
		panic(fmt.Sprintf("cuco: tile width %d does not match container CGSize %d",
			tile.Width(), t.shape.width))
	}
}
