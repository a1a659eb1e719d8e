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

// Package cuco provides concurrent, fixed-capacity associative containers
// (sets and maps) built on open addressing.
//
// # Design
//
// A container owns a flat array of slot words. Each slot holds a key
// (bit-cast into a 64-bit word) and, for the map variant, a parallel value
// word. Slot state is implicit: a slot is empty iff its word equals the word
// of a reserved sentinel key supplied at construction. There is no per-slot
// state byte and no tombstone; deletion is intentionally unsupported, which
// is what makes the "stop at the first empty slot" query rule sound.
//
// Insertion walks the key's probe sequence and attempts an atomic
// compare-and-swap of a slot word from the sentinel to the key. A successful
// CAS commits the slot. A failed CAS re-examines the freshly observed word:
// if it holds an equal key the insert is a duplicate, otherwise probing
// advances. Exhausting the probe sequence without finding an empty or
// duplicate slot reports ErrCapacityExhausted; a key is never silently
// dropped. Sizing the container so that the load factor stays comfortably
// below 1 (say at or under 80-90%) is the caller's responsibility.
//
// Queries replay the identical probe sequence. Because the sequence is a
// pure function of the key's hashes and the container extent, a query may
// probe with a key of a different type than the stored keys, as long as the
// caller supplies hash and equality functions that relate the two types; see
// NewSetView and NewMapView.
//
// Probing is windowed: one step of the probe sequence covers CGSize
// contiguous slots, which are examined together before the sequence
// advances. The window width mirrors the cooperative-group width of the
// probing scheme; RunTile and the Coop* operations additionally expose the
// group-synchronous formulation, in which CGSize lockstep goroutines each
// inspect one lane of the window and agree on the outcome by ballot.
//
// Containers never grow. Layer load-factor monitoring and rehash-into-larger
// policies on top if required.
package cuco

import "errors"

const debug = false

// ErrCapacityExhausted is reported by insert operations when a key's probe
// sequence was exhausted without finding an empty or duplicate slot. It
// indicates the container was driven beyond its design load factor.
var ErrCapacityExhausted = errors.New("cuco: container capacity exhausted")
