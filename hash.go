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

import "unsafe"

// HashFn hashes a key with a seed. Probe positions are derived from the
// result, so a HashFn must be a pure function of the key bits that the
// container's equality function considers: two keys that compare equal must
// hash identically. This is a caller obligation and is not checked.
type HashFn[K any] func(key K, seed uint64) uint64

// seed mixed into the second hash of a double-hashing scheme so that a
// single underlying hash function still yields two independent streams.
const strideSeed uint64 = 0x9e3779b97f4a7c15

// DefaultHash returns a HashFn backed by the hash function the Go runtime
// uses for map[K]struct{}. The function is extracted from the runtime's type
// descriptor for the map type, avoiding a reimplementation of per-type
// hashing. (This reaches into runtime internals and should be re-verified
// against new Go releases, but the descriptor layout has been stable.)
func DefaultHash[K comparable]() HashFn[K] {
	hasher := runtimeHasher[K]()
	return func(key K, seed uint64) uint64 {
		return uint64(hasher(noescape(unsafe.Pointer(&key)), uintptr(seed)))
	}
}

func runtimeHasher[K comparable]() func(unsafe.Pointer, uintptr) uintptr {
	var m map[K]struct{}
	return iTypeOf(m).mapType().Hasher
}

// keyTypeDesc returns the runtime type descriptor for K, used at
// construction time to validate that K can live in a slot word.
func keyTypeDesc[K any]() *iType {
	var k K
	return iTypeOf(k)
}

type iTFlag uint8
type iKind uint8
type iNameOff int32
type iTypeOff int32

// iType mirrors the runtime's type descriptor. Only Size_ and PtrBytes are
// read directly; the rest exists to keep the layout aligned with the
// runtime's.
type iType struct {
	Size_       uintptr
	PtrBytes    uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash        uint32
	TFlag       iTFlag
	Align_      uint8
	FieldAlign_ uint8
	Kind_       iKind
	Equal       func(unsafe.Pointer, unsafe.Pointer) bool
	GCData      *byte
	Str         iNameOff
	PtrToThis   iTypeOff
}

func (t *iType) mapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key   *iType
	Elem  *iType
	Group *iType
	// function for hashing keys (ptr to key, seed) -> hash
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}

// noescape hides a pointer from escape analysis. noescape is the identity
// function but escape analysis doesn't think the output depends on the
// input. noescape is inlined and currently compiles down to zero
// instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
