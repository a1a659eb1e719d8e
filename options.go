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

import "runtime"

// option provides an interface to configure a container while it is being
// created.
type option[K comparable] interface {
	apply(c *config[K])
}

type config[K comparable] struct {
	scheme       ProbingScheme[K]
	eq           func(K, K) bool
	allocator    Allocator
	seed         uint64
	seedSet      bool
	parallelism  int
	primeWindows bool
}

func newConfig[K comparable](options []option[K]) config[K] {
	c := config[K]{
		scheme:      DoubleHashing[K]{},
		eq:          func(a, b K) bool { return a == b },
		allocator:   defaultAllocator{},
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, op := range options {
		op.apply(&c)
	}
	return c
}

type probingOption[K comparable] struct {
	scheme ProbingScheme[K]
}

func (op probingOption[K]) apply(c *config[K]) {
	c.scheme = op.scheme
}

// WithProbing is an option to select the probing scheme. The default is
// DoubleHashing with DefaultCGSize and the runtime hasher for K.
func WithProbing[K comparable](scheme ProbingScheme[K]) option[K] {
	return probingOption[K]{scheme}
}

type equalOption[K comparable] struct {
	eq func(K, K) bool
}

func (op equalOption[K]) apply(c *config[K]) {
	c.eq = op.eq
}

// WithEqual is an option to replace the key equality used to detect
// duplicates. Keys the function considers equal must hash identically under
// the probing scheme's hash functions.
func WithEqual[K comparable](eq func(K, K) bool) option[K] {
	return equalOption[K]{eq}
}

type allocatorOption[K comparable] struct {
	allocator Allocator
}

func (op allocatorOption[K]) apply(c *config[K]) {
	c.allocator = op.allocator
}

// WithAllocator is an option to specify the Allocator for slot storage.
func WithAllocator[K comparable](allocator Allocator) option[K] {
	return allocatorOption[K]{allocator}
}

type seedOption[K comparable] struct {
	seed uint64
}

func (op seedOption[K]) apply(c *config[K]) {
	c.seed = op.seed
	c.seedSet = true
}

// WithSeed is an option to fix the hash seed, making probe sequences
// reproducible across container instances. By default each container draws
// a random seed.
func WithSeed[K comparable](seed uint64) option[K] {
	return seedOption[K]{seed}
}

type parallelismOption[K comparable] struct {
	n int
}

func (op parallelismOption[K]) apply(c *config[K]) {
	if op.n > 0 {
		c.parallelism = op.n
	}
}

// WithParallelism is an option bounding the number of worker goroutines the
// bulk operations fan out to. The default is runtime.GOMAXPROCS(0).
func WithParallelism[K comparable](n int) option[K] {
	return parallelismOption[K]{n}
}

type primeWindowsOption[K comparable] struct{}

func (primeWindowsOption[K]) apply(c *config[K]) {
	c.primeWindows = true
}

// WithPrimeWindows is an option to round the window count up to a prime.
// Recommended with DoubleHashing: a prime window count makes every stride
// coprime with it, so probe sequences visit every window before cycling.
func WithPrimeWindows[K comparable]() option[K] {
	return primeWindowsOption[K]{}
}
