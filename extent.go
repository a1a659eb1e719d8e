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

// validExtent returns the smallest slot count that is a multiple of width
// and >= capacity. The physical extent may therefore exceed the requested
// capacity by up to width-1 slots.
func validExtent(capacity int, width uint64) uint64 {
	if capacity <= 0 {
		panic(fmt.Sprintf("cuco: invalid capacity %d", capacity))
	}
	windows := (uint64(capacity) + width - 1) / width
	return windows * width
}

// primeExtent returns an extent whose window count is prime. A prime window
// count makes every double-hashing stride coprime with the number of
// windows, so the probe sequence visits every window before cycling.
func primeExtent(capacity int, width uint64) uint64 {
	if capacity <= 0 {
		panic(fmt.Sprintf("cuco: invalid capacity %d", capacity))
	}
	windows := (uint64(capacity) + width - 1) / width
	return nextPrime(windows) * width
}

// nextPrime returns the smallest prime >= n. Trial division is plenty for a
// construction-time computation.
func nextPrime(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for ; ; n += 2 {
		if isPrime(n) {
			return n
		}
	}
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
