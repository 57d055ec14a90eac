// Copyright 2024 The Cockroach Authors
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

package strmap

import (
	"math/bits"

	"go.uber.org/zap"
)

// Option provide an interface to do work on Map while it is being created.
type Option[V any] interface {
	apply(m *Map[V])
}

type hashOption[V any] struct {
	hash HashFunc
}

func (op hashOption[V]) apply(m *Map[V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[V].
func WithHash[V any](hash HashFunc) Option[V] {
	return hashOption[V]{hash}
}

type seedOption[V any] struct {
	seed uint64
}

func (op seedOption[V]) apply(m *Map[V]) {
	m.seed = op.seed
}

// WithSeed overrides DefaultSeed.
func WithSeed[V any](seed uint64) Option[V] {
	return seedOption[V]{seed}
}

type cleanupOption[V any] struct {
	cleanup func(V)
}

func (op cleanupOption[V]) apply(m *Map[V]) {
	m.cleanup = op.cleanup
}

// WithCleanup specifies a function that is called with every value the Map
// discards: values removed by Delete or Iterator.Delete, values overwritten
// or rejected by Insert, and values still present at Clear or Close. Values
// moved while the Map grows are never passed to cleanup.
func WithCleanup[V any](cleanup func(V)) Option[V] {
	return cleanupOption[V]{cleanup}
}

type maxKeyLenOption[V any] struct {
	n int
}

func (op maxKeyLenOption[V]) apply(m *Map[V]) {
	if op.n > 0 {
		m.maxKeyLen = op.n
	}
}

// WithMaxKeyLen sets the number of key bytes that are significant. Longer
// keys are truncated before they are hashed, compared or stored. A
// non-positive n leaves the default of MaxKeyLen.
func WithMaxKeyLen[V any](n int) Option[V] {
	return maxKeyLenOption[V]{n}
}

type initialCapacityOption[V any] struct {
	n int
}

func (op initialCapacityOption[V]) apply(m *Map[V]) {
	if op.n > 0 {
		m.initialCapacity = roundUpPow2(op.n)
	}
}

// WithInitialCapacity sets the number of buckets the Map starts with. The
// value is rounded up to a power of two and is never less than 2. A
// non-positive n leaves the default of InitialCapacity.
func WithInitialCapacity[V any](n int) Option[V] {
	return initialCapacityOption[V]{n}
}

func roundUpPow2(n int) int {
	if n <= 2 {
		return 2
	}
	return 1 << bits.Len(uint(n-1))
}

type loggerOption[V any] struct {
	logger *zap.Logger
}

func (op loggerOption[V]) apply(m *Map[V]) {
	if op.logger != nil {
		m.logger = op.logger
	}
}

// WithLogger specifies the logger used to report growth and teardown at
// debug level. The default is a no-op logger.
func WithLogger[V any](logger *zap.Logger) Option[V] {
	return loggerOption[V]{logger}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and new() and
// allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that buckets
// and chain nodes be freed then Map.Close must be called in order to ensure
// FreeSlots and FreeNode are called for everything that was allocated.
type Allocator[V any] interface {
	// AllocSlots should return a slice equivalent to make([]Entry[V], n).
	AllocSlots(n int) []Entry[V]

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Entry[V])

	// AllocNode should return a pointer equivalent to new(Entry[V]).
	AllocNode() *Entry[V]

	// FreeNode can optionally release a chain node that is guaranteed to have
	// been allocated by AllocNode. The node is no longer referenced by the
	// Map.
	FreeNode(e *Entry[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocSlots(n int) []Entry[V] {
	return make([]Entry[V], n)
}

func (defaultAllocator[V]) FreeSlots(v []Entry[V]) {
}

func (defaultAllocator[V]) AllocNode() *Entry[V] {
	return new(Entry[V])
}

func (defaultAllocator[V]) FreeNode(e *Entry[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(m *Map[V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[V].
func WithAllocator[V any](allocator Allocator[V]) Option[V] {
	return allocatorOption[V]{allocator}
}
