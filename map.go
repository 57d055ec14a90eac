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

// Package strmap implements a hash table from bounded-length string keys to
// values of an arbitrary type. Collisions are resolved by chaining.
//
// # Layout
//
// The table is a power-of-two sized slice of buckets. A key lives in bucket
// hash(key) & (capacity-1). The first entry of every bucket is stored inline
// in the bucket slice itself, so a table whose buckets hold at most one entry
// performs no allocations beyond the bucket slice. Additional entries that
// hash to the same bucket are individually allocated chain nodes linked into
// a doubly-linked list rooted at the inline entry:
//
//	buckets
//	+---------+
//	| a       | --> b <--> c
//	+---------+
//	| (empty) |
//	+---------+
//	| d       |
//	+---------+
//
// The inline entry has a nil prev pointer and is never referenced as the
// successor of anything. Every chain node has a non-nil prev pointer; the
// first chain node points back at the inline entry.
//
// A non-empty bucket always has its first entry inline. When the inline
// entry is removed and the bucket has a chain, the first chain node is
// copied into the inline entry ("promoted") and then released. Promotion is
// the only case in which removing an entry changes the contents of another
// entry's storage, and it is what Iterator.Delete has to account for.
//
// # Growth
//
// Once the number of entries reaches half the number of buckets the table
// doubles. Growth drains the old buckets with the same iterator and removal
// primitive used by Iterator.Delete and reinserts every entry using its
// cached hash, so keys are never rehashed. Values moved during growth are
// not passed to the cleanup function.
//
// # Keys
//
// Only the first MaxKeyLen bytes of a key are significant (configurable with
// WithMaxKeyLen). Two keys that share that prefix are the same key. The Map
// stores its own copy of every key it retains.
package strmap

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// MaxKeyLen is the default number of significant key bytes.
	MaxKeyLen = 1051
	// InitialCapacity is the default number of buckets of a new Map.
	InitialCapacity = 1024
)

// InsertStatus reports the outcome of Map.Insert.
type InsertStatus int

const (
	// Inserted means the key was not present and a new entry was created.
	Inserted InsertStatus = iota
	// Found means the key was already present.
	Found
)

func (s InsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Found:
		return "found"
	default:
		return fmt.Sprintf("InsertStatus(%d)", int(s))
	}
}

// Entry holds a key, its value and the cached hash of the key. Entries are
// used both as the inline cells of the bucket slice and as chain nodes.
//
// A pointer to an Entry is only valid until the next mutation of the Map
// that owns it.
type Entry[V any] struct {
	key   string
	value V
	hash  uint64
	full  bool
	prev  *Entry[V]
	next  *Entry[V]
}

// Key returns the key of the entry. It is truncated to the Map's maximum key
// length.
func (e *Entry[V]) Key() string {
	return e.key
}

// Value returns the value of the entry.
func (e *Entry[V]) Value() V {
	return e.value
}

// SetValue overwrites the value of the entry. The previous value is not
// passed to the cleanup function.
func (e *Entry[V]) SetValue(v V) {
	e.value = v
}

// Map is a hash table from strings to values of type V with Find, Insert,
// Delete and iteration operations. See the package documentation for the
// storage layout.
//
// A Map is NOT goroutine-safe. The zero value for a Map is not usable; use
// New or Init.
type Map[V any] struct {
	hash      HashFunc
	seed      uint64
	cleanup   func(V)
	allocator Allocator[V]
	logger    *zap.Logger

	maxKeyLen       int
	initialCapacity int

	// buckets is a power of two in length. The inline entry of bucket i is
	// buckets[i].
	buckets []Entry[V]
	mask    uint64
	// The number of live entries, inline and chained.
	used int
}

// New constructs a new Map configured by options.
func New[V any](options ...Option[V]) *Map[V] {
	m := &Map[V]{}
	m.Init(options...)
	return m
}

// Init initializes a Map configured by options. Any previous contents of m
// are dropped without being passed to the cleanup function; Close m first if
// that is needed.
func (m *Map[V]) Init(options ...Option[V]) {
	*m = Map[V]{
		hash:            XXHash,
		seed:            DefaultSeed,
		allocator:       defaultAllocator[V]{},
		logger:          zap.NewNop(),
		maxKeyLen:       MaxKeyLen,
		initialCapacity: InitialCapacity,
	}

	for _, op := range options {
		op.apply(m)
	}

	m.buckets = m.allocSlots(m.initialCapacity)
	m.mask = uint64(m.initialCapacity - 1)
	m.checkInvariants()
}

// Close removes every entry, passing each value to the cleanup function, and
// releases the bucket slice back to the configured allocator. It is invalid
// to use a Map after it has been closed, though Close itself is idempotent
// and a closed Map may be reinitialized with Init.
func (m *Map[V]) Close() {
	if m.buckets == nil {
		return
	}
	n := m.used
	m.Clear()
	m.allocator.FreeSlots(m.buckets)
	m.logger.Debug("strmap: closed",
		zap.Int("capacity", len(m.buckets)), zap.Int("released", n))
	m.buckets = nil
	m.mask = 0
}

// Clear removes every entry, passing each value to the cleanup function.
// The capacity of the Map is retained.
func (m *Map[V]) Clear() {
	var it Iterator[V]
	for ok := it.Init(m); ok; ok = it.Delete() {
	}
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *Map[V]) Len() int {
	return m.used
}

// Capacity returns the number of buckets.
func (m *Map[V]) Capacity() int {
	return len(m.buckets)
}

// Find returns the entry for key, or nil if the key is not present.
func (m *Map[V]) Find(key string) *Entry[V] {
	e, _, _, ok := m.lookup(m.truncate(key))
	if !ok {
		return nil
	}
	return e
}

// Get retrieves the value from the map for the specified key, return
// ok=false if the key is not present.
func (m *Map[V]) Get(key string) (value V, ok bool) {
	if e := m.Find(key); e != nil {
		return e.value, true
	}
	return value, false
}

// Insert adds key to the map if it is not already present and returns
// Inserted along with the new entry.
//
// If the key is present Insert returns Found along with the existing entry.
// When replace is set the existing value is passed to the cleanup function
// and overwritten by value; otherwise the existing value is retained and
// value is passed to the cleanup function.
//
// Inserting may grow the map, which invalidates every outstanding Entry
// pointer and Iterator other than the returned entry.
func (m *Map[V]) Insert(key string, value V, replace bool) (InsertStatus, *Entry[V]) {
	key = m.truncate(key)
	e, last, h, ok := m.lookup(key)
	if ok {
		if replace {
			m.release(e.value)
			e.value = value
		} else {
			m.release(value)
		}
		m.checkInvariants()
		return Found, e
	}

	// Grow before placing so that a failed allocation leaves the map
	// without the new entry.
	if m.used+1 >= len(m.buckets)>>1 {
		m.grow()
		_, last, _ = m.lookupHashed(key, h)
	}
	e = m.place(last, h, strings.Clone(key), value)
	m.used++
	m.checkInvariants()
	return Inserted, e
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists.
func (m *Map[V]) Put(key string, value V) {
	m.Insert(key, value, true)
}

// Delete removes the entry for key, passing its value to the cleanup
// function. It returns false if the key was not present.
func (m *Map[V]) Delete(key string) bool {
	e, _, _, ok := m.lookup(m.truncate(key))
	if !ok {
		return false
	}
	m.removeAt(e, true)
	m.checkInvariants()
	return true
}

// All calls yield sequentially for each key and value present in the map,
// in bucket order and then chain order. If yield returns false, iteration
// stops. The map must not be mutated during iteration; use an Iterator to
// delete entries while traversing.
func (m *Map[V]) All(yield func(key string, value V) bool) {
	var it Iterator[V]
	for ok := it.Init(m); ok; ok = it.Next() {
		if !yield(it.cur.key, it.cur.value) {
			return
		}
	}
}

func (m *Map[V]) truncate(key string) string {
	if len(key) > m.maxKeyLen {
		return key[:m.maxKeyLen]
	}
	return key
}

func (m *Map[V]) release(v V) {
	if m.cleanup != nil {
		m.cleanup(v)
	}
}

// lookup searches for key, which must already be truncated. If the key is
// found, e is its entry. Otherwise last is the entry a new key should be
// linked after: either the empty inline entry of the bucket or the tail of
// its chain. h is the hash of key in both cases.
func (m *Map[V]) lookup(key string) (e, last *Entry[V], h uint64, ok bool) {
	if m.buckets == nil {
		panic(errors.AssertionFailedf("strmap: use of closed Map"))
	}
	h = m.hash(key, m.seed)
	e, last, ok = m.lookupHashed(key, h)
	return e, last, h, ok
}

func (m *Map[V]) lookupHashed(key string, h uint64) (e, last *Entry[V], ok bool) {
	p := &m.buckets[h&m.mask]
	if !p.full {
		return nil, p, false
	}
	for {
		if p.hash == h && p.key == key {
			return p, nil, true
		}
		if p.next == nil {
			return nil, p, false
		}
		p = p.next
	}
}

// place stores an entry after last, which is either an empty inline entry
// or the tail of a chain. It does not adjust the entry count.
func (m *Map[V]) place(last *Entry[V], h uint64, key string, value V) *Entry[V] {
	e := last
	if e.full {
		e = m.allocNode()
		e.prev = last
		last.next = e
	}
	e.key = key
	e.value = value
	e.hash = h
	e.full = true
	return e
}

// removeAt removes the live entry e. If release is set the value of e is
// passed to the cleanup function. It returns true if e was an inline entry
// whose bucket had a chain, in which case the first chain node has been
// promoted into e and e is still a live entry, now holding different data.
func (m *Map[V]) removeAt(e *Entry[V], release bool) (promoted bool) {
	m.used--
	if release {
		m.release(e.value)
	}

	if e.prev != nil {
		// Chain node.
		e.prev.next = e.next
		if e.next != nil {
			e.next.prev = e.prev
		}
		m.freeNode(e)
		return false
	}

	n := e.next
	if n == nil {
		*e = Entry[V]{}
		return false
	}
	*e = *n
	e.prev = nil
	if e.next != nil {
		e.next.prev = e
	}
	m.freeNode(n)
	return true
}

// grow doubles the number of buckets. The new bucket slice is allocated
// before the map is modified.
func (m *Map[V]) grow() {
	oldBuckets := m.buckets
	newCapacity := 2 * len(oldBuckets)
	newBuckets := m.allocSlots(newCapacity)
	newMask := uint64(newCapacity - 1)
	used := m.used

	var it Iterator[V]
	for ok := it.Init(m); ok; ok = it.remove(false) {
		e := it.cur
		m.place(tail(newBuckets, newMask, e.hash), e.hash, e.key, e.value)
	}
	if m.used != 0 {
		panic(errors.AssertionFailedf("strmap: %d entries left behind by grow", m.used))
	}

	m.allocator.FreeSlots(oldBuckets)
	m.buckets = newBuckets
	m.mask = newMask
	m.used = used

	m.logger.Debug("strmap: grew",
		zap.Int("old-capacity", len(oldBuckets)),
		zap.Int("new-capacity", newCapacity),
		zap.Int("len", used))
}

// tail returns the entry a new entry with hash h should be linked after in
// buckets.
func tail[V any](buckets []Entry[V], mask, h uint64) *Entry[V] {
	e := &buckets[h&mask]
	if e.full {
		for e.next != nil {
			e = e.next
		}
	}
	return e
}

func (m *Map[V]) allocSlots(n int) []Entry[V] {
	s := m.allocator.AllocSlots(n)
	if len(s) != n {
		panic(errors.AssertionFailedf("strmap: allocator returned %d slots, expected %d", len(s), n))
	}
	return s
}

func (m *Map[V]) allocNode() *Entry[V] {
	e := m.allocator.AllocNode()
	if e == nil {
		panic(errors.AssertionFailedf("strmap: allocator returned a nil node"))
	}
	return e
}

func (m *Map[V]) freeNode(e *Entry[V]) {
	*e = Entry[V]{}
	m.allocator.FreeNode(e)
}

func (m *Map[V]) checkInvariants() {
	if invariants {
		if err := m.validate(); err != nil {
			panic(err)
		}
	}
}

// validate walks every bucket and chain, verifying the structural
// invariants of the map.
func (m *Map[V]) validate() error {
	n := len(m.buckets)
	if n < 2 || n&(n-1) != 0 {
		return errors.AssertionFailedf("invariant failed: capacity %d is not a power of two", n)
	}
	if n < m.initialCapacity {
		return errors.AssertionFailedf("invariant failed: capacity %d below initial capacity %d",
			n, m.initialCapacity)
	}
	if m.mask != uint64(n-1) {
		return errors.AssertionFailedf("invariant failed: mask %d for capacity %d", m.mask, n)
	}

	seen := make(map[string]struct{}, m.used)
	var used int
	for i := range m.buckets {
		b := &m.buckets[i]
		if !b.full {
			if b.next != nil || b.prev != nil {
				return errors.AssertionFailedf("invariant failed: empty bucket %d has links\n%s",
					i, m.debugString())
			}
			continue
		}
		if b.prev != nil {
			return errors.AssertionFailedf("invariant failed: inline entry %d has a prev link\n%s",
				i, m.debugString())
		}
		for e := b; e != nil; e = e.next {
			if !e.full {
				return errors.AssertionFailedf("invariant failed: bucket %d chains an empty entry\n%s",
					i, m.debugString())
			}
			if e != b && (e.prev == nil || e.prev.next != e) {
				return errors.AssertionFailedf("invariant failed: bucket %d: %q has a broken prev link\n%s",
					i, e.key, m.debugString())
			}
			if len(e.key) > m.maxKeyLen {
				return errors.AssertionFailedf("invariant failed: key %q exceeds %d bytes", e.key, m.maxKeyLen)
			}
			if h := m.hash(e.key, m.seed); h != e.hash {
				return errors.AssertionFailedf("invariant failed: %q cached hash %016x != %016x",
					e.key, e.hash, h)
			}
			if int(e.hash&m.mask) != i {
				return errors.AssertionFailedf("invariant failed: %q in bucket %d, expected %d\n%s",
					e.key, i, e.hash&m.mask, m.debugString())
			}
			if _, ok := seen[e.key]; ok {
				return errors.AssertionFailedf("invariant failed: duplicate key %q\n%s", e.key, m.debugString())
			}
			seen[e.key] = struct{}{}
			used++
		}
	}
	if used != m.used {
		return errors.AssertionFailedf("invariant failed: found %d entries, but used count is %d\n%s",
			used, m.used, m.debugString())
	}
	return nil
}

func (m *Map[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", len(m.buckets), m.used)
	for i := range m.buckets {
		b := &m.buckets[i]
		if !b.full {
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", i)
		for e := b; e != nil; e = e.next {
			fmt.Fprintf(&buf, " %q [hash=%016x]", e.key, e.hash)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
