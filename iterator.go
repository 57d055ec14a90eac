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

// Iterator is a cursor over the entries of a Map. Entries are visited in
// bucket order and, within a bucket, in chain order. The order is not
// stable across insertions.
//
// An Iterator holds the exclusive right to mutate its Map while it is in
// use: Delete may remove the current entry without disturbing the
// traversal, but any other insertion or deletion on the Map invalidates the
// Iterator.
//
//	var it strmap.Iterator[int]
//	for ok := it.Init(m); ok; {
//	  if it.Value() < 0 {
//	    ok = it.Delete()
//	  } else {
//	    ok = it.Next()
//	  }
//	}
//
// The zero value is an uninitialized Iterator which is never Valid.
type Iterator[V any] struct {
	m      *Map[V]
	cur    *Entry[V]
	bucket int
	// pos is the number of entries that precede cur in iteration order. The
	// iterator is at the end once pos reaches m.used.
	pos int
}

// Iter returns an Iterator positioned at the first entry of m.
func (m *Map[V]) Iter() *Iterator[V] {
	it := &Iterator[V]{}
	it.Init(m)
	return it
}

// Init positions it at the first entry of m. It returns false if m is
// empty.
func (it *Iterator[V]) Init(m *Map[V]) bool {
	*it = Iterator[V]{m: m}
	for i := range m.buckets {
		if m.buckets[i].full {
			it.bucket = i
			it.cur = &m.buckets[i]
			return true
		}
	}
	return false
}

// Valid returns true if the iterator is positioned at an entry.
func (it *Iterator[V]) Valid() bool {
	return !it.atEnd()
}

func (it *Iterator[V]) atEnd() bool {
	return it.m == nil || it.pos >= it.m.used
}

// Next advances to the following entry. It returns false once every entry
// has been visited, and is a no-op if the iterator is already at the end.
func (it *Iterator[V]) Next() bool {
	if it.atEnd() {
		return false
	}
	it.pos++
	if it.atEnd() {
		it.cur = nil
		it.bucket = 0
		return false
	}
	if it.cur.next != nil {
		it.cur = it.cur.next
		return true
	}
	it.bucket++
	for !it.m.buckets[it.bucket].full {
		it.bucket++
	}
	it.cur = &it.m.buckets[it.bucket]
	return true
}

// Delete removes the current entry, passing its value to the Map's cleanup
// function, and leaves the iterator at the entry that followed it. It
// returns false if no entries remain to be visited.
func (it *Iterator[V]) Delete() bool {
	return it.remove(true)
}

func (it *Iterator[V]) remove(release bool) bool {
	if it.atEnd() {
		return false
	}
	doomed, bucket := it.cur, it.bucket
	it.Next()
	if it.m.removeAt(doomed, release) {
		// The successor of doomed was promoted into doomed's storage and has
		// not been visited yet.
		it.cur = doomed
		it.bucket = bucket
	}
	it.pos--
	if release {
		it.m.checkInvariants()
	}
	return !it.atEnd()
}

// Entry returns the current entry, or nil if the iterator is at the end.
func (it *Iterator[V]) Entry() *Entry[V] {
	if it.atEnd() {
		return nil
	}
	return it.cur
}

// Key returns the key of the current entry, or "" if the iterator is at the
// end.
func (it *Iterator[V]) Key() string {
	if it.atEnd() {
		return ""
	}
	return it.cur.key
}

// Value returns the value of the current entry, or the zero value if the
// iterator is at the end.
func (it *Iterator[V]) Value() V {
	if it.atEnd() {
		var v V
		return v
	}
	return it.cur.value
}
