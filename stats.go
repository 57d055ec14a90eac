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
	"fmt"
	"strings"
)

// Stats describes how the entries of a Map are distributed over its
// buckets.
type Stats struct {
	Capacity    int
	Len         int
	UsedBuckets int
	// MaxChainLen is the largest number of entries in a single bucket,
	// counting the inline entry.
	MaxChainLen int
	// ChainLens[i] is the number of buckets holding exactly i entries.
	ChainLens []int
}

// LoadFactor returns Len/Capacity.
func (s Stats) LoadFactor() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.Capacity)
}

// AvgChainLen returns the mean number of entries in a non-empty bucket.
func (s Stats) AvgChainLen() float64 {
	if s.UsedBuckets == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.UsedBuckets)
}

func (s Stats) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d len=%d load=%.3f used-buckets=%d avg-chain=%.3f max-chain=%d",
		s.Capacity, s.Len, s.LoadFactor(), s.UsedBuckets, s.AvgChainLen(), s.MaxChainLen)
	for i, n := range s.ChainLens {
		if i == 0 || n == 0 {
			continue
		}
		fmt.Fprintf(&buf, "\n  chain=%-3d buckets=%d", i, n)
	}
	return buf.String()
}

// Stats walks every bucket of the map and returns its distribution.
func (m *Map[V]) Stats() Stats {
	s := Stats{
		Capacity:  len(m.buckets),
		Len:       m.used,
		ChainLens: []int{0},
	}
	for i := range m.buckets {
		b := &m.buckets[i]
		if !b.full {
			s.ChainLens[0]++
			continue
		}
		s.UsedBuckets++
		var n int
		for e := b; e != nil; e = e.next {
			n++
		}
		for len(s.ChainLens) <= n {
			s.ChainLens = append(s.ChainLens, 0)
		}
		s.ChainLens[n]++
		if n > s.MaxChainLen {
			s.MaxChainLen = n
		}
	}
	return s
}
