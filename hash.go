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

import "github.com/cespare/xxhash/v2"

// DefaultSeed is the seed a Map hashes its keys with unless WithSeed is
// supplied.
const DefaultSeed = 0x5f71203b

// HashFunc maps a key and a seed to a 64-bit hash. Implementations must be
// deterministic; a Map computes the hash of a key once on insertion and
// reuses it for lookups and growth.
type HashFunc func(key string, seed uint64) uint64

// XXHash is the default HashFunc. The key length is folded into the seed.
func XXHash(key string, seed uint64) uint64 {
	var d xxhash.Digest
	d.ResetWithSeed(uint64(len(key)) ^ seed)
	_, _ = d.WriteString(key)
	return d.Sum64()
}
