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

// strmap-stat loads newline separated keys into a strmap.Map, counting how
// often each key occurs, and reports how the keys are distributed over the
// buckets of the table.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cockroachdb/strmap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	overrides := DefaultConfig()

	cmd := &cobra.Command{
		Use:   "strmap-stat [file...]",
		Short: "Report the bucket distribution of a set of keys",
		Long: "Reads keys, one per line, from the named files or from standard input, " +
			"inserts them into a strmap.Map and prints table statistics along with the " +
			"most frequent keys.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("max-key-len") {
				cfg.MaxKeyLen = overrides.MaxKeyLen
			}
			if flags.Changed("initial-capacity") {
				cfg.InitialCapacity = overrides.InitialCapacity
			}
			if flags.Changed("seed") {
				cfg.Seed = overrides.Seed
			}
			if flags.Changed("top") {
				cfg.Top = overrides.Top
			}
			if flags.Changed("min-count") {
				cfg.MinCount = overrides.MinCount
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = overrides.Log.Level
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := cfg.Log.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if len(args) == 0 {
				return run(cfg, logger, cmd.OutOrStdout(), namedReader{"stdin", cmd.InOrStdin()})
			}
			var inputs []namedReader
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return errors.Wrapf(err, "opening %s", path)
				}
				defer f.Close()
				inputs = append(inputs, namedReader{path, f})
			}
			return run(cfg, logger, cmd.OutOrStdout(), inputs...)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	flags.IntVar(&overrides.MaxKeyLen, "max-key-len", overrides.MaxKeyLen, "number of significant key bytes")
	flags.IntVar(&overrides.InitialCapacity, "initial-capacity", overrides.InitialCapacity, "initial number of buckets")
	flags.Uint64Var(&overrides.Seed, "seed", overrides.Seed, "hash seed")
	flags.IntVar(&overrides.Top, "top", overrides.Top, "number of most frequent keys to print")
	flags.IntVar(&overrides.MinCount, "min-count", overrides.MinCount, "drop keys seen fewer times than this")
	flags.StringVar(&overrides.Log.Level, "log-level", overrides.Log.Level, "log level (debug, info, warn, error)")
	return cmd
}

type namedReader struct {
	name string
	r    io.Reader
}

// run counts the keys read from inputs and writes the report to out.
func run(cfg Config, logger *zap.Logger, out io.Writer, inputs ...namedReader) error {
	m := strmap.New[int](cfg.options(logger)...)
	defer m.Close()

	for _, in := range inputs {
		n, err := load(m, in.r, cfg.MaxKeyLen)
		if err != nil {
			return errors.Wrapf(err, "reading %s", in.name)
		}
		logger.Info("loaded keys", zap.String("input", in.name), zap.Int("lines", n),
			zap.Int("distinct", m.Len()))
	}

	if cfg.MinCount > 1 {
		dropped := prune(m, cfg.MinCount)
		logger.Info("pruned infrequent keys", zap.Int("min-count", cfg.MinCount),
			zap.Int("dropped", dropped))
	}

	if _, err := fmt.Fprintln(out, m.Stats()); err != nil {
		return err
	}
	for _, kc := range top(m, cfg.Top) {
		if _, err := fmt.Fprintf(out, "%8d %s\n", kc.count, kc.key); err != nil {
			return err
		}
	}
	return nil
}

// load inserts every line of r into m, incrementing the count of keys that
// are already present. It returns the number of lines read.
func load(m *strmap.Map[int], r io.Reader, maxKeyLen int) (int, error) {
	s := bufio.NewScanner(r)
	// Lines longer than the significant prefix are truncated by the map, but
	// the scanner must still be able to hold them.
	s.Buffer(make([]byte, 0, 64<<10), maxKeyLen+(1<<20))
	var n int
	for s.Scan() {
		n++
		if status, e := m.Insert(s.Text(), 1, false); status == strmap.Found {
			e.SetValue(e.Value() + 1)
		}
	}
	return n, s.Err()
}

// prune deletes every key seen fewer than minCount times and returns the
// number of keys deleted.
func prune(m *strmap.Map[int], minCount int) int {
	var dropped int
	var it strmap.Iterator[int]
	for ok := it.Init(m); ok; {
		if it.Value() < minCount {
			dropped++
			ok = it.Delete()
		} else {
			ok = it.Next()
		}
	}
	return dropped
}

type keyCount struct {
	key   string
	count int
}

// top returns the n most frequent keys, ties broken by key.
func top(m *strmap.Map[int], n int) []keyCount {
	if n == 0 {
		return nil
	}
	all := make([]keyCount, 0, m.Len())
	m.All(func(k string, v int) bool {
		all = append(all, keyCount{k, v})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].key < all[j].key
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
