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

package main

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cockroachdb/strmap"
)

// Config controls how keys are loaded and reported. It is read from a TOML
// file and individual fields may be overridden by flags.
type Config struct {
	MaxKeyLen       int    `toml:"max-key-len"`
	InitialCapacity int    `toml:"initial-capacity"`
	Seed            uint64 `toml:"seed"`
	// Top is the number of most frequent keys to print.
	Top int `toml:"top"`
	// MinCount drops keys seen fewer than MinCount times before the
	// statistics are computed.
	MinCount int       `toml:"min-count"`
	Log      LogConfig `toml:"log"`
}

// LogConfig selects the zap logger configuration.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MaxKeyLen:       strmap.MaxKeyLen,
		InitialCapacity: strmap.InitialCapacity,
		Seed:            strmap.DefaultSeed,
		Top:             10,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig decodes the TOML file at path on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Newf("%s: unknown configuration key %q", path, undecoded[0].String())
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxKeyLen <= 0:
		return errors.Newf("max-key-len must be positive, got %d", c.MaxKeyLen)
	case c.InitialCapacity <= 0:
		return errors.Newf("initial-capacity must be positive, got %d", c.InitialCapacity)
	case c.Top < 0:
		return errors.Newf("top must not be negative, got %d", c.Top)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// Logger builds the zap logger described by c.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

// options translates c into Map options.
func (c Config) options(logger *zap.Logger) []strmap.Option[int] {
	return []strmap.Option[int]{
		strmap.WithMaxKeyLen[int](c.MaxKeyLen),
		strmap.WithInitialCapacity[int](c.InitialCapacity),
		strmap.WithSeed[int](c.Seed),
		strmap.WithLogger[int](logger),
	}
}
