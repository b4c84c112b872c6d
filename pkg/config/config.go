// Medialib Core
// Copyright (c) 2026 The Medialib Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Medialib Core.
//
// Medialib Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Medialib Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Medialib Core.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "MEDIALIB_CFG"
)

type Values struct {
	Parser       Parser     `toml:"parser,omitempty"`
	Discovery    Discovery  `toml:"discovery,omitempty"`
	Cache        Cache      `toml:"cache,omitempty"`
	Thumbnails   Thumbnails `toml:"thumbnails,omitempty"`
	ConfigSchema int        `toml:"config_schema"`
	DebugLogging bool       `toml:"debug_logging"`
}

type Parser struct {
	// MaxRetries bounds TemporaryUnavailable/Requeue reruns per task.
	MaxRetries int `toml:"max_retries"`
	// Workers clamps every service's declared thread count; 0 means
	// use the hardware parallelism.
	Workers int `toml:"workers"`
}

type Discovery struct {
	NetworkEnabled bool     `toml:"network_enabled"`
	BannedFolders  []string `toml:"banned_folders,omitempty,multiline"`
}

type Cache struct {
	// MaxSizeBytes is the global subscription cache quota. Service and
	// subscription level settings inherit from it via -1.
	MaxSizeBytes  int64 `toml:"max_size_bytes"`
	MaxMediaCount int   `toml:"max_media_count"`
	// PassSchedule is a cron spec for the automatic caching pass.
	PassSchedule string `toml:"pass_schedule"`
}

type Thumbnails struct {
	// TimeoutSeconds is the wall clock limit on one thumbnail request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Parser: Parser{
		MaxRetries: 3,
		Workers:    0,
	},
	Discovery: Discovery{
		NetworkEnabled: false,
	},
	Cache: Cache{
		MaxSizeBytes:  2 << 30,
		MaxMediaCount: 500,
		PassSchedule:  "@hourly",
	},
	Thumbnails: Thumbnails{
		TimeoutSeconds: 15,
	},
}

type Instance struct {
	cfgPath string
	vals    Values
	mu      sync.RWMutex
}

// NewConfig loads the config file at cfgPath, creating it from defaults
// when missing. An empty cfgPath keeps the defaults in memory only.
func NewConfig(cfgPath string, defaults Values) (*Instance, error) {
	if envPath := os.Getenv(CfgEnv); envPath != "" {
		cfgPath = envPath
	}

	cfg := &Instance{
		cfgPath: cfgPath,
		vals:    defaults,
	}

	if cfgPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		log.Info().Msgf("creating config file: %s", cfgPath)
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("error creating config file: %w", err)
		}
		return cfg, nil
	}

	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	return cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	newVals := BaseDefaults
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Warn().Msgf(
			"config file schema mismatch: got %d, expected %d",
			newVals.ConfigSchema, SchemaVersion,
		)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(c.cfgPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = v
}

func (c *Instance) ParserMaxRetries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Parser.MaxRetries <= 0 {
		return BaseDefaults.Parser.MaxRetries
	}
	return c.vals.Parser.MaxRetries
}

// ParserWorkers clamps a service's declared thread count to the config
// limit and the hardware parallelism.
func (c *Instance) ParserWorkers(declared int) int {
	c.mu.RLock()
	limit := c.vals.Parser.Workers
	c.mu.RUnlock()

	if limit <= 0 || limit > runtime.NumCPU() {
		limit = runtime.NumCPU()
	}
	if declared <= 0 {
		declared = 1
	}
	if declared > limit {
		return limit
	}
	return declared
}

func (c *Instance) NetworkDiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Discovery.NetworkEnabled
}

func (c *Instance) SetNetworkDiscoveryEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Discovery.NetworkEnabled = v
}

func (c *Instance) BannedFolders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	banned := make([]string, len(c.vals.Discovery.BannedFolders))
	copy(banned, c.vals.Discovery.BannedFolders)
	return banned
}

func (c *Instance) CacheMaxSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Cache.MaxSizeBytes
}

func (c *Instance) CacheMaxMediaCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Cache.MaxMediaCount
}

func (c *Instance) CachePassSchedule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Cache.PassSchedule == "" {
		return BaseDefaults.Cache.PassSchedule
	}
	return c.vals.Cache.PassSchedule
}

func (c *Instance) ThumbnailTimeoutSeconds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Thumbnails.TimeoutSeconds <= 0 {
		return BaseDefaults.Thumbnails.TimeoutSeconds
	}
	return c.vals.Thumbnails.TimeoutSeconds
}
