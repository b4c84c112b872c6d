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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := NewConfig(path, BaseDefaults)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ParserMaxRetries())
	assert.False(t, cfg.NetworkDiscoveryEnabled())
	assert.Equal(t, int64(2<<30), cfg.CacheMaxSizeBytes())
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := NewConfig(path, BaseDefaults)
	require.NoError(t, err)

	cfg.SetDebugLogging(true)
	cfg.SetNetworkDiscoveryEnabled(true)
	require.NoError(t, cfg.Save())

	reloaded, err := NewConfig(path, BaseDefaults)
	require.NoError(t, err)
	assert.True(t, reloaded.DebugLogging())
	assert.True(t, reloaded.NetworkDiscoveryEnabled())
}

func TestParserWorkersClamped(t *testing.T) {
	cfg, err := NewConfig("", BaseDefaults)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.ParserWorkers(0))
	assert.Equal(t, 1, cfg.ParserWorkers(1))
	assert.LessOrEqual(t, cfg.ParserWorkers(1024), runtime.NumCPU())
}

func TestConfigEnvOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "override.toml")
	require.NoError(t, os.WriteFile(override,
		[]byte("config_schema = 1\ndebug_logging = true\n"), 0o600))
	t.Setenv(CfgEnv, override)

	cfg, err := NewConfig(filepath.Join(t.TempDir(), "ignored.toml"), BaseDefaults)
	require.NoError(t, err)
	assert.True(t, cfg.DebugLogging())
}
