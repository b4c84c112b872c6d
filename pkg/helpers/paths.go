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

package helpers

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
)

const appName = "medialib"

// DataDir is where the database and thumbnails live when the host does
// not pick a location itself.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// LogDir defaults next to the data so a support bundle is one directory.
func LogDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// ConfigPath is the default location of the toml config file.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// NormalizePathForComparison normalizes a local path for cross-platform
// comparison. Windows filesystems are case-insensitive, so lowercase
// there; elsewhere only unify separators.
func NormalizePathForComparison(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	if runtime.GOOS == "windows" {
		return strings.ToLower(p)
	}
	return p
}

// PathToMRL converts a local absolute path into a file:// MRL.
func PathToMRL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

// MRLToPath converts a file:// MRL back to a local path. Returns "" for
// non-file schemes.
func MRLToPath(mrl string) string {
	parts, err := ParseMRL(mrl)
	if err != nil || !strings.EqualFold(parts.Scheme, "file") {
		return ""
	}
	return filepath.FromSlash(parts.Path)
}
