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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseMRL(t *testing.T) {
	t.Parallel()

	parts, err := ParseMRL("smb://server:445/share/dir/file.mkv")
	require.NoError(t, err)
	assert.Equal(t, "smb", parts.Scheme)
	assert.Equal(t, "server:445", parts.Host)
	assert.Equal(t, "/share/dir/file.mkv", parts.Path)

	parts, err = ParseMRL("file:///a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "file", parts.Scheme)
	assert.Empty(t, parts.Host)
	assert.Equal(t, "/a/b/c", parts.Path)

	_, err = ParseMRL("/no/scheme")
	require.ErrorIs(t, err, ErrInvalidMRL)
}

func TestNormalizeMountpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"SMB://Server:445/Share", "smb://server/Share/"},
		{"smb://server/share/", "smb://server/share/"},
		{"file:///a/b///", "file:///a/b/"},
		{"file:///a/b", "file:///a/b/"},
		{"ftp://host:21/pub", "ftp://host/pub/"},
		{"ftp://host:2121/pub", "ftp://host:2121/pub/"},
	}
	for _, tc := range cases {
		got, err := NormalizeMountpoint(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMrlHasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, MrlHasPrefix("file:///a/b/c.mkv", "file:///a/b/"))
	assert.True(t, MrlHasPrefix("file:///a/b/c.mkv", "file:///a/b"))
	assert.True(t, MrlHasPrefix("smb://HOST/share/x", "smb://host/share/"))
	assert.False(t, MrlHasPrefix("file:///a/bc/d.mkv", "file:///a/b/"))
	assert.False(t, MrlHasPrefix("file:///a/b", "file:///a/b/c/"))
}

func TestRelativeMRL(t *testing.T) {
	t.Parallel()

	rel, ok := RelativeMRL("file:///mnt/dev/", "file:///mnt/dev/music/track1.mp3")
	require.True(t, ok)
	assert.Equal(t, "music/track1.mp3", rel)

	rel, ok = RelativeMRL("file:///mnt/dev", "file:///mnt/dev/")
	require.True(t, ok)
	assert.Empty(t, rel)

	_, ok = RelativeMRL("file:///mnt/other/", "file:///mnt/dev/x")
	assert.False(t, ok)
}

// Relative MRLs must survive a round trip through any normalized
// mountpoint.
func TestRelativeMRLRoundTrip(t *testing.T) {
	t.Parallel()

	segment := rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ._-]{0,14}`)
	rapid.Check(t, func(t *rapid.T) {
		mountSegs := rapid.SliceOfN(segment, 1, 4).Draw(t, "mount")
		pathSegs := rapid.SliceOfN(segment, 1, 5).Draw(t, "path")

		mountpoint := "file:///" + strings.Join(mountSegs, "/") + "/"
		absolute := mountpoint + strings.Join(pathSegs, "/")

		rel, ok := RelativeMRL(mountpoint, absolute)
		require.True(t, ok)
		require.Equal(t, absolute, JoinMRL(mountpoint, rel))
	})
}

func TestFileNameHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "track1.mp3", FileName("file:///a/b/track1.mp3"))
	assert.Equal(t, "mp3", Extension("file:///a/b/Track1.MP3"))
	assert.Equal(t, "track1", Stem("file:///a/b/track1.mp3"))
	assert.Equal(t, "file:///a/b/", ParentMRL("file:///a/b/track1.mp3"))
	assert.Equal(t, "smb://host/share/", ParentMRL("smb://host/share/file.mkv"))
}
