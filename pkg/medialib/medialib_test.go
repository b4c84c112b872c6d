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

package medialib

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCallbacks struct {
	CallbacksBase
	mu                sync.Mutex
	idle              chan struct{}
	playlistsModified int
	mediaAdded        int
}

func newTestCallbacks() *testCallbacks {
	return &testCallbacks{idle: make(chan struct{}, 4)}
}

func (c *testCallbacks) OnBackgroundIdleChanged(idle bool) {
	if idle {
		select {
		case c.idle <- struct{}{}:
		default:
		}
	}
}

func (c *testCallbacks) OnPlaylistsModified(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlistsModified += len(ids)
}

func (c *testCallbacks) OnMediaAdded(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediaAdded += len(ids)
}

func (c *testCallbacks) waitIdle(t *testing.T) {
	t.Helper()
	select {
	case <-c.idle:
	case <-time.After(10 * time.Second):
		t.Fatal("library never became idle")
	}
}

func waitForCount(t *testing.T, want int, count func() (int, error)) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := count()
		require.NoError(t, err)
		if got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("count never reached %d", want)
}

func newTestLibrary(t *testing.T) (*MediaLibrary, *testCallbacks) {
	t.Helper()
	cfg, err := config.NewConfig("", config.BaseDefaults)
	require.NoError(t, err)

	cb := newTestCallbacks()
	ml := New(cfg)
	dir := t.TempDir()
	result := ml.Initialize(filepath.Join(dir, "medialib.db"),
		filepath.Join(dir, "thumbnails"), cb)
	require.Equal(t, InitializeSuccess, result)
	require.NoError(t, ml.Start())
	t.Cleanup(ml.Stop)
	return ml, cb
}

func TestInitializeTwice(t *testing.T) {
	cfg, err := config.NewConfig("", config.BaseDefaults)
	require.NoError(t, err)
	ml := New(cfg)
	dir := t.TempDir()
	require.Equal(t, InitializeSuccess,
		ml.Initialize(filepath.Join(dir, "m.db"), filepath.Join(dir, "t"), nil))
	require.Equal(t, InitializeAlreadyInitialized,
		ml.Initialize(filepath.Join(dir, "m.db"), filepath.Join(dir, "t"), nil))
	ml.Stop()
}

func TestDiscoverEndToEnd(t *testing.T) {
	ml, cb := newTestLibrary(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "music"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "music", "01 - intro.mp3"),
		[]byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clip S01E02.mkv"),
		[]byte("x"), 0o644))

	require.True(t, ml.Discover("file://"+filepath.ToSlash(root)))
	cb.waitIdle(t)

	// Idle can flap between batches; poll until the pipeline has
	// really drained everything.
	waitForCount(t, 1, func() (int, error) {
		return ml.AudioFiles(QueryParameters{}).Count()
	})
	waitForCount(t, 1, func() (int, error) {
		return ml.VideoFiles(QueryParameters{}).Count()
	})
	waitForCount(t, 1, func() (int, error) {
		return ml.Shows(QueryParameters{}).Count()
	})

	// The SxxEyy name became a show episode.
	shows, err := ml.Shows(QueryParameters{}).All()
	require.NoError(t, err)
	require.Len(t, shows, 1)
	episodes, err := ml.ShowEpisodes(shows[0].ID, QueryParameters{}).All()
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, 1, episodes[0].SeasonNumber)
	assert.Equal(t, 2, episodes[0].EpisodeNumber)

	assert.True(t, ml.IsIndexed("file://"+filepath.ToSlash(root)+"/music/01 - intro.mp3"))
}

func TestExternalMediaLifecycle(t *testing.T) {
	ml, cb := newTestLibrary(t)

	md, err := ml.AddExternalMedia("file:///elsewhere/movie.mkv")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.True(t, md.IsExternal)

	// Registering the same MRL again is a conflict.
	dup, err := ml.AddExternalMedia("file:///elsewhere/movie.mkv")
	require.ErrorIs(t, err, ErrConflict)
	require.NotNil(t, dup)
	assert.Equal(t, md.ID, dup.ID)

	stream, err := ml.AddStream("http://example.com/radio")
	require.NoError(t, err)
	assert.True(t, stream.IsStream)

	resolved, err := ml.MediaByMRL("file:///elsewhere/movie.mkv")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, md.ID, resolved.ID)

	require.NoError(t, ml.RemoveExternalMedia(md.ID))
	gone, err := ml.Media(md.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	cb.mu.Lock()
	added := cb.mediaAdded
	cb.mu.Unlock()
	assert.Equal(t, 2, added)
}

// A no-op playlist move returns success without a modification
// callback.
func TestPlaylistMoveCallbackSuppression(t *testing.T) {
	ml, cb := newTestLibrary(t)

	playlist, err := ml.CreatePlaylist("mix")
	require.NoError(t, err)
	var ids []int64
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		md, err := ml.AddExternalMedia("file:///ext/" + name + ".mp3")
		require.NoError(t, err)
		require.NoError(t, ml.PlaylistAppend(playlist.ID, md.ID))
		ids = append(ids, md.ID)
	}
	cb.mu.Lock()
	baseline := cb.playlistsModified
	cb.mu.Unlock()

	require.NoError(t, ml.PlaylistMove(playlist.ID, 2, 3, 2))
	cb.mu.Lock()
	afterNoOp := cb.playlistsModified
	cb.mu.Unlock()
	assert.Equal(t, baseline, afterNoOp)

	require.NoError(t, ml.PlaylistMove(playlist.ID, 1, 3, 2))
	cb.mu.Lock()
	afterMove := cb.playlistsModified
	cb.mu.Unlock()
	assert.Equal(t, baseline+1, afterMove)
	_ = ids
}

func TestSearchPatternTooShort(t *testing.T) {
	ml, _ := newTestLibrary(t)
	assert.Nil(t, ml.SearchMedia("ab", QueryParameters{}))
	assert.NotNil(t, ml.SearchMedia("abc", QueryParameters{}))
}
