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

package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/devices"
	"github.com/MediaLibProject/medialib-core/pkg/fsys"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []database.Task
}

func (r *recordingScheduler) Schedule(task database.Task, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

func (r *recordingScheduler) count(taskType database.TaskType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Type == taskType {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu            sync.Mutex
	mediaAdded    []int64
	mediaDeleted  []int64
	foldersAdded  []int64
	completedRoot string
	success       bool
}

func (r *recordingNotifier) OnDiscoveryStarted(string)           {}
func (r *recordingNotifier) OnDiscoveryProgress(string, string)  {}
func (r *recordingNotifier) OnFoldersDeleted([]int64)            {}

func (r *recordingNotifier) OnDiscoveryCompleted(root string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completedRoot = root
	r.success = success
}

func (r *recordingNotifier) OnMediaAdded(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mediaAdded = append(r.mediaAdded, ids...)
}

func (r *recordingNotifier) OnMediaDeleted(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mediaDeleted = append(r.mediaDeleted, ids...)
}

func (r *recordingNotifier) OnFoldersAdded(ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldersAdded = append(r.foldersAdded, ids...)
}

type harness struct {
	db        *medialibdb.MediaLibDB
	registry  *devices.Registry
	fs        afero.Fs
	disc      *Discoverer
	scheduler *recordingScheduler
	notifier  *recordingNotifier
	device    database.Device
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := medialibdb.OpenInMemory(context.Background(),
		clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	registry := devices.NewRegistry(db)
	require.NoError(t, registry.Load())

	memFs := afero.NewMemMapFs()
	fsreg := fsys.NewRegistry()
	fsreg.Register(fsys.NewLocalFactoryWithFs(memFs))

	scheduler := &recordingScheduler{}
	notifier := &recordingNotifier{}
	disc := New(db, registry, fsreg, scheduler, notifier)

	device, err := registry.RegisterDevice("u1", "file", true, false)
	require.NoError(t, err)
	require.NoError(t, registry.AddMountpoint(device.ID, "file:///mnt/dev/", 10))
	require.NoError(t, registry.MarkPresent(device.ID, true))

	return &harness{
		db: db, registry: registry, fs: memFs, disc: disc,
		scheduler: scheduler, notifier: notifier, device: device,
	}
}

func (h *harness) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, path, []byte(content), 0o644))
}

func TestDiscoverIndexesTree(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/music/track1.mp3", "x")
	h.write(t, "/mnt/dev/music/track1.srt", "x")
	h.write(t, "/mnt/dev/video/show S01E01.mkv", "x")
	h.write(t, "/mnt/dev/video/list.m3u", "track1.mp3")
	h.write(t, "/mnt/dev/notes.txt", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))

	assert.True(t, h.notifier.success)
	assert.Len(t, h.notifier.mediaAdded, 2)
	assert.Equal(t, 2, h.scheduler.count(database.TaskTypeParse))
	assert.Equal(t, 1, h.scheduler.count(database.TaskTypeParsePlaylist))

	count, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The subtitle linked to its sibling media by stem.
	md, err := h.db.MediaByDeviceAndPath(h.device.ID, "music/track1.mp3")
	require.NoError(t, err)
	files, err := h.db.FilesOfMedia(md.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	folder, err := h.db.FolderByPath(h.device.ID, "music")
	require.NoError(t, err)
	folderFiles, err := h.db.FilesOfFolder(folder.ID)
	require.NoError(t, err)
	var linked bool
	for _, f := range folderFiles {
		if f.Type == database.FileTypeSubtitles {
			require.True(t, f.LinkedMediaID.Valid)
			assert.Equal(t, md.ID, f.LinkedMediaID.Int64)
			linked = true
		}
	}
	assert.True(t, linked)
}

// Unmount then remount: the media keeps its identity; while absent the
// default queries hide it.
func TestRemovableRemountPreservesIDs(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/track1.mp3", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))
	md, err := h.db.MediaByDeviceAndPath(h.device.ID, "track1.mp3")
	require.NoError(t, err)
	originalID := md.ID

	h.registry.OnDeviceUnmounted("u1", "file:///mnt/dev/")

	hidden, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Zero(t, hidden)

	folder, err := h.db.FolderByPath(h.device.ID, "")
	require.NoError(t, err)
	assert.False(t, folder.IsPresent)

	// Reload while absent must not touch the tree.
	require.NoError(t, h.disc.Reload(context.Background(), ""))

	h.registry.OnDeviceMounted("u1", "file:///mnt/dev/", true)
	require.NoError(t, h.disc.Reload(context.Background(), ""))

	md, err = h.db.MediaByDeviceAndPath(h.device.ID, "track1.mp3")
	require.NoError(t, err)
	assert.Equal(t, originalID, md.ID)

	visible, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, visible)
}

// A reload picks up new files and drops vanished ones.
func TestReloadDetectsChanges(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/a.mkv", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))
	require.Len(t, h.notifier.mediaAdded, 1)

	h.write(t, "/mnt/dev/b.mkv", "x")
	require.NoError(t, h.fs.Remove("/mnt/dev/a.mkv"))

	require.NoError(t, h.disc.Reload(context.Background(), ""))

	assert.Len(t, h.notifier.mediaAdded, 2)
	assert.Len(t, h.notifier.mediaDeleted, 1)

	count, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// A .nomedia sentinel keeps the whole subtree out.
func TestNoMediaSentinel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/keep/a.mkv", "x")
	h.write(t, "/mnt/dev/skip/.nomedia", "")
	h.write(t, "/mnt/dev/skip/b.mkv", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))

	count, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// Banning removes indexed descendants and persists; unbanning restores
// them.
func TestBanUnban(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/private/secret.mkv", "x")
	h.write(t, "/mnt/dev/public/a.mkv", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))
	count, err := h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, h.disc.Ban("file:///mnt/dev/private/"))
	banned, err := h.disc.IsBanned("file:///mnt/dev/private/")
	require.NoError(t, err)
	assert.True(t, banned)
	// Banning twice changes nothing.
	require.NoError(t, h.disc.Ban("file:///mnt/dev/private/"))

	count, err = h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Reloads leave the ban in place.
	require.NoError(t, h.disc.Reload(context.Background(), ""))
	count, err = h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, h.disc.Unban(context.Background(), "file:///mnt/dev/private/"))
	count, err = h.db.MediaList(database.MediaTypeUnknown,
		medialibdb.QueryParameters{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Removing a root converts its media to external entries instead of
// deleting them.
func TestRemoveRootConvertsToExternal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.write(t, "/mnt/dev/film.mkv", "x")

	require.NoError(t, h.disc.Discover(context.Background(), "file:///mnt/dev/"))
	md, err := h.db.MediaByDeviceAndPath(h.device.ID, "film.mkv")
	require.NoError(t, err)

	require.NoError(t, h.disc.RemoveRoot("file:///mnt/dev/"))

	external, err := h.db.MediaByExternalMRL("file:///mnt/dev/film.mkv")
	require.NoError(t, err)
	assert.Equal(t, md.ID, external.ID)
	assert.True(t, external.IsExternal)
	assert.True(t, external.IsPresent)
}
