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

package medialibdb

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func seedPlaylistWith(t *testing.T, db *MediaLibDB, n int) (database.Playlist, []database.Media) {
	t.Helper()
	device, folder := seedDevice(t, db)
	playlist, err := db.CreatePlaylist("mix", sql.NullInt64{})
	require.NoError(t, err)
	media := make([]database.Media, 0, n)
	for i := range n {
		md := seedMedia(t, db, device, folder,
			fmt.Sprintf("track-%c", 'a'+rune(i)), database.MediaTypeAudio)
		require.NoError(t, db.PlaylistAppend(playlist.ID, md.ID))
		media = append(media, md)
	}
	return playlist, media
}

func playlistOrder(t *testing.T, db *MediaLibDB, playlistID int64) []int64 {
	t.Helper()
	items, err := db.PlaylistItems(playlistID)
	require.NoError(t, err)
	order := make([]int64, len(items))
	for i, it := range items {
		require.Equal(t, i, it.Position, "positions must stay contiguous")
		order[i] = it.MediaID
	}
	return order
}

func TestPlaylistMoveBlock(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	playlist, media := seedPlaylistWith(t, db, 5)
	a, b, c, d, e := media[0].ID, media[1].ID, media[2].ID, media[3].ID, media[4].ID

	moved, err := db.PlaylistMove(playlist.ID, 1, 3, 2)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, []int64{a, d, b, c, e}, playlistOrder(t, db, playlist.ID))
}

// Moving a block onto itself succeeds without touching anything.
func TestPlaylistMoveNoOp(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	playlist, media := seedPlaylistWith(t, db, 5)

	moved, err := db.PlaylistMove(playlist.ID, 2, 3, 2)
	require.NoError(t, err)
	assert.False(t, moved)

	want := []int64{media[0].ID, media[1].ID, media[2].ID, media[3].ID, media[4].ID}
	assert.Equal(t, want, playlistOrder(t, db, playlist.ID))
}

func TestPlaylistRemoveRenumbers(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	playlist, media := seedPlaylistWith(t, db, 4)

	require.NoError(t, db.PlaylistRemoveAt(playlist.ID, 1))
	want := []int64{media[0].ID, media[2].ID, media[3].ID}
	assert.Equal(t, want, playlistOrder(t, db, playlist.ID))

	p, err := db.PlaylistByID(playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.NbMedia())
}

// Deleting a media pulls it out of every playlist, closing the gap and
// fixing the counters.
func TestPlaylistMediaDeletionCascades(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	playlist, media := seedPlaylistWith(t, db, 3)

	require.NoError(t, db.DeleteMedia(media[1].ID))
	want := []int64{media[0].ID, media[2].ID}
	assert.Equal(t, want, playlistOrder(t, db, playlist.ID))

	p, err := db.PlaylistByID(playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.NbMedia())
	assert.Equal(t, 2, p.NbPresentMedia())
}

// Present counters track the media presence per type.
func TestPlaylistPresentCounters(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)
	playlist, err := db.CreatePlaylist("mixed", sql.NullInt64{})
	require.NoError(t, err)

	song := seedMedia(t, db, device, folder, "song", database.MediaTypeAudio)
	clip := seedMedia(t, db, device, folder, "clip", database.MediaTypeVideo)
	require.NoError(t, db.PlaylistAppend(playlist.ID, song.ID))
	require.NoError(t, db.PlaylistAppend(playlist.ID, clip.ID))

	require.NoError(t, db.SetDevicePresent(device.ID, false))
	p, err := db.PlaylistByID(playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.NbMedia())
	assert.Zero(t, p.NbPresentMedia())

	require.NoError(t, db.SetDevicePresent(device.ID, true))
	p, err = db.PlaylistByID(playlist.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.NbPresentAudio)
	assert.Equal(t, 1, p.NbPresentVideo)
}

// Positions stay a contiguous zero-based sequence under arbitrary
// insert, remove and move storms.
func TestPlaylistPositionsStayContiguous(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		db := openTestDB(t)
		playlist, media := seedPlaylistWith(t, db, 6)
		size := len(media)

		ops := rapid.IntRange(1, 12).Draw(rt, "ops")
		for range ops {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0: // remove
				if size == 0 {
					continue
				}
				pos := rapid.IntRange(0, size-1).Draw(rt, "removeAt")
				require.NoError(t, db.PlaylistRemoveAt(playlist.ID, pos))
				size--
			case 1: // append an existing media again
				if len(media) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(media)-1).Draw(rt, "appendIdx")
				require.NoError(t, db.PlaylistAppend(playlist.ID, media[idx].ID))
				size++
			case 2: // move one item
				if size < 2 {
					continue
				}
				from := rapid.IntRange(0, size-1).Draw(rt, "from")
				to := rapid.IntRange(0, size-1).Draw(rt, "to")
				_, err := db.PlaylistMove(playlist.ID, from, to, 1)
				require.NoError(t, err)
			}
		}
		items, err := db.PlaylistItems(playlist.ID)
		require.NoError(t, err)
		require.Len(t, items, size)
		for i, it := range items {
			require.Equal(t, i, it.Position)
		}
	})
}
