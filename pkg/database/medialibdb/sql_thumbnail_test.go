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
	"testing"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thumbnail rows are shared by reference counting and deleted with
// their last link.
func TestThumbnailRefcount(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	first := seedMedia(t, db, device, folder, "a.mkv", database.MediaTypeVideo)
	second := seedMedia(t, db, device, folder, "b.mkv", database.MediaTypeVideo)

	thumb, err := db.SetEntityThumbnail(database.ThumbnailEntityMedia, first.ID,
		database.ThumbnailSizeSmall, "file:///thumbs/1_0.jpg",
		database.ThumbnailOriginMedia, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, thumb.SharedCount)

	// The same image linked from a second entity bumps the count.
	thumb, err = db.SetEntityThumbnail(database.ThumbnailEntityMedia, second.ID,
		database.ThumbnailSizeSmall, "file:///thumbs/1_0.jpg",
		database.ThumbnailOriginMedia, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, thumb.SharedCount)

	require.NoError(t, db.RemoveEntityThumbnail(database.ThumbnailEntityMedia,
		second.ID, database.ThumbnailSizeSmall))
	reloaded, err := db.EntityThumbnail(database.ThumbnailEntityMedia, first.ID,
		database.ThumbnailSizeSmall)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.SharedCount)

	// Dropping the last link deletes the row.
	require.NoError(t, db.RemoveEntityThumbnail(database.ThumbnailEntityMedia,
		first.ID, database.ThumbnailSizeSmall))
	_, err = db.EntityThumbnail(database.ThumbnailEntityMedia, first.ID,
		database.ThumbnailSizeSmall)
	require.ErrorIs(t, err, database.ErrNotFound)

	var remaining int
	err = db.UnsafeGetSQLDb().QueryRow(`SELECT COUNT(*) FROM Thumbnail`).Scan(&remaining)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

// Deleting a media drops its thumbnail links and any now-orphaned
// thumbnails.
func TestThumbnailCleanupOnMediaDelete(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)
	md := seedMedia(t, db, device, folder, "c.mkv", database.MediaTypeVideo)

	_, err := db.SetEntityThumbnail(database.ThumbnailEntityMedia, md.ID,
		database.ThumbnailSizeLarge, "file:///thumbs/c.jpg",
		database.ThumbnailOriginMedia, true, true)
	require.NoError(t, err)

	require.NoError(t, db.DeleteMedia(md.ID))

	var remaining int
	err = db.UnsafeGetSQLDb().QueryRow(`SELECT COUNT(*) FROM Thumbnail`).Scan(&remaining)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

// Replacing a link moves the refcount between thumbnails.
func TestThumbnailReplacement(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)
	md := seedMedia(t, db, device, folder, "d.mkv", database.MediaTypeVideo)

	_, err := db.SetEntityThumbnail(database.ThumbnailEntityMedia, md.ID,
		database.ThumbnailSizeSmall, "file:///thumbs/old.jpg",
		database.ThumbnailOriginMedia, true, true)
	require.NoError(t, err)

	replacement, err := db.SetEntityThumbnail(database.ThumbnailEntityMedia, md.ID,
		database.ThumbnailSizeSmall, "file:///thumbs/new.jpg",
		database.ThumbnailOriginUserProvided, false, false)
	require.NoError(t, err)
	assert.Equal(t, "file:///thumbs/new.jpg", replacement.MRL)
	assert.Equal(t, 1, replacement.SharedCount)

	var remaining int
	err = db.UnsafeGetSQLDb().QueryRow(`SELECT COUNT(*) FROM Thumbnail`).Scan(&remaining)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
