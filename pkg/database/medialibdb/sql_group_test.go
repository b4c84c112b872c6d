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

// Every media always belongs to a group; the automatic one is created
// with the media itself.
func TestMediaAlwaysGrouped(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	md := seedMedia(t, db, device, folder, "foo.mkv", database.MediaTypeVideo)
	require.NotZero(t, md.GroupID)

	g, err := db.GroupByID(md.GroupID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NbTotal())
}

// Removing a media from its group parks it in a forced singleton named
// after the media; renaming follows; regrouping deletes the singleton.
func TestForcedSingletonRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	md := seedMedia(t, db, device, folder, "foo.mkv", database.MediaTypeVideo)
	other := seedMedia(t, db, device, folder, "bar.mkv", database.MediaTypeVideo)
	destination, err := db.CreateMediaGroup("watchlist", []int64{other.ID})
	require.NoError(t, err)

	singleton, err := db.RemoveFromGroup(md.ID)
	require.NoError(t, err)
	assert.True(t, singleton.ForcedSingleton)
	assert.Equal(t, "foo.mkv", singleton.Name)
	assert.Equal(t, 1, singleton.NbTotal())

	reloaded, err := db.MediaByID(md.ID)
	require.NoError(t, err)
	assert.Equal(t, singleton.ID, reloaded.GroupID)

	// Renaming the media renames its singleton.
	require.NoError(t, db.SetMediaTitle(md.ID, "bar.mkv", true))
	renamed, err := db.GroupByID(singleton.ID)
	require.NoError(t, err)
	assert.Equal(t, "bar.mkv", renamed.Name)

	// Joining a real group empties the singleton, which deletes it.
	require.NoError(t, db.AddToGroup(md.ID, destination.ID))
	_, err = db.GroupByID(singleton.ID)
	require.ErrorIs(t, err, database.ErrNotFound)

	dest, err := db.GroupByID(destination.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, dest.NbTotal())
	assert.Equal(t, 2, dest.NbPresentMedia())
}

// Deleting a media deletes its emptied automatic group.
func TestEmptyGroupGC(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	md := seedMedia(t, db, device, folder, "lonely.mkv", database.MediaTypeVideo)
	require.NoError(t, db.DeleteMedia(md.ID))

	_, err := db.GroupByID(md.GroupID)
	require.ErrorIs(t, err, database.ErrNotFound)
}

// Titles sharing a long prefix merge into one automatic group.
func TestAutoGroupingByPrefix(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	first := seedMedia(t, db, device, folder, "Household Tales Part 1", database.MediaTypeVideo)
	second := seedMedia(t, db, device, folder, "Household Tales Part 2", database.MediaTypeVideo)

	group, err := db.FindGroupForTitle(second.Title)
	require.NoError(t, err)
	assert.Equal(t, first.GroupID, group.ID)

	require.NoError(t, db.MergeIntoGroup(second.ID, group.ID, "household tales part"))

	merged, err := db.GroupByID(group.ID)
	require.NoError(t, err)
	assert.Equal(t, "household tales part", merged.Name)
	assert.Equal(t, 2, merged.NbTotal())

	// The second media's emptied automatic group is gone.
	_, err = db.GroupByID(second.GroupID)
	require.ErrorIs(t, err, database.ErrNotFound)
}

// Short titles never group automatically.
func TestNoGroupingBelowMinimumPrefix(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	device, folder := seedDevice(t, db)

	seedMedia(t, db, device, folder, "abc", database.MediaTypeVideo)
	_, err := db.FindGroupForTitle("abd")
	require.ErrorIs(t, err, database.ErrNotFound)
}
