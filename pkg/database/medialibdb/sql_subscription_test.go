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
	"testing"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubscription(t *testing.T, db *MediaLibDB) (database.Subscription, database.Device, database.Folder) {
	t.Helper()
	sub, err := db.CreateSubscription(database.ServiceTypePodcast, "show", sql.NullInt64{})
	require.NoError(t, err)
	device, folder := seedDevice(t, db)
	return sub, device, folder
}

func TestSubscriptionCounters(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	sub, device, folder := seedSubscription(t, db)

	md := seedMedia(t, db, device, folder, "episode-1", database.MediaTypeAudio)
	require.NoError(t, db.AddMediaToSubscription(sub.ID, md.ID))

	s, err := db.SubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.NbMedia)
	assert.Equal(t, 1, s.NbUnplayedMedia)

	require.NoError(t, db.IncreasePlayCount(md.ID))
	s, err = db.SubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Zero(t, s.NbUnplayedMedia)

	// Cached bytes flow into the subscription by trigger.
	require.NoError(t, db.SetMediaCache(md.ID, database.CacheOriginAuto, 4096))
	s, err = db.SubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), s.CachedSize)

	require.NoError(t, db.DeleteMedia(md.ID))
	s, err = db.SubscriptionByID(sub.ID)
	require.NoError(t, err)
	assert.Zero(t, s.NbMedia)
	assert.Zero(t, s.CachedSize)
}

// Deleting a subscription removes its descendants.
func TestSubscriptionForestCascade(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	root, err := db.CreateSubscription(database.ServiceTypePodcast, "network", sql.NullInt64{})
	require.NoError(t, err)
	child, err := db.CreateSubscription(database.ServiceTypePodcast, "feed",
		sql.NullInt64{Int64: root.ID, Valid: true})
	require.NoError(t, err)

	service, err := db.GetOrCreateService(database.ServiceTypePodcast)
	require.NoError(t, err)
	assert.Equal(t, 2, service.NbSubscriptions)

	require.NoError(t, db.DeleteSubscription(root.ID))
	_, err = db.SubscriptionByID(child.ID)
	require.ErrorIs(t, err, database.ErrNotFound)

	service, err = db.GetOrCreateService(database.ServiceTypePodcast)
	require.NoError(t, err)
	assert.Zero(t, service.NbSubscriptions)
}

// Eviction candidates: automatically cached media plus played manual
// ones, worst first (most played, then oldest release).
func TestEvictableMediaOrdering(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	sub, device, folder := seedSubscription(t, db)

	addEpisode := func(title string, origin database.CacheOrigin, plays int, release int64) database.Media {
		md := seedMedia(t, db, device, folder, title, database.MediaTypeAudio)
		require.NoError(t, db.AddMediaToSubscription(sub.ID, md.ID))
		require.NoError(t, db.SetMediaCache(md.ID, origin, 1024))
		require.NoError(t, db.SetMediaReleaseDate(md.ID, release))
		for range plays {
			require.NoError(t, db.IncreasePlayCount(md.ID))
		}
		return md
	}

	manualUnplayed := addEpisode("manual-unplayed", database.CacheOriginManual, 0, 100)
	manualPlayed := addEpisode("manual-played", database.CacheOriginManual, 2, 200)
	autoOld := addEpisode("auto-old", database.CacheOriginAuto, 2, 50)
	autoFresh := addEpisode("auto-fresh", database.CacheOriginAuto, 0, 300)

	victims, err := db.EvictableMedia(sub.ID)
	require.NoError(t, err)
	require.Len(t, victims, 3)

	// manual but unplayed is untouchable
	for _, v := range victims {
		assert.NotEqual(t, manualUnplayed.ID, v.ID)
	}
	// two plays each: the older release goes first
	assert.Equal(t, autoOld.ID, victims[0].ID)
	assert.Equal(t, manualPlayed.ID, victims[1].ID)
	assert.Equal(t, autoFresh.ID, victims[2].ID)
}

func TestCacheHandledFlag(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	sub, device, folder := seedSubscription(t, db)

	md := seedMedia(t, db, device, folder, "fresh", database.MediaTypeAudio)
	require.NoError(t, db.AddMediaToSubscription(sub.ID, md.ID))

	uncached, err := db.UncachedSubscriptionMedia(sub.ID)
	require.NoError(t, err)
	require.Len(t, uncached, 1)

	require.NoError(t, db.MarkCacheAsHandled(md.ID))
	uncached, err = db.UncachedSubscriptionMedia(sub.ID)
	require.NoError(t, err)
	assert.Empty(t, uncached)

	require.NoError(t, db.ResetCacheHandled())
	uncached, err = db.UncachedSubscriptionMedia(sub.ID)
	require.NoError(t, err)
	assert.Len(t, uncached, 1)
}
