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

package cachemanager

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	mu       sync.Mutex
	size     int64
	fetched  []int64
	removed  []int64
}

func (f *fakeDownloader) Download(_ context.Context, media database.Media) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, media.ID)
	return f.size, nil
}

func (f *fakeDownloader) RemoveDownload(_ context.Context, media database.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, media.ID)
	return nil
}

type cacheHarness struct {
	db  *medialibdb.MediaLibDB
	cm  *CacheManager
	dl  *fakeDownloader
	sub database.Subscription
}

func newCacheHarness(t *testing.T, defaults config.Values) *cacheHarness {
	t.Helper()
	db, err := medialibdb.OpenInMemory(context.Background(),
		clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	cfg, err := config.NewConfig("", defaults)
	require.NoError(t, err)

	dl := &fakeDownloader{size: 1000}
	cm := New(context.Background(), db, cfg, dl)

	sub, err := db.CreateSubscription(database.ServiceTypePodcast, "feed", sql.NullInt64{})
	require.NoError(t, err)
	return &cacheHarness{db: db, cm: cm, dl: dl, sub: sub}
}

func (h *cacheHarness) addEpisode(t *testing.T, title string, release int64) database.Media {
	t.Helper()
	md, err := h.db.InsertMedia(database.Media{
		Title: title, FileName: title + ".mp3",
		Type: database.MediaTypeAudio, IsPresent: true,
	})
	require.NoError(t, err)
	require.NoError(t, h.db.AddMediaToSubscription(h.sub.ID, md.ID))
	require.NoError(t, h.db.SetMediaReleaseDate(md.ID, release))
	return md
}

// An automatic pass downloads the newest uncached media while the
// quota allows.
func TestCachePassDownloadsNewestFirst(t *testing.T) {
	t.Parallel()
	defaults := config.BaseDefaults
	defaults.Cache.MaxSizeBytes = 10_000
	defaults.Cache.MaxMediaCount = 2
	h := newCacheHarness(t, defaults)

	old := h.addEpisode(t, "old", 100)
	mid := h.addEpisode(t, "mid", 200)
	fresh := h.addEpisode(t, "fresh", 300)

	require.NoError(t, h.cm.CacheNewItems())

	// Newest first; the quota of two forces the third download to
	// evict the oldest of the cached pair.
	require.GreaterOrEqual(t, len(h.dl.fetched), 2)
	assert.Equal(t, fresh.ID, h.dl.fetched[0])
	assert.Equal(t, mid.ID, h.dl.fetched[1])

	cached, err := h.db.CachedMediaCount(h.sub.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, cached, 2)
	_ = old
}

// Size quotas evict by descending play count, then ascending release
// date.
func TestEvictionRespectsOrdering(t *testing.T) {
	t.Parallel()
	defaults := config.BaseDefaults
	defaults.Cache.MaxSizeBytes = 2500
	defaults.Cache.MaxMediaCount = 100
	h := newCacheHarness(t, defaults)

	played := h.addEpisode(t, "played", 500)
	keep := h.addEpisode(t, "keep", 400)
	require.NoError(t, h.db.SetMediaCache(played.ID, database.CacheOriginAuto, 1000))
	require.NoError(t, h.db.SetMediaCache(keep.ID, database.CacheOriginAuto, 1000))
	require.NoError(t, h.db.IncreasePlayCount(played.ID))
	for _, id := range []int64{played.ID, keep.ID} {
		require.NoError(t, h.db.MarkCacheAsHandled(id))
	}

	third := h.addEpisode(t, "third", 600)
	require.NoError(t, h.cm.CacheNewItems())

	// The third download pushed the total to 3000 > 2500; the played
	// episode went first.
	assert.Contains(t, h.dl.fetched, third.ID)
	assert.Contains(t, h.dl.removed, played.ID)

	reloaded, err := h.db.MediaByID(played.ID)
	require.NoError(t, err)
	assert.Equal(t, database.CacheOriginNone, reloaded.CacheOrigin)
	assert.Zero(t, reloaded.CachedSize)

	kept, err := h.db.MediaByID(keep.ID)
	require.NoError(t, err)
	assert.Equal(t, database.CacheOriginAuto, kept.CacheOrigin)
}

// Manually cached, never played media are not evictable.
func TestManualUnplayedNotEvicted(t *testing.T) {
	t.Parallel()
	defaults := config.BaseDefaults
	defaults.Cache.MaxSizeBytes = 500
	defaults.Cache.MaxMediaCount = 100
	h := newCacheHarness(t, defaults)

	precious := h.addEpisode(t, "precious", 100)
	require.NoError(t, h.cm.CacheMedia(precious.ID))

	// Way over quota, but there is no eviction candidate.
	require.NoError(t, h.cm.CacheNewItems())
	reloaded, err := h.db.MediaByID(precious.ID)
	require.NoError(t, err)
	assert.Equal(t, database.CacheOriginManual, reloaded.CacheOrigin)
	assert.Empty(t, h.dl.removed)
}

// Subscription-level limits override the inherited global setting.
func TestEffectiveLimitInheritance(t *testing.T) {
	t.Parallel()
	defaults := config.BaseDefaults
	defaults.Cache.MaxSizeBytes = 100_000
	defaults.Cache.MaxMediaCount = 100
	h := newCacheHarness(t, defaults)

	maxSize, maxMedia, err := h.cm.effectiveLimits(h.sub)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), maxSize)
	assert.Equal(t, int64(100), maxMedia)

	require.NoError(t, h.db.UpdateSubscriptionLimits(h.sub.ID, 5, 12_345,
		database.NotificationInherit))
	sub, err := h.db.SubscriptionByID(h.sub.ID)
	require.NoError(t, err)

	maxSize, maxMedia, err = h.cm.effectiveLimits(sub)
	require.NoError(t, err)
	assert.Equal(t, int64(12_345), maxSize)
	assert.Equal(t, int64(5), maxMedia)

	// A child with everything on inherit sees the parent's values.
	child, err := h.db.CreateSubscription(database.ServiceTypePodcast, "child",
		sql.NullInt64{Int64: sub.ID, Valid: true})
	require.NoError(t, err)
	maxSize, maxMedia, err = h.cm.effectiveLimits(child)
	require.NoError(t, err)
	assert.Equal(t, int64(12_345), maxSize)
	assert.Equal(t, int64(5), maxMedia)
}

func TestCacheHandledPreventsReconsideration(t *testing.T) {
	t.Parallel()
	defaults := config.BaseDefaults
	h := newCacheHarness(t, defaults)

	for i := range 3 {
		h.addEpisode(t, fmt.Sprintf("ep-%d", i), int64(i))
	}
	require.NoError(t, h.cm.CacheNewItems())
	first := len(h.dl.fetched)
	assert.Equal(t, 3, first)

	// A second pass resets the handled flags but finds everything
	// already cached.
	require.NoError(t, h.cm.CacheNewItems())
	assert.Equal(t, first, len(h.dl.fetched))
}
