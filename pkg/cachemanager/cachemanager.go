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

// Package cachemanager enforces the subscription cache quotas: it
// downloads new subscription media while space allows and evicts old
// ones when it does not.
package cachemanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Downloader fetches a subscription media into the local cache and
// reports its size on disk. RemoveDownload frees the space again.
type Downloader interface {
	Download(ctx context.Context, media database.Media) (int64, error)
	RemoveDownload(ctx context.Context, media database.Media) error
}

type CacheManager struct {
	ctx        context.Context
	db         *medialibdb.MediaLibDB
	cfg        *config.Instance
	downloader Downloader
	cron       *cron.Cron
	entry      cron.EntryID
}

func New(ctx context.Context, db *medialibdb.MediaLibDB, cfg *config.Instance,
	downloader Downloader,
) *CacheManager {
	return &CacheManager{ctx: ctx, db: db, cfg: cfg, downloader: downloader}
}

// Start schedules the periodic caching pass.
func (c *CacheManager) Start() error {
	if c.cron != nil {
		return nil
	}
	c.cron = cron.New()
	entry, err := c.cron.AddFunc(c.cfg.CachePassSchedule(), func() {
		if err := c.CacheNewItems(); err != nil {
			log.Error().Err(err).Msg("periodic cache pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cache pass: %w", err)
	}
	c.entry = entry
	c.cron.Start()
	return nil
}

func (c *CacheManager) Stop() {
	if c.cron == nil {
		return
	}
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.cron = nil
}

// effectiveLimits resolves a subscription's cache budget: the nearest
// ancestor with a non-inherit value wins, then the service, then the
// global configuration.
func (c *CacheManager) effectiveLimits(sub database.Subscription) (maxSize, maxMedia int64, err error) {
	maxSize = sub.MaxCachedSize
	maxMedia = sub.MaxCachedMedia
	parent := sub.ParentID
	for (maxSize == database.InheritFromParent || maxMedia == database.InheritFromParent) &&
		parent.Valid {
		ancestor, lookupErr := c.db.SubscriptionByID(parent.Int64)
		if lookupErr != nil {
			return 0, 0, lookupErr
		}
		if maxSize == database.InheritFromParent {
			maxSize = ancestor.MaxCachedSize
		}
		if maxMedia == database.InheritFromParent {
			maxMedia = ancestor.MaxCachedMedia
		}
		parent = ancestor.ParentID
	}
	if maxSize == database.InheritFromParent || maxMedia == database.InheritFromParent {
		service, lookupErr := c.db.GetOrCreateService(sub.ServiceType)
		if lookupErr != nil {
			return 0, 0, lookupErr
		}
		if maxSize == database.InheritFromParent {
			maxSize = service.MaxCachedSize
		}
		if maxMedia == database.InheritFromParent {
			maxMedia = service.MaxCachedMedia
		}
	}
	if maxSize == database.InheritFromParent {
		maxSize = c.cfg.CacheMaxSizeBytes()
	}
	if maxMedia == database.InheritFromParent {
		maxMedia = int64(c.cfg.CacheMaxMediaCount())
	}
	return maxSize, maxMedia, nil
}

// CacheNewItems runs one automatic caching pass over every service
// with auto download enabled.
func (c *CacheManager) CacheNewItems() error {
	if err := c.db.ResetCacheHandled(); err != nil {
		return err
	}
	service, err := c.db.GetOrCreateService(database.ServiceTypePodcast)
	if err != nil {
		return err
	}
	if !service.AutoDownload {
		return nil
	}
	subs, err := c.db.Subscriptions(service.Type, medialibdb.QueryParameters{}).All()
	if err != nil {
		return err
	}
	var errs []error
	for _, sub := range subs {
		if err := c.cacheSubscription(sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CacheManager) cacheSubscription(sub database.Subscription) error {
	maxSize, maxMedia, err := c.effectiveLimits(sub)
	if err != nil {
		return err
	}
	candidates, err := c.db.UncachedSubscriptionMedia(sub.ID)
	if err != nil {
		return err
	}
	for _, md := range candidates {
		// One pass decision per media, downloaded or not.
		if err := c.db.MarkCacheAsHandled(md.ID); err != nil {
			return err
		}
		current, err := c.db.SubscriptionByID(sub.ID)
		if err != nil {
			return err
		}
		count, err := c.db.CachedMediaCount(sub.ID)
		if err != nil {
			return err
		}
		if int64(count) >= maxMedia || current.CachedSize >= maxSize {
			if evicted, evictErr := c.evict(sub, maxSize, maxMedia); evictErr != nil {
				return evictErr
			} else if !evicted {
				log.Debug().Msgf(
					"subscription %s over quota with nothing evictable", sub.Name)
				break
			}
		}
		if c.downloader == nil {
			continue
		}
		size, err := c.downloader.Download(c.ctx, md)
		if err != nil {
			log.Warn().Err(err).Msgf("failed to cache media %d", md.ID)
			continue
		}
		if err := c.db.SetMediaCache(md.ID, database.CacheOriginAuto, size); err != nil {
			return err
		}
	}
	return c.evictUntilWithinQuota(sub, maxSize, maxMedia)
}

// evict removes the single worst cached media of the subscription:
// highest play count first, oldest release among ties.
func (c *CacheManager) evict(sub database.Subscription, _, _ int64) (bool, error) {
	victims, err := c.db.EvictableMedia(sub.ID)
	if err != nil {
		return false, err
	}
	if len(victims) == 0 {
		return false, nil
	}
	victim := victims[0]
	if c.downloader != nil {
		if err := c.downloader.RemoveDownload(c.ctx, victim); err != nil {
			log.Warn().Err(err).Msgf("failed to remove cached media %d", victim.ID)
		}
	}
	if err := c.db.SetMediaCache(victim.ID, database.CacheOriginNone, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CacheManager) evictUntilWithinQuota(sub database.Subscription, maxSize, maxMedia int64) error {
	for {
		current, err := c.db.SubscriptionByID(sub.ID)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		count, err := c.db.CachedMediaCount(sub.ID)
		if err != nil {
			return err
		}
		if current.CachedSize <= maxSize && int64(count) <= maxMedia {
			return nil
		}
		evicted, err := c.evict(sub, maxSize, maxMedia)
		if err != nil {
			return err
		}
		if !evicted {
			return nil
		}
	}
}

// CacheMedia caches one media on user request.
func (c *CacheManager) CacheMedia(mediaID int64) error {
	md, err := c.db.MediaByID(mediaID)
	if err != nil {
		return err
	}
	var size int64
	if c.downloader != nil {
		size, err = c.downloader.Download(c.ctx, md)
		if err != nil {
			return err
		}
	}
	return c.db.SetMediaCache(md.ID, database.CacheOriginManual, size)
}

// RemoveCached drops a media from the cache on user request.
func (c *CacheManager) RemoveCached(mediaID int64) error {
	md, err := c.db.MediaByID(mediaID)
	if err != nil {
		return err
	}
	if c.downloader != nil {
		if err := c.downloader.RemoveDownload(c.ctx, md); err != nil {
			return err
		}
	}
	return c.db.SetMediaCache(md.ID, database.CacheOriginNone, 0)
}
