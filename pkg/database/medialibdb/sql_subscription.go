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
	"errors"
	"fmt"

	"github.com/MediaLibProject/medialib-core/pkg/database"
)

const subscriptionColumns = `DBID, ServiceType, Name, ParentDBID, CachedSize,
	MaxCachedMedia, MaxCachedSize, NewMediaNotification, NbUnplayedMedia, NbMedia`

const serviceColumns = `Type, AutoDownload, NewMediaNotification, MaxCachedMedia,
	MaxCachedSize, NbSubscriptions, NbUnplayedMedia, NbMedia`

func scanSubscription(row interface{ Scan(...any) error }) (database.Subscription, error) {
	var s database.Subscription
	err := row.Scan(&s.ID, &s.ServiceType, &s.Name, &s.ParentID, &s.CachedSize,
		&s.MaxCachedMedia, &s.MaxCachedSize, &s.NewMediaNotification,
		&s.NbUnplayedMedia, &s.NbMedia)
	return s, err
}

func scanService(row interface{ Scan(...any) error }) (database.Service, error) {
	var s database.Service
	err := row.Scan(&s.Type, &s.AutoDownload, &s.NewMediaNotification,
		&s.MaxCachedMedia, &s.MaxCachedSize, &s.NbSubscriptions,
		&s.NbUnplayedMedia, &s.NbMedia)
	return s, err
}

// GetOrCreateService resolves the singleton service row of a type.
func (m *MediaLibDB) GetOrCreateService(serviceType database.ServiceType) (database.Service, error) {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO Service (Type) VALUES (?) ON CONFLICT (Type) DO NOTHING`,
		serviceType)
	if err != nil {
		return database.Service{}, fmt.Errorf("failed to insert service: %w", err)
	}
	var s database.Service
	err = m.db.Read(func(q *sql.DB) error {
		var scanErr error
		s, scanErr = scanService(q.QueryRowContext(m.ctx,
			`SELECT `+serviceColumns+` FROM Service WHERE Type = ?`, serviceType))
		return scanErr
	})
	if err != nil {
		return database.Service{}, fmt.Errorf("failed to load service: %w", err)
	}
	return s, nil
}

func (m *MediaLibDB) UpdateService(s database.Service) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Service SET AutoDownload = ?, NewMediaNotification = ?,
			MaxCachedMedia = ?, MaxCachedSize = ? WHERE Type = ?`,
		s.AutoDownload, s.NewMediaNotification, s.MaxCachedMedia,
		s.MaxCachedSize, s.Type)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

// CreateSubscription adds a subscription under an optional parent in
// the service's forest.
func (m *MediaLibDB) CreateSubscription(serviceType database.ServiceType, name string,
	parentID sql.NullInt64,
) (database.Subscription, error) {
	if _, err := m.GetOrCreateService(serviceType); err != nil {
		return database.Subscription{}, err
	}
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Subscription (ServiceType, Name, ParentDBID) VALUES (?, ?, ?)`,
		serviceType, name, parentID)
	if err != nil {
		return database.Subscription{}, fmt.Errorf("failed to create subscription %s: %w", name, err)
	}
	s := database.Subscription{
		ServiceType: serviceType, Name: name, ParentID: parentID,
		MaxCachedMedia: database.InheritFromParent,
		MaxCachedSize:  database.InheritFromParent,
		NewMediaNotification: database.NotificationInherit,
	}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return database.Subscription{}, fmt.Errorf("failed to get subscription insert ID: %w", err)
	}
	return s, nil
}

func (m *MediaLibDB) SubscriptionByID(id int64) (database.Subscription, error) {
	var s database.Subscription
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		s, scanErr = scanSubscription(q.QueryRowContext(m.ctx,
			`SELECT `+subscriptionColumns+` FROM Subscription WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Subscription{}, database.ErrNotFound
	}
	if err != nil {
		return database.Subscription{}, fmt.Errorf("failed to load subscription %d: %w", id, err)
	}
	return s, nil
}

// DeleteSubscription removes a subscription and, through the cascade,
// all of its descendants.
func (m *MediaLibDB) DeleteSubscription(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Subscription WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (m *MediaLibDB) UpdateSubscriptionLimits(id, maxCachedMedia, maxCachedSize int64,
	notification database.NotificationMode,
) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Subscription SET MaxCachedMedia = ?, MaxCachedSize = ?,
			NewMediaNotification = ? WHERE DBID = ?`,
		maxCachedMedia, maxCachedSize, notification, id)
	if err != nil {
		return fmt.Errorf("failed to update subscription limits: %w", err)
	}
	return nil
}

// Subscriptions lists every subscription of a service type, nested ones
// included, ordered by name; there is no parent filter.
func (m *MediaLibDB) Subscriptions(serviceType database.ServiceType, params QueryParameters) *Query[database.Subscription] {
	where := `ServiceType = ?`
	order := ` ORDER BY Name` + sortDirection(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Subscription WHERE `+where,
		`SELECT `+subscriptionColumns+` FROM Subscription WHERE `+where+order,
		[]any{serviceType}, scanSubscription)
}

func (m *MediaLibDB) ChildSubscriptions(parentID int64) ([]database.Subscription, error) {
	var subs []database.Subscription
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+subscriptionColumns+` FROM Subscription
			 WHERE ParentDBID = ? ORDER BY Name`, parentID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			s, err := scanSubscription(rows)
			if err != nil {
				return err
			}
			subs = append(subs, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list child subscriptions: %w", err)
	}
	return subs, nil
}

// AddMediaToSubscription links a media into a subscription.
func (m *MediaLibDB) AddMediaToSubscription(subscriptionID, mediaID int64) error {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO SubscriptionMediaRelation (SubscriptionDBID, MediaDBID)
		 VALUES (?, ?)`, subscriptionID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to add media to subscription: %w", err)
	}
	return nil
}

// SubscriptionMedia lists a subscription's media, newest first.
func (m *MediaLibDB) SubscriptionMedia(subscriptionID int64, params QueryParameters) *Query[database.Media] {
	where := `DBID IN (SELECT MediaDBID FROM SubscriptionMediaRelation
		WHERE SubscriptionDBID = ?)`
	order := ` ORDER BY ReleaseDate DESC, DBID DESC`
	if params.Sort != SortDefault {
		order = mediaOrderBy(params)
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{subscriptionID}, scanMedia)
}

// SetMediaCache records a media's local cache state; the cached size
// delta flows into the owning subscriptions by trigger.
func (m *MediaLibDB) SetMediaCache(mediaID int64, origin database.CacheOrigin, cachedSize int64) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET CacheOrigin = ?, CachedSize = ?, CacheHandled = 0
		 WHERE DBID = ?`, origin, cachedSize, mediaID)
	if err != nil {
		return fmt.Errorf("failed to update media cache state: %w", err)
	}
	return nil
}

// MarkCacheAsHandled keeps an automatically cached media from being
// reconsidered during the same caching pass.
func (m *MediaLibDB) MarkCacheAsHandled(mediaID int64) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET CacheHandled = 1 WHERE DBID = ?`, mediaID)
	if err != nil {
		return fmt.Errorf("failed to mark cache handled: %w", err)
	}
	return nil
}

// ResetCacheHandled opens a new caching pass.
func (m *MediaLibDB) ResetCacheHandled() error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET CacheHandled = 0 WHERE CacheHandled = 1`)
	if err != nil {
		return fmt.Errorf("failed to reset cache handling: %w", err)
	}
	return nil
}

// EvictableMedia lists cache eviction victims for a subscription:
// automatically cached media, plus manually cached ones that were
// already played, worst candidates first (most played, then oldest
// release).
func (m *MediaLibDB) EvictableMedia(subscriptionID int64) ([]database.Media, error) {
	var media []database.Media
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+mediaColumns+` FROM Media
			 WHERE DBID IN (SELECT MediaDBID FROM SubscriptionMediaRelation
				WHERE SubscriptionDBID = ?)
			 AND (CacheOrigin = ? OR (CacheOrigin = ? AND PlayCount > 0))
			 ORDER BY PlayCount DESC, ReleaseDate ASC`,
			subscriptionID, database.CacheOriginAuto, database.CacheOriginManual)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			md, err := scanMedia(rows)
			if err != nil {
				return err
			}
			media = append(media, md)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list evictable media: %w", err)
	}
	return media, nil
}

// UncachedSubscriptionMedia lists media of a subscription that are not
// cached yet and not already handled this pass, newest release first.
func (m *MediaLibDB) UncachedSubscriptionMedia(subscriptionID int64) ([]database.Media, error) {
	var media []database.Media
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+mediaColumns+` FROM Media
			 WHERE DBID IN (SELECT MediaDBID FROM SubscriptionMediaRelation
				WHERE SubscriptionDBID = ?)
			 AND CacheOrigin = ? AND CacheHandled = 0
			 ORDER BY ReleaseDate DESC, DBID DESC`,
			subscriptionID, database.CacheOriginNone)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			md, err := scanMedia(rows)
			if err != nil {
				return err
			}
			media = append(media, md)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list uncached media: %w", err)
	}
	return media, nil
}

// CachedMediaCount counts a subscription's currently cached media.
func (m *MediaLibDB) CachedMediaCount(subscriptionID int64) (int, error) {
	var count int
	err := m.db.Read(func(q *sql.DB) error {
		return q.QueryRowContext(m.ctx,
			`SELECT COUNT(*) FROM Media
			 WHERE DBID IN (SELECT MediaDBID FROM SubscriptionMediaRelation
				WHERE SubscriptionDBID = ?)
			 AND CacheOrigin != ?`,
			subscriptionID, database.CacheOriginNone).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count cached media: %w", err)
	}
	return count, nil
}
