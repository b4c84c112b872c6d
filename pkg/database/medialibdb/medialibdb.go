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

// Package medialibdb is the storage engine for the media catalogue: one
// SQLite file holding the full entity graph, with derived counters kept
// consistent by database triggers.
package medialibdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Model versions below this cannot be upgraded in place; the database
// is reset instead and the host is told to reconfigure its roots.
const minimumMigratableVersion = 1

// ErrSchemaReset is returned by Migrate when the database was too old
// (or unrecognizable) and had to be rebuilt from scratch.
var ErrSchemaReset = errors.New("database schema was reset")

type MediaLibDB struct {
	db    *database.DB
	clock clockwork.Clock
	ctx   context.Context
}

// Open opens the library database at dbPath without touching its schema.
func Open(ctx context.Context, dbPath string, clock clockwork.Clock) (*MediaLibDB, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &MediaLibDB{db: db, clock: clock, ctx: ctx}, nil
}

// OpenInMemory is used by tests.
func OpenInMemory(ctx context.Context, clock clockwork.Clock) (*MediaLibDB, error) {
	db, err := database.OpenInMemory()
	if err != nil {
		return nil, err
	}
	return &MediaLibDB{db: db, clock: clock, ctx: ctx}, nil
}

func (m *MediaLibDB) Close() error {
	return m.db.Close()
}

func (m *MediaLibDB) Clock() clockwork.Clock {
	return m.clock
}

// UnsafeGetSQLDb exposes the raw handle for tests.
func (m *MediaLibDB) UnsafeGetSQLDb() *sql.DB {
	return m.db.UnsafeGetSQLDb()
}

// Migrate brings the schema up to the current model version. A database
// whose recorded model version predates the migratable floor is dropped
// and recreated; that case still returns a usable store along with
// ErrSchemaReset so the caller can report DbReset.
func (m *MediaLibDB) Migrate() error {
	raw := m.db.UnsafeGetSQLDb()

	reset := false
	version, err := m.modelVersionBestEffort()
	if err == nil && version < minimumMigratableVersion {
		log.Warn().Msgf(
			"database model version %d is below the migratable floor %d, resetting",
			version, minimumMigratableVersion,
		)
		reset = true
	}

	if reset {
		if err := database.DropAllTables(raw); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
		if err := database.MigrateUp(raw, migrationFiles, "migrations"); err != nil {
			return fmt.Errorf("failed to rebuild database after reset: %w", err)
		}
		return ErrSchemaReset
	}

	if err := database.MigrateUp(raw, migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("failed to run media database migrations: %w", err)
	}
	return nil
}

// modelVersionBestEffort reads the Settings row if it exists. A fresh
// database (no tables at all) reports the migratable floor so it is
// never mistaken for an ancient install.
func (m *MediaLibDB) modelVersionBestEffort() (int, error) {
	raw := m.db.UnsafeGetSQLDb()
	var hasSettings int
	err := raw.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Settings'`,
	).Scan(&hasSettings)
	if err != nil {
		return 0, fmt.Errorf("failed to probe settings table: %w", err)
	}
	if hasSettings == 0 {
		var hasAny int
		err := raw.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master
			 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'goose_%'`,
		).Scan(&hasAny)
		if err != nil {
			return 0, fmt.Errorf("failed to probe schema: %w", err)
		}
		if hasAny > 0 {
			// Tables exist but no Settings row: pre-versioning layout.
			return 0, nil
		}
		return minimumMigratableVersion, nil
	}
	var value string
	err = raw.QueryRow(`SELECT Value FROM Settings WHERE Name = 'DbModelVersion'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read model version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unparsable model version %q: %w", value, err)
	}
	return version, nil
}

// ModelVersion reports the persisted model version.
func (m *MediaLibDB) ModelVersion() (int, error) {
	var value string
	err := m.db.Read(func(q *sql.DB) error {
		return q.QueryRowContext(m.ctx,
			`SELECT Value FROM Settings WHERE Name = 'DbModelVersion'`).Scan(&value)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read model version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unparsable model version %q: %w", value, err)
	}
	return version, nil
}

func (m *MediaLibDB) GetSetting(name string) (string, bool, error) {
	var value string
	err := m.db.Read(func(q *sql.DB) error {
		return q.QueryRowContext(m.ctx,
			`SELECT Value FROM Settings WHERE Name = ?`, name).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", name, err)
	}
	return value, true, nil
}

func (m *MediaLibDB) SetSetting(name, value string) error {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO Settings (Name, Value) VALUES (?, ?)
		 ON CONFLICT (Name) DO UPDATE SET Value = excluded.Value`, name, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", name, err)
	}
	return nil
}

// Expected schema objects per kind, compared against sqlite_master after
// a migration run. CheckSchemaIntegrity sorts them before comparing.
var expectedTables = []string{
	"Album", "AlbumFts", "AlbumFts_content", "AlbumFts_segdir", "AlbumFts_segments",
	"Artist", "ArtistFts", "ArtistFts_content", "ArtistFts_segdir", "ArtistFts_segments",
	"Bookmark", "Chapter", "Device", "DeviceMountpoint", "File", "Folder",
	"FolderFts", "FolderFts_content", "FolderFts_segdir", "FolderFts_segments",
	"Genre", "GenreFts", "GenreFts_content", "GenreFts_segdir", "GenreFts_segments",
	"Label", "LabelFileRelation", "Media", "MediaArtistRel",
	"MediaFts", "MediaFts_content", "MediaFts_segdir", "MediaFts_segments",
	"MediaGroup", "MediaGroupFts", "MediaGroupFts_content", "MediaGroupFts_segdir",
	"MediaGroupFts_segments",
	"Playlist", "PlaylistFts", "PlaylistFts_content", "PlaylistFts_segdir",
	"PlaylistFts_segments",
	"PlaylistMediaRelation", "Service", "Settings", "Show",
	"ShowFts", "ShowFts_content", "ShowFts_segdir", "ShowFts_segments",
	"Subscription", "SubscriptionMediaRelation", "Task", "Thumbnail",
	"ThumbnailLinking",
}

var expectedTriggers = []string{
	"Album_DeleteEmpty", "Album_DurationChanged", "Album_MediaDeleted", "Album_MediaMoved",
	"AlbumFts_Delete", "AlbumFts_Insert",
	"Artist_AlbumAdded", "Artist_AlbumDeleted", "Artist_DeleteEmpty",
	"Artist_MediaChanged", "Artist_MediaDeleted",
	"ArtistFts_Delete", "ArtistFts_Insert",
	"Device_PresenceChanged",
	"Folder_AddMedia", "Folder_RemoveMedia", "Folder_UpdateMedia",
	"FolderFts_Delete", "FolderFts_Insert",
	"Genre_DeleteEmpty", "Genre_MediaChanged", "Genre_MediaDeleted",
	"GenreFts_Delete", "GenreFts_Insert",
	"Media_CleanupRelations", "Media_CleanupSubscriptions", "Media_PresenceChanged",
	"MediaFts_Delete", "MediaFts_Insert", "MediaFts_Update",
	"MediaGroup_AddMedia", "MediaGroup_DeleteEmpty", "MediaGroup_MediaChanged",
	"MediaGroup_MediaMoved", "MediaGroup_RemoveMedia",
	"MediaGroupFts_Delete", "MediaGroupFts_Insert", "MediaGroupFts_Update",
	"Playlist_ItemAdded", "Playlist_ItemRemoved",
	"PlaylistFts_Delete", "PlaylistFts_Insert", "PlaylistFts_Update",
	"Service_SubscriptionAdded", "Service_SubscriptionRemoved",
	"Show_MediaChanged", "Show_MediaDeleted",
	"ShowFts_Delete", "ShowFts_Insert",
	"Subscription_MediaAdded", "Subscription_MediaCachedSizeChanged",
	"Subscription_MediaPlayed", "Subscription_MediaRemoved",
	"Thumbnail_DecrementRefcount", "Thumbnail_DeleteUnused",
	"Thumbnail_IncrementRefcount", "Thumbnail_UpdateRefcount",
}

var expectedIndexes = []string{
	"Album_ArtistIndex", "Chapter_MediaIndex", "File_FolderIndex", "File_MediaIndex",
	"File_MrlFolderIndex", "Folder_DeviceIndex", "Folder_ParentIndex",
	"Media_AlbumIndex", "Media_ArtistIndex", "Media_DeviceIndex", "Media_FolderIndex",
	"Media_GenreIndex", "Media_GroupIndex", "Media_PresenceIndex", "Media_PublicIndex",
	"Media_ShowIndex",
	"PlaylistMediaRelation_MediaIndex", "PlaylistMediaRelation_PlaylistIndex",
	"Subscription_ParentIndex", "Subscription_ServiceIndex",
	"SubscriptionMediaRelation_MediaIndex", "ThumbnailLinking_ThumbnailIndex",
}

// CheckSchemaIntegrity compares the live schema against the expected
// sorted object lists, the post-migration gate for upgrades.
func (m *MediaLibDB) CheckSchemaIntegrity() error {
	raw := m.db.UnsafeGetSQLDb()
	checks := []struct {
		kind     string
		expected []string
	}{
		{"table", expectedTables},
		{"trigger", expectedTriggers},
		{"index", expectedIndexes},
	}
	for _, check := range checks {
		names, err := database.SchemaObjects(raw, check.kind)
		if err != nil {
			return err
		}
		// Auto-created unique indexes (sqlite_autoindex_*) are already
		// filtered by the sqlite_ prefix exclusion.
		want := append([]string(nil), check.expected...)
		sort.Strings(want)
		if len(names) != len(want) {
			return fmt.Errorf(
				"schema mismatch: expected %d %ss, found %d (%v)",
				len(want), check.kind, len(names), names)
		}
		for i := range names {
			if names[i] != want[i] {
				return fmt.Errorf(
					"schema mismatch: %s %q found where %q was expected",
					check.kind, names[i], want[i])
			}
		}
	}
	return nil
}
