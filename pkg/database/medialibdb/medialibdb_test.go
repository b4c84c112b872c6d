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
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *MediaLibDB {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	db, err := OpenInMemory(context.Background(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

// seedDevice creates a present device with one mountpoint-shaped folder
// root.
func seedDevice(t *testing.T, db *MediaLibDB) (database.Device, database.Folder) {
	t.Helper()
	device, err := db.InsertDevice("aaaa-bbbb", "file", true, false)
	require.NoError(t, err)
	require.NoError(t, db.SetDevicePresent(device.ID, true))
	device.IsPresent = true

	folder, err := db.InsertFolder(database.Folder{
		Path:      "",
		Name:      "root",
		DeviceID:  device.ID,
		IsPresent: true,
	})
	require.NoError(t, err)
	return device, folder
}

func seedMedia(t *testing.T, db *MediaLibDB, device database.Device,
	folder database.Folder, title string, mediaType database.MediaType,
) database.Media {
	t.Helper()
	md, err := db.InsertMedia(database.Media{
		Title:     title,
		FileName:  title,
		Type:      mediaType,
		IsPresent: true,
		DeviceID:  sql.NullInt64{Int64: device.ID, Valid: true},
		FolderID:  sql.NullInt64{Int64: folder.ID, Valid: true},
	})
	require.NoError(t, err)
	return md
}

func TestMigrateFreshAndIntegrity(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	require.NoError(t, db.CheckSchemaIntegrity())

	version, err := db.ModelVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

// Migrating a database that is already at the target version must be a
// no-op, checked through schema comparison.
func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	before, err := database.SchemaObjects(db.UnsafeGetSQLDb(), "table")
	require.NoError(t, err)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.CheckSchemaIntegrity())

	after, err := database.SchemaObjects(db.UnsafeGetSQLDb(), "table")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// A database from before the migratable floor is rebuilt from scratch
// and the caller is told.
func TestMigrateResetsAncientSchema(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	db, err := OpenInMemory(context.Background(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	raw := db.UnsafeGetSQLDb()
	_, err = raw.Exec(`CREATE TABLE Settings (Name TEXT PRIMARY KEY, Value TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO Settings (Name, Value) VALUES ('DbModelVersion', '0')`)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE Legacy (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	err = db.Migrate()
	require.ErrorIs(t, err, ErrSchemaReset)
	require.NoError(t, db.CheckSchemaIntegrity())

	version, err := db.ModelVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	_, ok, err := db.GetSetting("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetSetting("key", "value"))
	value, ok, err := db.GetSetting("key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", value)

	require.NoError(t, db.SetSetting("key", "other"))
	value, _, err = db.GetSetting("key")
	require.NoError(t, err)
	assert.Equal(t, "other", value)
}
