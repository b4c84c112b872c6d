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

const folderColumns = `DBID, Path, Name, ParentDBID, DeviceDBID, IsBanned, IsPublic,
	IsFavorite, IsPresent, IsNetwork, NbVideo, NbAudio, NbUnknown, Duration`

func scanFolder(row interface{ Scan(...any) error }) (database.Folder, error) {
	var f database.Folder
	err := row.Scan(&f.ID, &f.Path, &f.Name, &f.ParentID, &f.DeviceID, &f.IsBanned,
		&f.IsPublic, &f.IsFavorite, &f.IsPresent, &f.IsNetwork,
		&f.NbVideo, &f.NbAudio, &f.NbUnknown, &f.Duration)
	return f, err
}

func (m *MediaLibDB) folderRows(query string, args ...any) ([]database.Folder, error) {
	var folders []database.Folder
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			f, err := scanFolder(rows)
			if err != nil {
				return err
			}
			folders = append(folders, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// InsertFolder stores a folder. Path is relative to the device
// mountpoint; the empty path denotes the device root.
func (m *MediaLibDB) InsertFolder(f database.Folder) (database.Folder, error) {
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Folder (Path, Name, ParentDBID, DeviceDBID, IsBanned, IsPublic,
			IsFavorite, IsPresent, IsNetwork)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.Name, f.ParentID, f.DeviceID, f.IsBanned, f.IsPublic,
		f.IsFavorite, f.IsPresent, f.IsNetwork)
	if err != nil {
		return f, fmt.Errorf("failed to insert folder %s: %w", f.Path, err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return f, fmt.Errorf("failed to get folder insert ID: %w", err)
	}
	return f, nil
}

func (m *MediaLibDB) FolderByID(id int64) (database.Folder, error) {
	var f database.Folder
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		f, scanErr = scanFolder(q.QueryRowContext(m.ctx,
			`SELECT `+folderColumns+` FROM Folder WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Folder{}, database.ErrNotFound
	}
	if err != nil {
		return database.Folder{}, fmt.Errorf("failed to load folder %d: %w", id, err)
	}
	return f, nil
}

func (m *MediaLibDB) FolderByPath(deviceID int64, path string) (database.Folder, error) {
	var f database.Folder
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		f, scanErr = scanFolder(q.QueryRowContext(m.ctx,
			`SELECT `+folderColumns+` FROM Folder WHERE DeviceDBID = ? AND Path = ?`,
			deviceID, path))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Folder{}, database.ErrNotFound
	}
	if err != nil {
		return database.Folder{}, fmt.Errorf("failed to load folder %s: %w", path, err)
	}
	return f, nil
}

// RootFolders lists the user-added discovery roots.
func (m *MediaLibDB) RootFolders() ([]database.Folder, error) {
	return m.folderRows(
		`SELECT ` + folderColumns + ` FROM Folder
		 WHERE ParentDBID IS NULL AND IsBanned = 0 ORDER BY DBID`)
}

// BannedFolders lists every folder the user banned explicitly.
func (m *MediaLibDB) BannedFolders() ([]database.Folder, error) {
	return m.folderRows(
		`SELECT ` + folderColumns + ` FROM Folder WHERE IsBanned = 1 ORDER BY DBID`)
}

func (m *MediaLibDB) SubFolders(parentID int64) ([]database.Folder, error) {
	return m.folderRows(
		`SELECT `+folderColumns+` FROM Folder
		 WHERE ParentDBID = ? AND IsBanned = 0 ORDER BY Name`, parentID)
}

// FoldersByDevice lists every folder of a device, walk order.
func (m *MediaLibDB) FoldersByDevice(deviceID int64) ([]database.Folder, error) {
	return m.folderRows(
		`SELECT `+folderColumns+` FROM Folder
		 WHERE DeviceDBID = ? ORDER BY Path`, deviceID)
}

func (m *MediaLibDB) SetFolderBanned(id int64, banned bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Folder SET IsBanned = ? WHERE DBID = ?`, banned, id)
	if err != nil {
		return fmt.Errorf("failed to update folder ban: %w", err)
	}
	return nil
}

func (m *MediaLibDB) SetFolderFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Folder SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update folder favorite: %w", err)
	}
	return nil
}

func (m *MediaLibDB) SetFolderPublic(id int64, public bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Folder SET IsPublic = ? WHERE DBID = ?`, public, id)
	if err != nil {
		return fmt.Errorf("failed to update folder visibility: %w", err)
	}
	return nil
}

// DeleteFolder removes a folder row; contained media and subfolders go
// with it through the cascades.
func (m *MediaLibDB) DeleteFolder(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Folder WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

// Folders returns a pageable view over folders that directly contain at
// least one media of the wanted type.
func (m *MediaLibDB) Folders(mediaType database.MediaType, params QueryParameters) *Query[database.Folder] {
	where := `IsBanned = 0`
	switch mediaType {
	case database.MediaTypeVideo:
		where += ` AND NbVideo > 0`
	case database.MediaTypeAudio:
		where += ` AND NbAudio > 0`
	default:
		where += ` AND (NbVideo + NbAudio + NbUnknown) > 0`
	}
	where += presenceClause(params, "IsPresent")
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	if params.PublicOnly {
		where += ` AND IsPublic = 1`
	}
	order := folderOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Folder WHERE `+where,
		`SELECT `+folderColumns+` FROM Folder WHERE `+where+order,
		nil, scanFolder)
}

// SearchFolders ranks folders matching the pattern.
func (m *MediaLibDB) SearchFolders(pattern string, mediaType database.MediaType, params QueryParameters) *Query[database.Folder] {
	fts, like := searchPatterns(pattern)
	where := `IsBanned = 0
		AND DBID IN (SELECT docid FROM FolderFts WHERE Name MATCH ?)`
	switch mediaType {
	case database.MediaTypeVideo:
		where += ` AND NbVideo > 0`
	case database.MediaTypeAudio:
		where += ` AND NbAudio > 0`
	}
	where += presenceClause(params, "IsPresent")
	order := searchOrderBy("Name", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Folder WHERE `+where,
		`SELECT `+folderColumns+` FROM Folder WHERE `+where+order,
		[]any{fts}, scanFolder)
}

func folderOrderBy(params QueryParameters) string {
	direction := sortDirection(params)
	switch params.Sort {
	case SortNbVideo:
		return ` ORDER BY NbVideo` + direction
	case SortNbAudio:
		return ` ORDER BY NbAudio` + direction
	case SortNbMedia:
		return ` ORDER BY (NbVideo + NbAudio + NbUnknown)` + direction
	case SortDuration:
		return ` ORDER BY Duration` + direction
	default:
		return ` ORDER BY Name` + direction
	}
}
