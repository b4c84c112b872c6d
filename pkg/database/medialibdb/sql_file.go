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

const fileColumns = `DBID, MRL, Type, LinkedType, Size, LastModificationDate,
	IsNetwork, IsExternal, MediaDBID, PlaylistDBID, FolderDBID, LinkedMediaDBID`

func scanFile(row interface{ Scan(...any) error }) (database.File, error) {
	var f database.File
	err := row.Scan(&f.ID, &f.MRL, &f.Type, &f.LinkedType, &f.Size,
		&f.LastModificationDate, &f.IsNetwork, &f.IsExternal, &f.MediaID,
		&f.PlaylistID, &f.FolderID, &f.LinkedMediaID)
	return f, err
}

func (m *MediaLibDB) InsertFile(f database.File) (database.File, error) {
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO File (MRL, Type, LinkedType, Size, LastModificationDate,
			IsNetwork, IsExternal, MediaDBID, PlaylistDBID, FolderDBID, LinkedMediaDBID)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MRL, f.Type, f.LinkedType, f.Size, f.LastModificationDate,
		f.IsNetwork, f.IsExternal, f.MediaID, f.PlaylistID, f.FolderID, f.LinkedMediaID)
	if err != nil {
		return f, fmt.Errorf("failed to insert file %s: %w", f.MRL, err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return f, fmt.Errorf("failed to get file insert ID: %w", err)
	}
	return f, nil
}

func (m *MediaLibDB) FileByID(id int64) (database.File, error) {
	var f database.File
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		f, scanErr = scanFile(q.QueryRowContext(m.ctx,
			`SELECT `+fileColumns+` FROM File WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.File{}, database.ErrNotFound
	}
	if err != nil {
		return database.File{}, fmt.Errorf("failed to load file %d: %w", id, err)
	}
	return f, nil
}

// FileByPath resolves a file by its device-relative MRL inside a folder.
func (m *MediaLibDB) FileByPath(folderID int64, mrl string) (database.File, error) {
	var f database.File
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		f, scanErr = scanFile(q.QueryRowContext(m.ctx,
			`SELECT `+fileColumns+` FROM File WHERE FolderDBID = ? AND MRL = ?`,
			folderID, mrl))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.File{}, database.ErrNotFound
	}
	if err != nil {
		return database.File{}, fmt.Errorf("failed to load file %s: %w", mrl, err)
	}
	return f, nil
}

// FilesOfFolder lists the folder's direct files, reload's working set.
func (m *MediaLibDB) FilesOfFolder(folderID int64) ([]database.File, error) {
	var files []database.File
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+fileColumns+` FROM File WHERE FolderDBID = ? ORDER BY MRL`,
			folderID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			f, err := scanFile(rows)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder files: %w", err)
	}
	return files, nil
}

func (m *MediaLibDB) FilesOfMedia(mediaID int64) ([]database.File, error) {
	var files []database.File
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+fileColumns+` FROM File WHERE MediaDBID = ? ORDER BY Type, DBID`,
			mediaID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			f, err := scanFile(rows)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}
	return files, nil
}

// MainFileOfMedia returns the media's main file.
func (m *MediaLibDB) MainFileOfMedia(mediaID int64) (database.File, error) {
	var f database.File
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		f, scanErr = scanFile(q.QueryRowContext(m.ctx,
			`SELECT `+fileColumns+` FROM File WHERE MediaDBID = ? AND Type = ?`,
			mediaID, database.FileTypeMain))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.File{}, database.ErrNotFound
	}
	if err != nil {
		return database.File{}, fmt.Errorf("failed to load main file: %w", err)
	}
	return f, nil
}

func (m *MediaLibDB) UpdateFileStats(id, size, lastModificationDate int64) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE File SET Size = ?, LastModificationDate = ? WHERE DBID = ?`,
		size, lastModificationDate, id)
	if err != nil {
		return fmt.Errorf("failed to update file stats: %w", err)
	}
	return nil
}

// LinkFileToMedia attaches an external subtitle or soundtrack file to a
// media.
func (m *MediaLibDB) LinkFileToMedia(fileID, mediaID int64) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE File SET LinkedMediaDBID = ? WHERE DBID = ?`, mediaID, fileID)
	if err != nil {
		return fmt.Errorf("failed to link file to media: %w", err)
	}
	return nil
}

// UnlinkedFiles lists subtitle/soundtrack files that never found their
// media, candidates for late linking.
func (m *MediaLibDB) UnlinkedFiles(folderID int64) ([]database.File, error) {
	var files []database.File
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+fileColumns+` FROM File
			 WHERE FolderDBID = ? AND LinkedType != ? AND LinkedMediaDBID IS NULL`,
			folderID, database.LinkedFileTypeNone)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			f, err := scanFile(rows)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked files: %w", err)
	}
	return files, nil
}

// DeleteFile removes a file row. Deleting a media's only main file
// leaves the media orphaned, so callers delete the media instead in
// that case.
func (m *MediaLibDB) DeleteFile(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM File WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
