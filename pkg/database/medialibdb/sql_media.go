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
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
)

// Watching past this fraction of a media counts as a full play.
const progressCompletionThreshold = 0.95

const mediaColumns = `DBID, Type, SubType, Duration, PlayCount, LastPosition, LastTime,
	LastPlayedDate, InsertionDate, ReleaseDate, Title, FileName, ForcedTitle,
	IsFavorite, IsPresent, IsExternal, IsStream, IsPublic, DeviceDBID, FolderDBID,
	GroupDBID, AlbumDBID, ArtistDBID, GenreDBID, ShowDBID, ThumbnailDBID,
	TrackNumber, DiscNumber, SeasonNumber, EpisodeNumber,
	CachedSize, CacheOrigin, CacheHandled`

func scanMedia(row interface{ Scan(...any) error }) (database.Media, error) {
	var md database.Media
	err := row.Scan(&md.ID, &md.Type, &md.SubType, &md.Duration, &md.PlayCount,
		&md.LastPosition, &md.LastTime, &md.LastPlayedDate, &md.InsertionDate,
		&md.ReleaseDate, &md.Title, &md.FileName, &md.ForcedTitle, &md.IsFavorite,
		&md.IsPresent, &md.IsExternal, &md.IsStream, &md.IsPublic, &md.DeviceID,
		&md.FolderID, &md.GroupID, &md.AlbumID, &md.ArtistID, &md.GenreID,
		&md.ShowID, &md.ThumbnailID, &md.TrackNumber, &md.DiscNumber,
		&md.SeasonNumber, &md.EpisodeNumber, &md.CachedSize, &md.CacheOrigin,
		&md.CacheHandled)
	return md, err
}

// InsertMedia stores a media row together with the singleton group that
// every media starts out in, in a single transaction.
func (m *MediaLibDB) InsertMedia(md database.Media) (database.Media, error) {
	now := m.clock.Now().Unix()
	md.InsertionDate = now
	err := m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		groupName := helpers.FoldTitle(md.Title)
		res, err := tx.ExecContext(m.ctx,
			`INSERT INTO MediaGroup (Name, CreationDate, LastModificationDate)
			 VALUES (?, ?, ?)`, groupName, now, now)
		if err != nil {
			return fmt.Errorf("failed to create media group: %w", err)
		}
		groupID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get group insert ID: %w", err)
		}
		md.GroupID = groupID

		res, err = tx.ExecContext(m.ctx,
			`INSERT INTO Media (Type, SubType, Duration, InsertionDate, ReleaseDate,
				Title, FileName, ForcedTitle, IsPresent, IsExternal, IsStream,
				IsPublic, DeviceDBID, FolderDBID, GroupDBID)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			md.Type, md.SubType, md.Duration, md.InsertionDate, md.ReleaseDate,
			md.Title, md.FileName, md.ForcedTitle, md.IsPresent, md.IsExternal,
			md.IsStream, md.IsPublic, md.DeviceID, md.FolderID, md.GroupID)
		if err != nil {
			return fmt.Errorf("failed to insert media %s: %w", md.FileName, err)
		}
		md.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get media insert ID: %w", err)
		}
		return nil
	})
	if err != nil {
		return md, err
	}
	return md, nil
}

func (m *MediaLibDB) MediaByID(id int64) (database.Media, error) {
	var md database.Media
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		md, scanErr = scanMedia(q.QueryRowContext(m.ctx,
			`SELECT `+mediaColumns+` FROM Media WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Media{}, database.ErrNotFound
	}
	if err != nil {
		return database.Media{}, fmt.Errorf("failed to load media %d: %w", id, err)
	}
	return md, nil
}

// MediaByDeviceAndPath resolves the media owning the main file at the
// given device-relative path.
func (m *MediaLibDB) MediaByDeviceAndPath(deviceID int64, path string) (database.Media, error) {
	var md database.Media
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		md, scanErr = scanMedia(q.QueryRowContext(m.ctx,
			`SELECT `+mediaColumns+` FROM Media
			 WHERE DBID = (
				SELECT f.MediaDBID FROM File f
				INNER JOIN Folder d ON d.DBID = f.FolderDBID
				WHERE d.DeviceDBID = ? AND f.MRL = ? AND f.Type = ?
			 )`, deviceID, path, database.FileTypeMain))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Media{}, database.ErrNotFound
	}
	if err != nil {
		return database.Media{}, fmt.Errorf("failed to load media by path: %w", err)
	}
	return md, nil
}

// MediaByExternalMRL resolves an external or stream media by the
// absolute MRL of its main file.
func (m *MediaLibDB) MediaByExternalMRL(mrl string) (database.Media, error) {
	var md database.Media
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		md, scanErr = scanMedia(q.QueryRowContext(m.ctx,
			`SELECT `+mediaColumns+` FROM Media
			 WHERE DBID = (
				SELECT MediaDBID FROM File
				WHERE MRL = ? AND FolderDBID IS NULL AND Type = ?
			 )`, mrl, database.FileTypeMain))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Media{}, database.ErrNotFound
	}
	if err != nil {
		return database.Media{}, fmt.Errorf("failed to load media by mrl: %w", err)
	}
	return md, nil
}

// UpdateMediaKinds records what the parser learned about a media.
func (m *MediaLibDB) UpdateMediaKinds(id int64, mediaType database.MediaType,
	subType database.MediaSubType, duration int64,
) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET Type = ?, SubType = ?, Duration = ? WHERE DBID = ?`,
		mediaType, subType, duration, id)
	if err != nil {
		return fmt.Errorf("failed to update media kinds: %w", err)
	}
	return nil
}

// SetMediaTitle renames a media. When the media sits alone in a forced
// singleton group the group follows the title, in the same transaction.
func (m *MediaLibDB) SetMediaTitle(id int64, title string, forced bool) error {
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		var groupID int64
		err := tx.QueryRowContext(m.ctx,
			`SELECT GroupDBID FROM Media WHERE DBID = ?`, id).Scan(&groupID)
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load media group: %w", err)
		}
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE Media SET Title = ?, ForcedTitle = ? WHERE DBID = ?`,
			title, forced, id); err != nil {
			return fmt.Errorf("failed to rename media: %w", err)
		}
		now := m.clock.Now().Unix()
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE MediaGroup SET Name = ?, LastModificationDate = ?
			 WHERE DBID = ? AND ForcedSingleton = 1`,
			title, now, groupID); err != nil {
			return fmt.Errorf("failed to rename singleton group: %w", err)
		}
		return nil
	})
}

func (m *MediaLibDB) SetMediaFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update media favorite: %w", err)
	}
	return nil
}

func (m *MediaLibDB) SetMediaPublic(id int64, public bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET IsPublic = ? WHERE DBID = ?`, public, id)
	if err != nil {
		return fmt.Errorf("failed to update media visibility: %w", err)
	}
	return nil
}

func (m *MediaLibDB) SetMediaReleaseDate(id, releaseDate int64) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET ReleaseDate = ? WHERE DBID = ?`, releaseDate, id)
	if err != nil {
		return fmt.Errorf("failed to update media release date: %w", err)
	}
	return nil
}

// SetMediaProgress stores a playback position. Positions close enough
// to the end count as a completed play: the position resets and the
// play count increments instead.
func (m *MediaLibDB) SetMediaProgress(id int64, position float64, timeMs int64) error {
	now := m.clock.Now().Unix()
	if position >= progressCompletionThreshold {
		_, err := m.db.Exec(m.ctx,
			`UPDATE Media SET LastPosition = -1, LastTime = -1,
				PlayCount = PlayCount + 1, LastPlayedDate = ? WHERE DBID = ?`,
			now, id)
		if err != nil {
			return fmt.Errorf("failed to record completed play: %w", err)
		}
		return nil
	}
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET LastPosition = ?, LastTime = ?, LastPlayedDate = ?
		 WHERE DBID = ?`, position, timeMs, now, id)
	if err != nil {
		return fmt.Errorf("failed to record media progress: %w", err)
	}
	return nil
}

func (m *MediaLibDB) IncreasePlayCount(id int64) error {
	now := m.clock.Now().Unix()
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET PlayCount = PlayCount + 1, LastPlayedDate = ?
		 WHERE DBID = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to increase play count: %w", err)
	}
	return nil
}

// ClearHistory wipes playback state from every media.
func (m *MediaLibDB) ClearHistory() error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET PlayCount = 0, LastPosition = -1, LastTime = -1,
		 LastPlayedDate = 0 WHERE PlayCount > 0 OR LastPosition != -1
		 OR LastTime != -1 OR LastPlayedDate != 0`)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (m *MediaLibDB) DeleteMedia(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Media WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return nil
}

// ConvertFolderMediaToExternal detaches every media under the folder
// subtree from its device before the folder rows are removed: file MRLs
// become absolute, presence is pinned, and history survives.
func (m *MediaLibDB) ConvertFolderMediaToExternal(folderID int64, mountpoint string) error {
	folder, err := m.FolderByID(folderID)
	if err != nil {
		return err
	}
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(m.ctx,
			`SELECT DBID FROM Folder
			 WHERE DeviceDBID = ? AND (DBID = ? OR Path LIKE ? || '%')`,
			folder.DeviceID, folder.ID, folder.Path)
		if err != nil {
			return fmt.Errorf("failed to list folder subtree: %w", err)
		}
		var folderIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan folder id: %w", err)
			}
			folderIDs = append(folderIDs, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to iterate folder subtree: %w", err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("failed to close folder rows: %w", err)
		}

		for _, fid := range folderIDs {
			if _, err := tx.ExecContext(m.ctx,
				`UPDATE File SET
					MRL = ? || MRL,
					FolderDBID = NULL,
					IsExternal = 1
				 WHERE FolderDBID = ?`,
				helpers.ToDirectoryMRL(mountpoint), fid); err != nil {
				return fmt.Errorf("failed to detach files: %w", err)
			}
			if _, err := tx.ExecContext(m.ctx,
				`UPDATE Media SET
					IsExternal = 1, IsPresent = 1,
					FolderDBID = NULL, DeviceDBID = NULL
				 WHERE FolderDBID = ?`, fid); err != nil {
				return fmt.Errorf("failed to detach media: %w", err)
			}
		}
		return nil
	})
}

// MediaList returns a pageable view over media of the given type;
// MediaTypeUnknown lists all types.
func (m *MediaLibDB) MediaList(mediaType database.MediaType, params QueryParameters) *Query[database.Media] {
	where := `IsExternal = 0 AND IsStream = 0`
	var args []any
	if mediaType != database.MediaTypeUnknown {
		where += ` AND Type = ?`
		args = append(args, mediaType)
	}
	where += presenceClause(params, "IsPresent")
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	if params.PublicOnly {
		where += ` AND IsPublic = 1`
	}
	order := mediaOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		args, scanMedia)
}

// SearchMedia ranks media whose title or file name matches the pattern.
func (m *MediaLibDB) SearchMedia(pattern string, mediaType database.MediaType, params QueryParameters) *Query[database.Media] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM MediaFts WHERE MediaFts MATCH ?)`
	args := []any{fts}
	if mediaType != database.MediaTypeUnknown {
		where += ` AND Type = ?`
		args = append(args, mediaType)
	}
	where += presenceClause(params, "IsPresent")
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	if params.PublicOnly {
		where += ` AND IsPublic = 1`
	}
	order := searchOrderBy("Title", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		args, scanMedia)
}

func mediaOrderBy(params QueryParameters) string {
	direction := sortDirection(params)
	switch params.Sort {
	case SortDuration:
		return ` ORDER BY Duration` + direction
	case SortInsertionDate:
		return ` ORDER BY InsertionDate` + direction
	case SortReleaseDate:
		return ` ORDER BY ReleaseDate` + direction
	case SortPlayCount:
		return ` ORDER BY PlayCount` + direction + `, Title`
	case SortFilename:
		return ` ORDER BY FileName` + direction
	case SortLastModificationDate:
		return ` ORDER BY (SELECT MAX(LastModificationDate) FROM File
			WHERE File.MediaDBID = Media.DBID)` + direction
	case SortFileSize:
		return ` ORDER BY (SELECT MAX(Size) FROM File
			WHERE File.MediaDBID = Media.DBID)` + direction
	case SortTrackNumber:
		return ` ORDER BY DiscNumber` + direction + `, TrackNumber` + direction
	case SortAlbum:
		return ` ORDER BY (SELECT Title FROM Album
			WHERE Album.DBID = Media.AlbumDBID)` + direction + `, DiscNumber, TrackNumber`
	case SortArtist:
		return ` ORDER BY (SELECT Name FROM Artist
			WHERE Artist.DBID = Media.ArtistDBID)` + direction + `, Title`
	default:
		return ` ORDER BY Title` + direction
	}
}
