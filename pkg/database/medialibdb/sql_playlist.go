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

const playlistColumns = `DBID, Name, FileDBID, CreationDate, Duration, NbVideo,
	NbAudio, NbUnknown, NbPresentVideo, NbPresentAudio, NbPresentUnknown, IsFavorite`

func scanPlaylist(row interface{ Scan(...any) error }) (database.Playlist, error) {
	var p database.Playlist
	err := row.Scan(&p.ID, &p.Name, &p.FileID, &p.CreationDate, &p.Duration,
		&p.NbVideo, &p.NbAudio, &p.NbUnknown, &p.NbPresentVideo,
		&p.NbPresentAudio, &p.NbPresentUnknown, &p.IsFavorite)
	return p, err
}

// CreatePlaylist creates an empty playlist. A non-null fileID marks it
// as backed by a playlist file on disk, which makes it read only for
// the host.
func (m *MediaLibDB) CreatePlaylist(name string, fileID sql.NullInt64) (database.Playlist, error) {
	now := m.clock.Now().Unix()
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Playlist (Name, FileDBID, CreationDate) VALUES (?, ?, ?)`,
		name, fileID, now)
	if err != nil {
		return database.Playlist{}, fmt.Errorf("failed to create playlist %s: %w", name, err)
	}
	p := database.Playlist{Name: name, FileID: fileID, CreationDate: now}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return database.Playlist{}, fmt.Errorf("failed to get playlist insert ID: %w", err)
	}
	return p, nil
}

func (m *MediaLibDB) PlaylistByID(id int64) (database.Playlist, error) {
	var p database.Playlist
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		p, scanErr = scanPlaylist(q.QueryRowContext(m.ctx,
			`SELECT `+playlistColumns+` FROM Playlist WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Playlist{}, database.ErrNotFound
	}
	if err != nil {
		return database.Playlist{}, fmt.Errorf("failed to load playlist %d: %w", id, err)
	}
	return p, nil
}

func (m *MediaLibDB) DeletePlaylist(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Playlist WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return nil
}

// PlaylistAppend adds a media at the end of the playlist.
func (m *MediaLibDB) PlaylistAppend(playlistID, mediaID int64) error {
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(m.ctx,
			`SELECT COALESCE(MAX(Position) + 1, 0) FROM PlaylistMediaRelation
			 WHERE PlaylistDBID = ?`, playlistID).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute append position: %w", err)
		}
		if _, err := tx.ExecContext(m.ctx,
			`INSERT INTO PlaylistMediaRelation (PlaylistDBID, MediaDBID, Position)
			 VALUES (?, ?, ?)`, playlistID, mediaID, next); err != nil {
			return fmt.Errorf("failed to append playlist item: %w", err)
		}
		return nil
	})
}

// PlaylistInsert adds a media at the given position; later items shift
// down by one.
func (m *MediaLibDB) PlaylistInsert(playlistID, mediaID int64, position int) error {
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE PlaylistMediaRelation SET Position = Position + 1
			 WHERE PlaylistDBID = ? AND Position >= ?`, playlistID, position); err != nil {
			return fmt.Errorf("failed to shift playlist items: %w", err)
		}
		if _, err := tx.ExecContext(m.ctx,
			`INSERT INTO PlaylistMediaRelation (PlaylistDBID, MediaDBID, Position)
			 VALUES (?, ?, ?)`, playlistID, mediaID, position); err != nil {
			return fmt.Errorf("failed to insert playlist item: %w", err)
		}
		return nil
	})
}

// PlaylistRemoveAt drops the item at position; the delete trigger
// closes the numbering gap.
func (m *MediaLibDB) PlaylistRemoveAt(playlistID int64, position int) error {
	res, err := m.db.Exec(m.ctx,
		`DELETE FROM PlaylistMediaRelation
		 WHERE PlaylistDBID = ? AND Position = ?`, playlistID, position)
	if err != nil {
		return fmt.Errorf("failed to remove playlist item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check playlist removal: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PlaylistMove relocates count items starting at from so the block ends
// up at to. Returns false (with no error and no change) when the move
// is a no-op, so callers can skip the modification callback.
func (m *MediaLibDB) PlaylistMove(playlistID int64, from, to, count int) (bool, error) {
	if count <= 0 {
		return false, nil
	}
	// Moving down: express the destination as the insert index after
	// the block has been taken out.
	dest := to
	if from < to {
		dest = to - count + 1
	}
	if dest == from {
		return false, nil
	}
	moved := false
	err := m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(m.ctx,
			`SELECT MediaDBID, Position FROM PlaylistMediaRelation
			 WHERE PlaylistDBID = ? ORDER BY Position`, playlistID)
		if err != nil {
			return fmt.Errorf("failed to load playlist items: %w", err)
		}
		type item struct {
			mediaID  int64
			position int
		}
		var items []item
		for rows.Next() {
			var it item
			if err := rows.Scan(&it.mediaID, &it.position); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan playlist item: %w", err)
			}
			items = append(items, it)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to iterate playlist items: %w", err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("failed to close playlist rows: %w", err)
		}

		if from < 0 || from+count > len(items) || dest < 0 || dest+count > len(items) {
			return database.ErrNotFound
		}

		block := append([]item(nil), items[from:from+count]...)
		rest := append([]item(nil), items[:from]...)
		rest = append(rest, items[from+count:]...)
		reordered := append([]item(nil), rest[:dest]...)
		reordered = append(reordered, block...)
		reordered = append(reordered, rest[dest:]...)

		// Two-phase renumber: park changed rows on negative positions
		// first so duplicate media entries can never be confused while
		// their positions shuffle.
		for pos, it := range reordered {
			if it.position == pos {
				continue
			}
			if _, err := tx.ExecContext(m.ctx,
				`UPDATE PlaylistMediaRelation SET Position = ?
				 WHERE PlaylistDBID = ? AND MediaDBID = ? AND Position = ?`,
				-(pos + 1), playlistID, it.mediaID, it.position); err != nil {
				return fmt.Errorf("failed to renumber playlist item: %w", err)
			}
			moved = true
		}
		if moved {
			if _, err := tx.ExecContext(m.ctx,
				`UPDATE PlaylistMediaRelation SET Position = -Position - 1
				 WHERE PlaylistDBID = ? AND Position < 0`, playlistID); err != nil {
				return fmt.Errorf("failed to finalize playlist renumbering: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

// PlaylistItems lists (media, position) pairs in order.
func (m *MediaLibDB) PlaylistItems(playlistID int64) ([]database.PlaylistItem, error) {
	var items []database.PlaylistItem
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT PlaylistDBID, MediaDBID, Position FROM PlaylistMediaRelation
			 WHERE PlaylistDBID = ? ORDER BY Position`, playlistID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var it database.PlaylistItem
			if err := rows.Scan(&it.PlaylistID, &it.MediaID, &it.Position); err != nil {
				return err
			}
			items = append(items, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist items: %w", err)
	}
	return items, nil
}

// PlaylistMedia lists a playlist's media in playlist order.
func (m *MediaLibDB) PlaylistMedia(playlistID int64, params QueryParameters) *Query[database.Media] {
	where := `DBID IN (SELECT MediaDBID FROM PlaylistMediaRelation WHERE PlaylistDBID = ?)` +
		presenceClause(params, "IsPresent")
	order := fmt.Sprintf(` ORDER BY (SELECT MIN(Position) FROM PlaylistMediaRelation
		WHERE PlaylistDBID = %d AND MediaDBID = Media.DBID)`, playlistID)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{playlistID}, scanMedia)
}

// Playlists lists playlists.
func (m *MediaLibDB) Playlists(params QueryParameters) *Query[database.Playlist] {
	where := `1 = 1`
	if !params.IncludeMissing {
		where = `(NbVideo + NbAudio + NbUnknown) = 0
			OR (NbPresentVideo + NbPresentAudio + NbPresentUnknown) > 0`
	}
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	direction := sortDirection(params)
	order := ` ORDER BY Name` + direction
	switch params.Sort {
	case SortInsertionDate:
		order = ` ORDER BY CreationDate` + direction
	case SortDuration:
		order = ` ORDER BY Duration` + direction
	case SortNbMedia:
		order = ` ORDER BY (NbVideo + NbAudio + NbUnknown)` + direction
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Playlist WHERE (`+where+`)`,
		`SELECT `+playlistColumns+` FROM Playlist WHERE (`+where+`)`+order,
		nil, scanPlaylist)
}

func (m *MediaLibDB) SearchPlaylists(pattern string, params QueryParameters) *Query[database.Playlist] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM PlaylistFts WHERE Name MATCH ?)`
	order := searchOrderBy("Name", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Playlist WHERE `+where,
		`SELECT `+playlistColumns+` FROM Playlist WHERE `+where+order,
		[]any{fts}, scanPlaylist)
}

func (m *MediaLibDB) SetPlaylistFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Playlist SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update playlist favorite: %w", err)
	}
	return nil
}
