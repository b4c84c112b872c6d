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

// Bookmarks, chapters and labels: small media-owned satellites.

package medialibdb

import (
	"database/sql"
	"fmt"

	"github.com/MediaLibProject/medialib-core/pkg/database"
)

// AddBookmark stores a bookmark; a second bookmark at the same time on
// the same media is a conflict and leaves no trace.
func (m *MediaLibDB) AddBookmark(mediaID, timeMs int64, name, description string) (database.Bookmark, error) {
	now := m.clock.Now().Unix()
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Bookmark (Time, Name, Description, MediaDBID, CreationDate)
		 VALUES (?, ?, ?, ?, ?)`, timeMs, name, description, mediaID, now)
	if err != nil {
		if database.IsConflict(err) {
			return database.Bookmark{}, database.ErrConflict
		}
		return database.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}
	b := database.Bookmark{
		Time: timeMs, Name: name, Description: description,
		MediaID: mediaID, CreationDate: now,
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return database.Bookmark{}, fmt.Errorf("failed to get bookmark insert ID: %w", err)
	}
	return b, nil
}

func (m *MediaLibDB) Bookmarks(mediaID int64) ([]database.Bookmark, error) {
	var bookmarks []database.Bookmark
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT DBID, Time, Name, Description, MediaDBID, CreationDate
			 FROM Bookmark WHERE MediaDBID = ? ORDER BY Time`, mediaID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var b database.Bookmark
			if err := rows.Scan(&b.ID, &b.Time, &b.Name, &b.Description,
				&b.MediaID, &b.CreationDate); err != nil {
				return err
			}
			bookmarks = append(bookmarks, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return bookmarks, nil
}

func (m *MediaLibDB) DeleteBookmark(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Bookmark WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

func (m *MediaLibDB) AddChapter(mediaID, offset, duration int64, name string) (database.Chapter, error) {
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Chapter (Offset, Duration, Name, MediaDBID) VALUES (?, ?, ?, ?)`,
		offset, duration, name, mediaID)
	if err != nil {
		return database.Chapter{}, fmt.Errorf("failed to insert chapter: %w", err)
	}
	c := database.Chapter{Offset: offset, Duration: duration, Name: name, MediaID: mediaID}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return database.Chapter{}, fmt.Errorf("failed to get chapter insert ID: %w", err)
	}
	return c, nil
}

func (m *MediaLibDB) Chapters(mediaID int64) ([]database.Chapter, error) {
	var chapters []database.Chapter
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT DBID, Offset, Duration, Name, MediaDBID FROM Chapter
			 WHERE MediaDBID = ? ORDER BY Offset`, mediaID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var c database.Chapter
			if err := rows.Scan(&c.ID, &c.Offset, &c.Duration, &c.Name, &c.MediaID); err != nil {
				return err
			}
			chapters = append(chapters, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return chapters, nil
}

// CreateLabel adds a label; duplicate names conflict.
func (m *MediaLibDB) CreateLabel(name string) (database.Label, error) {
	res, err := m.db.Exec(m.ctx, `INSERT INTO Label (Name) VALUES (?)`, name)
	if err != nil {
		if database.IsConflict(err) {
			return database.Label{}, database.ErrConflict
		}
		return database.Label{}, fmt.Errorf("failed to insert label: %w", err)
	}
	l := database.Label{Name: name}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return database.Label{}, fmt.Errorf("failed to get label insert ID: %w", err)
	}
	return l, nil
}

func (m *MediaLibDB) DeleteLabel(id int64) error {
	_, err := m.db.Exec(m.ctx, `DELETE FROM Label WHERE DBID = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	return nil
}

func (m *MediaLibDB) AttachLabel(labelID, mediaID int64) error {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO LabelFileRelation (LabelDBID, MediaDBID) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`, labelID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to attach label: %w", err)
	}
	return nil
}

func (m *MediaLibDB) DetachLabel(labelID, mediaID int64) error {
	_, err := m.db.Exec(m.ctx,
		`DELETE FROM LabelFileRelation WHERE LabelDBID = ? AND MediaDBID = ?`,
		labelID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", err)
	}
	return nil
}

func (m *MediaLibDB) LabelsOfMedia(mediaID int64) ([]database.Label, error) {
	var labels []database.Label
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT l.DBID, l.Name FROM Label l
			 INNER JOIN LabelFileRelation r ON r.LabelDBID = l.DBID
			 WHERE r.MediaDBID = ? ORDER BY l.Name`, mediaID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var l database.Label
			if err := rows.Scan(&l.ID, &l.Name); err != nil {
				return err
			}
			labels = append(labels, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}
