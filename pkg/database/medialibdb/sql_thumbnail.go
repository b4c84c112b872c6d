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

const thumbnailColumns = `DBID, MRL, Origin, IsGenerated, IsOwned, SharedCount,
	GenerationFailures`

func scanThumbnail(row interface{ Scan(...any) error }) (database.Thumbnail, error) {
	var t database.Thumbnail
	err := row.Scan(&t.ID, &t.MRL, &t.Origin, &t.IsGenerated, &t.IsOwned,
		&t.SharedCount, &t.GenerationFailures)
	return t, err
}

// SetEntityThumbnail assigns a thumbnail to an entity for one size
// bucket, creating or sharing the thumbnail row. Replacing a previous
// link drops the old refcount; the cleanup trigger deletes rows nobody
// references anymore.
func (m *MediaLibDB) SetEntityThumbnail(entity database.ThumbnailEntity, entityID int64,
	size database.ThumbnailSize, mrl string, origin database.ThumbnailOrigin,
	generated, owned bool,
) (database.Thumbnail, error) {
	var t database.Thumbnail
	err := m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		var thumbnailID int64
		err := tx.QueryRowContext(m.ctx,
			`SELECT DBID FROM Thumbnail WHERE MRL = ? AND Origin = ?`,
			mrl, origin).Scan(&thumbnailID)
		if errors.Is(err, sql.ErrNoRows) {
			res, insErr := tx.ExecContext(m.ctx,
				`INSERT INTO Thumbnail (MRL, Origin, IsGenerated, IsOwned)
				 VALUES (?, ?, ?, ?)`, mrl, origin, generated, owned)
			if insErr != nil {
				return fmt.Errorf("failed to insert thumbnail: %w", insErr)
			}
			thumbnailID, insErr = res.LastInsertId()
			if insErr != nil {
				return fmt.Errorf("failed to get thumbnail insert ID: %w", insErr)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up thumbnail: %w", err)
		}

		if _, err := tx.ExecContext(m.ctx,
			`INSERT INTO ThumbnailLinking (EntityType, EntityDBID, SizeType, ThumbnailDBID)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (EntityType, EntityDBID, SizeType)
			 DO UPDATE SET ThumbnailDBID = excluded.ThumbnailDBID`,
			entity, entityID, size, thumbnailID); err != nil {
			return fmt.Errorf("failed to link thumbnail: %w", err)
		}

		row := tx.QueryRowContext(m.ctx,
			`SELECT `+thumbnailColumns+` FROM Thumbnail WHERE DBID = ?`, thumbnailID)
		var scanErr error
		t, scanErr = scanThumbnail(row)
		if scanErr != nil {
			return fmt.Errorf("failed to reload thumbnail: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return database.Thumbnail{}, err
	}
	return t, nil
}

// EntityThumbnail resolves the thumbnail MRL of an entity at a size.
func (m *MediaLibDB) EntityThumbnail(entity database.ThumbnailEntity, entityID int64,
	size database.ThumbnailSize,
) (database.Thumbnail, error) {
	var t database.Thumbnail
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		t, scanErr = scanThumbnail(q.QueryRowContext(m.ctx,
			`SELECT `+thumbnailColumns+` FROM Thumbnail
			 WHERE DBID = (SELECT ThumbnailDBID FROM ThumbnailLinking
				WHERE EntityType = ? AND EntityDBID = ? AND SizeType = ?)`,
			entity, entityID, size))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Thumbnail{}, database.ErrNotFound
	}
	if err != nil {
		return database.Thumbnail{}, fmt.Errorf("failed to load thumbnail: %w", err)
	}
	return t, nil
}

// RemoveEntityThumbnail drops an entity's link for a size bucket.
func (m *MediaLibDB) RemoveEntityThumbnail(entity database.ThumbnailEntity, entityID int64,
	size database.ThumbnailSize,
) error {
	_, err := m.db.Exec(m.ctx,
		`DELETE FROM ThumbnailLinking
		 WHERE EntityType = ? AND EntityDBID = ? AND SizeType = ?`,
		entity, entityID, size)
	if err != nil {
		return fmt.Errorf("failed to unlink thumbnail: %w", err)
	}
	return nil
}

// RecordThumbnailFailure bumps the failure counter of the thumbnail rows
// stored under mrl and origin, inserting a row with one failure when
// none exists. The thumbnail queue does not read the counter when it
// schedules requests.
func (m *MediaLibDB) RecordThumbnailFailure(mrl string, origin database.ThumbnailOrigin) error {
	res, err := m.db.Exec(m.ctx,
		`UPDATE Thumbnail SET GenerationFailures = GenerationFailures + 1
		 WHERE MRL = ? AND Origin = ?`, mrl, origin)
	if err != nil {
		return fmt.Errorf("failed to record thumbnail failure: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = m.db.Exec(m.ctx,
		`INSERT INTO Thumbnail (MRL, Origin, GenerationFailures, SharedCount)
		 VALUES (?, ?, 1, 1)`, mrl, origin)
	if err != nil {
		return fmt.Errorf("failed to record thumbnail failure: %w", err)
	}
	return nil
}
