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

const groupColumns = `DBID, Name, NbVideo, NbAudio, NbUnknown, NbPresentVideo,
	NbPresentAudio, NbPresentUnknown, NbSeen, Duration, CreationDate,
	LastModificationDate, UserInteracted, ForcedSingleton`

func scanGroup(row interface{ Scan(...any) error }) (database.MediaGroup, error) {
	var g database.MediaGroup
	err := row.Scan(&g.ID, &g.Name, &g.NbVideo, &g.NbAudio, &g.NbUnknown,
		&g.NbPresentVideo, &g.NbPresentAudio, &g.NbPresentUnknown, &g.NbSeen,
		&g.Duration, &g.CreationDate, &g.LastModificationDate,
		&g.UserInteracted, &g.ForcedSingleton)
	return g, err
}

// CreateMediaGroup creates a user group and moves the given media into
// it. The previous groups clean themselves up when emptied.
func (m *MediaLibDB) CreateMediaGroup(name string, mediaIDs []int64) (database.MediaGroup, error) {
	now := m.clock.Now().Unix()
	var g database.MediaGroup
	err := m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(m.ctx,
			`INSERT INTO MediaGroup (Name, CreationDate, LastModificationDate,
				UserInteracted) VALUES (?, ?, ?, 1)`, name, now, now)
		if err != nil {
			return fmt.Errorf("failed to create media group: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get group insert ID: %w", err)
		}
		for _, mediaID := range mediaIDs {
			if _, err := tx.ExecContext(m.ctx,
				`UPDATE Media SET GroupDBID = ? WHERE DBID = ?`,
				id, mediaID); err != nil {
				return fmt.Errorf("failed to move media %d into group: %w", mediaID, err)
			}
		}
		g = database.MediaGroup{
			ID: id, Name: name, CreationDate: now,
			LastModificationDate: now, UserInteracted: true,
		}
		return nil
	})
	if err != nil {
		return database.MediaGroup{}, err
	}
	return m.GroupByID(g.ID)
}

func (m *MediaLibDB) GroupByID(id int64) (database.MediaGroup, error) {
	var g database.MediaGroup
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		g, scanErr = scanGroup(q.QueryRowContext(m.ctx,
			`SELECT `+groupColumns+` FROM MediaGroup WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.MediaGroup{}, database.ErrNotFound
	}
	if err != nil {
		return database.MediaGroup{}, fmt.Errorf("failed to load group %d: %w", id, err)
	}
	return g, nil
}

// AddToGroup moves a media into the destination group. The media's old
// group loses a member and is garbage collected if that was the last
// one, which is how forced singletons disappear.
func (m *MediaLibDB) AddToGroup(mediaID, groupID int64) error {
	now := m.clock.Now().Unix()
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(m.ctx,
			`UPDATE Media SET GroupDBID = ? WHERE DBID = ?`, groupID, mediaID)
		if err != nil {
			return fmt.Errorf("failed to move media into group: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check group move: %w", err)
		}
		if affected == 0 {
			return database.ErrNotFound
		}
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE MediaGroup SET LastModificationDate = ?, UserInteracted = 1
			 WHERE DBID = ?`, now, groupID); err != nil {
			return fmt.Errorf("failed to touch group: %w", err)
		}
		return nil
	})
}

// RemoveFromGroup takes a media out of its group and parks it in a
// fresh forced singleton named after the media, in one transaction.
func (m *MediaLibDB) RemoveFromGroup(mediaID int64) (database.MediaGroup, error) {
	now := m.clock.Now().Unix()
	var singletonID int64
	err := m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		var title string
		err := tx.QueryRowContext(m.ctx,
			`SELECT Title FROM Media WHERE DBID = ?`, mediaID).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load media title: %w", err)
		}
		res, err := tx.ExecContext(m.ctx,
			`INSERT INTO MediaGroup (Name, CreationDate, LastModificationDate,
				ForcedSingleton) VALUES (?, ?, ?, 1)`, title, now, now)
		if err != nil {
			return fmt.Errorf("failed to create singleton group: %w", err)
		}
		singletonID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get singleton insert ID: %w", err)
		}
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE Media SET GroupDBID = ? WHERE DBID = ?`,
			singletonID, mediaID); err != nil {
			return fmt.Errorf("failed to move media into singleton: %w", err)
		}
		return nil
	})
	if err != nil {
		return database.MediaGroup{}, err
	}
	return m.GroupByID(singletonID)
}

// DeleteMediaGroup removes a user group; each member is parked in its
// own forced singleton so no media is ever groupless.
func (m *MediaLibDB) DeleteMediaGroup(groupID int64) error {
	media, err := m.GroupMedia(groupID, QueryParameters{IncludeMissing: true}).All()
	if err != nil {
		return err
	}
	for _, md := range media {
		if _, err := m.RemoveFromGroup(md.ID); err != nil {
			return err
		}
	}
	// The group is already gone if the last removal emptied it.
	_, err = m.db.Exec(m.ctx, `DELETE FROM MediaGroup WHERE DBID = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

// RenameMediaGroup renames a user group.
func (m *MediaLibDB) RenameMediaGroup(groupID int64, name string) error {
	now := m.clock.Now().Unix()
	_, err := m.db.Exec(m.ctx,
		`UPDATE MediaGroup SET Name = ?, LastModificationDate = ?, UserInteracted = 1
		 WHERE DBID = ?`, name, now, groupID)
	if err != nil {
		return fmt.Errorf("failed to rename group: %w", err)
	}
	return nil
}

// FindGroupForTitle looks for an automatic group whose name shares a
// long enough folded prefix with the title. Forced singletons and
// user-managed groups are never merge candidates.
func (m *MediaLibDB) FindGroupForTitle(title string) (database.MediaGroup, error) {
	folded := helpers.FoldTitle(title)
	runes := []rune(folded)
	if len(runes) < helpers.GroupingPrefixLength {
		return database.MediaGroup{}, database.ErrNotFound
	}
	prefix := string(runes[:helpers.GroupingPrefixLength])
	_, like := searchPatterns(prefix)

	var candidates []database.MediaGroup
	err := m.db.Read(func(q *sql.DB) error {
		rows, err := q.QueryContext(m.ctx,
			`SELECT `+groupColumns+` FROM MediaGroup
			 WHERE ForcedSingleton = 0 AND UserInteracted = 0
			 AND Name LIKE ? ESCAPE '\' ORDER BY DBID`, like+`%`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			g, err := scanGroup(rows)
			if err != nil {
				return err
			}
			candidates = append(candidates, g)
		}
		return rows.Err()
	})
	if err != nil {
		return database.MediaGroup{}, fmt.Errorf("failed to search groups: %w", err)
	}
	for _, g := range candidates {
		if helpers.CommonTitlePrefix(g.Name, title) != "" {
			return g, nil
		}
	}
	return database.MediaGroup{}, database.ErrNotFound
}

// MergeIntoGroup moves a media into group and renames the group to the
// common folded prefix, the automatic grouping step.
func (m *MediaLibDB) MergeIntoGroup(mediaID, groupID int64, name string) error {
	now := m.clock.Now().Unix()
	return m.db.Transaction(m.ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE Media SET GroupDBID = ? WHERE DBID = ?`, groupID, mediaID); err != nil {
			return fmt.Errorf("failed to merge media into group: %w", err)
		}
		if _, err := tx.ExecContext(m.ctx,
			`UPDATE MediaGroup SET Name = ?, LastModificationDate = ?
			 WHERE DBID = ? AND UserInteracted = 0`, name, now, groupID); err != nil {
			return fmt.Errorf("failed to rename merged group: %w", err)
		}
		return nil
	})
}

// Groups lists media groups.
func (m *MediaLibDB) Groups(params QueryParameters) *Query[database.MediaGroup] {
	where := `(NbVideo + NbAudio + NbUnknown) > 0`
	if !params.IncludeMissing {
		where = `(NbPresentVideo + NbPresentAudio + NbPresentUnknown) > 0`
	}
	direction := sortDirection(params)
	order := ` ORDER BY Name` + direction
	switch params.Sort {
	case SortNbVideo:
		order = ` ORDER BY NbPresentVideo` + direction
	case SortNbAudio:
		order = ` ORDER BY NbPresentAudio` + direction
	case SortNbMedia:
		order = ` ORDER BY (NbPresentVideo + NbPresentAudio + NbPresentUnknown)` + direction
	case SortDuration:
		order = ` ORDER BY Duration` + direction
	case SortInsertionDate:
		order = ` ORDER BY CreationDate` + direction
	case SortLastModificationDate:
		order = ` ORDER BY LastModificationDate` + direction
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM MediaGroup WHERE `+where,
		`SELECT `+groupColumns+` FROM MediaGroup WHERE `+where+order,
		nil, scanGroup)
}

// GroupMedia lists a group's members.
func (m *MediaLibDB) GroupMedia(groupID int64, params QueryParameters) *Query[database.Media] {
	where := `GroupDBID = ?` + presenceClause(params, "IsPresent")
	order := mediaOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{groupID}, scanMedia)
}

func (m *MediaLibDB) SearchGroups(pattern string, params QueryParameters) *Query[database.MediaGroup] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM MediaGroupFts WHERE Name MATCH ?)`
	if !params.IncludeMissing {
		where += ` AND (NbPresentVideo + NbPresentAudio + NbPresentUnknown) > 0`
	}
	order := searchOrderBy("Name", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM MediaGroup WHERE `+where,
		`SELECT `+groupColumns+` FROM MediaGroup WHERE `+where+order,
		[]any{fts}, scanGroup)
}
