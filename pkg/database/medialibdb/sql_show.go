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

const showColumns = `DBID, Title, ShortSummary, ThumbnailDBID, ReleaseDate,
	NbEpisodes, NbPresentEpisodes, IsFavorite`

func scanShow(row interface{ Scan(...any) error }) (database.Show, error) {
	var s database.Show
	err := row.Scan(&s.ID, &s.Title, &s.ShortSummary, &s.ThumbnailID,
		&s.ReleaseDate, &s.NbEpisodes, &s.NbPresentEpisodes, &s.IsFavorite)
	return s, err
}

// GetOrCreateShow resolves a show by title.
func (m *MediaLibDB) GetOrCreateShow(title string) (database.Show, error) {
	var s database.Show
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		s, scanErr = scanShow(q.QueryRowContext(m.ctx,
			`SELECT `+showColumns+` FROM Show WHERE Title = ?`, title))
		return scanErr
	})
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.Show{}, fmt.Errorf("failed to load show %s: %w", title, err)
	}
	res, err := m.db.Exec(m.ctx, `INSERT INTO Show (Title) VALUES (?)`, title)
	if err != nil {
		return database.Show{}, fmt.Errorf("failed to insert show %s: %w", title, err)
	}
	s = database.Show{Title: title}
	s.ID, err = res.LastInsertId()
	if err != nil {
		return database.Show{}, fmt.Errorf("failed to get show insert ID: %w", err)
	}
	return s, nil
}

func (m *MediaLibDB) ShowByID(id int64) (database.Show, error) {
	var s database.Show
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		s, scanErr = scanShow(q.QueryRowContext(m.ctx,
			`SELECT `+showColumns+` FROM Show WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Show{}, database.ErrNotFound
	}
	if err != nil {
		return database.Show{}, fmt.Errorf("failed to load show %d: %w", id, err)
	}
	return s, nil
}

// LinkEpisode attaches a media to its show with its numbering.
func (m *MediaLibDB) LinkEpisode(mediaID, showID int64, season, episode int) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET SubType = ?, ShowDBID = ?, SeasonNumber = ?,
			EpisodeNumber = ? WHERE DBID = ?`,
		database.MediaSubTypeShowEpisode, showID, season, episode, mediaID)
	if err != nil {
		return fmt.Errorf("failed to link episode: %w", err)
	}
	return nil
}

// Shows lists shows; a show with no present episode is absent and
// hidden unless missing entities were requested.
func (m *MediaLibDB) Shows(params QueryParameters) *Query[database.Show] {
	where := `NbEpisodes > 0`
	if !params.IncludeMissing {
		where = `NbPresentEpisodes > 0`
	}
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	direction := sortDirection(params)
	order := ` ORDER BY Title` + direction
	switch params.Sort {
	case SortReleaseDate:
		order = ` ORDER BY ReleaseDate` + direction + `, Title`
	case SortNbMedia:
		order = ` ORDER BY NbEpisodes` + direction
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Show WHERE `+where,
		`SELECT `+showColumns+` FROM Show WHERE `+where+order,
		nil, scanShow)
}

// ShowEpisodes lists a show's episodes in season/episode order by
// default.
func (m *MediaLibDB) ShowEpisodes(showID int64, params QueryParameters) *Query[database.Media] {
	where := `ShowDBID = ?` + presenceClause(params, "IsPresent")
	order := mediaOrderBy(params)
	if params.Sort == SortDefault {
		order = ` ORDER BY SeasonNumber` + sortDirection(params) +
			`, EpisodeNumber` + sortDirection(params)
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{showID}, scanMedia)
}

func (m *MediaLibDB) SearchShows(pattern string, params QueryParameters) *Query[database.Show] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM ShowFts WHERE Title MATCH ?)`
	if !params.IncludeMissing {
		where += ` AND NbPresentEpisodes > 0`
	}
	order := searchOrderBy("Title", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Show WHERE `+where,
		`SELECT `+showColumns+` FROM Show WHERE `+where+order,
		[]any{fts}, scanShow)
}

func (m *MediaLibDB) SetShowFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Show SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update show favorite: %w", err)
	}
	return nil
}
