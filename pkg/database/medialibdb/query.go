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
	"fmt"
	"strings"
)

// SortingCriteria selects the ordering of a listing. Criteria that make
// no sense for an entity kind fall back to that kind's default.
type SortingCriteria int

const (
	SortDefault SortingCriteria = iota
	SortAlpha
	SortDuration
	SortInsertionDate
	SortLastModificationDate
	SortReleaseDate
	SortFileSize
	SortArtist
	SortPlayCount
	SortAlbum
	SortFilename
	SortTrackNumber
	SortNbVideo
	SortNbAudio
	SortNbMedia
)

// QueryParameters tunes listings and searches. The zero value lists
// everything present, default order.
type QueryParameters struct {
	Sort           SortingCriteria
	Desc           bool
	IncludeMissing bool
	PublicOnly     bool
	FavoriteOnly   bool
}

// MinSearchPatternLength is the shortest accepted search pattern.
const MinSearchPatternLength = 3

// Query is a lazy, pageable result set. Count and the item accessors
// run separate statements; a write landing between the two can skew
// them by a few rows, which callers are expected to tolerate.
type Query[T any] struct {
	m          *MediaLibDB
	countSQL   string
	itemsSQL   string
	args       []any
	scan       func(interface{ Scan(...any) error }) (T, error)
}

func newQuery[T any](
	m *MediaLibDB,
	countSQL, itemsSQL string,
	args []any,
	scan func(interface{ Scan(...any) error }) (T, error),
) *Query[T] {
	return &Query[T]{m: m, countSQL: countSQL, itemsSQL: itemsSQL, args: args, scan: scan}
}

func (q *Query[T]) Count() (int, error) {
	var count int
	err := q.m.db.Read(func(db *sql.DB) error {
		return db.QueryRowContext(q.m.ctx, q.countSQL, q.args...).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count query results: %w", err)
	}
	return count, nil
}

// Items returns up to n results starting at offset. n <= 0 means no
// limit.
func (q *Query[T]) Items(n, offset int) ([]T, error) {
	query := q.itemsSQL
	args := append([]any(nil), q.args...)
	if n > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, n, offset)
	} else if offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}
	var items []T
	err := q.m.db.Read(func(db *sql.DB) error {
		rows, err := db.QueryContext(q.m.ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			item, err := q.scan(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch query results: %w", err)
	}
	return items, nil
}

func (q *Query[T]) All() ([]T, error) {
	return q.Items(0, 0)
}

func sortDirection(params QueryParameters) string {
	if params.Desc {
		return ` DESC`
	}
	return ` ASC`
}

// presenceClause hides rows on absent devices unless the caller asked
// for them.
func presenceClause(params QueryParameters, column string) string {
	if params.IncludeMissing {
		return ``
	}
	return ` AND ` + column + ` = 1`
}

// searchPatterns turns a raw user pattern into an FTS prefix query plus
// a LIKE-escaped form used for ranking exact prefixes first.
func searchPatterns(pattern string) (fts, like string) {
	trimmed := strings.TrimSpace(pattern)
	// FTS treats quotes and operators specially; a quoted token with a
	// trailing star gives plain prefix semantics.
	sanitized := strings.ReplaceAll(trimmed, `"`, ``)
	sanitized = strings.ReplaceAll(sanitized, `*`, ``)
	fts = `"` + sanitized + `"*`

	like = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(trimmed)
	return fts, like
}

// searchOrderBy ranks exact matches first, then prefix matches, then
// shorter names, then alphabetically.
func searchOrderBy(column, like string) string {
	quoted := strings.ReplaceAll(like, `'`, `''`)
	return ` ORDER BY (` + column + ` = '` + quoted + `' COLLATE NOCASE) DESC,
		(` + column + ` LIKE '` + quoted + `%' ESCAPE '\') DESC,
		LENGTH(` + column + `), ` + column
}
