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

const albumColumns = `DBID, Title, ArtistDBID, ThumbnailDBID, ReleaseYear, Duration,
	NbTracks, NbPresentTracks, NbDiscs, IsFavorite`

const artistColumns = `DBID, Name, ThumbnailDBID, NbAlbums, NbTracks,
	NbPresentTracks, IsFavorite`

const genreColumns = `DBID, Name, NbTracks, NbPresentTracks`

func scanAlbum(row interface{ Scan(...any) error }) (database.Album, error) {
	var a database.Album
	err := row.Scan(&a.ID, &a.Title, &a.ArtistID, &a.ThumbnailID, &a.ReleaseYear,
		&a.Duration, &a.NbTracks, &a.NbPresentTracks, &a.NbDiscs, &a.IsFavorite)
	return a, err
}

func scanArtist(row interface{ Scan(...any) error }) (database.Artist, error) {
	var a database.Artist
	err := row.Scan(&a.ID, &a.Name, &a.ThumbnailID, &a.NbAlbums, &a.NbTracks,
		&a.NbPresentTracks, &a.IsFavorite)
	return a, err
}

func scanGenre(row interface{ Scan(...any) error }) (database.Genre, error) {
	var g database.Genre
	err := row.Scan(&g.ID, &g.Name, &g.NbTracks, &g.NbPresentTracks)
	return g, err
}

// GetOrCreateArtist resolves an artist by name, creating it on first
// sight.
func (m *MediaLibDB) GetOrCreateArtist(name string) (database.Artist, error) {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO Artist (Name) VALUES (?) ON CONFLICT (Name) DO NOTHING`, name)
	if err != nil {
		return database.Artist{}, fmt.Errorf("failed to insert artist %s: %w", name, err)
	}
	var a database.Artist
	err = m.db.Read(func(q *sql.DB) error {
		var scanErr error
		a, scanErr = scanArtist(q.QueryRowContext(m.ctx,
			`SELECT `+artistColumns+` FROM Artist WHERE Name = ?`, name))
		return scanErr
	})
	if err != nil {
		return database.Artist{}, fmt.Errorf("failed to load artist %s: %w", name, err)
	}
	return a, nil
}

// GetOrCreateAlbum resolves an album by title and album artist.
func (m *MediaLibDB) GetOrCreateAlbum(title string, artistID sql.NullInt64) (database.Album, error) {
	var a database.Album
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		a, scanErr = scanAlbum(q.QueryRowContext(m.ctx,
			`SELECT `+albumColumns+` FROM Album
			 WHERE Title = ? AND ArtistDBID IS ?`, title, artistID))
		return scanErr
	})
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.Album{}, fmt.Errorf("failed to load album %s: %w", title, err)
	}
	res, err := m.db.Exec(m.ctx,
		`INSERT INTO Album (Title, ArtistDBID) VALUES (?, ?)`, title, artistID)
	if err != nil {
		return database.Album{}, fmt.Errorf("failed to insert album %s: %w", title, err)
	}
	a = database.Album{Title: title, ArtistID: artistID, NbDiscs: 1}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return database.Album{}, fmt.Errorf("failed to get album insert ID: %w", err)
	}
	return a, nil
}

func (m *MediaLibDB) GetOrCreateGenre(name string) (database.Genre, error) {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO Genre (Name) VALUES (?) ON CONFLICT (Name) DO NOTHING`, name)
	if err != nil {
		return database.Genre{}, fmt.Errorf("failed to insert genre %s: %w", name, err)
	}
	var g database.Genre
	err = m.db.Read(func(q *sql.DB) error {
		var scanErr error
		g, scanErr = scanGenre(q.QueryRowContext(m.ctx,
			`SELECT `+genreColumns+` FROM Genre WHERE Name = ?`, name))
		return scanErr
	})
	if err != nil {
		return database.Genre{}, fmt.Errorf("failed to load genre %s: %w", name, err)
	}
	return g, nil
}

// LinkTrack attaches a media to its album, album artist and genre in
// one update; the triggers move every counter.
func (m *MediaLibDB) LinkTrack(mediaID int64, albumID, artistID, genreID sql.NullInt64,
	trackNumber, discNumber int,
) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Media SET SubType = ?, AlbumDBID = ?, ArtistDBID = ?, GenreDBID = ?,
			TrackNumber = ?, DiscNumber = ? WHERE DBID = ?`,
		database.MediaSubTypeAlbumTrack, albumID, artistID, genreID,
		trackNumber, discNumber, mediaID)
	if err != nil {
		return fmt.Errorf("failed to link track: %w", err)
	}
	return nil
}

// AddAppearingArtist records an additional artist on a media.
func (m *MediaLibDB) AddAppearingArtist(mediaID, artistID int64) error {
	_, err := m.db.Exec(m.ctx,
		`INSERT INTO MediaArtistRel (MediaDBID, ArtistDBID) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`, mediaID, artistID)
	if err != nil {
		return fmt.Errorf("failed to record appearing artist: %w", err)
	}
	return nil
}

func (m *MediaLibDB) AlbumByID(id int64) (database.Album, error) {
	var a database.Album
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		a, scanErr = scanAlbum(q.QueryRowContext(m.ctx,
			`SELECT `+albumColumns+` FROM Album WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Album{}, database.ErrNotFound
	}
	if err != nil {
		return database.Album{}, fmt.Errorf("failed to load album %d: %w", id, err)
	}
	return a, nil
}

func (m *MediaLibDB) ArtistByID(id int64) (database.Artist, error) {
	var a database.Artist
	err := m.db.Read(func(q *sql.DB) error {
		var scanErr error
		a, scanErr = scanArtist(q.QueryRowContext(m.ctx,
			`SELECT `+artistColumns+` FROM Artist WHERE DBID = ?`, id))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.Artist{}, database.ErrNotFound
	}
	if err != nil {
		return database.Artist{}, fmt.Errorf("failed to load artist %d: %w", id, err)
	}
	return a, nil
}

// Albums lists albums; absent albums (no present track) are hidden by
// default.
func (m *MediaLibDB) Albums(params QueryParameters) *Query[database.Album] {
	where := `1 = 1`
	if !params.IncludeMissing {
		where = `NbPresentTracks > 0`
	}
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	order := albumOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Album WHERE `+where,
		`SELECT `+albumColumns+` FROM Album WHERE `+where+order,
		nil, scanAlbum)
}

// AlbumsOfArtist lists albums the artist authored.
func (m *MediaLibDB) AlbumsOfArtist(artistID int64, params QueryParameters) *Query[database.Album] {
	where := `ArtistDBID = ?`
	if !params.IncludeMissing {
		where += ` AND NbPresentTracks > 0`
	}
	order := albumOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Album WHERE `+where,
		`SELECT `+albumColumns+` FROM Album WHERE `+where+order,
		[]any{artistID}, scanAlbum)
}

// AlbumTracks lists an album's tracks, disc then track order by
// default.
func (m *MediaLibDB) AlbumTracks(albumID int64, params QueryParameters) *Query[database.Media] {
	where := `AlbumDBID = ?` + presenceClause(params, "IsPresent")
	order := mediaOrderBy(params)
	if params.Sort == SortDefault {
		order = ` ORDER BY DiscNumber` + sortDirection(params) +
			`, TrackNumber` + sortDirection(params)
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{albumID}, scanMedia)
}

// Artists lists artists. includeAll keeps artists that only appear on
// other artists' albums.
func (m *MediaLibDB) Artists(includeAll bool, params QueryParameters) *Query[database.Artist] {
	where := `1 = 1`
	if !params.IncludeMissing {
		where = `NbPresentTracks > 0`
	}
	if !includeAll {
		where += ` AND NbAlbums > 0`
	}
	if params.FavoriteOnly {
		where += ` AND IsFavorite = 1`
	}
	direction := sortDirection(params)
	order := ` ORDER BY Name` + direction
	if params.Sort == SortNbMedia {
		order = ` ORDER BY NbTracks` + direction
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Artist WHERE `+where,
		`SELECT `+artistColumns+` FROM Artist WHERE `+where+order,
		nil, scanArtist)
}

// ArtistTracks lists a single artist's tracks across albums.
func (m *MediaLibDB) ArtistTracks(artistID int64, params QueryParameters) *Query[database.Media] {
	where := `(ArtistDBID = ? OR DBID IN (
		SELECT MediaDBID FROM MediaArtistRel WHERE ArtistDBID = ?))` +
		presenceClause(params, "IsPresent")
	order := mediaOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{artistID, artistID}, scanMedia)
}

func (m *MediaLibDB) Genres(params QueryParameters) *Query[database.Genre] {
	where := `1 = 1`
	if !params.IncludeMissing {
		where = `NbPresentTracks > 0`
	}
	return newQuery(m,
		`SELECT COUNT(*) FROM Genre WHERE `+where,
		`SELECT `+genreColumns+` FROM Genre WHERE `+where+
			` ORDER BY Name`+sortDirection(params),
		nil, scanGenre)
}

// GenreTracks lists a genre's tracks.
func (m *MediaLibDB) GenreTracks(genreID int64, params QueryParameters) *Query[database.Media] {
	where := `GenreDBID = ?` + presenceClause(params, "IsPresent")
	order := mediaOrderBy(params)
	return newQuery(m,
		`SELECT COUNT(*) FROM Media WHERE `+where,
		`SELECT `+mediaColumns+` FROM Media WHERE `+where+order,
		[]any{genreID}, scanMedia)
}

func (m *MediaLibDB) SearchAlbums(pattern string, params QueryParameters) *Query[database.Album] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM AlbumFts WHERE Title MATCH ?)`
	if !params.IncludeMissing {
		where += ` AND NbPresentTracks > 0`
	}
	order := searchOrderBy("Title", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Album WHERE `+where,
		`SELECT `+albumColumns+` FROM Album WHERE `+where+order,
		[]any{fts}, scanAlbum)
}

func (m *MediaLibDB) SearchArtists(pattern string, params QueryParameters) *Query[database.Artist] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM ArtistFts WHERE Name MATCH ?)`
	if !params.IncludeMissing {
		where += ` AND NbPresentTracks > 0`
	}
	order := searchOrderBy("Name", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Artist WHERE `+where,
		`SELECT `+artistColumns+` FROM Artist WHERE `+where+order,
		[]any{fts}, scanArtist)
}

func (m *MediaLibDB) SearchGenres(pattern string, params QueryParameters) *Query[database.Genre] {
	fts, like := searchPatterns(pattern)
	where := `DBID IN (SELECT docid FROM GenreFts WHERE Name MATCH ?)`
	if !params.IncludeMissing {
		where += ` AND NbPresentTracks > 0`
	}
	order := searchOrderBy("Name", like)
	return newQuery(m,
		`SELECT COUNT(*) FROM Genre WHERE `+where,
		`SELECT `+genreColumns+` FROM Genre WHERE `+where+order,
		[]any{fts}, scanGenre)
}

func (m *MediaLibDB) SetAlbumFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Album SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update album favorite: %w", err)
	}
	return nil
}

func (m *MediaLibDB) SetArtistFavorite(id int64, favorite bool) error {
	_, err := m.db.Exec(m.ctx,
		`UPDATE Artist SET IsFavorite = ? WHERE DBID = ?`, favorite, id)
	if err != nil {
		return fmt.Errorf("failed to update artist favorite: %w", err)
	}
	return nil
}

func albumOrderBy(params QueryParameters) string {
	direction := sortDirection(params)
	switch params.Sort {
	case SortReleaseDate:
		return ` ORDER BY ReleaseYear` + direction + `, Title`
	case SortDuration:
		return ` ORDER BY Duration` + direction
	case SortArtist:
		return ` ORDER BY (SELECT Name FROM Artist
			WHERE Artist.DBID = Album.ArtistDBID)` + direction + `, Title`
	case SortNbMedia:
		return ` ORDER BY NbTracks` + direction
	default:
		return ` ORDER BY Title` + direction
	}
}
