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

// Entity access, search and mutation operations of the facade. Queries
// by id return (nil, nil) when nothing matches; mutations return
// ErrConflict on constraint violations with no state change.

package medialib

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
)

// QueryParameters re-exported for hosts.
type QueryParameters = medialibdb.QueryParameters

// Media resolves a media by id through the entity cache.
func (ml *MediaLibrary) Media(id int64) (*database.Media, error) {
	md, err := ml.mediaCache.GetOrLoad(id, ml.db.MediaByID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

// MediaByMRL resolves a media by the MRL of any of its files.
func (ml *MediaLibrary) MediaByMRL(mrl string) (*database.Media, error) {
	if device, relative, ok := ml.devices.FromMountpoint(mrl); ok {
		md, err := ml.db.MediaByDeviceAndPath(device.ID, relative)
		if err == nil {
			return &md, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}
	md, err := ml.db.MediaByExternalMRL(mrl)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

// AudioFiles lists audio media.
func (ml *MediaLibrary) AudioFiles(params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.MediaList(database.MediaTypeAudio, params)
}

// VideoFiles lists video media.
func (ml *MediaLibrary) VideoFiles(params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.MediaList(database.MediaTypeVideo, params)
}

func (ml *MediaLibrary) Albums(params QueryParameters) *medialibdb.Query[database.Album] {
	return ml.db.Albums(params)
}

func (ml *MediaLibrary) Album(id int64) (*database.Album, error) {
	a, err := ml.db.AlbumByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (ml *MediaLibrary) AlbumTracks(albumID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.AlbumTracks(albumID, params)
}

func (ml *MediaLibrary) Artists(includeAll bool, params QueryParameters) *medialibdb.Query[database.Artist] {
	return ml.db.Artists(includeAll, params)
}

func (ml *MediaLibrary) Artist(id int64) (*database.Artist, error) {
	a, err := ml.db.ArtistByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (ml *MediaLibrary) ArtistAlbums(artistID int64, params QueryParameters) *medialibdb.Query[database.Album] {
	return ml.db.AlbumsOfArtist(artistID, params)
}

func (ml *MediaLibrary) ArtistTracks(artistID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.ArtistTracks(artistID, params)
}

func (ml *MediaLibrary) Genres(params QueryParameters) *medialibdb.Query[database.Genre] {
	return ml.db.Genres(params)
}

func (ml *MediaLibrary) GenreTracks(genreID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.GenreTracks(genreID, params)
}

func (ml *MediaLibrary) Shows(params QueryParameters) *medialibdb.Query[database.Show] {
	return ml.db.Shows(params)
}

func (ml *MediaLibrary) ShowEpisodes(showID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.ShowEpisodes(showID, params)
}

func (ml *MediaLibrary) Playlists(params QueryParameters) *medialibdb.Query[database.Playlist] {
	return ml.db.Playlists(params)
}

func (ml *MediaLibrary) Playlist(id int64) (*database.Playlist, error) {
	p, err := ml.db.PlaylistByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (ml *MediaLibrary) PlaylistMedia(playlistID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.PlaylistMedia(playlistID, params)
}

func (ml *MediaLibrary) MediaGroups(params QueryParameters) *medialibdb.Query[database.MediaGroup] {
	return ml.db.Groups(params)
}

func (ml *MediaLibrary) MediaGroupContent(groupID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.GroupMedia(groupID, params)
}

func (ml *MediaLibrary) MediaGroup(id int64) (*database.MediaGroup, error) {
	g, err := ml.db.GroupByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (ml *MediaLibrary) Folders(mediaType database.MediaType, params QueryParameters) *medialibdb.Query[database.Folder] {
	return ml.db.Folders(mediaType, params)
}

// validSearchPattern enforces the minimum pattern length.
func validSearchPattern(pattern string) bool {
	return len(strings.TrimSpace(pattern)) >= medialibdb.MinSearchPatternLength
}

func (ml *MediaLibrary) SearchMedia(pattern string, params QueryParameters) *medialibdb.Query[database.Media] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchMedia(pattern, database.MediaTypeUnknown, params)
}

func (ml *MediaLibrary) SearchAlbums(pattern string, params QueryParameters) *medialibdb.Query[database.Album] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchAlbums(pattern, params)
}

func (ml *MediaLibrary) SearchArtists(pattern string, params QueryParameters) *medialibdb.Query[database.Artist] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchArtists(pattern, params)
}

func (ml *MediaLibrary) SearchGenres(pattern string, params QueryParameters) *medialibdb.Query[database.Genre] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchGenres(pattern, params)
}

func (ml *MediaLibrary) SearchShows(pattern string, params QueryParameters) *medialibdb.Query[database.Show] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchShows(pattern, params)
}

func (ml *MediaLibrary) SearchPlaylists(pattern string, params QueryParameters) *medialibdb.Query[database.Playlist] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchPlaylists(pattern, params)
}

func (ml *MediaLibrary) SearchMediaGroups(pattern string, params QueryParameters) *medialibdb.Query[database.MediaGroup] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchGroups(pattern, params)
}

func (ml *MediaLibrary) SearchFolders(pattern string, params QueryParameters) *medialibdb.Query[database.Folder] {
	if !validSearchPattern(pattern) {
		return nil
	}
	return ml.db.SearchFolders(pattern, database.MediaTypeUnknown, params)
}

// --- mutations ---------------------------------------------------------

func (ml *MediaLibrary) CreateLabel(name string) (*database.Label, error) {
	l, err := ml.db.CreateLabel(name)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (ml *MediaLibrary) DeleteLabel(id int64) error {
	return ml.db.DeleteLabel(id)
}

func (ml *MediaLibrary) CreatePlaylist(name string) (*database.Playlist, error) {
	p, err := ml.db.CreatePlaylist(name, sql.NullInt64{})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (ml *MediaLibrary) DeletePlaylist(id int64) error {
	return ml.db.DeletePlaylist(id)
}

// PlaylistAppend adds a media to the end of a playlist. File-backed
// playlists are read only.
func (ml *MediaLibrary) PlaylistAppend(playlistID, mediaID int64) error {
	if err := ml.ensurePlaylistWritable(playlistID); err != nil {
		return err
	}
	if err := ml.db.PlaylistAppend(playlistID, mediaID); err != nil {
		return err
	}
	ml.cb.OnPlaylistsModified([]int64{playlistID})
	return nil
}

func (ml *MediaLibrary) PlaylistInsert(playlistID, mediaID int64, position int) error {
	if err := ml.ensurePlaylistWritable(playlistID); err != nil {
		return err
	}
	if err := ml.db.PlaylistInsert(playlistID, mediaID, position); err != nil {
		return err
	}
	ml.cb.OnPlaylistsModified([]int64{playlistID})
	return nil
}

func (ml *MediaLibrary) PlaylistRemoveAt(playlistID int64, position int) error {
	if err := ml.ensurePlaylistWritable(playlistID); err != nil {
		return err
	}
	if err := ml.db.PlaylistRemoveAt(playlistID, position); err != nil {
		return err
	}
	ml.cb.OnPlaylistsModified([]int64{playlistID})
	return nil
}

// PlaylistMove relocates a block of items; a no-op move succeeds
// without emitting a modification callback.
func (ml *MediaLibrary) PlaylistMove(playlistID int64, from, to, count int) error {
	if err := ml.ensurePlaylistWritable(playlistID); err != nil {
		return err
	}
	moved, err := ml.db.PlaylistMove(playlistID, from, to, count)
	if err != nil {
		return err
	}
	if moved {
		ml.cb.OnPlaylistsModified([]int64{playlistID})
	}
	return nil
}

func (ml *MediaLibrary) ensurePlaylistWritable(playlistID int64) error {
	p, err := ml.db.PlaylistByID(playlistID)
	if err != nil {
		return err
	}
	if p.FileID.Valid {
		return ErrConflict
	}
	return nil
}

func (ml *MediaLibrary) CreateMediaGroup(name string, mediaIDs []int64) (*database.MediaGroup, error) {
	g, err := ml.db.CreateMediaGroup(name, mediaIDs)
	if err != nil {
		return nil, err
	}
	ml.mediaCache.Invalidate(mediaIDs...)
	return &g, nil
}

func (ml *MediaLibrary) DeleteMediaGroup(id int64) error {
	if err := ml.db.DeleteMediaGroup(id); err != nil {
		return err
	}
	ml.mediaCache.Clear()
	return nil
}

// AddToGroup moves a media into a group; its singleton (if that is what
// it leaves) disappears with the move.
func (ml *MediaLibrary) AddToGroup(mediaID, groupID int64) error {
	if err := ml.db.AddToGroup(mediaID, groupID); err != nil {
		return err
	}
	ml.mediaCache.Invalidate(mediaID)
	ml.cb.OnMediaGroupsModified([]int64{groupID})
	return nil
}

// RemoveFromGroup parks a media in a fresh forced singleton.
func (ml *MediaLibrary) RemoveFromGroup(mediaID int64) (*database.MediaGroup, error) {
	g, err := ml.db.RemoveFromGroup(mediaID)
	if err != nil {
		return nil, err
	}
	ml.mediaCache.Invalidate(mediaID)
	return &g, nil
}

// SetMediaTitle renames a media; a forced singleton group follows.
func (ml *MediaLibrary) SetMediaTitle(mediaID int64, title string) error {
	if err := ml.db.SetMediaTitle(mediaID, title, true); err != nil {
		return err
	}
	ml.mediaCache.Invalidate(mediaID)
	ml.cb.OnMediaModified([]int64{mediaID})
	return nil
}

// AddExternalMedia registers a media the library does not manage.
func (ml *MediaLibrary) AddExternalMedia(mrl string) (*database.Media, error) {
	return ml.addStandaloneMedia(mrl, false)
}

// AddStream registers a network stream.
func (ml *MediaLibrary) AddStream(mrl string) (*database.Media, error) {
	return ml.addStandaloneMedia(mrl, true)
}

func (ml *MediaLibrary) addStandaloneMedia(mrl string, stream bool) (*database.Media, error) {
	if existing, err := ml.db.MediaByExternalMRL(mrl); err == nil {
		return &existing, ErrConflict
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	md, err := ml.db.InsertMedia(database.Media{
		Title:      helpers.SanitizeTitle(helpers.Stem(mrl)),
		FileName:   helpers.FileName(mrl),
		IsExternal: true,
		IsStream:   stream,
		IsPresent:  true,
	})
	if err != nil {
		return nil, err
	}
	_, err = ml.db.InsertFile(database.File{
		MRL:        mrl,
		Type:       database.FileTypeMain,
		IsExternal: true,
		IsNetwork:  stream,
		MediaID:    sql.NullInt64{Int64: md.ID, Valid: true},
	})
	if err != nil {
		return nil, err
	}
	ml.cb.OnMediaAdded([]int64{md.ID})
	return &md, nil
}

// RemoveExternalMedia deletes an external or stream media.
func (ml *MediaLibrary) RemoveExternalMedia(mediaID int64) error {
	md, err := ml.Media(mediaID)
	if err != nil {
		return err
	}
	if md == nil {
		return ErrNotFound
	}
	if !md.IsExternal && !md.IsStream {
		return ErrConflict
	}
	if err := ml.db.DeleteMedia(mediaID); err != nil {
		return err
	}
	ml.mediaCache.Invalidate(mediaID)
	ml.cb.OnMediaDeleted([]int64{mediaID})
	return nil
}

// ClearHistory wipes playback progress and counts.
func (ml *MediaLibrary) ClearHistory() error {
	if err := ml.db.ClearHistory(); err != nil {
		return err
	}
	ml.mediaCache.Clear()
	return nil
}

// SetMediaProgress records playback progress for a media.
func (ml *MediaLibrary) SetMediaProgress(mediaID int64, position float64, timeMs int64) error {
	if err := ml.db.SetMediaProgress(mediaID, position, timeMs); err != nil {
		return err
	}
	ml.mediaCache.Invalidate(mediaID)
	ml.cb.OnMediaModified([]int64{mediaID})
	return nil
}

func (ml *MediaLibrary) SetMediaFavorite(mediaID int64, favorite bool) error {
	if err := ml.db.SetMediaFavorite(mediaID, favorite); err != nil {
		return err
	}
	ml.mediaCache.Invalidate(mediaID)
	return nil
}

func (ml *MediaLibrary) AddBookmark(mediaID, timeMs int64, name, description string) (*database.Bookmark, error) {
	b, err := ml.db.AddBookmark(mediaID, timeMs, name, description)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (ml *MediaLibrary) Bookmarks(mediaID int64) ([]database.Bookmark, error) {
	return ml.db.Bookmarks(mediaID)
}

func (ml *MediaLibrary) DeleteBookmark(id int64) error {
	return ml.db.DeleteBookmark(id)
}

// Subscriptions --------------------------------------------------------

func (ml *MediaLibrary) CreateSubscription(serviceType database.ServiceType, name string,
	parentID *int64,
) (*database.Subscription, error) {
	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	s, err := ml.db.CreateSubscription(serviceType, name, parent)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (ml *MediaLibrary) DeleteSubscription(id int64) error {
	return ml.db.DeleteSubscription(id)
}

func (ml *MediaLibrary) Subscriptions(serviceType database.ServiceType, params QueryParameters) *medialibdb.Query[database.Subscription] {
	return ml.db.Subscriptions(serviceType, params)
}

func (ml *MediaLibrary) SubscriptionMedia(subscriptionID int64, params QueryParameters) *medialibdb.Query[database.Media] {
	return ml.db.SubscriptionMedia(subscriptionID, params)
}

func (ml *MediaLibrary) CacheMedia(mediaID int64) error {
	return ml.cache.CacheMedia(mediaID)
}

func (ml *MediaLibrary) RemoveCachedMedia(mediaID int64) error {
	return ml.cache.RemoveCached(mediaID)
}
