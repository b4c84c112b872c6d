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

// Package database holds the persistent entity types shared by the
// storage layer and the rest of the library, plus the low level SQLite
// plumbing they are stored with.
package database

import "database/sql"

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
)

type MediaSubType int

const (
	MediaSubTypeUnknown MediaSubType = iota
	MediaSubTypeShowEpisode
	MediaSubTypeMovie
	MediaSubTypeAlbumTrack
)

type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeMain
	FileTypePart
	FileTypeSoundtrack
	FileTypeSubtitles
	FileTypePlaylist
	FileTypeDisc
)

type LinkedFileType int

const (
	LinkedFileTypeNone LinkedFileType = iota
	LinkedFileTypeSubtitles
	LinkedFileTypeSoundTrack
)

type ThumbnailOrigin int

const (
	ThumbnailOriginArtist ThumbnailOrigin = iota
	ThumbnailOriginAlbumArtist
	ThumbnailOriginAlbum
	ThumbnailOriginMedia
	ThumbnailOriginUserProvided
)

// ThumbnailSize is the size bucket a generated image belongs to.
type ThumbnailSize int

const (
	ThumbnailSizeSmall ThumbnailSize = iota
	ThumbnailSizeBanner
	ThumbnailSizeLarge
)

// ThumbnailEntity identifies which entity kind a thumbnail link targets.
type ThumbnailEntity int

const (
	ThumbnailEntityMedia ThumbnailEntity = iota
	ThumbnailEntityAlbum
	ThumbnailEntityArtist
	ThumbnailEntityGenre
	ThumbnailEntityShow
	ThumbnailEntityMediaGroup
	ThumbnailEntityPlaylist
)

// CacheOrigin records how a subscription media ended up cached locally.
type CacheOrigin int

const (
	CacheOriginNone CacheOrigin = iota
	CacheOriginManual
	CacheOriginAuto
)

// NotificationMode is the three-state new-media notification setting.
type NotificationMode int

const (
	NotificationInherit NotificationMode = -1
	NotificationOff     NotificationMode = 0
	NotificationOn      NotificationMode = 1
)

// ServiceType enumerates the supported subscription services.
type ServiceType int

const (
	ServiceTypePodcast ServiceType = 1
)

// InheritFromParent marks a quota that defers to the nearest ancestor.
const InheritFromParent int64 = -1

// Task steps. A task only reruns steps missing from its bitmap.
type TaskStep int

const (
	TaskStepNone               TaskStep = 0
	TaskStepMetadataExtraction TaskStep = 1 << 0
	TaskStepMetadataAnalysis   TaskStep = 1 << 1
	TaskStepLinking            TaskStep = 1 << 2

	TaskStepCompleted = TaskStepMetadataExtraction | TaskStepMetadataAnalysis
)

// TaskType tells the pipeline what the persisted target is.
type TaskType int

const (
	TaskTypeParse TaskType = iota
	TaskTypeRefresh
	TaskTypeParsePlaylist
)

type Device struct {
	UUID        string
	Scheme      string
	LastSeen    int64
	ID          int64
	IsRemovable bool
	IsNetwork   bool
	IsPresent   bool
}

type DeviceMountpoint struct {
	Mountpoint string
	DeviceID   int64
	LastSeen   int64
}

type Folder struct {
	Path       string // relative to the device mountpoint
	Name       string
	ParentID   sql.NullInt64
	ID         int64
	DeviceID   int64
	Duration   int64
	NbVideo    int
	NbAudio    int
	NbUnknown  int
	IsBanned   bool
	IsPublic   bool
	IsFavorite bool
	IsPresent  bool
	IsNetwork  bool
}

type File struct {
	MRL                  string // relative to the device mountpoint
	MediaID              sql.NullInt64
	PlaylistID           sql.NullInt64
	FolderID             sql.NullInt64
	LinkedMediaID        sql.NullInt64
	ID                   int64
	Size                 int64
	LastModificationDate int64
	Type                 FileType
	LinkedType           LinkedFileType
	IsNetwork            bool
	IsExternal           bool
}

type Media struct {
	Title           string
	FileName        string
	AlbumID         sql.NullInt64
	ArtistID        sql.NullInt64
	GenreID         sql.NullInt64
	ShowID          sql.NullInt64
	FolderID        sql.NullInt64
	DeviceID        sql.NullInt64
	ThumbnailID     sql.NullInt64
	ID              int64
	GroupID         int64
	Duration        int64
	PlayCount       int
	LastPosition    float64 // [0,1] or -1 when unknown
	LastTime        int64   // ms or -1
	LastPlayedDate  int64
	InsertionDate   int64
	ReleaseDate     int64
	CachedSize      int64
	TrackNumber     int
	DiscNumber      int
	SeasonNumber    int
	EpisodeNumber   int
	Type            MediaType
	SubType         MediaSubType
	CacheOrigin     CacheOrigin
	ForcedTitle     bool
	IsFavorite      bool
	IsPresent       bool
	IsExternal      bool
	IsStream        bool
	IsPublic        bool
	CacheHandled    bool
	DeviceInsertion bool // true while a removable device discovery is pending
}

type Album struct {
	Title           string
	ArtistID        sql.NullInt64
	ThumbnailID     sql.NullInt64
	ID              int64
	Duration        int64
	ReleaseYear     int
	NbTracks        int
	NbPresentTracks int
	NbDiscs         int
	IsFavorite      bool
}

type Artist struct {
	Name            string
	ThumbnailID     sql.NullInt64
	ID              int64
	NbAlbums        int
	NbTracks        int
	NbPresentTracks int
	IsFavorite      bool
}

type Genre struct {
	Name            string
	ID              int64
	NbTracks        int
	NbPresentTracks int
}

type Show struct {
	Title             string
	ShortSummary      string
	ThumbnailID       sql.NullInt64
	ID                int64
	ReleaseDate       int64
	NbEpisodes        int
	NbPresentEpisodes int
	IsFavorite        bool
}

type Playlist struct {
	Name             string
	FileID           sql.NullInt64 // set for file-backed (read only) playlists
	ID               int64
	CreationDate     int64
	Duration         int64
	NbVideo          int
	NbAudio          int
	NbUnknown        int
	NbPresentVideo   int
	NbPresentAudio   int
	NbPresentUnknown int
	IsFavorite       bool
}

func (p *Playlist) NbMedia() int {
	return p.NbVideo + p.NbAudio + p.NbUnknown
}

func (p *Playlist) NbPresentMedia() int {
	return p.NbPresentVideo + p.NbPresentAudio + p.NbPresentUnknown
}

type PlaylistItem struct {
	PlaylistID int64
	MediaID    int64
	Position   int
}

type MediaGroup struct {
	Name                 string
	ID                   int64
	NbVideo              int
	NbAudio              int
	NbUnknown            int
	NbPresentVideo       int
	NbPresentAudio       int
	NbPresentUnknown     int
	NbSeen               int
	Duration             int64
	CreationDate         int64
	LastModificationDate int64
	UserInteracted       bool
	ForcedSingleton      bool
}

func (g *MediaGroup) NbTotal() int {
	return g.NbVideo + g.NbAudio + g.NbUnknown
}

func (g *MediaGroup) NbPresentMedia() int {
	return g.NbPresentVideo + g.NbPresentAudio + g.NbPresentUnknown
}

type Subscription struct {
	Name                 string
	ParentID             sql.NullInt64
	ID                   int64
	ServiceType          ServiceType
	CachedSize           int64
	MaxCachedMedia       int64
	MaxCachedSize        int64
	NewMediaNotification NotificationMode
	NbUnplayedMedia      int
	NbMedia              int
}

type Service struct {
	Type                 ServiceType
	AutoDownload         bool
	NewMediaNotification bool
	MaxCachedMedia       int64
	MaxCachedSize        int64
	NbSubscriptions      int
	NbUnplayedMedia      int
	NbMedia              int
}

type Bookmark struct {
	Name         string
	Description  string
	ID           int64
	MediaID      int64
	Time         int64
	CreationDate int64
}

type Chapter struct {
	Name     string
	ID       int64
	MediaID  int64
	Offset   int64
	Duration int64
}

type Label struct {
	Name string
	ID   int64
}

type Thumbnail struct {
	MRL          string
	ID           int64
	Origin       ThumbnailOrigin
	SharedCount  int
	IsGenerated  bool
	IsOwned      bool // file lives in the library's thumbnail directory
	GenerationFailures int
}

type Task struct {
	MRL              string
	FileID           sql.NullInt64
	FolderID         sql.NullInt64
	PlaylistID       sql.NullInt64
	LinkToID         sql.NullInt64
	ID               int64
	Type             TaskType
	Steps            TaskStep
	Retries          int
	CreationDate     int64
}

// HasStep reports whether the task already completed the given step.
func (t *Task) HasStep(step TaskStep) bool {
	return t.Steps&step == step
}
