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

package parser

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/devices"
	"github.com/MediaLibProject/medialib-core/pkg/fsys"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

// Prober extracts media facts from a target. The built-in prober works
// from names alone; hosts inject decoder-backed probers for real
// metadata.
type Prober interface {
	Probe(ctx context.Context, mrl string, file database.File) (Probe, error)
}

const probeTimeout = 15 * time.Second

// episodePattern matches the usual SxxEyy markers in file names.
var episodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*E(\d{1,3})\b`)

// trackPattern matches a leading "NN - " or "NN." track prefix.
var trackPattern = regexp.MustCompile(`^(\d{1,3})\s*[-.]\s+(.+)$`)

// ExtensionProber classifies by extension and mines the file name for
// show and track numbering. It never touches file contents, so it works
// on absent metadata stacks and network shares alike.
type ExtensionProber struct{}

func (ExtensionProber) Probe(_ context.Context, mrl string, _ database.File) (Probe, error) {
	ext := helpers.Extension(mrl)
	stem := helpers.Stem(mrl)
	probe := Probe{
		Title:    helpers.SanitizeTitle(stem),
		Duration: -1,
	}
	switch {
	case helpers.IsAudioExtension(ext):
		probe.Type = database.MediaTypeAudio
	case helpers.IsVideoExtension(ext):
		probe.Type = database.MediaTypeVideo
	}

	if m := episodePattern.FindStringSubmatch(stem); m != nil && probe.Type == database.MediaTypeVideo {
		probe.SubType = database.MediaSubTypeShowEpisode
		probe.Season, _ = strconv.Atoi(m[1])
		probe.Episode, _ = strconv.Atoi(m[2])
		show := stem[:strings.Index(stem, m[0])]
		probe.ShowTitle = helpers.SanitizeTitle(show)
		if probe.ShowTitle != "" {
			probe.Title = helpers.SanitizeTitle(stem)
		}
	}
	if m := trackPattern.FindStringSubmatch(stem); m != nil && probe.Type == database.MediaTypeAudio {
		probe.TrackNumber, _ = strconv.Atoi(m[1])
		probe.Title = helpers.SanitizeTitle(m[2])
	}
	return probe, nil
}

// MetadataExtractionService resolves the task target and runs the
// prober; playlist targets are expanded into their items instead.
type MetadataExtractionService struct {
	db      *medialibdb.MediaLibDB
	devices *devices.Registry
	fs      *fsys.Registry
	prober  Prober
}

func NewMetadataExtractionService(db *medialibdb.MediaLibDB, devreg *devices.Registry,
	fsreg *fsys.Registry, prober Prober,
) *MetadataExtractionService {
	if prober == nil {
		prober = ExtensionProber{}
	}
	return &MetadataExtractionService{db: db, devices: devreg, fs: fsreg, prober: prober}
}

func (*MetadataExtractionService) Name() string {
	return "metadata extraction"
}

func (*MetadataExtractionService) Step() database.TaskStep {
	return database.TaskStepMetadataExtraction
}

func (*MetadataExtractionService) NativeThreads() int {
	return 2
}

func (s *MetadataExtractionService) Run(ctx context.Context, item *Item) Status {
	if item.Task.Type == database.TaskTypeParsePlaylist {
		return s.parsePlaylist(ctx, item)
	}

	if !item.Task.FileID.Valid {
		return StatusDiscarded
	}
	file, err := s.db.FileByID(item.Task.FileID.Int64)
	if errors.Is(err, database.ErrNotFound) {
		return StatusDiscarded
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load task file")
		return StatusRequeue
	}
	if !file.MediaID.Valid {
		return StatusDiscarded
	}
	media, err := s.db.MediaByID(file.MediaID.Int64)
	if errors.Is(err, database.ErrNotFound) {
		return StatusDiscarded
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load task media")
		return StatusRequeue
	}
	item.Media = media

	if item.AbsoluteMRL == "" || item.AbsoluteMRL == item.Task.MRL {
		// Re-resolve through the registry in case the mountpoint moved
		// since the task was persisted.
		if media.DeviceID.Valid {
			absolute, err := s.devices.AbsoluteMRL(media.DeviceID.Int64, file.MRL)
			if errors.Is(err, database.ErrDeviceRemoved) {
				return StatusTemporaryUnavailable
			}
			if err != nil {
				return StatusTemporaryUnavailable
			}
			item.AbsoluteMRL = absolute
		} else {
			item.AbsoluteMRL = file.MRL
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	probe, err := s.prober.Probe(probeCtx, item.AbsoluteMRL, file)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusTemporaryUnavailable
		}
		log.Warn().Err(err).Msgf("probe failed for %s", item.AbsoluteMRL)
		return StatusFatal
	}
	item.Probe = &probe

	if err := s.db.UpdateMediaKinds(media.ID, probe.Type, probe.SubType, probe.Duration); err != nil {
		log.Error().Err(err).Msg("failed to store probed media kinds")
		return StatusRequeue
	}
	if probe.Title != "" && !media.ForcedTitle && probe.Title != media.Title {
		if err := s.db.SetMediaTitle(media.ID, probe.Title, false); err != nil {
			log.Error().Err(err).Msg("failed to store probed title")
			return StatusRequeue
		}
	}
	if probe.ReleaseDate != 0 {
		if err := s.db.SetMediaReleaseDate(media.ID, probe.ReleaseDate); err != nil {
			log.Error().Err(err).Msg("failed to store release date")
		}
	}
	return StatusSuccess
}

// parsePlaylist expands a playlist file into a file-backed playlist.
// Entries already known as media are appended; unknown ones become
// external media so the playlist is usable immediately.
func (s *MetadataExtractionService) parsePlaylist(ctx context.Context, item *Item) Status {
	factory, err := s.fs.ForMRL(item.AbsoluteMRL)
	if err != nil {
		return StatusFatal
	}
	reader, err := factory.Open(ctx, item.AbsoluteMRL)
	if err != nil {
		return StatusTemporaryUnavailable
	}
	defer func() { _ = reader.Close() }()

	name := helpers.SanitizeTitle(helpers.Stem(item.AbsoluteMRL))
	playlist, err := s.db.CreatePlaylist(name, item.Task.FileID)
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return StatusDiscarded
		}
		log.Error().Err(err).Msg("failed to create playlist")
		return StatusRequeue
	}

	parent := helpers.ParentMRL(item.AbsoluteMRL)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entryMRL := line
		if helpers.SchemeOf(entryMRL) == "" {
			entryMRL = helpers.JoinMRL(parent, strings.TrimPrefix(line, "/"))
		}
		mediaID, err := s.resolvePlaylistEntry(entryMRL)
		if err != nil {
			log.Warn().Err(err).Msgf("skipping playlist entry %s", entryMRL)
			continue
		}
		if err := s.db.PlaylistAppend(playlist.ID, mediaID); err != nil {
			log.Warn().Err(err).Msgf("failed to append playlist entry %s", entryMRL)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("failed reading playlist file")
	}
	return StatusCompleted
}

func (s *MetadataExtractionService) resolvePlaylistEntry(mrl string) (int64, error) {
	if device, relative, ok := s.devices.FromMountpoint(mrl); ok {
		media, err := s.db.MediaByDeviceAndPath(device.ID, relative)
		if err == nil {
			return media.ID, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return 0, err
		}
	}
	if media, err := s.db.MediaByExternalMRL(mrl); err == nil {
		return media.ID, nil
	}
	media, err := s.db.InsertMedia(database.Media{
		Title:      helpers.SanitizeTitle(helpers.Stem(mrl)),
		FileName:   helpers.FileName(mrl),
		IsExternal: true,
		IsPresent:  true,
	})
	if err != nil {
		return 0, err
	}
	_, err = s.db.InsertFile(database.File{
		MRL:        mrl,
		Type:       database.FileTypeMain,
		IsExternal: true,
		MediaID:    sql.NullInt64{Int64: media.ID, Valid: true},
	})
	if err != nil {
		return 0, err
	}
	return media.ID, nil
}

// MetadataAnalysisService links probed media into albums, artists,
// genres, shows and automatic groups.
type MetadataAnalysisService struct {
	db *medialibdb.MediaLibDB
}

func NewMetadataAnalysisService(db *medialibdb.MediaLibDB) *MetadataAnalysisService {
	return &MetadataAnalysisService{db: db}
}

func (*MetadataAnalysisService) Name() string {
	return "metadata analysis"
}

func (*MetadataAnalysisService) Step() database.TaskStep {
	return database.TaskStepMetadataAnalysis
}

func (*MetadataAnalysisService) NativeThreads() int {
	return 1
}

func (s *MetadataAnalysisService) Run(_ context.Context, item *Item) Status {
	media, err := s.db.MediaByID(item.Media.ID)
	if errors.Is(err, database.ErrNotFound) {
		return StatusDiscarded
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to reload media for analysis")
		return StatusRequeue
	}
	probe := item.Probe
	if probe == nil {
		// Restarted mid-task: rebuild what the extraction step knew
		// from the persisted media row.
		probe = &Probe{Type: media.Type, SubType: media.SubType, Title: media.Title}
	}

	switch media.Type {
	case database.MediaTypeAudio:
		if status := s.linkTrack(media, probe); status != StatusSuccess {
			return status
		}
	case database.MediaTypeVideo:
		if probe.ShowTitle != "" {
			show, err := s.db.GetOrCreateShow(probe.ShowTitle)
			if err != nil {
				log.Error().Err(err).Msg("failed to resolve show")
				return StatusRequeue
			}
			if err := s.db.LinkEpisode(media.ID, show.ID, probe.Season, probe.Episode); err != nil {
				log.Error().Err(err).Msg("failed to link episode")
				return StatusRequeue
			}
		} else if err := s.autoGroup(media); err != nil {
			log.Error().Err(err).Msg("failed to auto-group media")
			return StatusRequeue
		}
	}
	return StatusSuccess
}

func (s *MetadataAnalysisService) linkTrack(media database.Media, probe *Probe) Status {
	var artistID, albumID, genreID sql.NullInt64
	if probe.AlbumArtist != "" || probe.ArtistName != "" {
		name := probe.AlbumArtist
		if name == "" {
			name = probe.ArtistName
		}
		artist, err := s.db.GetOrCreateArtist(name)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve artist")
			return StatusRequeue
		}
		artistID = sql.NullInt64{Int64: artist.ID, Valid: true}
	}
	if probe.AlbumTitle != "" {
		album, err := s.db.GetOrCreateAlbum(probe.AlbumTitle, artistID)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve album")
			return StatusRequeue
		}
		albumID = sql.NullInt64{Int64: album.ID, Valid: true}
	}
	if probe.GenreName != "" {
		genre, err := s.db.GetOrCreateGenre(probe.GenreName)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve genre")
			return StatusRequeue
		}
		genreID = sql.NullInt64{Int64: genre.ID, Valid: true}
	}
	if !artistID.Valid && !albumID.Valid && !genreID.Valid && probe.TrackNumber == 0 {
		return StatusSuccess
	}
	if err := s.db.LinkTrack(media.ID, albumID, artistID, genreID,
		probe.TrackNumber, probe.DiscNumber); err != nil {
		log.Error().Err(err).Msg("failed to link track")
		return StatusRequeue
	}
	if probe.ArtistName != "" && probe.AlbumArtist != "" && probe.ArtistName != probe.AlbumArtist {
		appearing, err := s.db.GetOrCreateArtist(probe.ArtistName)
		if err == nil {
			if err := s.db.AddAppearingArtist(media.ID, appearing.ID); err != nil {
				log.Warn().Err(err).Msg("failed to record appearing artist")
			}
		}
	}
	return StatusSuccess
}

// autoGroup merges a video into an existing automatic group when their
// titles share a long enough prefix.
func (s *MetadataAnalysisService) autoGroup(media database.Media) error {
	group, err := s.db.FindGroupForTitle(media.Title)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if group.ID == media.GroupID {
		return nil
	}
	name := helpers.CommonTitlePrefix(group.Name, media.Title)
	if name == "" {
		return nil
	}
	return s.db.MergeIntoGroup(media.ID, group.ID, name)
}
