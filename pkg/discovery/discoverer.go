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

// Package discovery walks filesystem roots and keeps the folder, file
// and media tables in sync with what is actually on disk.
package discovery

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/devices"
	"github.com/MediaLibProject/medialib-core/pkg/fsys"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	edlib "github.com/hbollon/go-edlib"
	"github.com/rs/zerolog/log"
)

// The sentinel file that opts a directory subtree out of indexing.
const noMediaSentinel = ".nomedia"

// Subtitle stems within this Levenshtein distance of a media stem are
// linked to it when no exact prefix matches.
const subtitleLinkMaxDistance = 2

// TaskScheduler hands created tasks to the parser pipeline.
type TaskScheduler interface {
	Schedule(task database.Task, absoluteMRL string)
}

// Notifier receives discovery lifecycle and entity change events,
// called from the discovery goroutine.
type Notifier interface {
	OnDiscoveryStarted(root string)
	OnDiscoveryProgress(root, currentFolder string)
	OnDiscoveryCompleted(root string, success bool)
	OnMediaAdded(ids []int64)
	OnMediaDeleted(ids []int64)
	OnFoldersAdded(ids []int64)
	OnFoldersDeleted(ids []int64)
}

type Discoverer struct {
	db        *medialibdb.MediaLibDB
	devices   *devices.Registry
	fs        *fsys.Registry
	scheduler TaskScheduler
	notifier  Notifier
}

func New(db *medialibdb.MediaLibDB, devreg *devices.Registry, fsreg *fsys.Registry,
	scheduler TaskScheduler, notifier Notifier,
) *Discoverer {
	return &Discoverer{
		db: db, devices: devreg, fs: fsreg,
		scheduler: scheduler, notifier: notifier,
	}
}

// Discover adds a root and walks its tree. Roots under a banned folder
// stay untouched.
func (d *Discoverer) Discover(ctx context.Context, mrl string) error {
	root := helpers.ToDirectoryMRL(mrl)
	d.notifier.OnDiscoveryStarted(root)
	err := d.discover(ctx, root)
	d.notifier.OnDiscoveryCompleted(root, err == nil)
	return err
}

func (d *Discoverer) discover(ctx context.Context, root string) error {
	factory, err := d.fs.ForMRL(root)
	if err != nil {
		return err
	}
	device, relative, err := d.devices.EnsureDeviceForRoot(root, factory.IsNetwork())
	if err != nil {
		return err
	}

	banned, err := d.isBannedPath(device.ID, relative)
	if err != nil {
		return err
	}
	if banned {
		log.Info().Msgf("not discovering banned root %s", root)
		return nil
	}

	folder, err := d.db.FolderByPath(device.ID, relative)
	if errors.Is(err, database.ErrNotFound) {
		folder, err = d.db.InsertFolder(database.Folder{
			Path:      relative,
			Name:      helpers.FileName(strings.TrimSuffix(root, "/")),
			DeviceID:  device.ID,
			IsPresent: true,
			IsNetwork: factory.IsNetwork(),
		})
		if err == nil {
			d.notifier.OnFoldersAdded([]int64{folder.ID})
		}
	}
	if err != nil {
		return err
	}

	dir, err := factory.CreateDirectory(root)
	if err != nil {
		return err
	}
	return d.walk(ctx, device, folder, dir)
}

// isBannedPath reports whether the path or any ancestor is banned.
func (d *Discoverer) isBannedPath(deviceID int64, path string) (bool, error) {
	banned, err := d.db.BannedFolders()
	if err != nil {
		return false, err
	}
	normalized := strings.Trim(path, "/")
	for _, b := range banned {
		if b.DeviceID != deviceID {
			continue
		}
		bPath := strings.Trim(b.Path, "/")
		if normalized == bPath ||
			(bPath != "" && strings.HasPrefix(normalized, bPath+"/")) ||
			bPath == "" {
			return true, nil
		}
	}
	return false, nil
}

// walk synchronizes one folder with its directory view, then recurses.
func (d *Discoverer) walk(ctx context.Context, device database.Device,
	folder database.Folder, dir fsys.Directory,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.notifier.OnDiscoveryProgress(dir.MRL(), folder.Path)

	files, err := dir.Files(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Name == noMediaSentinel {
			log.Debug().Msgf("skipping folder with media opt-out: %s", dir.MRL())
			return d.deleteFolderContents(folder)
		}
	}

	if err := d.syncFiles(device, folder, files); err != nil {
		return err
	}

	subdirs, err := dir.Dirs(ctx)
	if err != nil {
		return err
	}

	known, err := d.db.SubFolders(folder.ID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(subdirs))

	for _, sub := range subdirs {
		_, relative, ok := d.devices.FromMountpoint(sub.MRL())
		if !ok {
			log.Warn().Msgf("subfolder %s resolves to no device, skipping", sub.MRL())
			continue
		}
		seen[relative] = true

		banned, err := d.isBannedPath(device.ID, relative)
		if err != nil {
			return err
		}
		if banned {
			continue
		}

		subFolder, err := d.db.FolderByPath(device.ID, relative)
		if errors.Is(err, database.ErrNotFound) {
			subFolder, err = d.db.InsertFolder(database.Folder{
				Path:      relative,
				Name:      helpers.FileName(strings.TrimSuffix(sub.MRL(), "/")),
				ParentID:  sql.NullInt64{Int64: folder.ID, Valid: true},
				DeviceID:  device.ID,
				IsPresent: true,
				IsNetwork: folder.IsNetwork,
			})
			if err == nil {
				d.notifier.OnFoldersAdded([]int64{subFolder.ID})
			}
		}
		if err != nil {
			return err
		}
		if err := d.walk(ctx, device, subFolder, sub); err != nil {
			return err
		}
	}

	// Folders that vanished from disk cascade their media away.
	var deleted []int64
	for _, k := range known {
		if seen[k.Path] || k.IsBanned {
			continue
		}
		if err := d.db.DeleteFolder(k.ID); err != nil {
			return err
		}
		deleted = append(deleted, k.ID)
	}
	if len(deleted) > 0 {
		d.notifier.OnFoldersDeleted(deleted)
	}
	return nil
}

// syncFiles diffs one folder's files against the database: new files
// are indexed, vanished ones removed, modified ones rescheduled.
func (d *Discoverer) syncFiles(device database.Device, folder database.Folder,
	files []fsys.File,
) error {
	known, err := d.db.FilesOfFolder(folder.ID)
	if err != nil {
		return err
	}
	knownByPath := make(map[string]database.File, len(known))
	for _, f := range known {
		knownByPath[f.MRL] = f
	}

	var added []int64
	var removed []int64
	type pendingSubtitle struct {
		file fsys.File
		path string
	}
	var subtitles []pendingSubtitle

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		_, relative, ok := d.devices.FromMountpoint(f.MRL)
		if !ok {
			continue
		}
		seen[relative] = true

		if existing, ok := knownByPath[relative]; ok {
			if existing.LastModificationDate != f.LastModificationDate ||
				existing.Size != f.Size {
				if err := d.refreshFile(device, folder, existing, f); err != nil {
					return err
				}
			}
			continue
		}

		ext := f.Extension
		switch {
		case helpers.IsMediaExtension(ext):
			mediaID, err := d.indexMedia(device, folder, f, relative)
			if err != nil {
				return err
			}
			added = append(added, mediaID)
		case helpers.IsSubtitleExtension(ext):
			subtitles = append(subtitles, pendingSubtitle{file: f, path: relative})
		case helpers.IsPlaylistExtension(ext):
			if err := d.indexPlaylist(folder, f, relative); err != nil {
				return err
			}
		}
	}

	// Vanished files take their media with them; the triggers cascade
	// the counters.
	for path, f := range knownByPath {
		if seen[path] {
			continue
		}
		if f.MediaID.Valid && f.Type == database.FileTypeMain {
			if err := d.db.DeleteMedia(f.MediaID.Int64); err != nil {
				return err
			}
			removed = append(removed, f.MediaID.Int64)
			continue
		}
		if err := d.db.DeleteFile(f.ID); err != nil {
			return err
		}
	}

	for _, sub := range subtitles {
		if err := d.indexSubtitle(folder, sub.file, sub.path); err != nil {
			return err
		}
	}

	if len(added) > 0 {
		d.notifier.OnMediaAdded(added)
	}
	if len(removed) > 0 {
		d.notifier.OnMediaDeleted(removed)
	}
	return nil
}

func (d *Discoverer) indexMedia(device database.Device, folder database.Folder,
	f fsys.File, relative string,
) (int64, error) {
	media, err := d.db.InsertMedia(database.Media{
		Title:     helpers.SanitizeTitle(helpers.Stem(f.MRL)),
		FileName:  f.Name,
		IsPresent: true,
		DeviceID:  sql.NullInt64{Int64: device.ID, Valid: true},
		FolderID:  sql.NullInt64{Int64: folder.ID, Valid: true},
	})
	if err != nil {
		return 0, err
	}
	file, err := d.db.InsertFile(database.File{
		MRL:                  relative,
		Type:                 database.FileTypeMain,
		Size:                 f.Size,
		LastModificationDate: f.LastModificationDate,
		IsNetwork:            f.IsNetwork,
		MediaID:              sql.NullInt64{Int64: media.ID, Valid: true},
		FolderID:             sql.NullInt64{Int64: folder.ID, Valid: true},
	})
	if err != nil {
		return 0, err
	}
	task, err := d.db.CreateTask(database.Task{
		Type:   database.TaskTypeParse,
		MRL:    f.MRL,
		FileID: sql.NullInt64{Int64: file.ID, Valid: true},
	})
	if errors.Is(err, database.ErrConflict) {
		return media.ID, nil
	}
	if err != nil {
		return 0, err
	}
	d.scheduler.Schedule(task, f.MRL)
	return media.ID, nil
}

func (d *Discoverer) indexPlaylist(folder database.Folder, f fsys.File, relative string) error {
	file, err := d.db.InsertFile(database.File{
		MRL:                  relative,
		Type:                 database.FileTypePlaylist,
		Size:                 f.Size,
		LastModificationDate: f.LastModificationDate,
		IsNetwork:            f.IsNetwork,
		FolderID:             sql.NullInt64{Int64: folder.ID, Valid: true},
	})
	if err != nil {
		return err
	}
	task, err := d.db.CreateTask(database.Task{
		Type:   database.TaskTypeParsePlaylist,
		MRL:    f.MRL,
		FileID: sql.NullInt64{Int64: file.ID, Valid: true},
	})
	if errors.Is(err, database.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	d.scheduler.Schedule(task, f.MRL)
	return nil
}

// indexSubtitle stores a subtitle file and links it to the closest
// sibling media by file name: exact stem prefix first, small edit
// distance as the fallback.
func (d *Discoverer) indexSubtitle(folder database.Folder, f fsys.File, relative string) error {
	file, err := d.db.InsertFile(database.File{
		MRL:                  relative,
		Type:                 database.FileTypeSubtitles,
		LinkedType:           database.LinkedFileTypeSubtitles,
		Size:                 f.Size,
		LastModificationDate: f.LastModificationDate,
		IsNetwork:            f.IsNetwork,
		FolderID:             sql.NullInt64{Int64: folder.ID, Valid: true},
	})
	if err != nil {
		return err
	}

	siblings, err := d.db.FilesOfFolder(folder.ID)
	if err != nil {
		return err
	}
	subStem := strings.ToLower(helpers.Stem(f.Name))
	var best *database.File
	bestDistance := subtitleLinkMaxDistance + 1
	for i := range siblings {
		sibling := siblings[i]
		if sibling.Type != database.FileTypeMain || !sibling.MediaID.Valid {
			continue
		}
		mediaStem := strings.ToLower(helpers.Stem(helpers.FileName(sibling.MRL)))
		if strings.HasPrefix(subStem, mediaStem) {
			best = &siblings[i]
			break
		}
		distance := edlib.LevenshteinDistance(subStem, mediaStem)
		if distance < bestDistance {
			bestDistance = distance
			best = &siblings[i]
		}
	}
	if best == nil {
		return nil
	}
	return d.db.LinkFileToMedia(file.ID, best.MediaID.Int64)
}

// refreshFile reschedules parsing for a file whose size or modification
// date changed.
func (d *Discoverer) refreshFile(_ database.Device, _ database.Folder,
	existing database.File, f fsys.File,
) error {
	if err := d.db.UpdateFileStats(existing.ID, f.Size, f.LastModificationDate); err != nil {
		return err
	}
	if existing.Type != database.FileTypeMain || !existing.MediaID.Valid {
		return nil
	}
	task, err := d.db.CreateTask(database.Task{
		Type:   database.TaskTypeRefresh,
		MRL:    f.MRL,
		FileID: sql.NullInt64{Int64: existing.ID, Valid: true},
	})
	if errors.Is(err, database.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	d.scheduler.Schedule(task, f.MRL)
	return nil
}

// deleteFolderContents wipes a folder's indexed media and subfolders,
// used when a .nomedia sentinel appears.
func (d *Discoverer) deleteFolderContents(folder database.Folder) error {
	files, err := d.db.FilesOfFolder(folder.ID)
	if err != nil {
		return err
	}
	var removed []int64
	for _, f := range files {
		if f.MediaID.Valid && f.Type == database.FileTypeMain {
			if err := d.db.DeleteMedia(f.MediaID.Int64); err != nil {
				return err
			}
			removed = append(removed, f.MediaID.Int64)
			continue
		}
		if err := d.db.DeleteFile(f.ID); err != nil {
			return err
		}
	}
	subs, err := d.db.SubFolders(folder.ID)
	if err != nil {
		return err
	}
	var deletedFolders []int64
	for _, sub := range subs {
		if err := d.db.DeleteFolder(sub.ID); err != nil {
			return err
		}
		deletedFolders = append(deletedFolders, sub.ID)
	}
	if len(removed) > 0 {
		d.notifier.OnMediaDeleted(removed)
	}
	if len(deletedFolders) > 0 {
		d.notifier.OnFoldersDeleted(deletedFolders)
	}
	return nil
}

// Reload revisits known roots. With no MRL every root reloads;
// otherwise only the matching root does.
func (d *Discoverer) Reload(ctx context.Context, mrl string) error {
	roots, err := d.db.RootFolders()
	if err != nil {
		return err
	}
	var errs []error
	for _, root := range roots {
		absolute, err := d.devices.AbsoluteMRL(root.DeviceID, root.Path)
		if errors.Is(err, database.ErrDeviceRemoved) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if mrl != "" && helpers.ToDirectoryMRL(mrl) != helpers.ToDirectoryMRL(absolute) {
			continue
		}
		if err := d.Discover(ctx, absolute); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ban marks a folder as excluded and removes everything already indexed
// under it. Banning is idempotent.
func (d *Discoverer) Ban(mrl string) error {
	root := helpers.ToDirectoryMRL(mrl)
	device, relative, ok := d.devices.FromMountpoint(root)
	if !ok {
		factory, err := d.fs.ForMRL(root)
		if err != nil {
			return err
		}
		deviceRow, rel, err := d.devices.EnsureDeviceForRoot(root, factory.IsNetwork())
		if err != nil {
			return err
		}
		device, relative = deviceRow, rel
	}

	folder, err := d.db.FolderByPath(device.ID, relative)
	if errors.Is(err, database.ErrNotFound) {
		folder, err = d.db.InsertFolder(database.Folder{
			Path:     relative,
			Name:     helpers.FileName(strings.TrimSuffix(root, "/")),
			DeviceID: device.ID,
			IsBanned: true,
		})
		if err != nil {
			return err
		}
		return nil
	}
	if err != nil {
		return err
	}
	if folder.IsBanned {
		return nil
	}
	if err := d.deleteFolderContents(folder); err != nil {
		return err
	}
	return d.db.SetFolderBanned(folder.ID, true)
}

// Unban lifts a ban and rediscovers the subtree.
func (d *Discoverer) Unban(ctx context.Context, mrl string) error {
	root := helpers.ToDirectoryMRL(mrl)
	device, relative, ok := d.devices.FromMountpoint(root)
	if !ok {
		return database.ErrNotFound
	}
	folder, err := d.db.FolderByPath(device.ID, relative)
	if err != nil {
		return err
	}
	if !folder.IsBanned {
		return nil
	}
	if err := d.db.SetFolderBanned(folder.ID, false); err != nil {
		return err
	}
	return d.Discover(ctx, root)
}

// IsBanned reports whether the folder at mrl is explicitly banned.
func (d *Discoverer) IsBanned(mrl string) (bool, error) {
	device, relative, ok := d.devices.FromMountpoint(helpers.ToDirectoryMRL(mrl))
	if !ok {
		return false, nil
	}
	folder, err := d.db.FolderByPath(device.ID, relative)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return folder.IsBanned, nil
}

// IsIndexed reports whether mrl sits under a known, unbanned root.
func (d *Discoverer) IsIndexed(mrl string) (bool, error) {
	device, relative, ok := d.devices.FromMountpoint(mrl)
	if !ok {
		return false, nil
	}
	roots, err := d.db.RootFolders()
	if err != nil {
		return false, err
	}
	normalized := strings.Trim(relative, "/")
	for _, root := range roots {
		if root.DeviceID != device.ID {
			continue
		}
		rootPath := strings.Trim(root.Path, "/")
		if rootPath == "" || normalized == rootPath ||
			strings.HasPrefix(normalized, rootPath+"/") {
			banned, err := d.isBannedPath(device.ID, relative)
			if err != nil {
				return false, err
			}
			return !banned, nil
		}
	}
	return false, nil
}

// RemoveRoot forgets a discovery root. Indexed media under it become
// external so playback history survives, then the folder tree goes.
func (d *Discoverer) RemoveRoot(mrl string) error {
	root := helpers.ToDirectoryMRL(mrl)
	device, relative, ok := d.devices.FromMountpoint(root)
	if !ok {
		return database.ErrNotFound
	}
	folder, err := d.db.FolderByPath(device.ID, relative)
	if err != nil {
		return err
	}
	mountpoint := strings.TrimSuffix(root, relative+"/")
	if relative == "" {
		mountpoint = root
	}
	if err := d.db.ConvertFolderMediaToExternal(folder.ID, mountpoint); err != nil {
		return err
	}
	if err := d.db.DeleteFolder(folder.ID); err != nil {
		return err
	}
	d.notifier.OnFoldersDeleted([]int64{folder.ID})
	return nil
}
