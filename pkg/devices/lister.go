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

package devices

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LocalLister watches the usual mount directories with inotify and
// reports each appearing or vanishing directory as a removable device.
// UUIDs are derived from the mount directory name so a drive keeps its
// identity across replug cycles on the same system.
type LocalLister struct {
	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
	watchDirs []string
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewLocalLister picks the watchable mount directories that exist.
func NewLocalLister() (*LocalLister, error) {
	var watchDirs []string

	if username := os.Getenv("USER"); username != "" {
		for _, base := range []string{"/media", "/run/media"} {
			userDir := filepath.Join(base, username)
			if _, err := os.Stat(userDir); err == nil {
				watchDirs = append(watchDirs, userDir)
			}
		}
	}
	for _, dir := range []string{"/media", "/mnt"} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		found := false
		for _, existing := range watchDirs {
			if existing == dir {
				found = true
				break
			}
		}
		if !found {
			watchDirs = append(watchDirs, dir)
		}
	}

	if len(watchDirs) == 0 {
		return nil, errors.New("no suitable mount directories found to watch")
	}
	return &LocalLister{
		stopChan:  make(chan struct{}),
		watchDirs: watchDirs,
	}, nil
}

func mountUUID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(filepath.Base(path))).String()
}

func (l *LocalLister) Start(cb ListerCb) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher
	for _, dir := range l.watchDirs {
		if err := watcher.Add(dir); err != nil {
			log.Warn().Err(err).Msgf("failed to watch mount directory %s", dir)
		}
	}

	// Report the mounts that were already there.
	for _, dir := range l.watchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			cb.OnDeviceMounted(mountUUID(path), helpers.PathToMRL(path), true)
		}
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.stopChan:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				mrl := helpers.PathToMRL(event.Name)
				switch {
				case event.Op.Has(fsnotify.Create):
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						cb.OnDeviceMounted(mountUUID(event.Name), mrl, true)
					}
				case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
					cb.OnDeviceUnmounted(mountUUID(event.Name), mrl)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("mount watcher error")
			}
		}
	}()
	return nil
}

func (l *LocalLister) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.watcher != nil {
			if err := l.watcher.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close mount watcher")
			}
		}
		l.wg.Wait()
	})
}
