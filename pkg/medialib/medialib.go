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

// Package medialib is the public facade of the media library: one
// MediaLibrary instance owns the catalogue database, the discovery and
// parser machinery and the callback stream to the host.
package medialib

import (
	"context"
	"errors"
	"sync"

	"github.com/MediaLibProject/medialib-core/pkg/cachemanager"
	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/devices"
	"github.com/MediaLibProject/medialib-core/pkg/discovery"
	"github.com/MediaLibProject/medialib-core/pkg/fsys"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/MediaLibProject/medialib-core/pkg/parser"
	"github.com/MediaLibProject/medialib-core/pkg/thumbnails"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sentinel errors surfaced by facade operations.
var (
	ErrNotFound      = database.ErrNotFound
	ErrConflict      = database.ErrConflict
	ErrDeviceRemoved = database.ErrDeviceRemoved
	ErrNotStarted    = errors.New("media library is not started")
)

// InitializeResult tells the host how opening the library went.
type InitializeResult int

const (
	InitializeSuccess InitializeResult = iota
	InitializeAlreadyInitialized
	// InitializeDbReset means the database was too old to upgrade and
	// was rebuilt; the host must reconfigure its roots.
	InitializeDbReset
	InitializeFailed
)

type MediaLibrary struct {
	ctx    context.Context
	cancel context.CancelFunc
	clock  clockwork.Clock

	cfg        *config.Instance
	db         *medialibdb.MediaLibDB
	devices    *devices.Registry
	fs         *fsys.Registry
	parser     *parser.Parser
	discoverer *discovery.Discoverer
	thumbnails *thumbnails.Queue
	cache      *cachemanager.CacheManager
	cb         Callbacks

	mediaCache *entityCache[database.Media]

	jobs       chan func()
	jobMu      sync.Mutex
	jobCond    *sync.Cond
	jobsPaused bool

	mu          sync.Mutex
	initialized bool
	started     bool
	wg          sync.WaitGroup
}

// New builds a library around a config instance. The zero clock is the
// real one; tests inject a fake through NewWithClock.
func New(cfg *config.Instance) *MediaLibrary {
	return NewWithClock(cfg, clockwork.NewRealClock())
}

func NewWithClock(cfg *config.Instance, clock clockwork.Clock) *MediaLibrary {
	ctx, cancel := context.WithCancel(context.Background())
	ml := &MediaLibrary{
		ctx:        ctx,
		cancel:     cancel,
		clock:      clock,
		cfg:        cfg,
		fs:         fsys.NewRegistry(),
		mediaCache: newEntityCache[database.Media](),
		jobs:       make(chan func(), 64),
	}
	ml.jobCond = sync.NewCond(&ml.jobMu)
	return ml
}

// Initialize opens (migrating if needed) the database and wires the
// subsystems. It must be called exactly once before Start.
func (ml *MediaLibrary) Initialize(dbPath, thumbnailDir string, cb Callbacks) InitializeResult {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.initialized {
		return InitializeAlreadyInitialized
	}
	if cb == nil {
		cb = CallbacksBase{}
	}
	ml.cb = cb

	db, err := medialibdb.Open(ml.ctx, dbPath, ml.clock)
	if err != nil {
		log.Error().Err(err).Msg("failed to open media database")
		return InitializeFailed
	}

	result := InitializeSuccess
	err = db.Migrate()
	if errors.Is(err, medialibdb.ErrSchemaReset) {
		result = InitializeDbReset
	} else if err != nil {
		log.Error().Err(err).Msg("failed to migrate media database")
		_ = db.Close()
		return InitializeFailed
	}

	ml.db = db
	ml.devices = devices.NewRegistry(db)
	ml.devices.SetObserver(ml)

	ml.fs.Register(fsys.NewLocalFactory())
	ml.fs.SetNetworkEnabled(ml.cfg.NetworkDiscoveryEnabled())

	ml.parser = parser.New(ml.ctx, db, ml.cfg, ml)
	ml.parser.AddService(parser.NewMetadataExtractionService(db, ml.devices, ml.fs, nil))
	ml.parser.AddService(parser.NewMetadataAnalysisService(db))

	ml.discoverer = discovery.New(db, ml.devices, ml.fs, ml, ml)
	ml.thumbnails = thumbnails.NewQueue(ml.ctx, db, ml.cfg, thumbnailDir, ml)
	ml.cache = cachemanager.New(ml.ctx, db, ml.cfg, nil)

	ml.initialized = true
	return result
}

// Start brings the background machinery up: device registry, parser
// pools, thumbnailer, cache scheduler and the discovery worker.
func (ml *MediaLibrary) Start() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if !ml.initialized {
		return ErrNotStarted
	}
	if ml.started {
		return nil
	}
	if err := ml.devices.Load(); err != nil {
		return err
	}
	if err := ml.parser.Start(); err != nil {
		return err
	}
	if err := ml.thumbnails.Start(); err != nil {
		return err
	}
	if err := ml.cache.Start(); err != nil {
		return err
	}
	if err := ml.devices.StartListers(); err != nil {
		log.Warn().Err(err).Msg("some device listers failed to start")
	}

	ml.wg.Add(1)
	go ml.discoveryWorker()
	ml.started = true
	return nil
}

// Stop shuts everything down and closes the database.
func (ml *MediaLibrary) Stop() {
	ml.mu.Lock()
	if !ml.initialized {
		ml.mu.Unlock()
		return
	}
	started := ml.started
	ml.started = false
	ml.mu.Unlock()

	if started {
		ml.devices.StopListers()
		ml.cache.Stop()
		ml.thumbnails.Stop()
		ml.parser.Stop()
		close(ml.jobs)
		ml.jobMu.Lock()
		ml.jobsPaused = false
		ml.jobCond.Broadcast()
		ml.jobMu.Unlock()
		ml.wg.Wait()
	}
	ml.cancel()
	if err := ml.db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close media database")
	}
}

// PauseBackgroundOperations gates the parser workers and the discovery
// worker at their next suspension point.
func (ml *MediaLibrary) PauseBackgroundOperations() {
	ml.parser.Pause()
	ml.jobMu.Lock()
	ml.jobsPaused = true
	ml.jobMu.Unlock()
}

func (ml *MediaLibrary) ResumeBackgroundOperations() {
	ml.parser.Resume()
	ml.jobMu.Lock()
	ml.jobsPaused = false
	ml.jobCond.Broadcast()
	ml.jobMu.Unlock()
}

// SetVerbosity adjusts the global log level.
func (*MediaLibrary) SetVerbosity(v helpers.Verbosity) {
	helpers.SetVerbosity(v)
}

// discoveryWorker serializes discovery, reload and ban jobs.
func (ml *MediaLibrary) discoveryWorker() {
	defer ml.wg.Done()
	for job := range ml.jobs {
		ml.jobMu.Lock()
		for ml.jobsPaused {
			ml.jobCond.Wait()
		}
		ml.jobMu.Unlock()
		if ml.ctx.Err() != nil {
			return
		}
		job()
	}
}

func (ml *MediaLibrary) queueJob(job func()) bool {
	ml.mu.Lock()
	started := ml.started
	ml.mu.Unlock()
	if !started {
		return false
	}
	select {
	case ml.jobs <- job:
		return true
	case <-ml.ctx.Done():
		return false
	}
}

// Discover queues discovery of a new root.
func (ml *MediaLibrary) Discover(mrl string) bool {
	return ml.queueJob(func() {
		if err := ml.discoverer.Discover(ml.ctx, mrl); err != nil {
			log.Error().Err(err).Msgf("discovery of %s failed", mrl)
		}
	})
}

// Reload revisits every known root, or just one when mrl is non-empty.
func (ml *MediaLibrary) Reload(mrl string) bool {
	return ml.queueJob(func() {
		if err := ml.discoverer.Reload(ml.ctx, mrl); err != nil {
			log.Error().Err(err).Msg("reload failed")
		}
	})
}

// RemoveRoot forgets a root; its media survive as external entries.
func (ml *MediaLibrary) RemoveRoot(mrl string) bool {
	return ml.queueJob(func() {
		err := ml.discoverer.RemoveRoot(mrl)
		if err != nil {
			log.Error().Err(err).Msgf("failed to remove root %s", mrl)
		}
		ml.cb.OnRootRemoved(mrl, err == nil)
	})
}

// BanFolder excludes a folder subtree from the library.
func (ml *MediaLibrary) BanFolder(mrl string) bool {
	return ml.queueJob(func() {
		err := ml.discoverer.Ban(mrl)
		if err != nil {
			log.Error().Err(err).Msgf("failed to ban %s", mrl)
		}
		ml.cb.OnRootBanned(mrl, err == nil)
	})
}

// UnbanFolder lifts a ban and rediscovers the subtree.
func (ml *MediaLibrary) UnbanFolder(mrl string) bool {
	return ml.queueJob(func() {
		err := ml.discoverer.Unban(ml.ctx, mrl)
		if err != nil {
			log.Error().Err(err).Msgf("failed to unban %s", mrl)
		}
		ml.cb.OnRootUnbanned(mrl, err == nil)
	})
}

func (ml *MediaLibrary) IsBanned(mrl string) bool {
	banned, err := ml.discoverer.IsBanned(mrl)
	if err != nil {
		log.Error().Err(err).Msg("failed to check ban state")
		return false
	}
	return banned
}

func (ml *MediaLibrary) IsIndexed(mrl string) bool {
	indexed, err := ml.discoverer.IsIndexed(mrl)
	if err != nil {
		log.Error().Err(err).Msg("failed to check index state")
		return false
	}
	return indexed
}

// Roots lists the folder rows of the non-banned discovery roots. Their
// paths are device-relative; they are not resolved to absolute MRLs.
func (ml *MediaLibrary) Roots() ([]database.Folder, error) {
	return ml.db.RootFolders()
}

// BannedRoots lists the banned folders.
func (ml *MediaLibrary) BannedRoots() ([]database.Folder, error) {
	return ml.db.BannedFolders()
}

// ForceRescan drops every pending task and walks all roots again.
func (ml *MediaLibrary) ForceRescan() bool {
	return ml.queueJob(func() {
		tasks, err := ml.db.PendingTasks()
		if err != nil {
			log.Error().Err(err).Msg("failed to list tasks for rescan")
			return
		}
		for _, t := range tasks {
			if err := ml.db.DeleteTask(t.ID); err != nil {
				log.Warn().Err(err).Msg("failed to drop task for rescan")
			}
		}
		if err := ml.discoverer.Reload(ml.ctx, ""); err != nil {
			log.Error().Err(err).Msg("rescan reload failed")
		}
	})
}

// ForceParserRetry reopens fatal tasks.
func (ml *MediaLibrary) ForceParserRetry() error {
	return ml.parser.ForceRetry()
}

// SetDeviceLister installs a device lister for a scheme and returns the
// callback target it must report into.
func (ml *MediaLibrary) SetDeviceLister(scheme string, lister devices.Lister) devices.ListerCb {
	return ml.devices.SetLister(scheme, lister)
}

// AddNetworkFileSystemFactory registers a host filesystem backend.
func (ml *MediaLibrary) AddNetworkFileSystemFactory(factory fsys.Factory) {
	ml.fs.Register(factory)
}

// SetDiscoverNetworkEnabled gates every network filesystem factory.
func (ml *MediaLibrary) SetDiscoverNetworkEnabled(enabled bool) {
	ml.fs.SetNetworkEnabled(enabled)
	ml.cfg.SetNetworkDiscoveryEnabled(enabled)
}

// AddParserService appends a host enrichment stage to the pipeline.
func (ml *MediaLibrary) AddParserService(s parser.Service) {
	ml.parser.AddService(s)
}

// AddThumbnailer installs the thumbnail generator backend.
func (ml *MediaLibrary) AddThumbnailer(g thumbnails.Generator) {
	ml.thumbnails.SetGenerator(g)
}

// RequestThumbnail asks for a media thumbnail at a position.
func (ml *MediaLibrary) RequestThumbnail(mediaID int64, size database.ThumbnailSize,
	position float64,
) error {
	md, err := ml.Media(mediaID)
	if err != nil {
		return err
	}
	if md == nil {
		return ErrNotFound
	}
	mrl := ""
	if file, err := ml.db.MainFileOfMedia(md.ID); err == nil {
		if md.DeviceID.Valid {
			mrl, err = ml.devices.AbsoluteMRL(md.DeviceID.Int64, file.MRL)
			if err != nil {
				return err
			}
		} else {
			mrl = file.MRL
		}
	}
	ml.thumbnails.Ask(thumbnails.Request{
		MediaID: mediaID, MRL: mrl, Size: size, Position: position,
	})
	return nil
}

// CacheNewSubscriptionMedia triggers a caching pass now.
func (ml *MediaLibrary) CacheNewSubscriptionMedia() error {
	return ml.cache.CacheNewItems()
}

// --- internal notifier adapters ---------------------------------------

// OnDevicePresenceChanged implements devices.Observer.
func (ml *MediaLibrary) OnDevicePresenceChanged(device database.Device) {
	ml.mediaCache.Clear()
	ml.cb.OnDevicePresenceChanged(device.UUID, device.IsPresent)
}

// OnParsingProgress implements parser.Notifier.
func (ml *MediaLibrary) OnParsingProgress(done, scheduled int) {
	if scheduled <= 0 {
		return
	}
	ml.cb.OnParsingProgress(done * 100 / scheduled)
}

// OnIdleChanged implements parser.Notifier.
func (ml *MediaLibrary) OnIdleChanged(idle bool) {
	ml.cb.OnBackgroundIdleChanged(idle)
}

// OnThumbnailReady implements thumbnails.Notifier.
func (ml *MediaLibrary) OnThumbnailReady(mediaID int64, size database.ThumbnailSize, success bool) {
	ml.cb.OnThumbnailReady(mediaID, size, success)
}

// Discovery notifier implementation; media mutations invalidate the
// entity cache before reaching the host.

func (ml *MediaLibrary) OnDiscoveryStarted(root string) {
	ml.cb.OnDiscoveryStarted(root)
}

func (ml *MediaLibrary) OnDiscoveryProgress(root, currentFolder string) {
	ml.cb.OnDiscoveryProgress(root, currentFolder)
}

func (ml *MediaLibrary) OnDiscoveryCompleted(root string, success bool) {
	ml.cb.OnDiscoveryCompleted(root, success)
}

func (ml *MediaLibrary) OnMediaAdded(ids []int64) {
	ml.cb.OnMediaAdded(ids)
}

func (ml *MediaLibrary) OnMediaDeleted(ids []int64) {
	ml.mediaCache.Invalidate(ids...)
	ml.cb.OnMediaDeleted(ids)
}

func (ml *MediaLibrary) OnFoldersAdded(ids []int64) {
	ml.cb.OnFoldersAdded(ids)
}

func (ml *MediaLibrary) OnFoldersDeleted(ids []int64) {
	ml.mediaCache.Clear()
	ml.cb.OnFoldersDeleted(ids)
}

// Schedule implements discovery.TaskScheduler.
func (ml *MediaLibrary) Schedule(task database.Task, absoluteMRL string) {
	ml.parser.Enqueue(&parser.Item{Task: task, AbsoluteMRL: absoluteMRL})
}
