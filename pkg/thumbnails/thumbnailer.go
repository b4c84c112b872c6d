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

// Package thumbnails queues thumbnail generation requests for an
// injected generator backend.
package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

// Bucket widths in pixels; generators preserve aspect and may crop.
var sizeWidths = map[database.ThumbnailSize]int{
	database.ThumbnailSizeSmall:  256,
	database.ThumbnailSizeBanner: 512,
	database.ThumbnailSizeLarge:  1024,
}

// Request asks for one media's thumbnail at a position in [0,1].
type Request struct {
	MediaID  int64
	MRL      string
	Size     database.ThumbnailSize
	Position float64
}

// Generator produces a scaled image for a media at a position. A
// generation exceeding its context deadline counts as a temporary
// failure and the request is retried on the next ask.
type Generator interface {
	Generate(ctx context.Context, req Request, width int, destPath string) error
}

// Notifier is told when a thumbnail request finished, success or not.
type Notifier interface {
	OnThumbnailReady(mediaID int64, size database.ThumbnailSize, success bool)
}

// Queue serializes thumbnail generation on one worker.
type Queue struct {
	ctx       context.Context
	db        *medialibdb.MediaLibDB
	cfg       *config.Instance
	dir       string
	notifier  Notifier
	generator Generator

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []Request
	stopped  bool
	started  bool
	wg       sync.WaitGroup
}

func NewQueue(ctx context.Context, db *medialibdb.MediaLibDB, cfg *config.Instance,
	dir string, notifier Notifier,
) *Queue {
	q := &Queue{ctx: ctx, db: db, cfg: cfg, dir: dir, notifier: notifier}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetGenerator installs the backend. Without one, every request fails
// fast with a callback.
func (q *Queue) SetGenerator(g Generator) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generator = g
}

func (q *Queue) Start() error {
	if err := os.MkdirAll(q.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	q.started = true
	q.wg.Add(1)
	go q.worker()
	return nil
}

func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

// Ask enqueues a request; duplicates for the same media and size are
// coalesced.
func (q *Queue) Ask(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	for _, p := range q.pending {
		if p.MediaID == req.MediaID && p.Size == req.Size {
			return
		}
	}
	q.pending = append(q.pending, req)
	q.cond.Broadcast()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for !q.stopped && len(q.pending) == 0 {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		generator := q.generator
		q.mu.Unlock()

		q.process(req, generator)
	}
}

// destPath names images by media id and size bucket.
func (q *Queue) destPath(req Request) string {
	return filepath.Join(q.dir, fmt.Sprintf("%d_%d.jpg", req.MediaID, req.Size))
}

func (q *Queue) process(req Request, generator Generator) {
	success := false
	defer func() {
		if q.notifier != nil {
			q.notifier.OnThumbnailReady(req.MediaID, req.Size, success)
		}
	}()

	if generator == nil {
		log.Debug().Msg("no thumbnailer installed, failing request")
		return
	}
	timeout := time.Duration(q.cfg.ThumbnailTimeoutSeconds()) * time.Second
	ctx, cancel := context.WithTimeout(q.ctx, timeout)
	defer cancel()

	dest := q.destPath(req)
	err := generator.Generate(ctx, req, sizeWidths[req.Size], dest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Msgf("thumbnail generation timed out for media %d", req.MediaID)
		} else {
			log.Warn().Err(err).Msgf("thumbnail generation failed for media %d", req.MediaID)
		}
		if dbErr := q.db.RecordThumbnailFailure(
			helpers.PathToMRL(dest), database.ThumbnailOriginMedia); dbErr != nil {
			log.Error().Err(dbErr).Msg("failed to record thumbnail failure")
		}
		return
	}

	_, err = q.db.SetEntityThumbnail(database.ThumbnailEntityMedia, req.MediaID,
		req.Size, helpers.PathToMRL(dest), database.ThumbnailOriginMedia, true, true)
	if err != nil {
		log.Error().Err(err).Msg("failed to store generated thumbnail")
		return
	}
	success = true
}
