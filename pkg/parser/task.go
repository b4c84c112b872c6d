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

// Package parser runs discovered files through an ordered set of
// enrichment services on per-service worker pools.
package parser

import "github.com/MediaLibProject/medialib-core/pkg/database"

// Status is a service's verdict on one step of one task.
type Status int

const (
	// StatusUnknown is the initial sentinel and must never be returned
	// by a service run.
	StatusUnknown Status = iota
	// StatusSuccess completes the step and advances the task.
	StatusSuccess
	// StatusTemporaryUnavailable reruns the step later; the target is
	// currently unreachable.
	StatusTemporaryUnavailable
	// StatusRequeue pushes the task to the back of the queue.
	StatusRequeue
	// StatusFatal stops the task for good.
	StatusFatal
	// StatusCompleted finishes the whole task regardless of remaining
	// steps.
	StatusCompleted
	// StatusDiscarded deletes the task; its target became irrelevant.
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTemporaryUnavailable:
		return "temporary unavailable"
	case StatusRequeue:
		return "requeue"
	case StatusFatal:
		return "fatal"
	case StatusCompleted:
		return "completed"
	case StatusDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Probe is what metadata extraction learned about a media; analysis
// turns it into entity links.
type Probe struct {
	Title       string
	AlbumTitle  string
	ArtistName  string
	AlbumArtist string
	GenreName   string
	ShowTitle   string
	Type        database.MediaType
	SubType     database.MediaSubType
	Duration    int64
	ReleaseDate int64
	TrackNumber int
	DiscNumber  int
	Season      int
	Episode     int
}

// Item is the runtime envelope of a persisted task while it travels
// through the pipeline.
type Item struct {
	Probe       *Probe
	AbsoluteMRL string
	Task        database.Task
	Media       database.Media
}
