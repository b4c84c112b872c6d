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

package medialib

import "github.com/MediaLibProject/medialib-core/pkg/database"

// Callbacks is the single sink for every asynchronous event the
// library emits. Calls arrive on worker goroutines and must not block;
// batched id lists carry no cross-kind ordering guarantee.
type Callbacks interface {
	OnMediaAdded(ids []int64)
	OnMediaModified(ids []int64)
	OnMediaDeleted(ids []int64)

	OnFoldersAdded(ids []int64)
	OnFoldersModified(ids []int64)
	OnFoldersDeleted(ids []int64)

	OnPlaylistsModified(ids []int64)
	OnMediaGroupsModified(ids []int64)

	OnDiscoveryStarted(root string)
	OnDiscoveryProgress(root, currentFolder string)
	OnDiscoveryCompleted(root string, success bool)

	OnRootBanned(root string, success bool)
	OnRootUnbanned(root string, success bool)
	OnRootRemoved(root string, success bool)

	// OnParsingProgress reports overall pipeline progress in percent.
	OnParsingProgress(percent int)
	OnBackgroundIdleChanged(idle bool)

	OnThumbnailReady(mediaID int64, size database.ThumbnailSize, success bool)

	OnDevicePresenceChanged(uuid string, present bool)
}

// CallbacksBase is an empty implementation hosts can embed to pick the
// events they care about.
type CallbacksBase struct{}

func (CallbacksBase) OnMediaAdded([]int64)                                   {}
func (CallbacksBase) OnMediaModified([]int64)                                {}
func (CallbacksBase) OnMediaDeleted([]int64)                                 {}
func (CallbacksBase) OnFoldersAdded([]int64)                                 {}
func (CallbacksBase) OnFoldersModified([]int64)                              {}
func (CallbacksBase) OnFoldersDeleted([]int64)                               {}
func (CallbacksBase) OnPlaylistsModified([]int64)                            {}
func (CallbacksBase) OnMediaGroupsModified([]int64)                          {}
func (CallbacksBase) OnDiscoveryStarted(string)                              {}
func (CallbacksBase) OnDiscoveryProgress(string, string)                     {}
func (CallbacksBase) OnDiscoveryCompleted(string, bool)                      {}
func (CallbacksBase) OnRootBanned(string, bool)                              {}
func (CallbacksBase) OnRootUnbanned(string, bool)                            {}
func (CallbacksBase) OnRootRemoved(string, bool)                             {}
func (CallbacksBase) OnParsingProgress(int)                                  {}
func (CallbacksBase) OnBackgroundIdleChanged(bool)                           {}
func (CallbacksBase) OnThumbnailReady(int64, database.ThumbnailSize, bool)   {}
func (CallbacksBase) OnDevicePresenceChanged(string, bool)                   {}
