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

import "github.com/MediaLibProject/medialib-core/pkg/helpers/syncutil"

// entityCache is a lock-protected id-keyed cache of loaded rows, one
// per entity kind, owned by the library instance. Lookup-or-load is
// atomic so each id resolves to at most one load at a time.
type entityCache[T any] struct {
	entries map[int64]T
	mu      syncutil.Mutex
}

func newEntityCache[T any]() *entityCache[T] {
	return &entityCache[T]{entries: make(map[int64]T)}
}

// GetOrLoad returns the cached row or loads and caches it.
func (c *entityCache[T]) GetOrLoad(id int64, load func(int64) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[id]; ok {
		return entry, nil
	}
	entry, err := load(id)
	if err != nil {
		var zero T
		return zero, err
	}
	c.entries[id] = entry
	return entry, nil
}

func (c *entityCache[T]) Invalidate(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
}

func (c *entityCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]T)
}
