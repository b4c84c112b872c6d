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

// Package fsys abstracts the filesystems media is discovered on. A
// factory per URI scheme produces directory and file views; the core
// never touches the host filesystem directly.
package fsys

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/MediaLibProject/medialib-core/pkg/helpers"
)

var (
	ErrUnsupportedScheme = errors.New("no filesystem factory for scheme")
	ErrNotADirectory     = errors.New("mrl does not name a directory")
)

// File is a snapshot view of one file, taken while walking a directory.
type File struct {
	Name                 string
	MRL                  string
	Extension            string
	Size                 int64
	LastModificationDate int64
	IsNetwork            bool
}

// Directory is a browsable view of one directory.
type Directory interface {
	MRL() string
	// Files lists the directory's immediate files.
	Files(ctx context.Context) ([]File, error)
	// Dirs lists the directory's immediate subdirectories.
	Dirs(ctx context.Context) ([]Directory, error)
}

// Factory produces views for MRLs of one scheme.
type Factory interface {
	Scheme() string
	IsNetwork() bool
	// CreateDirectory resolves a directory MRL into a browsable view.
	// The directory need not exist yet; listing it reports the error.
	CreateDirectory(mrl string) (Directory, error)
	// Open reads a single file, used for playlist parsing and probing.
	Open(ctx context.Context, mrl string) (io.ReadCloser, error)
}

// Registry maps schemes to factories. Network factories can be masked
// off globally when network discovery is disabled.
type Registry struct {
	factories      map[string]Factory
	networkEnabled bool
	mu             sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory; a later registration for the same scheme
// wins, so hosts can override the built-in backends.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(f.Scheme())] = f
}

func (r *Registry) SetNetworkEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networkEnabled = enabled
}

func (r *Registry) NetworkEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.networkEnabled
}

// ForMRL picks the factory responsible for an MRL.
func (r *Registry) ForMRL(mrl string) (Factory, error) {
	scheme := helpers.SchemeOf(mrl)
	if scheme == "" {
		return nil, helpers.ErrInvalidMRL
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[scheme]
	if !ok {
		return nil, ErrUnsupportedScheme
	}
	if f.IsNetwork() && !r.networkEnabled {
		return nil, ErrUnsupportedScheme
	}
	return f, nil
}
