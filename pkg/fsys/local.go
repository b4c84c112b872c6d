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

package fsys

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/spf13/afero"
)

// LocalFactory serves file:// MRLs from an afero filesystem, the real
// OS tree in production and a memory map in tests.
type LocalFactory struct {
	fs afero.Fs
}

func NewLocalFactory() *LocalFactory {
	return &LocalFactory{fs: afero.NewOsFs()}
}

// NewLocalFactoryWithFs is used by tests.
func NewLocalFactoryWithFs(fs afero.Fs) *LocalFactory {
	return &LocalFactory{fs: fs}
}

func (*LocalFactory) Scheme() string {
	return "file"
}

func (*LocalFactory) IsNetwork() bool {
	return false
}

func (f *LocalFactory) Open(_ context.Context, mrl string) (io.ReadCloser, error) {
	path := helpers.MRLToPath(mrl)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", helpers.ErrInvalidMRL, mrl)
	}
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}

func (f *LocalFactory) CreateDirectory(mrl string) (Directory, error) {
	path := helpers.MRLToPath(mrl)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", helpers.ErrInvalidMRL, mrl)
	}
	return &localDirectory{fs: f.fs, path: path}, nil
}

type localDirectory struct {
	fs   afero.Fs
	path string
}

func (d *localDirectory) MRL() string {
	return helpers.ToDirectoryMRL(helpers.PathToMRL(d.path))
}

func (d *localDirectory) Files(ctx context.Context) ([]File, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.path, err)
	}
	var files []File
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		mrl := helpers.PathToMRL(filepath.Join(d.path, entry.Name()))
		files = append(files, File{
			Name:                 entry.Name(),
			MRL:                  mrl,
			Extension:            helpers.Extension(mrl),
			Size:                 entry.Size(),
			LastModificationDate: entry.ModTime().Unix(),
		})
	}
	return files, nil
}

func (d *localDirectory) Dirs(ctx context.Context) ([]Directory, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.path, err)
	}
	var dirs []Directory
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		dirs = append(dirs, &localDirectory{
			fs:   d.fs,
			path: filepath.Join(d.path, entry.Name()),
		})
	}
	return dirs, nil
}
