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
	"net"
	"strings"

	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/cloudsoda/go-smb2"
	"github.com/rs/zerolog/log"
)

// SMBCredentials feed the NTLM initiator; anonymous when empty.
type SMBCredentials struct {
	Username string
	Password string
}

// SMBFactory serves smb:// MRLs. Sessions are dialed per directory
// listing and torn down after; the library's discovery passes are
// infrequent enough that pooling is not worth the lifetime tracking.
type SMBFactory struct {
	creds SMBCredentials
}

func NewSMBFactory(creds SMBCredentials) *SMBFactory {
	return &SMBFactory{creds: creds}
}

func (*SMBFactory) Scheme() string {
	return "smb"
}

func (*SMBFactory) IsNetwork() bool {
	return true
}

func (f *SMBFactory) CreateDirectory(mrl string) (Directory, error) {
	parts, err := helpers.ParseMRL(mrl)
	if err != nil {
		return nil, err
	}
	server := parts.Host
	if _, _, splitErr := net.SplitHostPort(server); splitErr != nil {
		server = net.JoinHostPort(server, "445")
	}
	normalized := strings.ReplaceAll(parts.Path, "\\", "/")
	segments := strings.Split(strings.Trim(normalized, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return nil, fmt.Errorf("%w: smb mrl without share: %s", helpers.ErrInvalidMRL, mrl)
	}
	return &smbDirectory{
		factory: f,
		server:  server,
		host:    parts.Host,
		share:   segments[0],
		path:    strings.Join(segments[1:], "/"),
	}, nil
}

// Open dials a fresh session that lives until the returned reader is
// closed.
func (f *SMBFactory) Open(ctx context.Context, mrl string) (io.ReadCloser, error) {
	dir, err := f.CreateDirectory(helpers.ParentMRL(mrl))
	if err != nil {
		return nil, err
	}
	d, ok := dir.(*smbDirectory)
	if !ok {
		return nil, fmt.Errorf("unexpected smb directory type for %s", mrl)
	}
	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     f.creds.Username,
			Password: f.creds.Password,
		},
	}
	session, err := dialer.Dial(ctx, d.server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial smb server %s: %w", d.server, err)
	}
	share, err := session.Mount(d.share)
	if err != nil {
		_ = session.Logoff()
		return nil, fmt.Errorf("failed to mount smb share %s: %w", d.share, err)
	}
	name := helpers.FileName(mrl)
	path := name
	if d.path != "" {
		path = d.path + "/" + name
	}
	file, err := share.Open(path)
	if err != nil {
		_ = share.Umount()
		_ = session.Logoff()
		return nil, fmt.Errorf("failed to open smb file %s: %w", path, err)
	}
	return &smbFileReader{file: file, share: share, session: session}, nil
}

type smbFileReader struct {
	file    *smb2.File
	share   *smb2.Share
	session *smb2.Session
}

func (r *smbFileReader) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

func (r *smbFileReader) Close() error {
	err := r.file.Close()
	if umountErr := r.share.Umount(); err == nil {
		err = umountErr
	}
	if logoffErr := r.session.Logoff(); err == nil {
		err = logoffErr
	}
	return err
}

type smbDirectory struct {
	factory *SMBFactory
	server  string
	host    string
	share   string
	path    string
}

func (d *smbDirectory) MRL() string {
	mrl := "smb://" + d.host + "/" + d.share
	if d.path != "" {
		mrl += "/" + d.path
	}
	return helpers.ToDirectoryMRL(mrl)
}

// withShare dials the server, mounts the share, runs fn and tears the
// session down again.
func (d *smbDirectory) withShare(ctx context.Context, fn func(share *smb2.Share) error) error {
	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     d.factory.creds.Username,
			Password: d.factory.creds.Password,
		},
	}
	session, err := dialer.Dial(ctx, d.server)
	if err != nil {
		return fmt.Errorf("failed to dial smb server %s: %w", d.server, err)
	}
	defer func() {
		if logoffErr := session.Logoff(); logoffErr != nil {
			log.Warn().Err(logoffErr).Msg("failed to log off smb session")
		}
	}()
	share, err := session.Mount(d.share)
	if err != nil {
		return fmt.Errorf("failed to mount smb share %s: %w", d.share, err)
	}
	defer func() {
		if umountErr := share.Umount(); umountErr != nil {
			log.Warn().Err(umountErr).Msg("failed to unmount smb share")
		}
	}()
	return fn(share)
}

func (d *smbDirectory) listPath() string {
	if d.path == "" {
		return "."
	}
	return d.path
}

func (d *smbDirectory) Files(ctx context.Context) ([]File, error) {
	var files []File
	err := d.withShare(ctx, func(share *smb2.Share) error {
		entries, err := share.ReadDir(d.listPath())
		if err != nil {
			return fmt.Errorf("failed to read smb directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			mrl := strings.TrimSuffix(d.MRL(), "/") + "/" + entry.Name()
			files = append(files, File{
				Name:                 entry.Name(),
				MRL:                  mrl,
				Extension:            helpers.Extension(mrl),
				Size:                 entry.Size(),
				LastModificationDate: entry.ModTime().Unix(),
				IsNetwork:            true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (d *smbDirectory) Dirs(ctx context.Context) ([]Directory, error) {
	var dirs []Directory
	err := d.withShare(ctx, func(share *smb2.Share) error {
		entries, err := share.ReadDir(d.listPath())
		if err != nil {
			return fmt.Errorf("failed to read smb directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sub := entry.Name()
			if d.path != "" {
				sub = d.path + "/" + sub
			}
			dirs = append(dirs, &smbDirectory{
				factory: d.factory,
				server:  d.server,
				host:    d.host,
				share:   d.share,
				path:    sub,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}
