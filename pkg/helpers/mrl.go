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

package helpers

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
)

// MRLs are URIs, but media paths in the wild are routinely too sloppy for
// url.Parse (unencoded spaces, mixed separators, smb hosts with ports).
// Like the rest of the codebase we keep MRLs as opaque strings and
// reimplement the small amount of parsing we actually need.

var ErrInvalidMRL = errors.New("invalid mrl")

// Default ports per scheme, stripped during mountpoint normalization so
// smb://host:445/share and smb://host/share compare equal.
var defaultSchemePorts = map[string]string{
	"smb":   "445",
	"ftp":   "21",
	"sftp":  "22",
	"nfs":   "2049",
	"http":  "80",
	"https": "443",
}

// MRLParts holds the pieces of a parsed MRL. Host is empty for file://.
type MRLParts struct {
	Scheme string
	Host   string
	Path   string
}

func isValidScheme(scheme string) bool {
	if scheme == "" {
		return false
	}
	for i := range len(scheme) {
		c := scheme[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ParseMRL splits an MRL into scheme, host and path without percent
// decoding anything. The path always begins with "/".
func ParseMRL(mrl string) (MRLParts, error) {
	idx := strings.Index(mrl, "://")
	if idx <= 0 {
		return MRLParts{}, fmt.Errorf("%w: missing scheme: %q", ErrInvalidMRL, mrl)
	}
	scheme := mrl[:idx]
	if !isValidScheme(scheme) {
		return MRLParts{}, fmt.Errorf("%w: bad scheme: %q", ErrInvalidMRL, mrl)
	}
	rest := mrl[idx+3:]

	if strings.EqualFold(scheme, "file") {
		// file:// has no authority worth preserving
		if !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return MRLParts{Scheme: scheme, Path: rest}, nil
	}

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return MRLParts{Scheme: scheme, Host: rest, Path: "/"}, nil
	}
	return MRLParts{Scheme: scheme, Host: rest[:slash], Path: rest[slash:]}, nil
}

// SchemeOf returns the lowercased scheme of an MRL, or "" if it has none.
func SchemeOf(mrl string) string {
	idx := strings.Index(mrl, "://")
	if idx <= 0 || !isValidScheme(mrl[:idx]) {
		return ""
	}
	return strings.ToLower(mrl[:idx])
}

// NormalizeMountpoint canonicalizes a mountpoint MRL for comparison:
// scheme and host lowercased, default port stripped, trailing slash runs
// collapsed to exactly one. The path itself keeps its case since most
// schemes are case sensitive.
func NormalizeMountpoint(mrl string) (string, error) {
	parts, err := ParseMRL(mrl)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(parts.Scheme)
	host := strings.ToLower(parts.Host)
	if h, port, splitErr := net.SplitHostPort(host); splitErr == nil {
		if def, ok := defaultSchemePorts[scheme]; ok && port == def {
			host = h
		}
	}
	p := parts.Path
	for strings.HasSuffix(p, "//") {
		p = p[:len(p)-1]
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	if host == "" {
		return scheme + "://" + p, nil
	}
	return scheme + "://" + host + p, nil
}

// MrlHasPrefix reports whether mrl sits at or below the mountpoint,
// respecting path boundaries so "file:///a/b" does not match the
// mountpoint "file:///a/bc/".
func MrlHasPrefix(mrl, mountpoint string) bool {
	norm, err := NormalizeMountpoint(mountpoint)
	if err != nil {
		return false
	}
	target, err := NormalizeMountpoint(mrl + "/")
	if err != nil {
		return false
	}
	return strings.HasPrefix(target, norm)
}

// RelativeMRL strips the mountpoint prefix from an absolute MRL. The
// result never starts with "/" so it can be joined onto any mountpoint.
func RelativeMRL(mountpoint, absolute string) (string, bool) {
	if !MrlHasPrefix(absolute, mountpoint) {
		return "", false
	}
	norm, err := NormalizeMountpoint(mountpoint)
	if err != nil {
		return "", false
	}
	target, err := NormalizeMountpoint(absolute + "/")
	if err != nil {
		return "", false
	}
	rel := strings.TrimPrefix(target, norm)
	rel = strings.TrimSuffix(rel, "/")
	// Re-take the tail from the original to preserve path case; the
	// normalized forms only established the boundary.
	if len(rel) > 0 {
		trimmed := strings.TrimRight(absolute, "/")
		if len(trimmed) >= len(rel) {
			rel = trimmed[len(trimmed)-len(rel):]
		}
	}
	return rel, true
}

// JoinMRL reattaches a relative MRL onto a mountpoint.
func JoinMRL(mountpoint, relative string) string {
	mp := strings.TrimRight(mountpoint, "/")
	rel := strings.TrimLeft(relative, "/")
	if rel == "" {
		return mp + "/"
	}
	return mp + "/" + rel
}

// ToDirectoryMRL guarantees a single trailing slash, the canonical form
// for folder MRLs in the database.
func ToDirectoryMRL(mrl string) string {
	return strings.TrimRight(mrl, "/") + "/"
}

// FileName returns the last path component of an MRL.
func FileName(mrl string) string {
	trimmed := strings.TrimRight(mrl, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// Extension returns the lowercased extension without the dot, or "".
func Extension(mrl string) string {
	ext := path.Ext(FileName(mrl))
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Stem returns the file name with its extension removed.
func Stem(mrl string) string {
	name := FileName(mrl)
	if ext := path.Ext(name); ext != "" {
		return name[:len(name)-len(ext)]
	}
	return name
}

// ParentMRL returns the directory MRL containing the given MRL, with a
// trailing slash, or "" when mrl is already a filesystem root.
func ParentMRL(mrl string) string {
	parts, err := ParseMRL(mrl)
	if err != nil {
		return ""
	}
	trimmed := strings.TrimRight(parts.Path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || trimmed == "" {
		return ""
	}
	parent := trimmed[:idx+1]
	if parts.Host == "" {
		return parts.Scheme + "://" + parent
	}
	return parts.Scheme + "://" + parts.Host + parent
}
