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

// Extension classification used by discovery and the default prober.

var audioExtensions = map[string]struct{}{
	"aac": {}, "ac3": {}, "aif": {}, "aiff": {}, "alac": {}, "ape": {},
	"dts": {}, "flac": {}, "m4a": {}, "m4b": {}, "mid": {}, "mka": {},
	"mp2": {}, "mp3": {}, "oga": {}, "ogg": {}, "opus": {}, "spx": {},
	"wav": {}, "wma": {}, "wv": {},
}

var videoExtensions = map[string]struct{}{
	"3gp": {}, "asf": {}, "avi": {}, "divx": {}, "flv": {}, "m2ts": {},
	"m4v": {}, "mkv": {}, "mov": {}, "mp4": {}, "mpeg": {}, "mpg": {},
	"mts": {}, "mxf": {}, "ogm": {}, "ogv": {}, "rmvb": {}, "ts": {},
	"vob": {}, "webm": {}, "wmv": {},
}

var subtitleExtensions = map[string]struct{}{
	"ass": {}, "idx": {}, "smi": {}, "srt": {}, "ssa": {}, "sub": {},
	"vtt": {},
}

var playlistExtensions = map[string]struct{}{
	"asx": {}, "m3u": {}, "m3u8": {}, "pls": {}, "wpl": {}, "xspf": {},
}

func IsAudioExtension(ext string) bool {
	_, ok := audioExtensions[ext]
	return ok
}

func IsVideoExtension(ext string) bool {
	_, ok := videoExtensions[ext]
	return ok
}

func IsMediaExtension(ext string) bool {
	return IsAudioExtension(ext) || IsVideoExtension(ext)
}

func IsSubtitleExtension(ext string) bool {
	_, ok := subtitleExtensions[ext]
	return ok
}

func IsPlaylistExtension(ext string) bool {
	_, ok := playlistExtensions[ext]
	return ok
}
