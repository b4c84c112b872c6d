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
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// GroupingPrefixLength is the minimum number of folded characters two
// titles must share before they are grouped together automatically.
const GroupingPrefixLength = 6

var leadingArticles = []string{"the ", "a ", "an "}

var titleFolder = cases.Fold()

// FoldTitle lowercases a title in a locale-insensitive way and strips a
// leading article, producing the key used for grouping and sorting.
func FoldTitle(title string) string {
	folded := titleFolder.String(strings.TrimSpace(title))
	for _, article := range leadingArticles {
		if strings.HasPrefix(folded, article) {
			folded = folded[len(article):]
			break
		}
	}
	return folded
}

// SanitizeTitle turns a file name into a displayable title: extension
// already removed by the caller, separators become spaces, runs of
// whitespace collapse.
func SanitizeTitle(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastSpace := true
	for _, r := range name {
		if r == '.' || r == '_' || unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// CommonTitlePrefix returns the folded prefix shared by two titles,
// truncated at the first digit so episode numbering does not leak into
// group names. Returns "" if the prefix is shorter than
// GroupingPrefixLength.
func CommonTitlePrefix(a, b string) string {
	fa := FoldTitle(a)
	fb := FoldTitle(b)
	runesA := []rune(fa)
	runesB := []rune(fb)
	n := min(len(runesA), len(runesB))
	i := 0
	for i < n && runesA[i] == runesB[i] && !unicode.IsDigit(runesA[i]) {
		i++
	}
	prefix := strings.TrimSpace(string(runesA[:i]))
	if len([]rune(prefix)) < GroupingPrefixLength {
		return ""
	}
	return prefix
}
