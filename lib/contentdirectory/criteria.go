// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package contentdirectory

import (
	"errors"
	"regexp"
	"strings"
)

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// ParseSortCriteria returns the requested sort order. Only the direction
// is honoured; sorting is always by name.
func ParseSortCriteria(s string) SortOrder {
	if len(s) >= 4 && strings.EqualFold(s[:4], "desc") {
		return Descending
	}
	return Ascending
}

// SearchType restricts a search to one kind of object.
type SearchType int

const (
	SearchUnknown SearchType = iota
	SearchAudio
	SearchImage
	SearchVideo
	SearchPlaylist
	SearchMusicAlbum
)

func (t SearchType) String() string {
	switch t {
	case SearchAudio:
		return "audio"
	case SearchImage:
		return "image"
	case SearchVideo:
		return "video"
	case SearchPlaylist:
		return "playlist"
	case SearchMusicAlbum:
		return "musicalbum"
	default:
		return "unknown"
	}
}

// Matches reports whether the item is of the searched kind.
func (t SearchType) Matches(it *Item) bool {
	switch t {
	case SearchAudio:
		return it.Kind == KindAudio
	case SearchImage:
		return it.Kind == KindImage
	case SearchVideo:
		return it.Kind == KindVideo
	case SearchPlaylist:
		return it.Kind == KindPlaylist
	case SearchMusicAlbum:
		return it.Kind == KindAlbum
	default:
		return true
	}
}

var ErrEmptySearchCriteria = errors.New("search criteria must not be empty")

var (
	searchOperators = regexp.MustCompile(`(?i)\s+(?:and|or)\s+`)

	searchClasses = map[string]SearchType{
		"object.item.imageitem":              SearchImage,
		"object.item.imageitem.photo":        SearchImage,
		"object.item.videoitem":              SearchVideo,
		"object.item.audioitem":              SearchAudio,
		"object.container.playlistcontainer": SearchPlaylist,
		"object.container.album.musicalbum":  SearchMusicAlbum,
	}
)

// ParseSearchCriteria extracts the object class a search is restricted to.
// Only "upnp:class = x" and "upnp:class derivedfrom x" terms are
// considered; the first recognised class wins.
func ParseSearchCriteria(s string) (SearchType, error) {
	if s == "" {
		return SearchUnknown, ErrEmptySearchCriteria
	}

	for _, factor := range searchOperators.Split(s, -1) {
		factor = strings.TrimSpace(strings.Trim(strings.TrimSpace(factor), "()"))
		fields := strings.Fields(factor)
		if len(fields) < 3 {
			continue
		}
		if !strings.EqualFold(fields[0], "upnp:class") {
			continue
		}
		if fields[1] != "=" && !strings.EqualFold(fields[1], "derivedfrom") {
			continue
		}
		class := strings.ToLower(strings.Trim(strings.Join(fields[2:], " "), `"`))
		if t, ok := searchClasses[class]; ok {
			return t, nil
		}
	}
	return SearchUnknown, nil
}

// A Filter selects the optional DIDL-Lite properties to return.
type Filter struct {
	all    bool
	fields map[string]struct{}
}

// ParseFilter parses a comma separated property list. "*" and the empty
// string select everything.
func ParseFilter(s string) Filter {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Filter{all: true}
	}
	f := Filter{fields: make(map[string]struct{})}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "*" {
			return Filter{all: true}
		}
		if field != "" {
			f.fields[strings.ToLower(field)] = struct{}{}
		}
	}
	return f
}

func (f Filter) Contains(field string) bool {
	if f.all {
		return true
	}
	_, ok := f.fields[strings.ToLower(field)]
	return ok
}
