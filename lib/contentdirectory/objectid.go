// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package contentdirectory

import (
	"strings"
)

// A StubType names a synthetic folder view over a real catalog container.
type StubType int

const (
	StubNone StubType = iota
	StubFolder
	StubLatest
	StubPlaylists
	StubAlbums
	StubAlbumArtists
	StubArtists
	StubSongs
	StubGenres
	StubFavoriteArtists
	StubFavoriteAlbums
	StubFavoriteSongs
	StubContinueWatching
	StubMovies
	StubCollections
	StubFavorites
	StubNextUp
	StubSeries
	StubFavoriteSeries
	StubFavoriteEpisodes
)

var stubNames = map[StubType]string{
	StubFolder:           "Folder",
	StubLatest:           "Latest",
	StubPlaylists:        "Playlists",
	StubAlbums:           "Albums",
	StubAlbumArtists:     "AlbumArtists",
	StubArtists:          "Artists",
	StubSongs:            "Songs",
	StubGenres:           "Genres",
	StubFavoriteArtists:  "FavoriteArtists",
	StubFavoriteAlbums:   "FavoriteAlbums",
	StubFavoriteSongs:    "FavoriteSongs",
	StubContinueWatching: "ContinueWatching",
	StubMovies:           "Movies",
	StubCollections:      "Collections",
	StubFavorites:        "Favorites",
	StubNextUp:           "NextUp",
	StubSeries:           "Series",
	StubFavoriteSeries:   "FavoriteSeries",
	StubFavoriteEpisodes: "FavoriteEpisodes",
}

var stubTitles = map[StubType]string{
	StubFolder:           "Folders",
	StubAlbumArtists:     "Album Artists",
	StubFavoriteArtists:  "Favorite Artists",
	StubFavoriteAlbums:   "Favorite Albums",
	StubFavoriteSongs:    "Favorite Songs",
	StubContinueWatching: "Continue Watching",
	StubNextUp:           "Next Up",
	StubFavoriteSeries:   "Favorite Series",
	StubFavoriteEpisodes: "Favorite Episodes",
}

func (s StubType) String() string {
	if name, ok := stubNames[s]; ok {
		return name
	}
	return ""
}

// Title is the display name of the stub folder.
func (s StubType) Title() string {
	if title, ok := stubTitles[s]; ok {
		return title
	}
	return s.String()
}

// ParseStubType parses a stub name, ignoring case.
func ParseStubType(s string) (StubType, bool) {
	for stub, name := range stubNames {
		if strings.EqualFold(s, name) {
			return stub, true
		}
	}
	return StubNone, false
}

// CollectionType is the kind of library a top level folder holds.
type CollectionType string

const (
	CollectionNone    CollectionType = ""
	CollectionMusic   CollectionType = "music"
	CollectionMovies  CollectionType = "movies"
	CollectionTVShows CollectionType = "tvshows"
	CollectionFolders CollectionType = "folders"
)

var stubFolders = map[CollectionType][]StubType{
	CollectionMusic: {
		StubLatest, StubPlaylists, StubAlbums, StubAlbumArtists, StubArtists,
		StubSongs, StubGenres, StubFavoriteArtists, StubFavoriteAlbums, StubFavoriteSongs,
	},
	CollectionMovies: {
		StubContinueWatching, StubLatest, StubMovies, StubCollections, StubFavorites, StubGenres,
	},
	CollectionTVShows: {
		StubContinueWatching, StubNextUp, StubLatest, StubSeries, StubFavoriteSeries,
		StubFavoriteEpisodes, StubGenres,
	},
}

// StubFolders returns the synthetic folders shown inside a collection of
// the given type, or nil if the collection is browsed as plain folders.
func StubFolders(c CollectionType) []StubType {
	stubs := stubFolders[CollectionType(strings.ToLower(string(c)))]
	if stubs == nil {
		return nil
	}
	return append([]StubType(nil), stubs...)
}

const mediaMonkeyParams = "Params="

// An ObjectID is a parsed ContentDirectory object identifier.
type ObjectID struct {
	ID   string
	Stub StubType
	Root bool
}

// ParseObjectID splits an object ID into the catalog ID and the stub view.
// "0", "1" (sent by some Samsung sets) and the empty string denote the
// root. IDs of the form "<StubType>_<id>" select a stub view, and
// MediaMonkey's "Params=" IDs carry the item ID in the 24th field.
func ParseObjectID(id string) ObjectID {
	id = strings.TrimSpace(id)
	if id == "" || id == "0" || id == "1" {
		return ObjectID{Root: true}
	}

	if i := strings.Index(strings.ToLower(id), strings.ToLower(mediaMonkeyParams)); i >= 0 {
		id = id[i+len(mediaMonkeyParams):]
		if parts := strings.Split(id, ";"); len(parts) > 23 {
			id = parts[23]
		}
	}

	if prefix, rest, ok := strings.Cut(id, "_"); ok {
		if stub, ok := ParseStubType(prefix); ok {
			return ObjectID{ID: rest, Stub: stub}
		}
	}
	return ObjectID{ID: id}
}

// String returns the on-wire form of the object ID.
func (o ObjectID) String() string {
	switch {
	case o.Root:
		return "0"
	case o.Stub != StubNone:
		return o.Stub.String() + "_" + o.ID
	default:
		return o.ID
	}
}
