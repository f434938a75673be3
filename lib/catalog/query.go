// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"cmp"
	"context"
	"slices"
	"strings"

	cd "github.com/syncthing/dlna/lib/contentdirectory"
)

// Children implements the ContentDirectory queries, including the stub
// folder views of music, movie and TV collections.
func (lib *Library) Children(_ context.Context, q cd.Query) (cd.Result, error) {
	lib.mut.RLock()
	defer lib.mut.RUnlock()

	parent, ok := lib.byID[q.Parent.ID]
	if !ok {
		return cd.Result{}, cd.ErrItemNotFound
	}

	var items []*cd.Item
	sorted := !parent.item.PreSorted

	switch {
	case q.Recursive:
		items = descendants(parent, q.Search.Matches)

	case q.Stub == cd.StubNone || q.Stub == cd.StubFolder:
		for _, c := range parent.children {
			items = append(items, c.item)
		}

	default:
		items, sorted = stubItems(parent, q.Stub)
	}

	if sorted {
		sortByTitle(items, q.Order)
	}
	if q.CountOnly {
		return cd.Result{Total: len(items)}, nil
	}

	res := make([]cd.ServerItem, len(items))
	for i, it := range items {
		res[i] = cd.ServerItem{Item: it}
	}
	return cd.Page(res, q.StartIndex, q.Limit), nil
}

func descendants(n *node, match func(*cd.Item) bool) []*cd.Item {
	var res []*cd.Item
	var walk func(*node)
	walk = func(n *node) {
		for _, c := range n.children {
			if match(c.item) {
				res = append(res, c.item)
			}
			walk(c)
		}
	}
	walk(n)
	return res
}

func ofKind(kinds ...cd.Kind) func(*cd.Item) bool {
	return func(it *cd.Item) bool {
		return slices.Contains(kinds, it.Kind)
	}
}

func favorite(match func(*cd.Item) bool) func(*cd.Item) bool {
	return func(it *cd.Item) bool {
		return it.Favorite && match(it)
	}
}

// mediaKind is the playable kind of a collection.
func mediaKind(c cd.CollectionType) cd.Kind {
	if c == cd.CollectionMusic {
		return cd.KindAudio
	}
	return cd.KindVideo
}

// stubItems returns the contents of a stub view and whether they should be
// sorted by title.
func stubItems(parent *node, stub cd.StubType) ([]*cd.Item, bool) {
	media := mediaKind(parent.item.Collection)

	switch stub {
	case cd.StubLatest:
		items := descendants(parent, ofKind(media))
		slices.SortStableFunc(items, func(a, b *cd.Item) int {
			return b.Added.Compare(a.Added)
		})
		return items, false
	case cd.StubContinueWatching:
		return descendants(parent, func(it *cd.Item) bool {
			return it.Kind == media && it.Position > 0 && !it.Played
		}), false
	case cd.StubNextUp:
		return nextUp(parent), false
	case cd.StubPlaylists:
		return descendants(parent, ofKind(cd.KindPlaylist)), true
	case cd.StubAlbums:
		return descendants(parent, ofKind(cd.KindAlbum)), true
	case cd.StubArtists, cd.StubAlbumArtists:
		return descendants(parent, ofKind(cd.KindArtist)), true
	case cd.StubGenres:
		return descendants(parent, ofKind(cd.KindGenre)), true
	case cd.StubSongs, cd.StubMovies:
		return descendants(parent, ofKind(media)), true
	case cd.StubCollections:
		return collections(parent), true
	case cd.StubSeries:
		return descendants(parent, ofKind(cd.KindSeries)), true
	case cd.StubFavoriteArtists:
		return descendants(parent, favorite(ofKind(cd.KindArtist))), true
	case cd.StubFavoriteAlbums:
		return descendants(parent, favorite(ofKind(cd.KindAlbum))), true
	case cd.StubFavoriteSongs, cd.StubFavorites, cd.StubFavoriteEpisodes:
		return descendants(parent, favorite(ofKind(media))), true
	case cd.StubFavoriteSeries:
		return descendants(parent, favorite(ofKind(cd.KindSeries))), true
	default:
		l.Debugln("Unhandled stub view", stub)
		return nil, false
	}
}

// collections are the plain folders directly inside a movie library.
func collections(parent *node) []*cd.Item {
	var res []*cd.Item
	for _, c := range parent.children {
		if c.item.Kind == cd.KindFolder {
			res = append(res, c.item)
		}
	}
	return res
}

// nextUp returns the first unplayed episode of each series.
func nextUp(parent *node) []*cd.Item {
	var res []*cd.Item
	var walk func(*node)
	walk = func(n *node) {
		for _, c := range n.children {
			if c.item.Kind == cd.KindSeries {
				episodes := descendants(c, ofKind(cd.KindVideo))
				if i := slices.IndexFunc(episodes, func(it *cd.Item) bool { return !it.Played }); i >= 0 {
					res = append(res, episodes[i])
				}
				continue
			}
			walk(c)
		}
	}
	walk(parent)
	return res
}

func sortByTitle(items []*cd.Item, order cd.SortOrder) {
	slices.SortStableFunc(items, func(a, b *cd.Item) int {
		c := cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		if order == cd.Descending {
			return -c
		}
		return c
	})
}
