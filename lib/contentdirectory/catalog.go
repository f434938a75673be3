// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package contentdirectory

import (
	"context"
	"errors"
	"time"
)

var ErrItemNotFound = errors.New("item not found")

// Kind is the type of a catalog object.
type Kind int

const (
	KindFolder Kind = iota
	KindAlbum
	KindPlaylist
	KindArtist
	KindGenre
	KindSeries
	KindAudio
	KindVideo
	KindImage
)

var kindNames = []string{"folder", "album", "playlist", "artist", "genre", "series", "audio", "video", "image"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind parses a kind name as used in library files.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// IsFolder reports whether objects of this kind are containers.
func (k Kind) IsFolder() bool {
	return k < KindAudio
}

// An Item is one object in the catalog, container or media file.
type Item struct {
	ID         string
	ParentID   string
	Title      string
	Kind       Kind
	Collection CollectionType
	// PreSorted containers keep their natural order.
	PreSorted bool

	Artist string
	Album  string
	Genres []string
	Date   time.Time
	Added  time.Time

	MimeType string
	URL      string
	Size     int64
	Duration time.Duration

	Favorite bool
	Played   bool
	Position time.Duration
}

func (it *Item) IsFolder() bool {
	return it.Kind.IsFolder()
}

// A ServerItem is a catalog item together with the stub view it is shown
// in.
type ServerItem struct {
	Item *Item
	Stub StubType
	Root bool
}

// ObjectID returns the object ID under which the item is published.
func (s ServerItem) ObjectID() ObjectID {
	if s.Root {
		return ObjectID{Root: true}
	}
	return ObjectID{ID: s.Item.ID, Stub: s.Stub}
}

// A Query selects the children of a container.
type Query struct {
	UserID string
	Parent *Item
	Stub   StubType
	// Recursive queries return all descendants matching Search.
	Recursive bool
	Search    SearchType
	Order     SortOrder
	// StartIndex and Limit page the result. A zero Limit means no limit.
	StartIndex int
	Limit      int
	// CountOnly queries need only fill in Result.Total.
	CountOnly bool
}

type Result struct {
	Items []ServerItem
	Total int
}

// A Catalog is the media library the ContentDirectory exposes.
type Catalog interface {
	Root(ctx context.Context, userID string) (*Item, error)
	// Item returns ErrItemNotFound for unknown IDs.
	Item(ctx context.Context, userID, id string) (*Item, error)
	Children(ctx context.Context, q Query) (Result, error)
	SetBookmark(ctx context.Context, userID, itemID string, position time.Duration) error
	SystemUpdateID() int
}

// Page applies start and limit to a full result list.
func Page(items []ServerItem, start, limit int) Result {
	res := Result{Total: len(items)}
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return res
	}
	items = items[start:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	res.Items = items
	return res
}
