// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package catalog provides an in-memory media library, loaded from a YAML
// file, that can be served through the ContentDirectory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"sigs.k8s.io/yaml"

	cd "github.com/syncthing/dlna/lib/contentdirectory"
)

const RootID = "root"

// An Entry is one node of the library file.
type Entry struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Kind            string   `json:"kind,omitempty"`
	Collection      string   `json:"collection,omitempty"`
	PreSorted       bool     `json:"preSorted,omitempty"`
	Artist          string   `json:"artist,omitempty"`
	Album           string   `json:"album,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	Date            string   `json:"date,omitempty"`
	Added           string   `json:"added,omitempty"`
	MimeType        string   `json:"mimeType,omitempty"`
	URL             string   `json:"url,omitempty"`
	Size            int64    `json:"size,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	Favorite        bool     `json:"favorite,omitempty"`
	Played          bool     `json:"played,omitempty"`
	PositionSeconds int      `json:"positionSeconds,omitempty"`
	Children        []Entry  `json:"children,omitempty"`
}

// File is the top level of a library file.
type File struct {
	Name    string  `json:"name"`
	Folders []Entry `json:"folders"`
}

type node struct {
	item     *cd.Item
	children []*node
}

// A Library is a read-mostly tree of media items. It is safe for
// concurrent use.
type Library struct {
	root     *node
	byID     map[string]*node
	updateID int
	mut      sync.RWMutex
}

var _ cd.Catalog = (*Library)(nil)

var (
	errDuplicateID     = errors.New("duplicate item ID")
	errUnaddressableID = errors.New("item ID cannot be addressed by clients")
)

// Load reads a library file.
func Load(path string) (*Library, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(f)
}

func Parse(r io.Reader) (*Library, error) {
	f, err := decode(r)
	if err != nil {
		return nil, err
	}
	return New(f)
}

// ReadFile reads and decodes a library file without building it, for use
// with Reload.
func ReadFile(path string) (File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fd.Close()
	return decode(fd)
}

func decode(r io.Reader) (File, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return File{}, fmt.Errorf("parsing library: %w", err)
	}
	return f, nil
}

// New builds a library from its file representation.
func New(f File) (*Library, error) {
	lib := &Library{updateID: 1}
	if err := lib.build(f); err != nil {
		return nil, err
	}
	return lib, nil
}

func (lib *Library) build(f File) error {
	name := f.Name
	if name == "" {
		name = "Media"
	}
	root := &node{item: &cd.Item{ID: RootID, Title: name, Kind: cd.KindFolder}}
	byID := map[string]*node{RootID: root}

	var add func(parent *node, e Entry, collection cd.CollectionType) error
	add = func(parent *node, e Entry, collection cd.CollectionType) error {
		it, err := toItem(e)
		if err != nil {
			return err
		}
		if !addressable(it.ID) {
			return fmt.Errorf("%w: %q", errUnaddressableID, it.ID)
		}
		if it.Collection == cd.CollectionNone {
			it.Collection = collection
		}
		it.ParentID = parent.item.ID
		if parent == root {
			it.ParentID = "0"
		}
		if _, ok := byID[it.ID]; ok {
			return fmt.Errorf("%w %q", errDuplicateID, it.ID)
		}
		n := &node{item: it}
		byID[it.ID] = n
		parent.children = append(parent.children, n)
		for _, c := range e.Children {
			if err := add(n, c, it.Collection); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range f.Folders {
		if err := add(root, e, cd.CollectionNone); err != nil {
			return err
		}
	}

	lib.mut.Lock()
	lib.root = root
	lib.byID = byID
	lib.mut.Unlock()
	l.Debugf("Library %q: %d items", name, len(byID)-1)
	return nil
}

// addressable reports whether a Browse for id reaches the item itself,
// rather than the root, a stub view or a rewritten MediaMonkey ID.
func addressable(id string) bool {
	return cd.ParseObjectID(id) == cd.ObjectID{ID: id}
}

func toItem(e Entry) (*cd.Item, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("item %q has no ID", e.Title)
	}
	it := &cd.Item{
		ID:         e.ID,
		Title:      e.Title,
		Collection: cd.CollectionType(e.Collection),
		PreSorted:  e.PreSorted,
		Artist:     e.Artist,
		Album:      e.Album,
		Genres:     e.Genres,
		MimeType:   e.MimeType,
		URL:        e.URL,
		Size:       e.Size,
		Duration:   time.Duration(e.DurationSeconds * float64(time.Second)),
		Favorite:   e.Favorite,
		Played:     e.Played,
		Position:   time.Duration(e.PositionSeconds) * time.Second,
	}

	switch {
	case e.Kind != "":
		kind, ok := cd.ParseKind(e.Kind)
		if !ok {
			return nil, fmt.Errorf("item %q: unknown kind %q", e.ID, e.Kind)
		}
		it.Kind = kind
	case len(e.Children) > 0 || e.URL == "":
		it.Kind = cd.KindFolder
	default:
		it.Kind = cd.KindVideo
	}

	var err error
	if it.Date, err = parseDate(e.Date); err != nil {
		return nil, fmt.Errorf("item %q: date: %w", e.ID, err)
	}
	if it.Added, err = parseDate(e.Added); err != nil {
		return nil, fmt.Errorf("item %q: added: %w", e.ID, err)
	}
	return it, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// Reload replaces the library contents and advances the system update ID.
func (lib *Library) Reload(f File) error {
	if err := lib.build(f); err != nil {
		return err
	}
	lib.mut.Lock()
	lib.updateID++
	lib.mut.Unlock()
	return nil
}

func (lib *Library) Root(_ context.Context, _ string) (*cd.Item, error) {
	lib.mut.RLock()
	defer lib.mut.RUnlock()
	return lib.root.item, nil
}

func (lib *Library) Item(_ context.Context, _, id string) (*cd.Item, error) {
	lib.mut.RLock()
	defer lib.mut.RUnlock()
	n, ok := lib.byID[id]
	if !ok {
		return nil, cd.ErrItemNotFound
	}
	return n.item, nil
}

// SetBookmark records the playback position of an item. The library has a
// single set of user data; the user ID is ignored.
func (lib *Library) SetBookmark(_ context.Context, _, itemID string, position time.Duration) error {
	lib.mut.Lock()
	defer lib.mut.Unlock()
	n, ok := lib.byID[itemID]
	if !ok {
		return cd.ErrItemNotFound
	}
	updated := *n.item
	updated.Position = position
	n.item = &updated
	return nil
}

func (lib *Library) SystemUpdateID() int {
	lib.mut.RLock()
	defer lib.mut.RUnlock()
	return lib.updateID
}
