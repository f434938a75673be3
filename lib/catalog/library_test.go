// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	cd "github.com/syncthing/dlna/lib/contentdirectory"
)

const testLibrary = `
name: Test Library
folders:
  - id: music
    title: Music
    collection: music
    children:
      - id: album-b
        title: Beta Album
        kind: album
        favorite: true
        children:
          - id: b1
            title: b-side
            kind: audio
            url: http://192.0.2.1/b1.flac
            mimeType: audio/flac
            added: "2024-03-01"
          - id: b2
            title: A-side
            kind: audio
            url: http://192.0.2.1/b2.flac
            favorite: true
            added: "2024-05-01"
      - id: album-a
        title: Alpha Album
        kind: album
        children:
          - id: a1
            title: Opening
            kind: audio
            url: http://192.0.2.1/a1.mp3
            durationSeconds: 200.5
            added: "2023-01-01"
  - id: tv
    title: TV
    collection: tvshows
    children:
      - id: show
        title: Show
        kind: series
        children:
          - id: e1
            title: Episode 1
            kind: video
            played: true
          - id: e2
            title: Episode 2
            kind: video
            positionSeconds: 120
`

func load(t *testing.T) *Library {
	t.Helper()
	lib, err := Parse(strings.NewReader(testLibrary))
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func titles(res cd.Result) []string {
	var out []string
	for _, it := range res.Items {
		out = append(out, it.Item.Title)
	}
	return out
}

func TestParse(t *testing.T) {
	lib := load(t)
	ctx := context.Background()

	root, err := lib.Root(ctx, "")
	if err != nil || root.Title != "Test Library" {
		t.Fatalf("root %v, %v", root, err)
	}

	a1, err := lib.Item(ctx, "", "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a1.Duration != 200500*time.Millisecond || a1.Collection != cd.CollectionMusic || a1.ParentID != "album-a" {
		t.Errorf("unexpected item %+v", a1)
	}
	music, _ := lib.Item(ctx, "", "music")
	if music.ParentID != "0" {
		t.Errorf("top level folder parent %q, expected 0", music.ParentID)
	}

	if _, err := lib.Item(ctx, "", "nope"); !errors.Is(err, cd.ErrItemNotFound) {
		t.Errorf("unknown item: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"folders:\n  - id: x\n    title: X\n  - id: x\n    title: Again\n",
		"folders:\n  - id: x\n    kind: spaceship\n",
		"folders:\n  - title: No ID\n",
		"folders:\n  - id: x\n    date: yesterday\n",
	}
	for _, c := range cases {
		if _, err := Parse(strings.NewReader(c)); err == nil {
			t.Errorf("expected an error for\n%s", c)
		}
	}
}

func TestParseUnaddressableIDs(t *testing.T) {
	ids := []string{
		`"0"`,
		`"1"`,
		`" x"`,
		"Songs_x",
		"albums_abc",
		"prefix;Params=a;b",
		"x\n    children:\n      - id: Latest_y",
	}
	for _, id := range ids {
		c := "folders:\n  - id: " + id + "\n    title: X\n"
		_, err := Parse(strings.NewReader(c))
		if !errors.Is(err, errUnaddressableID) {
			t.Errorf("id %s: got %v, expected errUnaddressableID", id, err)
		}
	}

	// Underscores are fine when the prefix is not a stub name.
	c := "folders:\n  - id: my_movie\n    title: X\n"
	lib, err := Parse(strings.NewReader(c))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Item(context.Background(), "", cd.ParseObjectID("my_movie").ID); err != nil {
		t.Error(err)
	}

	lib = load(t)
	bad := File{Folders: []Entry{{ID: "Genres_rock", Title: "Rock"}}}
	if err := lib.Reload(bad); !errors.Is(err, errUnaddressableID) {
		t.Errorf("reload: got %v, expected errUnaddressableID", err)
	}
}

func TestChildrenSorting(t *testing.T) {
	lib := load(t)
	ctx := context.Background()
	music, _ := lib.Item(ctx, "", "music")

	res, err := lib.Children(ctx, cd.Query{Parent: music})
	if err != nil {
		t.Fatal(err)
	}
	if diff, equal := messagediff.PrettyDiff([]string{"Alpha Album", "Beta Album"}, titles(res)); !equal {
		t.Error(diff)
	}

	res, _ = lib.Children(ctx, cd.Query{Parent: music, Order: cd.Descending, Limit: 1})
	if res.Total != 2 || len(res.Items) != 1 || res.Items[0].Item.Title != "Beta Album" {
		t.Errorf("descending page: %v of %d", titles(res), res.Total)
	}

	res, _ = lib.Children(ctx, cd.Query{Parent: music, CountOnly: true})
	if res.Total != 2 || res.Items != nil {
		t.Errorf("count only: %+v", res)
	}
}

func TestStubViews(t *testing.T) {
	lib := load(t)
	ctx := context.Background()
	music, _ := lib.Item(ctx, "", "music")
	tv, _ := lib.Item(ctx, "", "tv")

	cases := []struct {
		parent *cd.Item
		stub   cd.StubType
		exp    []string
	}{
		{music, cd.StubSongs, []string{"A-side", "b-side", "Opening"}},
		{music, cd.StubLatest, []string{"A-side", "b-side", "Opening"}},
		{music, cd.StubAlbums, []string{"Alpha Album", "Beta Album"}},
		{music, cd.StubFavoriteAlbums, []string{"Beta Album"}},
		{music, cd.StubFavoriteSongs, []string{"A-side"}},
		{music, cd.StubArtists, nil},
		{tv, cd.StubSeries, []string{"Show"}},
		{tv, cd.StubNextUp, []string{"Episode 2"}},
		{tv, cd.StubContinueWatching, []string{"Episode 2"}},
	}
	for _, tc := range cases {
		res, err := lib.Children(ctx, cd.Query{Parent: tc.parent, Stub: tc.stub})
		if err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff(tc.exp, titles(res)); !equal {
			t.Errorf("%v in %s:\n%s", tc.stub, tc.parent.ID, diff)
		}
	}
}

func TestRecursiveSearch(t *testing.T) {
	lib := load(t)
	ctx := context.Background()
	root, _ := lib.Root(ctx, "")

	res, err := lib.Children(ctx, cd.Query{Parent: root, Recursive: true, Search: cd.SearchAudio})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 {
		t.Errorf("%d audio items, expected 3", res.Total)
	}
	res, _ = lib.Children(ctx, cd.Query{Parent: root, Recursive: true, Search: cd.SearchVideo})
	if res.Total != 2 {
		t.Errorf("%d video items, expected 2", res.Total)
	}
}

func TestBookmarkAndReload(t *testing.T) {
	lib := load(t)
	ctx := context.Background()

	if err := lib.SetBookmark(ctx, "", "e2", 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	e2, _ := lib.Item(ctx, "", "e2")
	if e2.Position != 5*time.Minute {
		t.Errorf("position %v", e2.Position)
	}
	if err := lib.SetBookmark(ctx, "", "nope", time.Second); !errors.Is(err, cd.ErrItemNotFound) {
		t.Errorf("bookmark on unknown item: %v", err)
	}

	before := lib.SystemUpdateID()
	if err := lib.Reload(File{Name: "Empty"}); err != nil {
		t.Fatal(err)
	}
	if lib.SystemUpdateID() != before+1 {
		t.Errorf("update ID %d after reload, expected %d", lib.SystemUpdateID(), before+1)
	}
	if _, err := lib.Item(ctx, "", "e2"); err == nil {
		t.Error("old items should be gone after reload")
	}
}
