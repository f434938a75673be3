// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !(solaris && !cgo) && !(darwin && !cgo) && !(android && amd64)
// +build !solaris cgo
// +build !darwin cgo
// +build !android !amd64

package dlnaserver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLibraryWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	if err := os.WriteFile(path, []byte("folders: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan struct{}, 100)
	w := NewLibraryWatcher(path, func(context.Context) error {
		reloads <- struct{}{}
		return nil
	})
	w.delay = 20 * time.Millisecond
	w.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	select {
	case <-w.started:
	case <-time.After(5 * time.Second):
		t.Fatal("watch never started")
	}

	expectReload := func(what string) {
		t.Helper()
		select {
		case <-reloads:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: no reload", what)
		}
		// Let any trailing events settle.
		time.Sleep(100 * time.Millisecond)
		for len(reloads) > 0 {
			<-reloads
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := len(reloads); n != 0 {
		t.Errorf("%d reloads after writing an unrelated file", n)
	}

	if err := os.WriteFile(path, []byte("name: Written\nfolders: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectReload("direct write")

	tmp := filepath.Join(dir, ".library.yaml.tmp")
	if err := os.WriteFile(tmp, []byte("name: Renamed\nfolders: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	expectReload("replace by rename")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v", err)
	}
}

func TestLibraryWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan struct{}, 100)
	w := NewLibraryWatcher(path, func(context.Context) error {
		reloads <- struct{}{}
		return errors.New("still broken")
	})
	w.delay = 300 * time.Millisecond
	w.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Serve(ctx)
	<-w.started

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	time.Sleep(500 * time.Millisecond)
	if n := len(reloads); n != 0 {
		t.Errorf("%d extra reloads for one burst of writes", n)
	}
}
