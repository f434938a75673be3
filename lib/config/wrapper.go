// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"os"
	"path/filepath"
	"sync"
)

// The Committer interface is implemented by objects that need to know about
// or have a say in configuration changes.
//
// When the configuration is about to be changed, VerifyConfiguration() is
// called for each subscribing object, with the old and new configuration. A
// nil error is returned if the new configuration is acceptable. If any
// subscriber returns an error the change is not committed and the error is
// returned to whoever tried to commit it.
//
// If all verification calls return nil, CommitConfiguration() is called for
// each subscribing object. The callee returns true if the new configuration
// has been applied, otherwise false, meaning a restart is required for it to
// take effect.
type Committer interface {
	VerifyConfiguration(from, to Configuration) error
	CommitConfiguration(from, to Configuration) (handled bool)
	String() string
}

// A Wrapper manages loads, saves and published notifications of changes to
// a Configuration.
type Wrapper struct {
	cfg  Configuration
	path string

	subs            []Committer
	requiresRestart bool
	mut             sync.Mutex
}

// Wrap wraps an existing Configuration structure and ties it to a file on
// disk.
func Wrap(path string, cfg Configuration) *Wrapper {
	return &Wrapper{
		cfg:  cfg,
		path: path,
	}
}

// Load loads an existing file on disk and returns a new configuration
// wrapper.
func Load(path string) (*Wrapper, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	cfg, err := ReadYAML(fd)
	if err != nil {
		return nil, err
	}

	return Wrap(path, cfg), nil
}

// LoadOrDefault loads the configuration at path, or wraps a default
// configuration and saves it if the file does not exist.
func LoadOrDefault(path string) (*Wrapper, error) {
	w, err := Load(path)
	if err == nil {
		return w, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	l.Infoln("No configuration found at", path, "- creating default")
	w = Wrap(path, New())
	if err := w.Save(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Wrapper) ConfigPath() string {
	return w.path
}

// Subscribe registers the given handler to be called on any future
// configuration changes.
func (w *Wrapper) Subscribe(c Committer) {
	w.mut.Lock()
	w.subs = append(w.subs, c)
	w.mut.Unlock()
}

// Unsubscribe de-registers the given handler from any future calls to
// configuration changes.
func (w *Wrapper) Unsubscribe(c Committer) {
	w.mut.Lock()
	for i := range w.subs {
		if w.subs[i] == c {
			copy(w.subs[i:], w.subs[i+1:])
			w.subs[len(w.subs)-1] = nil
			w.subs = w.subs[:len(w.subs)-1]
			break
		}
	}
	w.mut.Unlock()
}

// RawCopy returns a copy of the currently wrapped Configuration object.
func (w *Wrapper) RawCopy() Configuration {
	w.mut.Lock()
	defer w.mut.Unlock()
	return w.cfg.Copy()
}

// Replace swaps the current configuration object for the given one.
// Subscribers are notified after the lock has been released, in
// subscription order.
func (w *Wrapper) Replace(to Configuration) error {
	w.mut.Lock()
	from := w.cfg

	if err := to.prepare(); err != nil {
		w.mut.Unlock()
		return err
	}

	for _, sub := range w.subs {
		l.Debugln(sub, "verifying configuration")
		if err := sub.VerifyConfiguration(from.Copy(), to.Copy()); err != nil {
			l.Debugln(sub, "rejected config:", err)
			w.mut.Unlock()
			return err
		}
	}

	w.cfg = to
	subs := make([]Committer, len(w.subs))
	copy(subs, w.subs)
	w.mut.Unlock()

	for _, sub := range subs {
		l.Debugln(sub, "committing configuration")
		if !sub.CommitConfiguration(from.Copy(), to.Copy()) {
			l.Debugln(sub, "requires restart")
			w.setRequiresRestart()
		}
	}

	return nil
}

// Modify applies fn to a copy of the current configuration and replaces the
// configuration with the result.
func (w *Wrapper) Modify(fn func(cfg *Configuration)) error {
	cfg := w.RawCopy()
	fn(&cfg)
	return w.Replace(cfg)
}

// Save writes the configuration to disk. The file is replaced atomically.
func (w *Wrapper) Save() error {
	cfg := w.RawCopy()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	fd, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		l.Debugln("CreateTemp:", err)
		return err
	}
	defer os.Remove(fd.Name())

	if err := cfg.WriteYAML(fd); err != nil {
		l.Debugln("WriteYAML:", err)
		fd.Close()
		return err
	}
	if err := fd.Close(); err != nil {
		return err
	}

	if err := os.Rename(fd.Name(), w.path); err != nil {
		l.Debugln("Rename:", err)
		return err
	}
	return nil
}

func (w *Wrapper) RequiresRestart() bool {
	w.mut.Lock()
	defer w.mut.Unlock()
	return w.requiresRestart
}

func (w *Wrapper) setRequiresRestart() {
	w.mut.Lock()
	w.requiresRestart = true
	w.mut.Unlock()
}
