// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil holds the supervisor glue shared by the dlnaserver
// services and command.
package svcutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/syncthing/dlna/lib/logger"
)

// ServiceTimeout bounds how long a service may take to stop.
const ServiceTimeout = 10 * time.Second

// A FatalErr stops the whole supervisor tree and carries the process exit
// status.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

// AsFatalErr wraps err with an exit status, unless it already carries one.
func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FatalErr{Err: err, Status: status}
}

func (e *FatalErr) Error() string { return e.Err.Error() }
func (e *FatalErr) Unwrap() error { return e.Err }

func (e *FatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// NoRestartErr marks err (which may be nil) so that the supervisor leaves
// the returning service stopped.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return noRestartErr{err}
}

type noRestartErr struct{ error }

func (e noRestartErr) Unwrap() error { return e.error }

func (noRestartErr) Is(target error) bool {
	return target == suture.ErrDoNotRestart
}

type ExitStatus int

const (
	ExitError  ExitStatus = 1
	ExitConfig ExitStatus = 2
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

type doneService func()

func (fn doneService) Serve(ctx context.Context) error {
	<-ctx.Done()
	fn()
	return nil
}

// OnSupervisorDone calls fn when sup is done.
func OnSupervisorDone(sup *suture.Supervisor, fn func()) {
	sup.Add(doneService(fn))
}

// SpecWithDebugLogger returns the supervisor spec used throughout, with
// supervisor events going to the debug log.
func SpecWithDebugLogger(l logger.Logger) suture.Spec {
	return suture.Spec{
		EventHook:         func(e suture.Event) { l.Debugln(e) },
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}

type httpService struct {
	srv  *http.Server
	ln   net.Listener
	name string
}

// AsHTTPService returns a service serving srv on ln until the context is
// cancelled, after which the server is shut down within ServiceTimeout.
// A listener failure is final.
func AsHTTPService(srv *http.Server, ln net.Listener, name string) suture.Service {
	return &httpService{srv: srv, ln: ln, name: name}
}

func (s *httpService) Serve(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.srv.Serve(s.ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return NoRestartErr(nil)
		}
		return NoRestartErr(err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *httpService) String() string {
	return "http@" + s.name
}
