// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package svcutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/thejerf/suture/v4"
)

func TestNoRestartErr(t *testing.T) {
	if !errors.Is(NoRestartErr(nil), suture.ErrDoNotRestart) {
		t.Error("nil should map to ErrDoNotRestart")
	}
	base := errors.New("boom")
	err := NoRestartErr(base)
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Error("wrapped error should match ErrDoNotRestart")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to the original")
	}
}

func TestFatalErr(t *testing.T) {
	err := AsFatalErr(errors.New("bad config"), ExitConfig)
	if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Error("fatal errors should terminate the tree")
	}
	if again := AsFatalErr(err, ExitError); again != err {
		t.Error("fatal errors should not be wrapped twice")
	}
}

func TestAsHTTPService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- AsHTTPService(srv, ln, t.Name()).Serve(ctx)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	bs, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(bs) != "ok" {
		t.Errorf("unexpected body %q", bs)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled, got", err)
	}
}

func TestAsHTTPServiceListenerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ln.Close()

	svc := AsHTTPService(&http.Server{}, ln, t.Name())
	if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Error("a dead listener should not be restarted, got", err)
	}
}
