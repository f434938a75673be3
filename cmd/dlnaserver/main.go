// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command dlnaserver advertises a media library to DLNA/UPnP clients on
// the local network.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/syncthing/dlna/lib/api"
	"github.com/syncthing/dlna/lib/build"
	"github.com/syncthing/dlna/lib/catalog"
	"github.com/syncthing/dlna/lib/config"
	"github.com/syncthing/dlna/lib/dlnaserver"
	"github.com/syncthing/dlna/lib/logger"
	"github.com/syncthing/dlna/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("main", "Main package")

type cli struct {
	Config        string `help:"Configuration file" default:"dlna.yaml" env:"DLNA_CONFIG" type:"path"`
	Library       string `help:"Library file to serve" env:"DLNA_LIBRARY" type:"path"`
	WatchLibrary  bool   `help:"Reload the library when its file changes" env:"DLNA_WATCH_LIBRARY"`
	Listen        string `help:"HTTP listen address, overrides the configuration" env:"DLNA_LISTEN"`
	MetricsListen string `help:"Separate listen address for Prometheus metrics" env:"DLNA_METRICS_LISTEN"`
	Debug         bool   `help:"Enable debug output for all facilities" env:"DLNA_DEBUG"`
	Version       bool   `help:"Show version and exit"`
}

func main() {
	var params cli
	kong.Parse(&params)

	if params.Version {
		fmt.Println(build.LongVersion)
		return
	}

	if err := run(params); err != nil {
		l.Warnln(err)
		status := svcutil.ExitError
		var fe *svcutil.FatalErr
		if errors.As(err, &fe) {
			status = fe.Status
		}
		os.Exit(status.AsInt())
	}
}

func run(params cli) error {
	systemLog := logger.NewRecorder(logger.DefaultLogger, logger.LevelVerbose, 1000, 10)
	l.Infoln(build.LongVersion)
	if _, err := maxprocs.Set(maxprocs.Logger(l.Debugf)); err != nil {
		l.Debugln("Setting GOMAXPROCS:", err)
	}

	cfg, err := config.LoadOrDefault(params.Config)
	if err != nil {
		return svcutil.AsFatalErr(fmt.Errorf("loading configuration: %w", err), svcutil.ExitConfig)
	}
	if params.Debug {
		if err := cfg.Modify(func(c *config.Configuration) { c.EnableDebugLog = true }); err != nil {
			return svcutil.AsFatalErr(err, svcutil.ExitConfig)
		}
	}
	if params.Listen != "" {
		if err := cfg.Modify(func(c *config.Configuration) { c.HTTPListenAddress = params.Listen }); err != nil {
			return svcutil.AsFatalErr(err, svcutil.ExitConfig)
		}
	}

	listen := cfg.RawCopy().HTTPListenAddress
	port, err := listenPort(listen)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	library, err := loadLibrary(params.Library)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitConfig)
	}

	server, err := dlnaserver.New(cfg, library, params.Library, port)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := suture.New("main", svcutil.SpecWithDebugLogger(l))
	sup.Add(server)
	sup.Add(api.New(server, listen, systemLog))
	if params.WatchLibrary {
		if params.Library == "" {
			return svcutil.AsFatalErr(errors.New("--watch-library needs a library file"), svcutil.ExitConfig)
		}
		sup.Add(dlnaserver.NewLibraryWatcher(params.Library, server.ReloadLibrary))
	}

	if params.MetricsListen != "" {
		ln, err := net.Listen("tcp", params.MetricsListen)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
			ErrorLog:    log.New(io.Discard, "", 0),
		}
		sup.Add(svcutil.AsHTTPService(srv, ln, "metrics"))
		l.Infoln("Metrics listening on", ln.Addr())
	}

	svcutil.OnSupervisorDone(sup, func() {
		l.Infoln("DLNA server stopped")
	})

	l.Infof("Serving %q as %s", server.FriendlyName(), server.ServerID())
	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listenPort returns the TCP port of a listen address. The port is part
// of the advertised device location, so it must be fixed.
func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("HTTP listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("HTTP listen address %q: port must be a fixed number", addr)
	}
	return port, nil
}

func loadLibrary(path string) (*catalog.Library, error) {
	if path == "" {
		l.Infoln("No library file given, serving an empty library")
		return catalog.New(catalog.File{})
	}
	lib, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading library: %w", err)
	}
	return lib, nil
}
