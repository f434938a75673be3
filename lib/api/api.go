// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package api implements the HTTP side of the DLNA server: device and
// service descriptions, SOAP control, GENA event subscriptions and icons.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/calmh/incontainer"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syncthing/dlna/lib/build"
	"github.com/syncthing/dlna/lib/connectionmanager"
	"github.com/syncthing/dlna/lib/contentdirectory"
	"github.com/syncthing/dlna/lib/gena"
	"github.com/syncthing/dlna/lib/logger"
	"github.com/syncthing/dlna/lib/registrar"
	"github.com/syncthing/dlna/lib/soap"
)

const (
	descriptionMaxAge = 86400
	maxControlBody    = 1 << 20
)

//go:embed icons/*.png
var icons embed.FS

// A Server is the DLNA server as seen from the HTTP layer.
type Server interface {
	ServerID() string
	FriendlyName() string
	// Services returns the services offered to the client sending header.
	Services(header http.Header) []soap.ServiceKind
	// ServiceHandler returns the control handler for the service, or false
	// when the service is not offered to the client sending header.
	ServiceHandler(kind soap.ServiceKind, header http.Header) (soap.Handler, bool)
	Events(kind soap.ServiceKind) *gena.Manager
	ReloadLibrary(ctx context.Context) error
	IsValidAPIKey(key string) bool
}

type service struct {
	server    Server
	address   string
	systemLog logger.Recorder
	started   chan string // listener address, for testing only
}

type Service interface {
	Serve(ctx context.Context) error
	String() string
}

func New(server Server, address string, systemLog logger.Recorder) Service {
	return &service{
		server:    server,
		address:   address,
		systemLog: systemLog,
	}
}

func sendJSON(w http.ResponseWriter, jsonObject interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	bs, err := json.MarshalIndent(jsonObject, "", "  ")
	if err != nil {
		bs, _ = json.Marshal(map[string]string{"error": err.Error()})
		http.Error(w, string(bs), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "%s\n", bs)
}

func (s *service) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		l.Warnln("Starting DLNA HTTP server:", err)
		return err
	}
	defer listener.Close()

	srv := http.Server{
		Handler:     s.handler(),
		ReadTimeout: 15 * time.Second,
		// Prevent the HTTP server from logging stuff on its own. The things we
		// care about we log ourselves from the handlers.
		ErrorLog: log.New(io.Discard, "", 0),
	}

	l.Infoln("DLNA HTTP server listening on", listener.Addr())
	if s.started != nil {
		select {
		case <-ctx.Done():
		case s.started <- listener.Addr().String():
		}
	}

	serveError := make(chan error, 1)
	go func() {
		select {
		case serveError <- srv.Serve(listener):
		case <-ctx.Done():
		}
	}()

	err = nil
	select {
	case <-ctx.Done():
		l.Debugln("shutting down (stop)")
	case err = <-serveError:
		l.Warnln("DLNA HTTP server:", err, "(restarting)")
	}

	timeout, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(timeout); err == timeout.Err() {
		srv.Close()
	}

	return err
}

func (s *service) String() string {
	return fmt.Sprintf("api.service@%p", s)
}

func (s *service) handler() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/dlna/:serverId/*path", s.getResource)
	router.HandlerFunc(http.MethodPost, "/dlna/:serverId/:service/Control", s.postControl)
	router.HandlerFunc("SUBSCRIBE", "/dlna/:serverId/:service/Events", s.eventRequest)
	router.HandlerFunc("UNSUBSCRIBE", "/dlna/:serverId/:service/Events", s.eventRequest)

	router.HandlerFunc(http.MethodGet, "/rest/system/log", s.getSystemLog)         // [since]
	router.HandlerFunc(http.MethodGet, "/rest/system/log.txt", s.getSystemLogTxt) // [since]
	router.HandlerFunc(http.MethodGet, "/rest/system/version", s.getSystemVersion)
	router.HandlerFunc(http.MethodGet, "/rest/system/debug", s.getSystemDebug)
	router.HandlerFunc(http.MethodPost, "/rest/system/debug", s.postSystemDebug) // [enable] [disable]
	router.HandlerFunc(http.MethodPost, "/rest/library/reload", s.postLibraryReload)

	mux := http.NewServeMux()
	mux.Handle("/dlna/", router)
	mux.Handle("/rest/", restAccessMiddleware(s.server, noCacheMiddleware(router)))
	mux.Handle("/metrics", promhttp.Handler())

	return debugMiddleware(mux)
}

// knownServer reports whether the request addresses this server. Server
// IDs compare case insensitively.
func (s *service) knownServer(r *http.Request) bool {
	params := httprouter.ParamsFromContext(r.Context())
	return strings.EqualFold(params.ByName("serverId"), s.server.ServerID())
}

// serviceFor returns the addressed service kind, or false when the service
// is unknown or not offered to this client.
func (s *service) serviceFor(r *http.Request, name string) (soap.ServiceKind, soap.Handler, bool) {
	kind, err := soap.ParseServiceKind(name)
	if err != nil {
		return 0, nil, false
	}
	h, ok := s.server.ServiceHandler(kind, r.Header)
	return kind, h, ok
}

func (s *service) getResource(w http.ResponseWriter, r *http.Request) {
	if !s.knownServer(r) {
		http.NotFound(w, r)
		return
	}

	p := strings.Trim(httprouter.ParamsFromContext(r.Context()).ByName("path"), "/")
	switch {
	case strings.EqualFold(p, "description.xml"), strings.EqualFold(p, "description"):
		s.getDescription(w, r)
	case strings.Contains(p, "."):
		if strings.HasSuffix(strings.ToLower(p), ".xml") {
			s.getServiceDescription(w, r, p)
			return
		}
		getIcon(w, r, strings.TrimPrefix(p, "icons/"))
	default:
		s.getServiceDescription(w, r, p)
	}
}

func (s *service) getDescription(w http.ResponseWriter, r *http.Request) {
	bs, err := deviceDescription("http://"+r.Host, s.server.ServerID(), s.server.FriendlyName(), s.server.Services(r.Header))
	if err != nil {
		l.Warnln("Rendering device description:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", descriptionMaxAge))
	w.Write(bs)
}

// getServiceDescription serves the scpd document at <Service>,
// <Service>/<Service> or <Service>/<Service>.xml.
func (s *service) getServiceDescription(w http.ResponseWriter, r *http.Request, p string) {
	name, rest, nested := strings.Cut(p, "/")
	if nested {
		rest = strings.TrimSuffix(rest, ".xml")
		if !strings.EqualFold(rest, name) {
			http.NotFound(w, r)
			return
		}
	} else {
		name = strings.TrimSuffix(name, ".xml")
	}

	kind, _, ok := s.serviceFor(r, name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var doc string
	var err error
	switch kind {
	case soap.ContentDirectory:
		doc, err = contentdirectory.Description()
	case soap.ConnectionManager:
		doc, err = connectionmanager.Description()
	case soap.MediaReceiverRegistrar:
		doc, err = registrar.Description()
	}
	if err != nil {
		l.Warnln("Building service description:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	io.WriteString(w, doc)
}

func (s *service) postControl(w http.ResponseWriter, r *http.Request) {
	if !s.knownServer(r) {
		http.NotFound(w, r)
		return
	}
	kind, h, ok := s.serviceFor(r, httprouter.ParamsFromContext(r.Context()).ByName("service"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	resp := soap.Process(r.Context(), kind, h, http.MaxBytesReader(w, r.Body, maxControlBody), r.Header)
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(resp.StatusCode())
	w.Write(resp.Body)
}

func (s *service) eventRequest(w http.ResponseWriter, r *http.Request) {
	if !s.knownServer(r) {
		http.NotFound(w, r)
		return
	}
	kind, _, ok := s.serviceFor(r, httprouter.ParamsFromContext(r.Context()).ByName("service"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.server.Events(kind).HandleEventRequest(w, r)
}

// getIcon serves an embedded icon, with the content type derived from the
// file extension.
func getIcon(w http.ResponseWriter, r *http.Request, name string) {
	if strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}
	bs, err := icons.ReadFile("icons/" + strings.ToLower(name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	ext := strings.TrimPrefix(path.Ext(name), ".")
	w.Header().Set("Content-Type", "image/"+strings.ToLower(ext))
	w.Write(bs)
}

func (s *service) getSystemLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := time.Parse(time.RFC3339, q.Get("since"))
	if err != nil {
		l.Debugln(err)
	}
	sendJSON(w, map[string][]logger.Line{
		"messages": s.systemLog.Since(since),
	})
}

func (s *service) getSystemLogTxt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := time.Parse(time.RFC3339, q.Get("since"))
	if err != nil {
		l.Debugln(err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	for _, line := range s.systemLog.Since(since) {
		fmt.Fprintf(w, "%s: %s\n", line.When.Format(time.RFC3339), line.Message)
	}
}

func (*service) getSystemVersion(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, map[string]interface{}{
		"version":     build.Version,
		"longVersion": build.LongVersion,
		"modelNumber": build.ModelNumber(),
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"isRelease":   build.IsRelease,
		"date":        build.Date,
		"stamp":       build.Stamp,
		"user":        build.User,
		"container":   incontainer.Detect(),
	})
}

func (*service) getSystemDebug(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, map[string]interface{}{
		"facilities": l.Facilities(),
		"enabled":    l.FacilityDebugging(),
	})
}

func (*service) postSystemDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	q := r.URL.Query()
	for _, f := range strings.Split(q.Get("enable"), ",") {
		if f == "" || l.ShouldDebug(f) {
			continue
		}
		l.SetDebug(f, true)
		l.Infof("Enabled debug data for %q", f)
	}
	for _, f := range strings.Split(q.Get("disable"), ",") {
		if f == "" || !l.ShouldDebug(f) {
			continue
		}
		l.SetDebug(f, false)
		l.Infof("Disabled debug data for %q", f)
	}
}

func (s *service) postLibraryReload(w http.ResponseWriter, r *http.Request) {
	if err := s.server.ReloadLibrary(r.Context()); err != nil {
		l.Warnln("Reloading library:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sendJSON(w, map[string]string{"status": "reloaded"})
}

func debugMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		h.ServeHTTP(w, r)

		if shouldDebugHTTP() {
			ms := 1000 * time.Since(t0).Seconds()

			// The variable `w` is most likely a *http.response, which we can't do
			// much with since it's a non exported type. We can however peek into
			// it with reflection to get at the status code and number of bytes
			// written.
			var status, written int64
			if rw := reflect.Indirect(reflect.ValueOf(w)); rw.IsValid() && rw.Kind() == reflect.Struct {
				if rf := rw.FieldByName("status"); rf.IsValid() && rf.Kind() == reflect.Int {
					status = rf.Int()
				}
				if rf := rw.FieldByName("written"); rf.IsValid() && rf.Kind() == reflect.Int64 {
					written = rf.Int()
				}
			}
			l.Debugf("http: %s %q: status %d, %d bytes in %.02f ms", r.Method, r.URL.String(), status, written, ms)
		}
	})
}

// restAccessMiddleware lets REST requests through from loopback clients and
// from anyone presenting a valid API key. DLNA clients never need /rest.
func restAccessMiddleware(validator apiKeyValidator, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addressIsLoopback(r.RemoteAddr) || hasValidAPIKeyHeader(r, validator) {
			h.ServeHTTP(w, r)
			return
		}
		l.Debugln("Rejected REST request from", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

type apiKeyValidator interface {
	IsValidAPIKey(key string) bool
}

func hasValidAPIKeyHeader(r *http.Request, validator apiKeyValidator) bool {
	if key := r.Header.Get("X-API-Key"); validator.IsValidAPIKey(key) {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		bearerToken := auth[len("bearer "):]
		return validator.IsValidAPIKey(bearerToken)
	}
	return false
}

func addressIsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func noCacheMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=0, no-cache, no-store")
		w.Header().Set("Expires", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Pragma", "no-cache")
		h.ServeHTTP(w, r)
	})
}
