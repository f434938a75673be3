// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package contentdirectory implements the UPnP ContentDirectory service on
// top of a Catalog: browsing, searching and the capability queries.
package contentdirectory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syncthing/dlna/lib/soap"
)

const (
	BrowseMetadata       = "BrowseMetadata"
	BrowseDirectChildren = "BrowseDirectChildren"

	searchCaps = "res@resolution,res@size,res@duration,dc:title,dc:creator,upnp:actor,upnp:artist,upnp:genre,upnp:album,dc:date,upnp:class,@id,@refID,@protocolInfo,upnp:author,dc:description,pv:avKeywords"
	sortCaps   = "res@duration,res@size,res@bitrate,dc:date,dc:title,dc:size,upnp:album,upnp:artist,upnp:albumArtist,upnp:episodeNumber,upnp:genre,upnp:originalTrackNumber,upnp:rating"

	featureList = `<?xml version="1.0" encoding="UTF-8"?><Features xmlns="urn:schemas-upnp-org:av:avs" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="urn:schemas-upnp-org:av:avs http://www.upnp.org/schemas/av/avs.xsd"><Feature name="samsung.com_BASICVIEW" version="1"><container id="1" type="object.item.imageItem"/><container id="2" type="object.item.audioItem"/><container id="3" type="object.item.videoItem"/></Feature></Features>`
)

// Service answers ContentDirectory control requests for one user's view
// of the catalog.
type Service struct {
	catalog  Catalog
	renderer Renderer
	userID   string
}

// New returns a Service. A nil renderer selects BasicRenderer.
func New(catalog Catalog, renderer Renderer, userID string) *Service {
	if renderer == nil {
		renderer = BasicRenderer{}
	}
	return &Service{
		catalog:  catalog,
		renderer: renderer,
		userID:   userID,
	}
}

func (s *Service) String() string {
	return soap.ContentDirectory.String()
}

func (s *Service) WriteResult(ctx context.Context, req *soap.Request, w *soap.ResultWriter) error {
	method := req.Method
	switch {
	case strings.EqualFold(method, "Browse"):
		return s.browse(ctx, req, w)
	case strings.EqualFold(method, "GetSearchCapabilities"):
		w.WriteElement("SearchCaps", searchCaps)
	case strings.EqualFold(method, "GetSortCapabilities"):
		w.WriteElement("SortCaps", sortCaps)
	case strings.EqualFold(method, "GetSortExtensionCapabilities"):
		w.WriteElement("SortExtensionCaps", sortCaps)
	case strings.EqualFold(method, "GetSystemUpdateID"):
		w.WriteInt("Id", s.catalog.SystemUpdateID())
	case strings.HasSuffix(strings.ToLower(method), "getfeaturelist"):
		w.WriteElement("FeatureList", featureList)
	case strings.EqualFold(method, "X_SetBookmark"):
		return s.setBookmark(ctx, req)
	case strings.EqualFold(method, "Search"):
		return s.search(ctx, req, w, req.Param("SearchCriteria"))
	case strings.EqualFold(method, "X_BrowseByLetter"):
		criteria, ok := req.Lookup("SearchCriteria")
		if !ok {
			criteria = "*"
		}
		return s.search(ctx, req, w, criteria)
	default:
		return &soap.ActionNotFoundError{Method: method}
	}
	return nil
}

// resolve looks up the item an object ID refers to.
func (s *Service) resolve(ctx context.Context, id string) (ServerItem, error) {
	oid := ParseObjectID(id)
	if oid.Root {
		root, err := s.catalog.Root(ctx, s.userID)
		if err != nil {
			return ServerItem{}, err
		}
		return ServerItem{Item: root, Root: true}, nil
	}
	item, err := s.catalog.Item(ctx, s.userID, oid.ID)
	if err != nil {
		return ServerItem{}, fmt.Errorf("object %q: %w", id, err)
	}
	return ServerItem{Item: item, Stub: oid.Stub}, nil
}

// pageParams returns the start index and limit; non-positive or invalid
// values mean from the start and unlimited respectively.
func pageParams(req *soap.Request) (start, limit int) {
	if v, err := strconv.Atoi(strings.TrimSpace(req.Param("StartingIndex"))); err == nil && v > 0 {
		start = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(req.Param("RequestedCount"))); err == nil && v > 0 {
		limit = v
	}
	return start, limit
}

func (s *Service) browse(ctx context.Context, req *soap.Request, w *soap.ResultWriter) error {
	id, ok := req.Lookup("ObjectID")
	if !ok {
		return nil
	}

	si, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}

	filter := ParseFilter(req.Param("Filter"))
	order := ParseSortCriteria(req.Param("SortCriteria"))
	start, limit := pageParams(req)
	flag := strings.TrimSpace(req.Param("BrowseFlag"))

	didl := newDidlWriter()
	var total, returned int

	switch {
	case strings.EqualFold(flag, BrowseMetadata):
		total, returned = 1, 1
		if err := s.writeMetadata(ctx, didl, si, filter); err != nil {
			return err
		}

	case strings.EqualFold(flag, BrowseDirectChildren):
		res, err := s.children(ctx, si, Query{Order: order, StartIndex: start, Limit: limit})
		if err != nil {
			return err
		}
		total, returned = res.Total, len(res.Items)
		parentID := si.ObjectID().String()
		for _, child := range res.Items {
			if err := s.writeObject(ctx, didl, child, parentID, filter); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("invalid BrowseFlag value %q", flag)
	}

	l.Debugf("Browse %s %q: %d of %d", flag, id, returned, total)
	s.writeResult(w, didl, returned, total)
	return nil
}

func (s *Service) writeMetadata(ctx context.Context, didl *didlWriter, si ServerItem, filter Filter) error {
	parentID := "-1"
	if !si.Root {
		parentID = si.Item.ParentID
		if parentID == "" {
			parentID = "0"
		}
		if si.Stub != StubNone && si.Stub != StubFolder {
			// Stub views live inside the container they were made from.
			parentID = si.Item.ID
		}
	}
	return s.writeObject(ctx, didl, si, parentID, filter)
}

// writeObject renders one object, as a container when it is a folder or a
// stub view.
func (s *Service) writeObject(ctx context.Context, didl *didlWriter, si ServerItem, parentID string, filter Filter) error {
	var fragment []byte
	var err error
	if si.Root || si.Item.IsFolder() || si.Stub != StubNone {
		var res Result
		res, err = s.children(ctx, si, Query{CountOnly: true})
		if err != nil {
			return err
		}
		fragment, err = s.renderer.Container(si, parentID, res.Total, filter)
	} else {
		fragment, err = s.renderer.Item(si, parentID, filter)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", si.ObjectID(), err)
	}
	didl.Write(fragment)
	return nil
}

// children returns the direct children of an object. Collections of a known
// type are shown as their stub folders; everything else is asked of the
// catalog.
func (s *Service) children(ctx context.Context, si ServerItem, q Query) (Result, error) {
	if !si.Root && !si.Item.IsFolder() && si.Stub == StubNone {
		return Result{}, nil
	}

	if si.Stub == StubNone && !si.Root {
		if stubs := StubFolders(si.Item.Collection); stubs != nil {
			items := make([]ServerItem, len(stubs))
			for i, stub := range stubs {
				items[i] = ServerItem{Item: si.Item, Stub: stub}
			}
			return Page(items, q.StartIndex, q.Limit), nil
		}
	}

	q.UserID = s.userID
	q.Parent = si.Item
	q.Stub = si.Stub
	return s.catalog.Children(ctx, q)
}

func (s *Service) search(ctx context.Context, req *soap.Request, w *soap.ResultWriter, criteria string) error {
	searchType, err := ParseSearchCriteria(criteria)
	if err != nil {
		return err
	}

	si, err := s.resolve(ctx, req.Param("ContainerID"))
	if err != nil {
		return err
	}
	if !si.Root && !si.Item.IsFolder() {
		return fmt.Errorf("object %q is not a container", req.Param("ContainerID"))
	}

	filter := ParseFilter(req.Param("Filter"))
	order := ParseSortCriteria(req.Param("SortCriteria"))
	start, limit := pageParams(req)

	res, err := s.catalog.Children(ctx, Query{
		UserID:     s.userID,
		Parent:     si.Item,
		Recursive:  true,
		Search:     searchType,
		Order:      order,
		StartIndex: start,
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	didl := newDidlWriter()
	parentID := si.ObjectID().String()
	for _, child := range res.Items {
		var fragment []byte
		if child.Item.IsFolder() {
			count, err := s.catalog.Children(ctx, Query{
				UserID:    s.userID,
				Parent:    child.Item,
				Recursive: true,
				Search:    searchType,
				CountOnly: true,
			})
			if err != nil {
				return err
			}
			fragment, err = s.renderer.Container(child, parentID, count.Total, filter)
			if err != nil {
				return err
			}
		} else {
			fragment, err = s.renderer.Item(child, parentID, filter)
			if err != nil {
				return err
			}
		}
		didl.Write(fragment)
	}

	l.Debugf("Search %s in %q: %d of %d", searchType, req.Param("ContainerID"), len(res.Items), res.Total)
	s.writeResult(w, didl, len(res.Items), res.Total)
	return nil
}

func (s *Service) writeResult(w *soap.ResultWriter, didl *didlWriter, returned, total int) {
	w.WriteElement("Result", didl.String())
	w.WriteInt("NumberReturned", returned)
	w.WriteInt("TotalMatches", total)
	w.WriteInt("UpdateID", s.catalog.SystemUpdateID())
}

func (s *Service) setBookmark(ctx context.Context, req *soap.Request) error {
	id, ok := req.Lookup("ObjectID")
	if !ok {
		return nil
	}
	si, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	secs, err := strconv.Atoi(strings.TrimSpace(req.Param("PosSecond")))
	if err != nil {
		return fmt.Errorf("invalid PosSecond: %w", err)
	}
	return s.catalog.SetBookmark(ctx, s.userID, si.Item.ID, time.Duration(secs)*time.Second)
}
