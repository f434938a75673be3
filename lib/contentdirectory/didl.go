// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package contentdirectory

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

const (
	NsDidl = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
	NsDc   = "http://purl.org/dc/elements/1.1/"
	NsDlna = "urn:schemas-dlna-org:metadata-1-0/"
	NsUpnp = "urn:schemas-upnp-org:metadata-1-0/upnp/"
)

// A Renderer writes the DIDL-Lite fragments for containers and items.
type Renderer interface {
	Container(it ServerItem, parentID string, childCount int, filter Filter) ([]byte, error)
	Item(it ServerItem, parentID string, filter Filter) ([]byte, error)
}

type didlObject struct {
	XMLName    xml.Name
	ID         string    `xml:"id,attr"`
	ParentID   string    `xml:"parentID,attr"`
	Restricted string    `xml:"restricted,attr"`
	Searchable string    `xml:"searchable,attr,omitempty"`
	ChildCount *int      `xml:"childCount,attr"`
	Title      string    `xml:"dc:title"`
	Creator    string    `xml:"dc:creator,omitempty"`
	Date       string    `xml:"dc:date,omitempty"`
	Artist     string    `xml:"upnp:artist,omitempty"`
	Album      string    `xml:"upnp:album,omitempty"`
	Genres     []string  `xml:"upnp:genre,omitempty"`
	Class      string    `xml:"upnp:class"`
	Res        []didlRes `xml:"res,omitempty"`
}

type didlRes struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         int64  `xml:"size,attr,omitempty"`
	Duration     string `xml:"duration,attr,omitempty"`
	URL          string `xml:",chardata"`
}

// BasicRenderer writes plain DIDL-Lite objects with a single resource per
// item.
type BasicRenderer struct{}

func (BasicRenderer) Container(it ServerItem, parentID string, childCount int, filter Filter) ([]byte, error) {
	obj := didlObject{
		XMLName:    xml.Name{Local: "container"},
		ID:         it.ObjectID().String(),
		ParentID:   parentID,
		Restricted: "1",
		Searchable: "1",
		ChildCount: &childCount,
		Title:      containerTitle(it),
		Class:      containerClass(it),
	}
	if filter.Contains("upnp:genre") && it.Stub == StubNone {
		obj.Genres = it.Item.Genres
	}
	return xml.Marshal(obj)
}

func (BasicRenderer) Item(it ServerItem, parentID string, filter Filter) ([]byte, error) {
	item := it.Item
	obj := didlObject{
		XMLName:    xml.Name{Local: "item"},
		ID:         it.ObjectID().String(),
		ParentID:   parentID,
		Restricted: "1",
		Title:      item.Title,
		Class:      itemClass(item),
	}
	if filter.Contains("dc:creator") {
		obj.Creator = item.Artist
	}
	if filter.Contains("upnp:artist") {
		obj.Artist = item.Artist
	}
	if filter.Contains("upnp:album") {
		obj.Album = item.Album
	}
	if filter.Contains("upnp:genre") {
		obj.Genres = item.Genres
	}
	if filter.Contains("dc:date") && !item.Date.IsZero() {
		obj.Date = item.Date.Format("2006-01-02")
	}
	if item.URL != "" {
		res := didlRes{
			ProtocolInfo: protocolInfo(item.MimeType),
			URL:          item.URL,
		}
		if filter.Contains("res@size") {
			res.Size = item.Size
		}
		if filter.Contains("res@duration") && item.Duration > 0 {
			res.Duration = formatDuration(item.Duration)
		}
		obj.Res = []didlRes{res}
	}
	return xml.Marshal(obj)
}

func containerTitle(it ServerItem) string {
	if it.Stub != StubNone && it.Stub != StubFolder {
		return it.Stub.Title()
	}
	return it.Item.Title
}

func containerClass(it ServerItem) string {
	if it.Stub != StubNone {
		return "object.container.storageFolder"
	}
	switch it.Item.Kind {
	case KindAlbum:
		return "object.container.album.musicAlbum"
	case KindPlaylist:
		return "object.container.playlistContainer"
	case KindArtist:
		return "object.container.person.musicArtist"
	case KindGenre:
		return "object.container.genre.musicGenre"
	default:
		return "object.container.storageFolder"
	}
}

func itemClass(it *Item) string {
	switch it.Kind {
	case KindAudio:
		return "object.item.audioItem.musicTrack"
	case KindVideo:
		return "object.item.videoItem"
	case KindImage:
		return "object.item.imageItem.photo"
	default:
		return "object.item"
	}
}

func protocolInfo(mime string) string {
	if mime == "" {
		mime = "*"
	}
	return "http-get:*:" + mime + ":*"
}

// formatDuration writes a duration as H:MM:SS.mmm.
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}

// didlWriter accumulates the fragments of one DIDL-Lite document.
type didlWriter struct {
	buf bytes.Buffer
}

func newDidlWriter() *didlWriter {
	w := &didlWriter{}
	fmt.Fprintf(&w.buf, `<DIDL-Lite xmlns="%s" xmlns:dc="%s" xmlns:dlna="%s" xmlns:upnp="%s">`, NsDidl, NsDc, NsDlna, NsUpnp)
	return w
}

func (w *didlWriter) Write(fragment []byte) {
	w.buf.Write(fragment)
}

func (w *didlWriter) String() string {
	return w.buf.String() + "</DIDL-Lite>"
}
