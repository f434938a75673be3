// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package soap

import (
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrStreamTerminated is returned when the envelope ends before a Body
// element, or a Body with a method element, has been read.
var ErrStreamTerminated = errors.New("stream ended but no body tag found")

// A Request is one parsed control request: the method element of the SOAP
// body and its immediate children.
type Request struct {
	Method    string
	Namespace string
	Params    map[string]string
	Header    http.Header
}

// Param returns the named parameter, or the empty string. Names are
// matched exactly first, then case insensitively.
func (r *Request) Param(name string) string {
	v, _ := r.Lookup(name)
	return v
}

func (r *Request) Lookup(name string) (string, bool) {
	if v, ok := r.Params[name]; ok {
		return v, true
	}
	for k, v := range r.Params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// ParseRequest reads a SOAP envelope in a single forward pass. It finds the
// Body element and takes its first child element as the method. With
// withParams set, the method element's children become the parameters,
// keyed by local name; later duplicates win.
func ParseRequest(r io.Reader, withParams bool) (*Request, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	// The envelope itself.
	if _, err := nextStart(dec); err != nil {
		return nil, err
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, streamError(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if tok.Name.Local == "Body" {
				return parseBody(dec, withParams)
			}
			if err := dec.Skip(); err != nil {
				return nil, streamError(err)
			}
		case xml.EndElement:
			return nil, ErrStreamTerminated
		}
	}
}

func parseBody(dec *xml.Decoder, withParams bool) (*Request, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, streamError(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			req := &Request{
				Method:    tok.Name.Local,
				Namespace: tok.Name.Space,
				Params:    make(map[string]string),
			}
			if !withParams {
				return req, nil
			}
			if err := parseParams(dec, req.Params); err != nil {
				return nil, err
			}
			return req, nil
		case xml.EndElement:
			return nil, errors.Wrap(ErrStreamTerminated, "no control found")
		}
	}
}

func parseParams(dec *xml.Decoder, params map[string]string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return streamError(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			val, err := elementText(dec)
			if err != nil {
				return err
			}
			params[removeDiacritics(tok.Name.Local)] = val
		case xml.EndElement:
			return nil
		}
	}
}

// elementText returns the character data of the current element and its
// descendants, consuming the end element.
func elementText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", streamError(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(tok)
		}
	}
	return sb.String(), nil
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, streamError(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func streamError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrStreamTerminated
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) && se.Msg == "unexpected EOF" {
		return ErrStreamTerminated
	}
	return errors.Wrap(err, "parsing control request")
}

// removeDiacritics strips combining marks, so "Présentation" becomes
// "Presentation".
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	res, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return res
}
