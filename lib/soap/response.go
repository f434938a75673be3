// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package soap parses UPnP control requests and writes the matching SOAP
// responses and faults.
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	NsSoapEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"
	NsSoapEncoding = "http://schemas.xmlsoap.org/soap/encoding/"
	nsControl      = "urn:schemas-upnp-org:control-1-0"

	xmlHeader = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>`
)

// A Handler implements the actions of one UPnP service. WriteResult writes
// the output arguments of the requested action, or returns an error which
// is turned into a SOAP fault.
type Handler interface {
	WriteResult(ctx context.Context, req *Request, w *ResultWriter) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request, w *ResultWriter) error

func (f HandlerFunc) WriteResult(ctx context.Context, req *Request, w *ResultWriter) error {
	return f(ctx, req, w)
}

// ActionNotFoundError is returned by handlers for methods they do not
// implement.
type ActionNotFoundError struct {
	Method string
}

func (e *ActionNotFoundError) Error() string {
	return "unexpected control request name: " + e.Method
}

// A ResultWriter collects the output arguments of an action.
type ResultWriter struct {
	buf bytes.Buffer
}

// WriteElement writes one output argument. The value is escaped.
func (w *ResultWriter) WriteElement(name, value string) {
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
	xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
}

func (w *ResultWriter) WriteInt(name string, value int) {
	w.WriteElement(name, strconv.Itoa(value))
}

func (w *ResultWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// A Response is the outcome of one control request. Fault responses should
// be sent with status 500.
type Response struct {
	Body    []byte
	Headers map[string]string
	Fault   bool
}

func (r *Response) StatusCode() int {
	if r.Fault {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Process parses the control request in body, has the handler produce the
// result and wraps it in a SOAP envelope. Any failure along the way is
// returned as a SOAP fault; Process never fails.
func Process(ctx context.Context, kind ServiceKind, h Handler, body io.Reader, header http.Header) *Response {
	t0 := time.Now()
	defer func() {
		metricRequestSeconds.WithLabelValues(kind.String()).Observe(time.Since(t0).Seconds())
	}()

	resp, err := process(ctx, h, body, header)
	if err != nil {
		l.Infof("Error processing %v control request: %v", kind, err)
		metricRequestsTotal.WithLabelValues(kind.String(), resultFault).Inc()
		return FaultResponse(err)
	}
	metricRequestsTotal.WithLabelValues(kind.String(), resultSuccess).Inc()
	l.Debugf("%v control response:\n%s", kind, resp.Body)
	return resp
}

func process(ctx context.Context, h Handler, body io.Reader, header http.Header) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	req, err := ParseRequest(body, true)
	if err != nil {
		return nil, err
	}
	req.Header = header
	l.Debugln("Received control request", req.Method)

	var rw ResultWriter
	if err := h.WriteResult(ctx, req, &rw); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	writeEnvelopeStart(&buf)
	fmt.Fprintf(&buf, `<u:%sResponse xmlns:u="`, req.Method)
	xml.EscapeText(&buf, []byte(req.Namespace))
	buf.WriteString(`">`)
	buf.Write(rw.Bytes())
	fmt.Fprintf(&buf, `</u:%sResponse>`, req.Method)
	writeEnvelopeEnd(&buf)

	return &Response{
		Body:    buf.Bytes(),
		Headers: map[string]string{"EXT": ""},
	}, nil
}

// FaultResponse returns the SOAP fault for err. The UPnP error is always
// 401, Invalid Action.
func FaultResponse(err error) *Response {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	writeEnvelopeStart(&buf)
	buf.WriteString(`<s:Fault><faultcode>500</faultcode><faultstring>`)
	xml.EscapeText(&buf, []byte(err.Error()))
	buf.WriteString(`</faultstring><detail>`)
	fmt.Fprintf(&buf, `<UPnPError xmlns="%s"><errorCode>401</errorCode><errorDescription>Invalid Action</errorDescription></UPnPError>`, nsControl)
	buf.WriteString(`</detail></s:Fault>`)
	writeEnvelopeEnd(&buf)

	return &Response{
		Body:    buf.Bytes(),
		Headers: map[string]string{"EXT": ""},
		Fault:   true,
	}
}

func writeEnvelopeStart(buf *bytes.Buffer) {
	fmt.Fprintf(buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, NsSoapEnvelope, NsSoapEncoding)
}

func writeEnvelopeEnd(buf *bytes.Buffer) {
	buf.WriteString(`</s:Body></s:Envelope>`)
}
