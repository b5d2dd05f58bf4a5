package templating

import (
	"fmt"
	"strconv"
)

// BodyKind distinguishes a response body backed by memory pressboard
// does not own (a resource-cache entry, retained for the lifetime of the
// process) from one it owns outright (a freshly rendered template) and
// must not let anything else reference once sent.
type BodyKind int

const (
	// BodyNone means the response carries no body at all (redirects).
	BodyNone BodyKind = iota
	// BodyInline wraps bytes borrowed from somewhere else — a resource
	// cache entry — that the response writer must not mutate or retain
	// past the write. Sending it is the zero-copy fast path.
	BodyInline
	// BodyOwned wraps bytes the response exclusively owns, e.g. a
	// rendered template page. Nothing else holds a reference to it.
	BodyOwned
)

// Body is the response's payload: either absent, borrowed, or owned. A
// zero Body is BodyNone.
type Body struct {
	Kind BodyKind
	Data []byte
}

// NoBody is the empty body used for redirects. HEAD responses keep their
// body (for Content-Length) and set SuppressBody instead.
var NoBody = Body{Kind: BodyNone}

// Inline wraps data borrowed from elsewhere (typically a resource cache
// entry) as the response body.
func Inline(data []byte) Body { return Body{Kind: BodyInline, Data: data} }

// Owned wraps data the response exclusively owns (a rendered page) as
// the response body.
func Owned(data []byte) Body { return Body{Kind: BodyOwned, Data: data} }

// Len returns the body's byte length, 0 for BodyNone.
func (b Body) Len() int { return len(b.Data) }

// statusLines is the fixed set of HTTP/1.0 status lines this server ever
// emits.
var statusLines = map[int]string{
	200: "200 OK",
	303: "303 SEE OTHER",
	400: "400 BAD REQUEST",
	404: "404 NOT FOUND",
	500: "500 INTERNAL SERVER ERROR",
}

// Response is everything the connection's write loop needs to send a
// full HTTP/1.0 response: the status line, the small set of headers this
// server ever emits, and the body (if any).
type Response struct {
	StatusCode int
	// MimeType is empty for responses with no body (redirects) — when
	// set, Content-Type and Content-Length headers are emitted.
	MimeType string
	Location string // set only for 303 responses
	Body     Body
	// SuppressBody is set for HEAD requests: headers describe the body
	// that would have been sent, but Body itself is not written.
	SuppressBody bool
}

// Headers renders the response's status line and header fields, in the
// exact order and text the reference implementation emits them.
func (r Response) Headers() []byte {
	line, ok := statusLines[r.StatusCode]
	if !ok {
		panic(fmt.Sprintf("templating: invalid status code %d", r.StatusCode))
	}

	var buf []byte
	buf = append(buf, "HTTP/1.0 "...)
	buf = append(buf, line...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "Server: UwU\r\n"...)

	if r.MimeType != "" {
		buf = append(buf, "Content-Type: "...)
		buf = append(buf, r.MimeType...)
		if r.MimeType == "text/html" {
			buf = append(buf, "; charset=utf-8"...)
		}
		buf = append(buf, "\r\n"...)

		buf = append(buf, "Content-Length: "...)
		buf = strconv.AppendInt(buf, int64(r.Body.Len()), 10)
		buf = append(buf, "\r\n"...)
	}

	if r.Location != "" {
		buf = append(buf, "Location: "...)
		buf = append(buf, r.Location...)
		buf = append(buf, "\r\n"...)
	}

	buf = append(buf, "Connection: close\r\n"...)
	buf = append(buf, "\r\n"...)
	return buf
}

// WireBody returns the bytes that should follow the headers on the wire,
// honoring SuppressBody.
func (r Response) WireBody() []byte {
	if r.SuppressBody {
		return nil
	}
	return r.Body.Data
}

// HTML builds a 200 text/html response from a rendered page buffer.
func HTML(body Body, headersOnly bool) Response {
	return Response{StatusCode: 200, MimeType: "text/html", Body: body, SuppressBody: headersOnly}
}

// File builds a 200 response serving a raw file with an explicit MIME
// type (uploads).
func File(body Body, mimeType string, headersOnly bool) Response {
	return Response{StatusCode: 200, MimeType: mimeType, Body: body, SuppressBody: headersOnly}
}

// Redirect builds a 303 See Other response with no body.
func Redirect(location string) Response {
	return Response{StatusCode: 303, Location: location, Body: NoBody}
}

// Error builds an error response serving a cached error page (400, 404,
// or 500) for its body.
func Error(code int, page Body) Response {
	return Response{StatusCode: code, MimeType: "text/html", Body: page}
}
