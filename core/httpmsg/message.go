// Package httpmsg is the CORE's data model: Request, Response, and the
// ordered, case-insensitive header container both use.
//
// Grounded on the teacher's core/http/request.go for the field shape
// (method/url/headers/body), generalized from the teacher's fixed set of
// "predefined common header fields" to a true ordered list, since
// repeatable headers and redirect-driven resets of the whole vector need
// one — a fixed-field struct can't express either.
package httpmsg

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Method is restricted to the methods the CORE engines know how to frame.
type Method string

const (
	MethodGET     Method = "GET"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodPATCH   Method = "PATCH"
	MethodHEAD    Method = "HEAD"
	MethodOPTIONS Method = "OPTIONS"
)

// HeaderField is one (name, value) pair as received or to be sent.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered sequence of (name, value) pairs with case-insensitive
// lookup. Names are not required to be unique — repeatable headers
// (e.g. Set-Cookie) are legal and preserved in order.
type Header struct {
	fields []HeaderField
}

// Add appends a header field, validating the name/value are well-formed
// per RFC 7230 token/field-content grammar (golang.org/x/net/http/httpguts
// — the same validation net/http itself uses before writing a header to the
// wire).
func (h *Header) Add(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("httpmsg: invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("httpmsg: invalid header value for %q", name)
	}
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
	return nil
}

// AddUnchecked appends without validation — used by the wire-decode path,
// which has already validated bytes coming off the socket and additionally
// wants to accept whatever a peer actually sent rather than reject it.
func (h *Header) AddUnchecked(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, in order, case-insensitive.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// All returns the fields in wire order.
func (h *Header) All() []HeaderField {
	return h.fields
}

// Reset clears the vector, for callers that restart header capture when a
// new status line arrives mid-stream (redirects, interim (1xx) responses).
// The core/wire decoders do not call it; their own Reset replaces the Header.
func (h *Header) Reset() {
	h.fields = h.fields[:0]
}

// Request is the CORE's outbound/inbound request shape. A client engine
// fills in Method/URL/Headers/Body for an outbound request; a server
// engine fills in the same fields from a received one — both directions
// use the same lazy, pull-based Body, the Go analog of the single
// Generator<std::string> field the original Request<> template carries
// regardless of direction.
type Request struct {
	Method  Method
	URL     string
	Headers Header
	Body    ChunkReader // nil means no body
}

// Response is the CORE's result shape: status/headers are available before
// Body, which is a lazy, not-restartable chunk sequence.
type Response struct {
	Status  int
	Headers Header
	Body    ChunkReader
}

// ChunkReader is the lazy body-reading contract both Request and Response
// share. It is satisfied by *chunkstream.ChunkStream without httpmsg
// importing chunkstream, and by FuncBody for callers supplying a
// simple in-memory or generator-backed outbound body. Next takes a context
// because draining a body can suspend waiting on the network; ctx lets a
// caller give up early.
type ChunkReader interface {
	Next(ctx context.Context) ([]byte, error)
}

// FuncBody adapts a simple "next chunk" callback — ok=false meaning no
// more chunks — into a ChunkReader, for callers who want to supply an
// outbound body without building a full chunkstream.ChunkStream.
func FuncBody(next func() (chunk []byte, ok bool, err error)) ChunkReader {
	return funcBody{next}
}

type funcBody struct {
	next func() ([]byte, bool, error)
}

func (f funcBody) Next(ctx context.Context) ([]byte, error) {
	chunk, ok, err := f.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	return chunk, nil
}
