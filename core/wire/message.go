// Package wire is the CORE's HTTP/1.1 transport collaborator: it turns
// core/httpmsg values into bytes and bytes back into core/httpmsg values,
// incrementally, so core/httpclient and core/httpserver can feed it
// whatever a non-blocking socket read happens to return.
//
// The teacher has no HTTP/1.1 framing code of its own to generalize — its
// core/http package parses a whole request out of one already-buffered
// slice (core/http/parser.go's ParseRequest(data []byte)), and its
// core/http2 package speaks HTTP/2 exclusively. Grounded instead on
// dqx0-protocols/httpx/internal/http1/{reader,writer,chunked,interim}.go,
// the one HTTP/1.1 codec anywhere in the pack, reshaped from its
// blocking bufio.Reader/Writer calls into the Feed-then-extract style this
// module's non-blocking reactor needs, and merged with the teacher's
// zero-copy line/header scanning technique from core/http/parser.go
// (bytes.IndexByte over an accumulating slice rather than per-byte
// bufio.Reader.ReadByte calls).
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
)

// ErrHeadTooLarge is returned when the accumulated status-line+headers
// exceed MaxHeadBytes without terminating — a guard against a peer that
// never sends the blank line ending the head.
var ErrHeadTooLarge = errors.New("wire: request/status line and headers exceed limit")

// ErrMalformed covers any syntactically invalid status line, request line,
// or header line.
var ErrMalformed = errors.New("wire: malformed HTTP/1.1 message")

// DefaultMaxHeadBytes bounds how much unparsed head data a Decoder will
// buffer before giving up, matching the teacher's header-size guards in
// core/http/context.go.
const DefaultMaxHeadBytes = 64 * 1024

func findHeadEnd(buf []byte) (headLen int, found bool) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4, true
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2, true
	}
	return 0, false
}

func splitLines(head []byte) []string {
	head = bytes.TrimRight(head, "\r\n")
	raw := strings.Split(string(head), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		out = append(out, strings.TrimSuffix(l, "\r"))
	}
	return out
}

// parseHeaderLines lowercases header names as they come off the wire,
// matching the contract that received headers are always lowercase —
// callers look them up case-insensitively anyway via Header.Get, but
// lowercasing at the source keeps what a consumer iterating Header.All
// sees consistent with what was actually received.
func parseHeaderLines(lines []string, into *httpmsg.Header) error {
	for _, line := range lines {
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return ErrMalformed
		}
		name := strings.ToLower(strings.TrimSpace(line[:i]))
		value := strings.TrimSpace(line[i+1:])
		into.AddUnchecked(name, value)
	}
	return nil
}

// contentLength returns (0, false) when neither Content-Length nor chunked
// Transfer-Encoding is present (no body), (-1, true) when the body is
// chunked, and (n, false) for a fixed-length body of n bytes.
func contentLength(h *httpmsg.Header) (n int64, chunked bool, err error) {
	if te := h.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		return -1, true, nil
	}
	cl := h.Get("Content-Length")
	if cl == "" {
		return 0, false, nil
	}
	n, convErr := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if convErr != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformed, cl)
	}
	return n, false, nil
}
