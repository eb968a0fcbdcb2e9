package wire

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
)

// EncodeRequestHead renders a request line and headers. If chunked is true
// a Transfer-Encoding: chunked header is appended and any Content-Length
// in headers is dropped, mirroring StartResponse's handling on the server
// side.
func EncodeRequestHead(method httpmsg.Method, target string, headers *httpmsg.Header, chunked bool) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, target)
	writeHeaderFields(&b, headers, chunked)
	b.WriteString("\r\n")
	return b.Bytes()
}

// EncodeResponseHead renders a status line and headers. keepAlive controls
// the Connection header; chunked controls Transfer-Encoding and suppresses
// any caller-supplied Content-Length, matching the reference writer's
// StartResponse.
func EncodeResponseHead(status int, reason string, headers *httpmsg.Header, chunked, keepAlive bool) []byte {
	if reason == "" {
		reason = defaultReason(status)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	writeHeaderFields(&b, headers, chunked)
	if keepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func writeHeaderFields(b *bytes.Buffer, headers *httpmsg.Header, chunked bool) {
	wroteTE := false
	for _, f := range headers.All() {
		if f.Name == "Connection" {
			continue
		}
		if chunked && (f.Name == "Content-Length" || f.Name == "Transfer-Encoding") {
			continue
		}
		fmt.Fprintf(b, "%s: %s\r\n", f.Name, f.Value)
		if f.Name == "Transfer-Encoding" {
			wroteTE = true
		}
	}
	if chunked && !wroteTE {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	}
}

// EncodeFixedBodyHeaders returns a Content-Length header line for a
// known-length, unchunked body. Callers append this to their header set
// before calling EncodeRequestHead/EncodeResponseHead.
func EncodeFixedBodyHeaders(n int) httpmsg.HeaderField {
	return httpmsg.HeaderField{Name: "Content-Length", Value: strconv.Itoa(n)}
}

// EncodeContinue renders the interim "100 Continue" response a server
// sends before reading a client's Expect: 100-continue body.
func EncodeContinue() []byte {
	return []byte("HTTP/1.1 100 Continue\r\n\r\n")
}

func defaultReason(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}
