package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
)

// BodyMode tells the caller how to read whatever follows the head.
type BodyMode int

const (
	// BodyNone means no body follows (GET/HEAD with no Content-Length, or
	// an explicit Content-Length: 0).
	BodyNone BodyMode = iota
	// BodyFixed means exactly BodyLen more bytes follow, unframed.
	BodyFixed
	// BodyChunked means the body is framed with chunked transfer encoding;
	// feed the remaining bytes to a ChunkDecoder.
	BodyChunked
)

// RequestDecoder incrementally parses an HTTP/1.1 request line and headers
// out of bytes fed from a non-blocking socket read. One RequestDecoder
// parses exactly one request; Reset prepares it to parse the next request
// pipelined on the same connection.
type RequestDecoder struct {
	MaxHeadBytes int

	buf        []byte
	headParsed bool

	Method  httpmsg.Method
	Target  string
	Proto   string
	Headers httpmsg.Header

	BodyMode BodyMode
	BodyLen  int64

	// Trailing holds bytes fed past the end of the head — the start of the
	// body, or of the next pipelined request if BodyMode is BodyNone.
	Trailing []byte
}

// NewRequestDecoder returns a decoder ready to parse one request.
func NewRequestDecoder(maxHeadBytes int) *RequestDecoder {
	if maxHeadBytes <= 0 {
		maxHeadBytes = DefaultMaxHeadBytes
	}
	return &RequestDecoder{MaxHeadBytes: maxHeadBytes}
}

// Reset clears parsed state so the decoder can parse the next pipelined
// request; carryOver is typically the previous decoder's Trailing slice
// once the prior body has been fully consumed from it.
func (d *RequestDecoder) Reset(carryOver []byte) {
	d.buf = append(d.buf[:0], carryOver...)
	d.headParsed = false
	d.Headers = httpmsg.Header{}
	d.Trailing = nil
}

// Feed appends newly-read bytes and attempts to complete the head. It
// returns true once Method/Target/Headers/BodyMode are populated; feed more
// bytes and call again while it returns false.
func (d *RequestDecoder) Feed(data []byte) (bool, error) {
	if d.headParsed {
		return true, nil
	}
	d.buf = append(d.buf, data...)
	if d.MaxHeadBytes > 0 && len(d.buf) > d.MaxHeadBytes {
		return false, ErrHeadTooLarge
	}
	headLen, found := findHeadEnd(d.buf)
	if !found {
		return false, nil
	}
	if err := d.parseHead(d.buf[:headLen]); err != nil {
		return false, err
	}
	d.Trailing = append([]byte(nil), d.buf[headLen:]...)
	d.headParsed = true
	return true, nil
}

func (d *RequestDecoder) parseHead(head []byte) error {
	lines := splitLines(head)
	if len(lines) == 0 {
		return ErrMalformed
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 {
		return ErrMalformed
	}
	if !strings.HasPrefix(parts[2], "HTTP/1.") {
		return ErrMalformed
	}
	d.Method = httpmsg.Method(parts[0])
	d.Target = parts[1]
	d.Proto = parts[2]

	if err := parseHeaderLines(lines[1:], &d.Headers); err != nil {
		return err
	}

	n, chunked, err := contentLength(&d.Headers)
	if err != nil {
		return err
	}
	switch {
	case chunked:
		d.BodyMode = BodyChunked
	case n > 0:
		d.BodyMode = BodyFixed
		d.BodyLen = n
	default:
		d.BodyMode = BodyNone
	}
	return nil
}

// ResponseDecoder incrementally parses an HTTP/1.1 status line and headers.
// A client engine creates one per request and, for interim (1xx) status
// codes, calls Reset to parse the final response that follows.
type ResponseDecoder struct {
	MaxHeadBytes int

	buf        []byte
	headParsed bool

	Status  int
	Reason  string
	Proto   string
	Headers httpmsg.Header

	BodyMode BodyMode
	BodyLen  int64

	Trailing []byte
}

// NewResponseDecoder returns a decoder ready to parse one status line plus
// headers.
func NewResponseDecoder(maxHeadBytes int) *ResponseDecoder {
	if maxHeadBytes <= 0 {
		maxHeadBytes = DefaultMaxHeadBytes
	}
	return &ResponseDecoder{MaxHeadBytes: maxHeadBytes}
}

// Reset re-arms the decoder to parse the response that follows an interim
// (1xx) status, carrying over any bytes already read past the interim
// head.
func (d *ResponseDecoder) Reset(carryOver []byte) {
	d.buf = append(d.buf[:0], carryOver...)
	d.headParsed = false
	d.Headers = httpmsg.Header{}
	d.Trailing = nil
}

// Feed appends newly-read bytes and attempts to complete the head.
func (d *ResponseDecoder) Feed(data []byte) (bool, error) {
	if d.headParsed {
		return true, nil
	}
	d.buf = append(d.buf, data...)
	if d.MaxHeadBytes > 0 && len(d.buf) > d.MaxHeadBytes {
		return false, ErrHeadTooLarge
	}
	headLen, found := findHeadEnd(d.buf)
	if !found {
		return false, nil
	}
	if err := d.parseHead(d.buf[:headLen]); err != nil {
		return false, err
	}
	d.Trailing = append([]byte(nil), d.buf[headLen:]...)
	d.headParsed = true
	return true, nil
}

// IsInterim reports whether the parsed status is a 1xx informational
// response (e.g. 100 Continue), which is not the final response.
func (d *ResponseDecoder) IsInterim() bool {
	return d.Status >= 100 && d.Status < 200
}

func (d *ResponseDecoder) parseHead(head []byte) error {
	lines := splitLines(head)
	if len(lines) == 0 {
		return ErrMalformed
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return ErrMalformed
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("%w: invalid status code %q", ErrMalformed, parts[1])
	}
	d.Proto = parts[0]
	d.Status = code
	if len(parts) == 3 {
		d.Reason = parts[2]
	}

	if err := parseHeaderLines(lines[1:], &d.Headers); err != nil {
		return err
	}

	if d.IsInterim() {
		d.BodyMode = BodyNone
		return nil
	}
	n, chunked, err := contentLength(&d.Headers)
	if err != nil {
		return err
	}
	switch {
	case chunked:
		d.BodyMode = BodyChunked
	case n > 0:
		d.BodyMode = BodyFixed
		d.BodyLen = n
	default:
		d.BodyMode = BodyNone
	}
	return nil
}
