package httpserver

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/SecurityWorks/coro-http/core/chunkstream"
	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/pools"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
	"github.com/SecurityWorks/coro-http/core/wire"
)

const readBufSize = 64 * 1024

// readBufPool recycles the fixed-size buffers onReadable reads into, the
// same core/pools.BytePool-based pattern core/httpclient uses for its own
// socket reads.
var readBufPool = pools.NewBytePoolWithSizes([]int{readBufSize})

// connPhase tracks how incoming bytes on the socket should be interpreted.
// It only describes the read side; a request's handler and reply can still
// be in flight after the phase returns to phaseIdle, since Handler pulls
// the request body lazily through its own ChunkReader rather than the
// phase machine waiting on it.
type connPhase int

const (
	phaseHead connPhase = iota
	phaseBody
	phaseIdle // body (if any) fully read; buffering bytes for the next pipelined request
)

// conn is one accepted connection: request decoding, handler dispatch, and
// reply streaming, all driven from reactor callbacks on the reactor
// goroutine.
//
// Grounded on original_source/src/coro/http/http_server.h's per-request
// state (stop_source chained to the connection's close callback, reply
// phase tracked implicitly by which evhttp_send_reply* call has run) and
// the teacher's core/engine.go connection bookkeeping (one struct per
// accepted fd, torn down on error or peer close).
type conn struct {
	s  *Server
	fd int

	phase connPhase

	reqDecoder   *wire.RequestDecoder
	chunkDecoder *wire.ChunkDecoder
	fixedRemain  int64
	reqBody      *chunkstream.ChunkStream
	pendingAfter []byte

	reqStopSource *stopctx.StopSource
	serverStopCB  *stopctx.StopCallback
	reqActive     bool

	writeBuf   []byte
	wrote      int
	afterFlush func()

	replyStarted    bool
	respBody        httpmsg.ChunkReader
	chunkedOut      bool
	closeAfterReply bool

	closed bool
}

func newConn(s *Server, fd int) *conn {
	return &conn{
		s:          s,
		fd:         fd,
		reqDecoder: wire.NewRequestDecoder(s.maxHeadBytes),
	}
}

func (c *conn) onReadable() {
	buf := readBufPool.Get(readBufSize)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		readBufPool.Put(buf)
		if err == unix.EAGAIN {
			return
		}
		c.onTransportError(fmt.Errorf("httpserver: read: %w", err))
		return
	}
	if n == 0 {
		readBufPool.Put(buf)
		c.onPeerClosed()
		return
	}
	c.consume(buf[:n])
	readBufPool.Put(buf)
}

func (c *conn) onPeerClosed() {
	if c.reqStopSource != nil {
		c.reqStopSource.RequestStop()
	}
	c.closeNow()
}

func (c *conn) onTransportError(err error) {
	if c.reqStopSource != nil {
		c.reqStopSource.RequestStop()
	}
	c.closeNow()
}

func (c *conn) consume(data []byte) {
	switch c.phase {
	case phaseHead:
		c.feedHead(data)
	case phaseBody:
		c.consumeBody(data)
	case phaseIdle:
		c.pendingAfter = append(c.pendingAfter, data...)
	}
}

func (c *conn) feedHead(data []byte) {
	ready, err := c.reqDecoder.Feed(data)
	if err != nil {
		c.fail400(err)
		return
	}
	if !ready {
		return
	}
	c.onHeadReady(c.reqDecoder.Trailing)
}

func (c *conn) onHeadReady(trailing []byte) {
	target := c.reqDecoder.Target

	if target == "/quit" {
		c.closeAfterReply = true
		c.phase = phaseIdle
		c.s.Quit()
		c.beginResponse(&httpmsg.Response{Status: 200, Headers: emptyHeaders()}, nil)
		return
	}

	if c.s.quitting {
		c.closeAfterReply = true
		c.phase = phaseIdle
		c.beginResponse(&httpmsg.Response{Status: 503, Headers: emptyHeaders()}, nil)
		return
	}

	var body httpmsg.ChunkReader
	c.reqStopSource = stopctx.NewSource()
	c.serverStopCB = stopctx.NewCallback(c.s.stopSource.Token(), func() {
		c.reqStopSource.RequestStop()
	})

	switch c.reqDecoder.BodyMode {
	case wire.BodyNone:
		c.phase = phaseIdle
	case wire.BodyChunked:
		c.chunkDecoder = wire.NewChunkDecoder(0)
		cs := chunkstream.New(c.reqStopSource.Token(), c.resumeReads)
		c.reqBody = cs
		body = cs
		c.phase = phaseBody
	case wire.BodyFixed:
		c.fixedRemain = c.reqDecoder.BodyLen
		cs := chunkstream.New(c.reqStopSource.Token(), c.resumeReads)
		c.reqBody = cs
		body = cs
		c.phase = phaseBody
		if c.fixedRemain == 0 {
			cs.Close(0, nil)
			c.reqBody = nil
			c.phase = phaseIdle
		}
	}

	if body != nil && strings.EqualFold(c.reqDecoder.Headers.Get("Expect"), "100-continue") {
		c.queueWrite(wire.EncodeContinue(), nil)
	}

	req := &httpmsg.Request{
		Method:  c.reqDecoder.Method,
		URL:     c.reqDecoder.Target,
		Headers: c.reqDecoder.Headers,
		Body:    body,
	}

	c.s.requestStarted()
	c.reqActive = true
	t := c.s.handler(req, c.reqStopSource.Token())
	t.Suspend(func() {
		resp, err := t.Resume()
		c.onHandlerDone(resp, err)
	})

	if len(trailing) > 0 {
		c.consume(trailing)
	}
}

func (c *conn) consumeBody(data []byte) {
	if c.chunkDecoder != nil {
		c.chunkDecoder.Feed(data)
		c.drainChunkedBody()
		return
	}
	c.feedFixedBody(data)
}

func (c *conn) drainChunkedBody() {
	for {
		chunk, ok, done, err := c.chunkDecoder.Extract()
		if err != nil {
			c.reqBody.Close(-1, err)
			c.fail400(err)
			return
		}
		if ok {
			c.reqBody.Push(chunk)
			if c.reqBody.Paused() {
				c.pauseReads()
			}
			return
		}
		if done {
			c.reqBody.Close(0, nil)
			c.pendingAfter = append([]byte(nil), c.chunkDecoder.Remainder()...)
			c.chunkDecoder = nil
			c.reqBody = nil
			c.phase = phaseIdle
			return
		}
		return
	}
}

func (c *conn) feedFixedBody(data []byte) {
	if int64(len(data)) >= c.fixedRemain {
		carry := data[c.fixedRemain:]
		if c.fixedRemain > 0 {
			c.reqBody.Push(data[:c.fixedRemain])
		}
		c.fixedRemain = 0
		c.reqBody.Close(0, nil)
		c.reqBody = nil
		c.pendingAfter = append([]byte(nil), carry...)
		c.phase = phaseIdle
		return
	}
	c.fixedRemain -= int64(len(data))
	c.reqBody.Push(data)
	if c.reqBody.Paused() {
		c.pauseReads()
	}
}

func (c *conn) pauseReads() {
	c.s.re.ModifyFD(c.fd, reactor.FDFlags{Read: false, Write: c.wrote < len(c.writeBuf)})
}

// resumeReads is the request body ChunkStream's onDrain callback, called
// once the handler has pulled the one buffered chunk — re-arms reads the
// same way ClientHandle.ResumeReads re-arms them for response bodies.
func (c *conn) resumeReads() {
	if c.closed {
		return
	}
	c.s.re.ModifyFD(c.fd, reactor.FDFlags{Read: true, Write: c.wrote < len(c.writeBuf)})
}

func (c *conn) onHandlerDone(resp *httpmsg.Response, err error) {
	if c.serverStopCB != nil {
		c.serverStopCB.Stop()
		c.serverStopCB = nil
	}
	if c.reqActive {
		c.s.requestFinished()
		c.reqActive = false
	}
	if c.closed {
		return
	}
	if err != nil {
		if !c.replyStarted {
			c.beginResponse(&httpmsg.Response{Status: 500, Headers: emptyHeaders()}, nil)
		} else {
			c.closeNow()
		}
		return
	}
	c.beginResponse(resp, resp.Body)
}

func (c *conn) beginResponse(resp *httpmsg.Response, body httpmsg.ChunkReader) {
	if c.closed || c.replyStarted {
		return
	}
	c.replyStarted = true
	c.chunkedOut = body != nil && resp.Headers.Get("Content-Length") == ""
	head := wire.EncodeResponseHead(resp.Status, "", &resp.Headers, c.chunkedOut, c.keepAliveWanted())
	if body != nil {
		c.respBody = body
		c.queueWrite(head, c.pumpResponseBody)
	} else {
		c.queueWrite(head, c.finishResponse)
	}
}

// pumpResponseBody pulls the next outbound chunk from the handler's
// Response.Body off the reactor goroutine (the handler's generator may
// block, e.g. reading a file) and posts the result back, mirroring
// core/httpclient.ClientHandle.pumpRequestBody and, further back,
// evhttp_send_reply_chunk_with_cb's callback-driven continuation in the
// file both are grounded on.
func (c *conn) pumpResponseBody() {
	body := c.respBody
	task.RunTask(func() error {
		chunk, err := body.Next(drainContext)
		c.s.re.Post(func() {
			if c.closed {
				return
			}
			if err != nil {
				if err == io.EOF {
					if c.chunkedOut {
						c.queueWrite(wire.EncodeLastChunk(), c.finishResponse)
					} else {
						c.finishResponse()
					}
					return
				}
				c.closeNow()
				return
			}
			if c.chunkedOut {
				encoded := wire.EncodeChunk(chunk)
				if encoded == nil {
					// A zero-length chunk is valid and carries no bytes on the
					// wire; just ask the generator for the next one.
					c.pumpResponseBody()
					return
				}
				c.queueWrite(encoded, c.pumpResponseBody)
				return
			}
			c.queueWrite(chunk, c.pumpResponseBody)
		})
		return nil
	}, nil)
}

func (c *conn) finishResponse() {
	if c.closeAfterReply || !c.keepAliveWanted() {
		c.closeNow()
		return
	}
	carry := c.pendingAfter
	c.pendingAfter = nil
	c.replyStarted = false
	c.respBody = nil
	c.chunkedOut = false
	c.reqDecoder.Reset(carry)
	c.phase = phaseHead
	if len(carry) > 0 {
		c.feedHead(nil)
	}
}

func (c *conn) keepAliveWanted() bool {
	if c.s.quitting {
		return false
	}
	return !strings.EqualFold(c.reqDecoder.Headers.Get("Connection"), "close")
}

func (c *conn) fail400(err error) {
	if c.replyStarted {
		c.closeNow()
		return
	}
	c.closeAfterReply = true
	c.phase = phaseIdle
	c.beginResponse(&httpmsg.Response{Status: 400, Headers: emptyHeaders()}, nil)
}

// queueWrite arms data for writing. If a previous queueWrite's bytes haven't
// fully drained yet — the 100-continue preamble queued in onHeadReady, still
// sitting in writeBuf when a synchronously-resolved handler's response turns
// around and calls queueWrite again before onWritable ever runs — the new
// data is appended after the undrained tail instead of clobbering it.
func (c *conn) queueWrite(data []byte, after func()) {
	if c.wrote < len(c.writeBuf) {
		c.writeBuf = append(c.writeBuf[c.wrote:], data...)
	} else {
		c.writeBuf = data
	}
	c.wrote = 0
	c.afterFlush = after
	c.s.re.ModifyFD(c.fd, reactor.FDFlags{Read: c.phase != phaseBody || !c.reqBodyPaused(), Write: true})
}

func (c *conn) reqBodyPaused() bool {
	return c.reqBody != nil && c.reqBody.Paused()
}

func (c *conn) onWritable() {
	if c.wrote >= len(c.writeBuf) {
		c.s.re.ModifyFD(c.fd, reactor.FDFlags{Read: true, Write: false})
		return
	}
	n, err := unix.Write(c.fd, c.writeBuf[c.wrote:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.onTransportError(fmt.Errorf("httpserver: write: %w", err))
		return
	}
	c.wrote += n
	if c.wrote >= len(c.writeBuf) {
		after := c.afterFlush
		c.afterFlush = nil
		c.s.re.ModifyFD(c.fd, reactor.FDFlags{Read: true, Write: false})
		if after != nil {
			after()
		}
	}
}

func (c *conn) closeNow() {
	if c.closed {
		return
	}
	c.closed = true
	if c.serverStopCB != nil {
		c.serverStopCB.Stop()
	}
	if c.reqActive {
		c.s.requestFinished()
		c.reqActive = false
	}
	c.s.re.UnregisterFD(c.fd)
	unix.Close(c.fd)
}

func emptyHeaders() httpmsg.Header {
	var h httpmsg.Header
	h.AddUnchecked("Content-Length", "0")
	return h
}
