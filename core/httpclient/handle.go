// Package httpclient is the CORE's multi-connection HTTP client engine: one
// Engine multiplexes any number of concurrent requests across the single
// reactor goroutine, each request owning exactly one raw socket for its
// lifetime (no connection pooling/keep-alive reuse, matching the
// one-handle-per-request model the engine is grounded on).
//
// Grounded on original_source/src/coro/http/curl_http.cc: CurlHandle is the
// per-request socket/owner/stop-callback bundle, CurlHttpOperation is the
// pre-response awaitable that captures status/headers, and
// CurlHttpBodyGenerator is the post-response chunk producer — the handle
// is transferred from the operation to the body generator exactly once,
// the instant the response surfaces to the caller. ClientHandle,
// Operation, and core/chunkstream.ChunkStream play those three roles here.
// The teacher's core/rpc/client.Client contributed the completion idiom
// (a Done channel delivered to exactly one waiter) that core/task.Task
// generalizes.
package httpclient

import (
	"context"
	"fmt"
	"io"

	"github.com/SecurityWorks/coro-http/core/chunkstream"
	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/pools"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
	"github.com/SecurityWorks/coro-http/core/wire"
	"golang.org/x/sys/unix"
)

const readBufSize = 64 * 1024

// readBufPool recycles the fixed-size buffers onReadable reads into —
// the teacher's core/pools.BytePool, sized for this engine's one buffer
// class instead of its original multi-tier HTTP request/response sizes.
var readBufPool = pools.NewBytePoolWithSizes([]int{readBufSize})

// owner is the ClientHandle.Owner sum type: exactly one of these is
// non-nil for the handle's whole lifetime, and the non-nil member changes
// exactly once, when the response surfaces.
type owner struct {
	op *Operation
	cs *chunkstream.ChunkStream
}

// ClientHandle owns one non-blocking socket for the lifetime of one
// request. It is created owned by an Operation; TransferToBody reassigns
// ownership to a ChunkStream once headers are ready, mirroring
// CurlHandle::owner_'s std::variant reassignment in the file this is
// grounded on.
type ClientHandle struct {
	re *reactor.Reactor
	fd int

	owner owner

	respDecoder  *wire.ResponseDecoder
	chunkDecoder *wire.ChunkDecoder

	writeBuf []byte
	wrote    int

	reqBody  httpmsg.ChunkReader
	bodyDone bool

	stopCB *stopctx.StopCallback
	closed bool
}

func newClientHandle(re *reactor.Reactor, fd int, maxHeadBytes int) *ClientHandle {
	return &ClientHandle{
		re:          re,
		fd:          fd,
		respDecoder: wire.NewResponseDecoder(maxHeadBytes),
	}
}

// TransferToBody moves ownership from the Operation to cs — called exactly
// once, right before a Response is handed to the caller.
func (h *ClientHandle) TransferToBody(cs *chunkstream.ChunkStream) {
	h.owner = owner{cs: cs}
}

func (h *ClientHandle) fail(err error) {
	if h.closed {
		return
	}
	if h.owner.op != nil {
		h.owner.op.fail(err)
	} else if h.owner.cs != nil {
		h.owner.cs.Close(-1, err)
	}
	h.Close()
}

// Close tears down the socket and deregisters it from the reactor. Safe to
// call more than once.
func (h *ClientHandle) Close() {
	if h.closed {
		return
	}
	h.closed = true
	if h.stopCB != nil {
		h.stopCB.Stop()
	}
	h.re.UnregisterFD(h.fd)
	unix.Close(h.fd)
}

func (h *ClientHandle) onReadable() {
	buf := readBufPool.Get(readBufSize)
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		readBufPool.Put(buf)
		if err == unix.EAGAIN {
			return
		}
		h.fail(fmt.Errorf("httpclient: read: %w", err))
		return
	}
	if n == 0 {
		readBufPool.Put(buf)
		h.onPeerClosed()
		return
	}
	h.consume(buf[:n])
	readBufPool.Put(buf)
}

func (h *ClientHandle) onPeerClosed() {
	if h.owner.cs != nil {
		// A server that closes the connection after sending the full body
		// without chunked framing is not representable here: every
		// response the engine produces has determined its length up
		// front (Content-Length or chunked), so a clean EOF here is
		// always a truncation.
		h.fail(fmt.Errorf("httpclient: connection closed before response body completed"))
		return
	}
	h.fail(fmt.Errorf("httpclient: connection closed before response headers completed"))
}

func (h *ClientHandle) consume(data []byte) {
	if h.owner.op != nil && h.chunkDecoder == nil {
		h.consumeHead(data)
		return
	}
	h.consumeBody(data)
}

func (h *ClientHandle) consumeHead(data []byte) {
	ready, err := h.respDecoder.Feed(data)
	if err != nil {
		h.fail(err)
		return
	}
	if !ready {
		return
	}
	if h.respDecoder.IsInterim() {
		trailing := h.respDecoder.Trailing
		h.respDecoder.Reset(nil)
		if len(trailing) > 0 {
			h.consumeHead(trailing)
		}
		return
	}
	op := h.owner.op
	trailing := h.respDecoder.Trailing
	if h.respDecoder.BodyMode == wire.BodyChunked {
		h.chunkDecoder = wire.NewChunkDecoder(0)
	}
	op.onHeadersReady(h, trailing)
}

func (h *ClientHandle) consumeBody(data []byte) {
	cs := h.owner.cs
	if cs == nil {
		return
	}
	if h.bodyDone {
		return
	}
	switch {
	case h.chunkDecoder != nil:
		h.chunkDecoder.Feed(data)
		h.drainChunks()
	default:
		h.feedFixedBody(data)
	}
}

func (h *ClientHandle) drainChunks() {
	cs := h.owner.cs
	for {
		chunk, ok, done, err := h.chunkDecoder.Extract()
		if err != nil {
			h.fail(err)
			return
		}
		if ok {
			cs.Push(chunk)
			if cs.Paused() {
				h.pauseReads()
			}
			return
		}
		if done {
			h.bodyDone = true
			cs.Close(h.respDecoder.Status, nil)
			h.Close()
			return
		}
		return
	}
}

// feedFixedBody is used for Content-Length bodies, tracked via
// respDecoder.BodyLen as a remaining-byte counter stashed on the handle.
func (h *ClientHandle) feedFixedBody(data []byte) {
	cs := h.owner.cs
	remain := h.respDecoder.BodyLen
	if int64(len(data)) >= remain {
		if remain > 0 {
			cs.Push(data[:remain])
		}
		h.bodyDone = true
		h.respDecoder.BodyLen = 0
		cs.Close(h.respDecoder.Status, nil)
		h.Close()
		return
	}
	h.respDecoder.BodyLen -= int64(len(data))
	cs.Push(data)
	if cs.Paused() {
		h.pauseReads()
	}
}

func (h *ClientHandle) pauseReads() {
	h.re.ModifyFD(h.fd, reactor.FDFlags{Read: false, Write: len(h.writeBuf) > h.wrote})
}

// ResumeReads is called by the owning ChunkStream's drain callback once a
// buffered chunk has been consumed, re-arming read readiness.
func (h *ClientHandle) ResumeReads() {
	if h.closed {
		return
	}
	h.re.ModifyFD(h.fd, reactor.FDFlags{Read: true, Write: len(h.writeBuf) > h.wrote})
}

func (h *ClientHandle) onWritable() {
	if h.wrote >= len(h.writeBuf) {
		if h.reqBody != nil {
			h.pumpRequestBody()
		}
		return
	}
	n, err := unix.Write(h.fd, h.writeBuf[h.wrote:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		h.fail(fmt.Errorf("httpclient: write: %w", err))
		return
	}
	h.wrote += n
	if h.wrote >= len(h.writeBuf) && h.reqBody == nil {
		h.re.ModifyFD(h.fd, reactor.FDFlags{Read: true, Write: false})
	}
}

// pumpRequestBody pulls the next outbound chunk from the request body and
// appends it to the write buffer. A caller-supplied ChunkReader may block
// (e.g. reading from disk), so Next runs on its own goroutine via
// task.RunTask; the result is delivered back by posting onto the reactor,
// mirroring OnNextRequestBodyChunkRequested's RunTask(...)+evuser_trigger
// round trip in curl_http.cc.
func (h *ClientHandle) pumpRequestBody() {
	body := h.reqBody
	h.reqBody = nil
	task.RunTask(func() error {
		chunk, err := body.Next(context.Background())
		h.re.Post(func() {
			if err != nil {
				if err == io.EOF {
					h.re.ModifyFD(h.fd, reactor.FDFlags{Read: true, Write: false})
					return
				}
				h.fail(fmt.Errorf("httpclient: request body: %w", err))
				return
			}
			h.writeBuf = append(h.writeBuf[:0], chunk...)
			h.wrote = 0
			h.reqBody = body
			h.re.ModifyFD(h.fd, reactor.FDFlags{Read: true, Write: true})
		})
		return nil
	}, func(err error) {
		h.re.Post(func() { h.fail(fmt.Errorf("httpclient: request body: %w", err)) })
	})
}
