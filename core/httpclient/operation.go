package httpclient

import (
	"github.com/SecurityWorks/coro-http/core/chunkstream"
	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
	"github.com/SecurityWorks/coro-http/core/wire"
)

// Operation is a request's pre-Response state: it owns the ClientHandle
// until the status line and headers are fully parsed, then hands the
// caller a *httpmsg.Response and transfers the handle to the
// ChunkStream that becomes Response.Body.
//
// Grounded on CurlHttpOperation in curl_http.cc: headers_ready_ is this
// Operation's single continuation, fired at most once, exactly the
// contract core/task.Task already provides — so Operation is built as a
// thin wrapper around a Task[*httpmsg.Response] instead of reimplementing
// the await_ready/await_suspend/await_resume protocol by hand.
type Operation struct {
	result    *task.Task[*httpmsg.Response]
	stopToken *stopctx.StopToken
}

func newOperation(stopToken *stopctx.StopToken) *Operation {
	return &Operation{result: task.New[*httpmsg.Response](), stopToken: stopToken}
}

// Task exposes the awaitable the Engine returns from Fetch.
func (op *Operation) Task() *task.Task[*httpmsg.Response] { return op.result }

func (op *Operation) fail(err error) {
	if op.result.Ready() {
		return
	}
	op.result.Complete(nil, err)
}

// onHeadersReady runs once the response head is fully parsed: it builds
// the Response, transfers handle ownership to a fresh ChunkStream, and
// resolves the operation's Task with it. Any bytes read past the head
// (trailing) are delivered to the new body owner before normal reads
// resume.
func (op *Operation) onHeadersReady(h *ClientHandle, trailing []byte) {
	if op.result.Ready() {
		return
	}

	cs := chunkstream.New(op.stopToken, func() { h.ResumeReads() })

	resp := &httpmsg.Response{
		Status:  h.respDecoder.Status,
		Headers: h.respDecoder.Headers,
		Body:    cs,
	}
	if h.respDecoder.BodyMode == wire.BodyNone {
		// No body on the wire: close the stream immediately so
		// Response.Body is always a real, already-drained ChunkReader
		// rather than a nil interface a caller would fault on.
		cs.Close(resp.Status, nil)
		h.Close()
	} else {
		h.TransferToBody(cs)
		if len(trailing) > 0 {
			h.consumeBody(trailing)
		}
	}

	op.result.Complete(resp, nil)
}
