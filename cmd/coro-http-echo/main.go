// Command coro-http-echo is a minimal demonstration server built on the
// CORE: a multi-chunk plain-text body for "/hello", a streaming echo for POST /echo, and
// the built-in "/quit" graceful-shutdown endpoint the server engine
// provides on its own. Replaces the teacher's examples/basic, which routed
// against an HTTP context API this module no longer has.
package main

import (
	"context"
	"io"
	"log"

	"github.com/SecurityWorks/coro-http/app"
	"github.com/SecurityWorks/coro-http/config"
	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
)

func main() {
	cfg := config.New()

	a, err := app.New(cfg, handle)
	if err != nil {
		log.Fatalf("coro-http-echo: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("coro-http-echo: %v", err)
	}
}

// handle answers every request the built-in "/quit" special-case doesn't
// intercept: "/hello" streams a small multi-chunk body (scenario 1 in the
// round-trip tests), "/echo" streams the request body straight back
// (scenario 3), and anything else gets a 404 with no body.
func handle(req *httpmsg.Request, stopToken *stopctx.StopToken) *task.Task[*httpmsg.Response] {
	switch req.URL {
	case "/hello":
		return task.Done(helloResponse(), nil)
	case "/echo":
		return task.Done(echoResponse(req), nil)
	default:
		return task.Done(notFoundResponse(), nil)
	}
}

func helloResponse() *httpmsg.Response {
	var headers httpmsg.Header
	headers.AddUnchecked("Content-Type", "text/plain")
	chunks := [][]byte{[]byte("hel"), []byte("lo")}
	i := 0
	body := httpmsg.FuncBody(func() ([]byte, bool, error) {
		if i >= len(chunks) {
			return nil, false, nil
		}
		c := chunks[i]
		i++
		return c, true, nil
	})
	return &httpmsg.Response{Status: 200, Headers: headers, Body: body}
}

// echoResponse streams req.Body straight back out, chunk for chunk,
// without buffering the whole thing in memory.
func echoResponse(req *httpmsg.Request) *httpmsg.Response {
	var headers httpmsg.Header
	headers.AddUnchecked("Content-Type", "application/octet-stream")
	if req.Body == nil {
		return &httpmsg.Response{Status: 200, Headers: headers, Body: nil}
	}
	body := httpmsg.FuncBody(func() ([]byte, bool, error) {
		chunk, err := req.Body.Next(context.Background())
		if err != nil {
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, err
		}
		return chunk, true, nil
	})
	return &httpmsg.Response{Status: 200, Headers: headers, Body: body}
}

func notFoundResponse() *httpmsg.Response {
	var headers httpmsg.Header
	headers.AddUnchecked("Content-Length", "0")
	return &httpmsg.Response{Status: 404, Headers: headers}
}
