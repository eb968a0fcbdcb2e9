/*
Package corohttp is a coroutine-flavored, single-reactor HTTP client/server
stack: one goroutine drives a non-blocking reactor that multiplexes any
number of outbound requests (core/httpclient) and inbound connections
(core/httpserver) without locks, because every mutable CORE structure is
touched from that one goroutine alone — the deliberate exceptions are
core/chunkstream, whose Next is read from whatever goroutine is draining a
body, core/stopctx, whose sources may be signaled from any goroutine, and
the reactor's Post queue.

Quick Start

	package main

	import (
	    "github.com/SecurityWorks/coro-http/app"
	    "github.com/SecurityWorks/coro-http/config"
	    "github.com/SecurityWorks/coro-http/core/httpmsg"
	    "github.com/SecurityWorks/coro-http/core/stopctx"
	    "github.com/SecurityWorks/coro-http/core/task"
	)

	func handle(req *httpmsg.Request, stop *stopctx.StopToken) *task.Task[*httpmsg.Response] {
	    var h httpmsg.Header
	    h.AddUnchecked("Content-Type", "text/plain")
	    return task.Done(&httpmsg.Response{Status: 200, Headers: h}, nil)
	}

	func main() {
	    cfg := config.New()
	    a, err := app.New(cfg, handle)
	    if err != nil {
	        panic(err)
	    }
	    a.Run()
	}

Modules

  - core/reactor: the one non-blocking fd/timer/event loop
  - core/task: Task[T], the continuation-passing awaitable
  - core/stopctx: cooperative cancellation (stop sources/tokens/callbacks)
  - core/httpmsg: Request/Response/Header data model
  - core/chunkstream: the lazy, backpressured body generator
  - core/wire: HTTP/1.1 framing shared by the client and server engines
  - core/httpclient: the multi-connection async HTTP client engine
  - core/httpserver: the HTTP server engine (streaming replies, graceful Quit)
  - config: flag- and TOML-based configuration, plus a live key/value store
  - internal/obs: the logging seam (zerolog-backed) that app logs through
  - app: wires the above into one running process
*/
package corohttp
