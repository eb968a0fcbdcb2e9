// Package httpserver is the CORE's HTTP server engine: one Server accepts
// connections on the reactor goroutine, decodes requests with core/wire,
// invokes a Handler, and streams the Handler's Response back with the same
// one-buffered backpressure core/chunkstream gives the client engine.
//
// Grounded on original_source/src/coro/http/http_server.h (HttpServer):
// current_connections_ tracks in-flight requests so Quit can wait for them
// to drain, a quit_semaphore_ resumes Quit's awaiter once the count reaches
// zero, and the "/quit" path is special-cased in the request dispatcher
// before any user handler runs. The accept loop and non-blocking listener
// setup are grounded on the teacher's core/engine.go (Engine.Run,
// acceptConnections): ln.File() to extract a raw fd, SetNonblock,
// TCP_NODELAY, and an accept-until-EAGAIN loop.
package httpserver

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
	"github.com/SecurityWorks/coro-http/core/wire"
)

// Handler answers one request. Cancellation — the request's own stop token
// firing because the connection closed early or the server is shutting
// down — is observed through stopToken, the same contract core/httpclient
// gives request bodies.
type Handler func(req *httpmsg.Request, stopToken *stopctx.StopToken) *task.Task[*httpmsg.Response]

// Config names the listen address, mirroring HttpServerConfig.
type Config struct {
	Address      string
	Port         int
	MaxHeadBytes int
}

// Server accepts connections on re and dispatches requests to handler. All
// exported methods except Listen must only be called from the reactor
// goroutine (Post them from elsewhere) — the same single-writer discipline
// every other CORE component relies on.
type Server struct {
	re      *reactor.Reactor
	handler Handler

	listenFD     int
	maxHeadBytes int

	stopSource         *stopctx.StopSource
	quitting           bool
	currentConnections int
	quitTask           *task.Task[struct{}]
}

// New returns a Server driven by re, not yet listening.
func New(re *reactor.Reactor, handler Handler) *Server {
	return &Server{
		re:           re,
		handler:      handler,
		listenFD:     -1,
		maxHeadBytes: wire.DefaultMaxHeadBytes,
		stopSource:   stopctx.NewSource(),
	}
}

// Listen binds cfg.Address:cfg.Port and starts accepting connections on the
// reactor. It may be called from any goroutine before the reactor starts
// running.
func (s *Server) Listen(cfg Config) error {
	if cfg.MaxHeadBytes > 0 {
		s.maxHeadBytes = cfg.MaxHeadBytes
	}
	addr := net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port))
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return err
	}
	lnFile, err := ln.File()
	if err != nil {
		ln.Close()
		return err
	}
	// ln.File() dup'd the fd, but closing lnFile closes that dup too, so the
	// reactor takes its own duplicate; the net.Listener wrapper and its
	// *os.File can both be discarded once the reactor owns lfd directly.
	lfd, err := unix.Dup(int(lnFile.Fd()))
	lnFile.Close()
	ln.Close()
	if err != nil {
		return err
	}

	if err := unix.SetNonblock(lfd, true); err != nil {
		unix.Close(lfd)
		return err
	}

	s.listenFD = lfd
	return s.re.RegisterFD(lfd, reactor.FDFlags{Read: true}, func(readable, writable bool) {
		s.acceptLoop()
	})
}

func (s *Server) acceptLoop() {
	for {
		nfd, _, err := unix.Accept(s.listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			return
		}
		unix.SetNonblock(nfd, true)
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		c := newConn(s, nfd)
		if err := s.re.RegisterFD(nfd, reactor.FDFlags{Read: true}, func(readable, writable bool) {
			if writable {
				c.onWritable()
			}
			if readable {
				c.onReadable()
			}
		}); err != nil {
			unix.Close(nfd)
			continue
		}
	}
}

// Quit stops accepting new connections, fails every in-flight request's
// stop token, and resolves once the last in-flight request finishes
// replying. It is idempotent: calling it again returns the same Task.
func (s *Server) Quit() *task.Task[struct{}] {
	if s.quitTask != nil {
		return s.quitTask
	}
	s.quitTask = task.New[struct{}]()
	s.quitting = true
	s.stopSource.RequestStop()
	if s.listenFD >= 0 {
		s.re.UnregisterFD(s.listenFD)
		unix.Close(s.listenFD)
		s.listenFD = -1
	}
	if s.currentConnections == 0 {
		s.quitTask.Complete(struct{}{}, nil)
	}
	return s.quitTask
}

func (s *Server) requestStarted() {
	s.currentConnections++
}

func (s *Server) requestFinished() {
	s.currentConnections--
	if s.currentConnections == 0 && s.quitting && !s.quitTask.Ready() {
		s.quitTask.Complete(struct{}{}, nil)
	}
}

// drainContext is used only for the handler's response-body pull loop when
// no request-scoped context.Context is otherwise in play; it never expires
// on its own — cancellation is carried by the stop token, not ctx.
var drainContext = context.Background()
