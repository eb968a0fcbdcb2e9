package httpclient

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
	"github.com/SecurityWorks/coro-http/core/wire"
	"golang.org/x/sys/unix"
)

// Engine is the multi-connection HTTP client: each Fetch call owns one
// socket on the caller's behalf for the lifetime of that one request,
// driven entirely by the Reactor passed to New (the same one driving
// every other CORE component in the process).
//
// Grounded on CurlHttpImpl in curl_http.cc, whose role (multiplexing many
// CurlHandles over one event_base via curl_multi) is played here by one
// Reactor multiplexing many ClientHandles.
type Engine struct {
	re           *reactor.Reactor
	maxHeadBytes int

	// CachePath, if set, gets an alt-svc.txt placeholder written under it
	// the first time a connection is established — the observable remnant
	// of the original's CURLOPT_ALTSVC cache, without a bundled curl to
	// actually negotiate Alt-Svc with.
	CachePath string
	// CABundle is recorded but never consulted: TLS provisioning is out of
	// scope for this engine (see config.Config.CABundle).
	CABundle []byte

	altSvcOnce sync.Once
}

// New returns an Engine driven by re.
func New(re *reactor.Reactor) *Engine {
	return &Engine{re: re, maxHeadBytes: wire.DefaultMaxHeadBytes}
}

func (e *Engine) noteConnectionEstablished() {
	if e.CachePath == "" {
		return
	}
	e.altSvcOnce.Do(func() {
		path := filepath.Join(e.CachePath, "alt-svc.txt")
		_ = os.MkdirAll(e.CachePath, 0o755)
		_ = os.WriteFile(path, []byte("# coro-http alt-svc cache placeholder\n"), 0o644)
	})
}

// Fetch issues req and returns a Task that resolves to the response headers
// as soon as they arrive; the response body streams lazily through
// Response.Body. stopToken aborts the request (and whatever part of the
// body transfer is still in flight) the moment it fires.
func (e *Engine) Fetch(req *httpmsg.Request, stopToken *stopctx.StopToken) *task.Task[*httpmsg.Response] {
	op := newOperation(stopToken)

	fd, _, path, host, err := dial(req.URL)
	if err != nil {
		return task.Done[*httpmsg.Response](nil, err)
	}
	e.noteConnectionEstablished()

	h := newClientHandle(e.re, fd, e.maxHeadBytes)
	h.owner = owner{op: op}
	h.reqBody = req.Body

	headers := req.Headers
	if headers.Get("Host") == "" {
		headers.AddUnchecked("Host", host)
	}
	chunkedOut := req.Body != nil && headers.Get("Content-Length") == ""
	head := wire.EncodeRequestHead(req.Method, path, &headers, chunkedOut)
	h.writeBuf = head

	h.stopCB = stopctx.NewCallback(stopToken, func() {
		h.fail(fmt.Errorf("httpclient: request canceled"))
	})

	if err := e.re.RegisterFD(fd, reactor.FDFlags{Read: true, Write: true}, func(readable, writable bool) {
		if writable {
			h.onWritable()
		}
		if readable {
			h.onReadable()
		}
	}); err != nil {
		unix.Close(fd)
		return task.Done[*httpmsg.Response](nil, fmt.Errorf("httpclient: register: %w", err))
	}

	return op.Task()
}

// dial parses rawURL, opens a non-blocking TCP socket, and issues a
// non-blocking connect — returning before the connect necessarily
// completes; completion is observed as the first writable event, the same
// way curl's CURLOPT_SOCKETFUNCTION/CURLM_SOCKET_ACTION machinery treats a
// connecting socket as "watch for writable."
func dial(rawURL string) (fd int, addr string, path string, host string, err error) {
	u, perr := url.Parse(rawURL)
	if perr != nil {
		return 0, "", "", "", fmt.Errorf("httpclient: invalid URL %q: %w", rawURL, perr)
	}
	host = u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	if u.Scheme == "https" {
		return 0, "", "", "", fmt.Errorf("httpclient: TLS is not supported by this engine")
	}
	path = u.RequestURI()
	if path == "" {
		path = "/"
	}
	addr = net.JoinHostPort(host, port)

	ips, lerr := net.LookupIP(host)
	if lerr != nil || len(ips) == 0 {
		return 0, "", "", "", fmt.Errorf("httpclient: resolve %q: %w", host, lerr)
	}
	ip := ips[0]

	sockFD, serr := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if serr != nil {
		return 0, "", "", "", fmt.Errorf("httpclient: socket: %w", serr)
	}
	if err := unix.SetNonblock(sockFD, true); err != nil {
		unix.Close(sockFD)
		return 0, "", "", "", fmt.Errorf("httpclient: set nonblock: %w", err)
	}

	portNum, _ := strconv.Atoi(port)
	sa := &unix.SockaddrInet4{Port: portNum}
	ip4 := ip.To4()
	if ip4 == nil {
		unix.Close(sockFD)
		return 0, "", "", "", fmt.Errorf("httpclient: only IPv4 addresses are supported, got %v", ip)
	}
	copy(sa.Addr[:], ip4)

	if err := unix.Connect(sockFD, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(sockFD)
		return 0, "", "", "", fmt.Errorf("httpclient: connect %s: %w", addr, err)
	}

	return sockFD, addr, path, strings.TrimSuffix(host, "."), nil
}
