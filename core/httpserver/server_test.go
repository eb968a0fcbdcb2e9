package httpserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/SecurityWorks/coro-http/core/httpmsg"
	"github.com/SecurityWorks/coro-http/core/reactor"
	"github.com/SecurityWorks/coro-http/core/stopctx"
	"github.com/SecurityWorks/coro-http/core/task"
)

// freePort reserves an ephemeral TCP port on loopback and releases it
// immediately — good enough for a test process that binds it right back.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func helloHandler(req *httpmsg.Request, stopToken *stopctx.StopToken) *task.Task[*httpmsg.Response] {
	var h httpmsg.Header
	h.AddUnchecked("Content-Type", "text/plain")
	if req.URL == "/echo" && req.Body != nil {
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
		return task.Done(&httpmsg.Response{Status: 200, Headers: h, Body: body}, nil)
	}
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
	return task.Done(&httpmsg.Response{Status: 200, Headers: h, Body: body}, nil)
}

func startTestServer(t *testing.T, handler Handler) (addr string, srv *Server, re *reactor.Reactor) {
	t.Helper()
	re, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	go re.Run()
	t.Cleanup(re.Stop)

	srv = New(re, handler)
	port := freePort(t)
	if err := srv.Listen(Config{Address: "127.0.0.1", Port: port}); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return fmt.Sprintf("127.0.0.1:%d", port), srv, re
}

func TestServerHelloRoundTrip(t *testing.T) {
	addr, _, _ := startTestServer(t, helloHandler)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	io.WriteString(conn, "GET /hello HTTP/1.1\r\nHost: test\r\n\r\n")

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status = %q", status)
	}

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		if line == "\r\n" {
			break
		}
		var k, v string
		fmt.Sscanf(line, "%s %s", &k, &v)
		headers[k] = v
	}
	if headers["Transfer-Encoding:"] != "chunked" {
		t.Fatalf("headers = %v, want Transfer-Encoding: chunked", headers)
	}

	want := "3\r\nhel\r\n2\r\nlo\r\n0\r\n\r\n"
	body := make([]byte, len(want))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != want {
		t.Fatalf("chunked body = %q, want %q", body, want)
	}
}

func TestServerEchoesRequestBody(t *testing.T) {
	addr, _, _ := startTestServer(t, helloHandler)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	payload := "ping"
	req := fmt.Sprintf("POST /echo HTTP/1.1\r\nHost: test\r\nContent-Length: %d\r\n\r\n%s", len(payload), payload)
	io.WriteString(conn, req)

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil || status != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status = %q, err = %v", status, err)
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}
	want := "4\r\nping\r\n0\r\n\r\n"
	body := make([]byte, len(want))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != want {
		t.Fatalf("chunked echo body = %q, want %q", body, want)
	}
}

func TestServerQuitEndpointClosesConnection(t *testing.T) {
	addr, srv, re := startTestServer(t, helloHandler)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	io.WriteString(conn, "GET /quit HTTP/1.1\r\nHost: test\r\n\r\n")
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil || status != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status = %q, err = %v", status, err)
	}

	// The /quit reply is sent with Connection: close and the server closes
	// the socket after it, so the rest of the reply must end in EOF.
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("connection not closed after the /quit reply: %v", err)
	}

	// Quit() must have run: poll on the reactor until the server's quit
	// task has resolved.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		quitDone := make(chan bool, 1)
		re.Post(func() { quitDone <- srv.quitTask != nil && srv.quitTask.Ready() })
		if <-quitDone {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never completed its quit task after /quit")
}
