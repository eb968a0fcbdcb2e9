// Package chunkstream implements the HTTP body generator: a finite,
// not-restartable lazy sequence of byte chunks with a one-slot buffer and
// producer pause/resume.
//
// Grounded on the teacher's core/sse/stream.go + core/sse/broker.go (a
// single-buffered channel per subscriber, with explicit "client full" /
// backpressure handling) and on CurlHttpBodyGenerator in
// original_source/src/coro/http/curl_http.cc for the pause-on-buffer-full,
// resume-on-drain contract and the "close drains the last buffered chunk
// before EOF/error" ordering.
package chunkstream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/SecurityWorks/coro-http/core/stopctx"
)

// ErrInterrupted is returned by Next when the owning request's stop token
// fires while a consumer is awaiting a chunk.
var ErrInterrupted = errors.New("chunkstream: interrupted")

// ChunkStream is created and fed by core/httpclient (response bodies) and
// core/httpserver (request bodies reaching a handler), and consumed by
// library callers reading a Response.Body and handlers reading a Request.Body.
//
// Producer-side methods (Push, Close) are called only from the reactor
// goroutine, matching every other CORE type. Next is the one CORE entry
// point meant to be called from an arbitrary consumer goroutine — unlike
// ClientHandle/Operation, which are only ever touched by the reactor, a
// ChunkStream is also read across that goroutine boundary by whoever is
// draining a response/request body, so it carries one small mutex solely to
// serialize that single handoff. In the original reactor and its awaiting
// coroutine, both ran on the same OS thread and needed no synchronization
// at all; Go idiomatically puts the body consumer on its own goroutine, and
// that one cross-goroutine edge is why it locks, as do the reactor's Post
// queue and core/stopctx's callback lists.
type ChunkStream struct {
	mu sync.Mutex

	buffered []byte
	hasChunk bool

	closed bool
	status int
	err    error

	waiting bool
	wakeC   chan struct{}

	onDrain func() // invoked once a buffered chunk is consumed: un-pauses the transport

	stopCB *stopctx.StopCallback
}

// New creates an open ChunkStream. onDrain is called (from whichever
// goroutine calls Next) every time a buffered chunk is consumed, so the
// owner (core/httpclient.ClientHandle) can resume a paused transport.
func New(stopToken *stopctx.StopToken, onDrain func()) *ChunkStream {
	cs := &ChunkStream{onDrain: onDrain, wakeC: make(chan struct{})}
	cs.stopCB = stopctx.NewCallback(stopToken, func() {
		cs.interrupt()
	})
	return cs
}

func (cs *ChunkStream) interrupt() {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return
	}
	cs.closed = true
	cs.err = ErrInterrupted
	cs.wake()
	cs.mu.Unlock()
}

// wake must be called with mu held.
func (cs *ChunkStream) wake() {
	if cs.waiting {
		cs.waiting = false
		close(cs.wakeC)
		cs.wakeC = make(chan struct{})
	}
}

// Push delivers one chunk from the producer. It must only be called when
// the stream is not paused (Paused() == false); pushing into a paused
// stream is a producer bug — the transport must honor the pause signal
// instead of calling Push again. chunk is copied: transports read into a
// pooled buffer they reuse for the next socket read, so Push cannot retain
// the slice it was given.
func (cs *ChunkStream) Push(chunk []byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	cs.buffered = append([]byte(nil), chunk...)
	cs.hasChunk = true
	cs.wake()
}

// Close is called by the transport layer once the body is fully delivered
// (status >= 0) or the transfer has failed (err != nil). Any already
// buffered chunk is still drained by Next before EOF/err is surfaced.
func (cs *ChunkStream) Close(status int, err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	cs.closed = true
	cs.status = status
	cs.err = err
	cs.wake()
}

// Status returns the last status recorded at close. The transport's
// numeric result is stored in the same field regardless of whether it
// represents an HTTP status or a transport-level result code, reflecting
// whichever arrived last (see DESIGN.md for why we kept that single-field
// behavior instead of splitting it in two): no CORE component currently
// needs to tell the two apart, and Operation — which does capture the real
// HTTP status separately, at header time — is the authoritative source for
// callers that care.
func (cs *ChunkStream) Status() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.status
}

// Paused reports whether the transport must stop delivering chunks: a
// chunk is buffered and undrained, or the stream has already closed.
func (cs *ChunkStream) Paused() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hasChunk || cs.closed
}

// Next suspends the calling goroutine until a chunk is available, the
// stream closes with status (io.EOF), or it closes with an error.
func (cs *ChunkStream) Next(ctx context.Context) ([]byte, error) {
	for {
		cs.mu.Lock()
		if cs.hasChunk {
			chunk := cs.buffered
			cs.buffered = nil
			cs.hasChunk = false
			drain := cs.onDrain
			cs.mu.Unlock()
			if drain != nil {
				drain()
			}
			return chunk, nil
		}
		if cs.closed {
			err := cs.err
			cs.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		cs.waiting = true
		wakeC := cs.wakeC
		cs.mu.Unlock()

		select {
		case <-wakeC:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
