// Package stopctx implements the cooperative cancellation channel used
// throughout coro-http: a StopSource owns a single monotonic signal: tokens
// derived from it observe the signal, and callbacks registered against a
// token fire exactly once on first signal (immediately, if already
// signaled).
//
// This is the Go rendering of stdx::stop_source / stdx::stop_token /
// stdx::stop_callback from original_source/src/coro/http/http_server.h and
// curl_http.cc. It is intentionally not context.Context: the spec requires
// scoped callback registration with immediate-fire-on-late-registration
// semantics that context.Context's Done() channel does not give you
// directly.
package stopctx

import "sync"

// StopSource owns a single cancellation signal.
type StopSource struct {
	mu        sync.Mutex
	signaled  bool
	callbacks []*StopCallback
}

// NewSource creates an unsignaled StopSource.
func NewSource() *StopSource {
	return &StopSource{}
}

// Token returns a token observing this source's signal.
func (s *StopSource) Token() *StopToken {
	return &StopToken{source: s}
}

// RequestStop sets the signal (no-op if already set) and fires every
// registered callback exactly once, in registration order, on the calling
// goroutine — callers must keep callbacks short and must not call
// RequestStop on the same source from within a callback.
func (s *StopSource) RequestStop() {
	s.mu.Lock()
	if s.signaled {
		s.mu.Unlock()
		return
	}
	s.signaled = true
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb.fire()
	}
}

func (s *StopSource) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signaled
}

func (s *StopSource) register(cb *StopCallback) {
	s.mu.Lock()
	if s.signaled {
		s.mu.Unlock()
		cb.fire()
		return
	}
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

func (s *StopSource) deregister(cb *StopCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.callbacks {
		if c == cb {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			return
		}
	}
}

// StopToken is a read-only view of a StopSource's signal.
type StopToken struct {
	source *StopSource
}

// Background returns a token that never fires, for callers with no
// cancellation source (the zero value of *StopToken behaves the same way).
func Background() *StopToken {
	return &StopToken{}
}

// StopRequested reports whether the underlying source has been signaled.
func (t *StopToken) StopRequested() bool {
	if t == nil || t.source == nil {
		return false
	}
	return t.source.stopRequested()
}

// StopCallback is a scoped registration: on construction it registers with
// the token (firing immediately if already signaled); Stop deregisters it
// without firing, mirroring stdx::stop_callback's destructor.
type StopCallback struct {
	token   *StopToken
	fn      func()
	once    sync.Once
	stopped bool
	mu      sync.Mutex
}

// NewCallback registers fn against t. If t is nil or background, fn never
// fires and Stop is a no-op.
func NewCallback(t *StopToken, fn func()) *StopCallback {
	cb := &StopCallback{token: t, fn: fn}
	if t != nil && t.source != nil {
		t.source.register(cb)
	}
	return cb
}

func (cb *StopCallback) fire() {
	cb.once.Do(func() {
		cb.mu.Lock()
		stopped := cb.stopped
		cb.mu.Unlock()
		if !stopped {
			cb.fn()
		}
	})
}

// Stop deregisters the callback. If RequestStop already fired it, Stop is a
// harmless no-op — the callback has already run exactly once.
func (cb *StopCallback) Stop() {
	cb.mu.Lock()
	cb.stopped = true
	cb.mu.Unlock()
	if cb.token != nil && cb.token.source != nil {
		cb.token.source.deregister(cb)
	}
}
