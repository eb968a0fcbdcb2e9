// Package reactor is the CORE's single adapter to the operating system's
// non-blocking socket/timer facilities. Exactly one goroutine — the one
// running Reactor.Run — ever calls a registered fd/timer/event callback or a
// function handed to Post. That discipline is what lets core/httpclient and
// core/httpserver hold mutable state with no locks (core/chunkstream still
// locks, because its Next is called from consumer goroutines).
//
// Grounded on the teacher's core/poller (epoll/kqueue backends) and the
// accept/dispatch loop in core/engine.go:Run, generalized from "HTTP
// engine with a connection map" to "generic fd/timer/event reactor."
package reactor

import (
	"container/heap"
	"sync"
	"time"
)

// FDFlags selects which readiness directions a registration cares about.
type FDFlags struct {
	Read  bool
	Write bool
}

type fdReg struct {
	fd    int
	flags FDFlags
	cb    func(readable, writable bool)
}

// TimerHandle cancels a timer registered with RegisterTimer.
type TimerHandle struct{ id uint64 }

// EventHandle cancels a user event registered with RegisterEvent.
type EventHandle struct{ id uint64 }

type timerEntry struct {
	id     uint64
	at     time.Time
	cb     func()
	index  int
	cancel bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Reactor drives one poller plus software timers and user events on a
// single goroutine.
type Reactor struct {
	p poller

	fds map[int]*fdReg

	timers   timerHeap
	timerIdx map[uint64]*timerEntry

	events   map[uint64]func()
	nextID   uint64
	pendingM sync.Mutex
	pending  []func() // posted from any goroutine, drained each loop turn

	stopC chan struct{}
	doneC chan struct{}
}

// New creates a Reactor with the platform poller backend.
func New() (*Reactor, error) {
	pl, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		p:        pl,
		fds:      make(map[int]*fdReg),
		timerIdx: make(map[uint64]*timerEntry),
		events:   make(map[uint64]func()),
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}, nil
}

// RegisterFD registers fd for readiness callbacks. cb runs on the reactor
// goroutine whenever fd becomes readable and/or writable per flags.
func (r *Reactor) RegisterFD(fd int, flags FDFlags, cb func(readable, writable bool)) error {
	reg := &fdReg{fd: fd, flags: flags, cb: cb}
	r.fds[fd] = reg
	return r.p.Add(fd, flags.Read, flags.Write)
}

// ModifyFD changes the readiness directions watched for fd.
func (r *Reactor) ModifyFD(fd int, flags FDFlags) error {
	reg, ok := r.fds[fd]
	if !ok {
		return nil
	}
	reg.flags = flags
	return r.p.Modify(fd, flags.Read, flags.Write)
}

// UnregisterFD stops watching fd.
func (r *Reactor) UnregisterFD(fd int) error {
	if _, ok := r.fds[fd]; !ok {
		return nil
	}
	delete(r.fds, fd)
	return r.p.Remove(fd)
}

// RegisterTimer schedules cb to run once, after d, on the reactor goroutine.
func (r *Reactor) RegisterTimer(d time.Duration, cb func()) TimerHandle {
	r.nextID++
	id := r.nextID
	e := &timerEntry{id: id, at: time.Now().Add(d), cb: cb}
	r.timerIdx[id] = e
	heap.Push(&r.timers, e)
	return TimerHandle{id: id}
}

// CancelTimer prevents a pending timer from firing.
func (r *Reactor) CancelTimer(h TimerHandle) {
	if e, ok := r.timerIdx[h.id]; ok {
		e.cancel = true
		delete(r.timerIdx, h.id)
	}
}

// RegisterEvent allocates a user-event slot for cb; Trigger runs cb the
// next time the reactor drains posted work. Unlike
// RegisterFD/RegisterTimer, Trigger is safe to call from any goroutine —
// this is the seam RunTask-spawned goroutines use to hand results back to
// the single-threaded core (the Go stand-in for evuser_trigger, which
// libevent guarantees is thread-safe).
func (r *Reactor) RegisterEvent(cb func()) EventHandle {
	r.nextID++
	id := r.nextID
	r.events[id] = cb
	return EventHandle{id: id}
}

// Trigger schedules the event's callback to run on the reactor goroutine.
func (r *Reactor) Trigger(h EventHandle) {
	r.Post(func() {
		if cb, ok := r.events[h.id]; ok {
			cb()
		}
	})
}

// CancelEvent releases a user-event slot.
func (r *Reactor) CancelEvent(h EventHandle) {
	delete(r.events, h.id)
}

// Post schedules fn to run on the reactor goroutine at the next loop turn.
// Safe to call from any goroutine. Completions that must not run
// reentrantly inside the callback that produced them go through Post
// instead, the same way the original reactor defers them with a zero-delay
// timer.
func (r *Reactor) Post(fn func()) {
	r.pendingM.Lock()
	r.pending = append(r.pending, fn)
	r.pendingM.Unlock()
}

func (r *Reactor) drainPending() {
	for {
		r.pendingM.Lock()
		if len(r.pending) == 0 {
			r.pendingM.Unlock()
			return
		}
		batch := r.pending
		r.pending = nil
		r.pendingM.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}

func (r *Reactor) fireDueTimers() {
	now := time.Now()
	for r.timers.Len() > 0 {
		e := r.timers[0]
		if e.cancel {
			heap.Pop(&r.timers)
			continue
		}
		if e.at.After(now) {
			return
		}
		heap.Pop(&r.timers)
		delete(r.timerIdx, e.id)
		e.cb()
	}
}

func (r *Reactor) nextTimeoutMs() int {
	if r.timers.Len() == 0 {
		return 100
	}
	d := time.Until(r.timers[0].at)
	if d <= 0 {
		return 0
	}
	if ms := int(d / time.Millisecond); ms < 100 {
		return ms
	}
	return 100
}

// Run drives the loop until Stop is called. It is intended to be run on its
// own goroutine for the lifetime of the process/server.
func (r *Reactor) Run() {
	defer close(r.doneC)
	for {
		select {
		case <-r.stopC:
			return
		default:
		}

		r.drainPending()
		r.fireDueTimers()

		events, err := r.p.Wait(r.nextTimeoutMs())
		if err != nil {
			continue
		}
		for _, ev := range events {
			reg, ok := r.fds[ev.FD]
			if !ok {
				continue
			}
			reg.cb(ev.Readable, ev.Writable)
		}
	}
}

// Stop asks Run to return and blocks until it does.
func (r *Reactor) Stop() {
	close(r.stopC)
	<-r.doneC
	r.p.Close()
}
