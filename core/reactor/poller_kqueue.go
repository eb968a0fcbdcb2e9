//go:build darwin || freebsd || netbsd || openbsd

package reactor

import "golang.org/x/sys/unix"

// kqueuePoller is the BSD/macOS poller backend. Grounded on the teacher's
// core/poller/kqueue.go, rebuilt on golang.org/x/sys/unix (see
// poller_epoll.go for why) and extended to track write-readiness, which the
// teacher's HTTP engine never needed but the client transport (write
// request-body bytes) and server transport (write response chunks) both do.
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

func newPoller() (poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kqfd: kqfd, events: make([]unix.Kevent_t, 1024)}, nil
}

func (p *kqueuePoller) change(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, readable, writable bool) error {
	if readable {
		if err := p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return err
		}
	}
	if writable {
		if err := p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE); err != nil {
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) Modify(fd int, readable, writable bool) error {
	if readable {
		p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	} else {
		p.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if writable {
		p.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE)
	} else {
		p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	p.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1e6,
		}
	}
	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	byFD := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		e, ok := byFD[fd]
		if !ok {
			e = &Event{FD: fd}
			byFD[fd] = e
			order = append(order, fd)
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e.Readable = true
		case unix.EVFILT_WRITE:
			e.Writable = true
		}
	}
	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFD[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
