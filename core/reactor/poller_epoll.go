//go:build linux

package reactor

import "golang.org/x/sys/unix"

// epollPoller is the Linux poller backend. Grounded on the teacher's
// core/poller/epoll.go, but built on golang.org/x/sys/unix instead of the
// bare syscall package — the teacher already depends on golang.org/x/sys
// (core/optimize/simd.go imports x/sys/cpu for SIMD feature detection);
// x/sys/unix is the idiomatic, maintained surface for the same epoll calls
// the teacher hand-rolled with syscall directly.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd, events: make([]unix.EpollEvent, 1024)}, nil
}

func epollMask(readable, writable bool) uint32 {
	var mask uint32 = unix.EPOLLRDHUP
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (p *epollPoller) Add(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		out = append(out, Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
