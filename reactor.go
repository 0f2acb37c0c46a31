// Package slava is a minimal cooperative task executor paired with a
// readiness-based non-blocking TCP I/O layer. A single background goroutine
// integrates OS-level readiness notification (poll(2), via
// golang.org/x/sys/unix) with the user-space scheduler's wakers.
package slava

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPollInterval is both the idle-sleep duration and the poll(2)
// timeout used by the reactor's background loop. It is read once, at first
// use of the reactor; changing it afterward has no effect. Tests that need
// a tighter loop should set it before any socket or task operation that
// would touch the reactor.
var DefaultPollInterval = 160 * time.Millisecond

const drainBufSize = 1024

// reactor is a process-wide singleton: a single mutex-guarded set of
// read/write waiter maps plus a set of FDs pending drain-and-close,
// serviced by one background goroutine. It is lazily initialized on first
// registration and never torn down.
type reactor struct {
	mu           sync.Mutex
	readWaiters  map[int]*Waker
	writeWaiters map[int]*Waker
	closingFDs   map[int]struct{}

	pollInterval time.Duration

	wakesTotal       atomic.Int64
	drainClosesTotal atomic.Int64
	pollErrorsTotal  atomic.Int64
}

var (
	reactorOnce sync.Once
	reactorInst *reactor
)

// defaultReactor returns the process-wide reactor, starting its background
// goroutine on first call.
func defaultReactor() *reactor {
	reactorOnce.Do(func() {
		reactorInst = &reactor{
			readWaiters:  make(map[int]*Waker),
			writeWaiters: make(map[int]*Waker),
			closingFDs:   make(map[int]struct{}),
			pollInterval: DefaultPollInterval,
		}
		go reactorInst.loop()
		logger().Debug().Dur("interval", reactorInst.pollInterval).Msg("slava: reactor started")
	})
	return reactorInst
}

// registerRead installs w as the sole read-awaiter for fd, replacing
// whatever waker (if any) was previously registered for that FD and
// direction. The displaced waker, if there was one, is simply dropped; its
// task is responsible for re-registering on its own next poll.
func (r *reactor) registerRead(fd int, w *Waker) {
	r.mu.Lock()
	r.readWaiters[fd] = w
	r.mu.Unlock()
}

// registerWrite installs w as the sole write-awaiter for fd, with the same
// overwrite-on-collision semantics as registerRead.
func (r *reactor) registerWrite(fd int, w *Waker) {
	r.mu.Lock()
	r.writeWaiters[fd] = w
	r.mu.Unlock()
}

// markClosing removes fd from both waiter maps and enrolls it for
// drain-and-close on the background loop's next sweep.
func (r *reactor) markClosing(fd int) {
	r.mu.Lock()
	delete(r.readWaiters, fd)
	delete(r.writeWaiters, fd)
	r.closingFDs[fd] = struct{}{}
	r.mu.Unlock()
}

// closeNow closes fd immediately, skipping the drain-and-close sweep. Used
// by TcpListener, whose FDs are never handed off for draining.
func (r *reactor) closeNow(fd int) {
	r.mu.Lock()
	delete(r.readWaiters, fd)
	delete(r.writeWaiters, fd)
	delete(r.closingFDs, fd)
	r.mu.Unlock()
	_ = unix.Close(fd)
}

func (r *reactor) loop() {
	buf := make([]byte, drainBufSize)
	for {
		r.drainCloseSweep(buf)

		r.mu.Lock()
		n := len(r.readWaiters) + len(r.writeWaiters)
		if n == 0 {
			r.mu.Unlock()
			time.Sleep(r.pollInterval)
			continue
		}

		fds := make([]unix.PollFd, 0, n)
		for fd := range r.readWaiters {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}
		for fd := range r.writeWaiters {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
		}
		r.mu.Unlock()

		_, err := unix.Poll(fds, int(r.pollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.pollErrorsTotal.Add(1)
			// A non-EINTR return from poll(2) indicates a programming bug
			// (an invalid FD slipped into one of the waiter maps) and is
			// unrecoverable. The abort must not depend on whether a logger
			// is configured, so this calls os.Exit directly rather than
			// relying on zerolog's Fatal hook, which is a no-op once the
			// package logger is disabled (the default).
			logger().Error().Err(err).Msg("slava: poll(2) failed, aborting")
			os.Exit(1)
		}

		r.dispatch(fds)
	}
}

// dispatch fires the waker for every FD whose returned events are
// non-zero, removing it from the waiter map first. A waiter absent by the
// time dispatch runs (its task was dropped between the poll-array snapshot
// and now) is a silent no-op.
func (r *reactor) dispatch(fds []unix.PollFd) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := int(pfd.Fd)

		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			if w, ok := r.readWaiters[fd]; ok {
				delete(r.readWaiters, fd)
				w.Wake()
			}
		}
		if pfd.Revents&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
			if w, ok := r.writeWaiters[fd]; ok {
				delete(r.writeWaiters, fd)
				w.Wake()
			}
		}
	}
}

// drainCloseSweep gives each FD pending close one bounded, non-blocking
// read attempt per iteration: bytes consumed this round means the peer may
// still be sending, so the FD stays in the set for the next sweep; EOF or a
// hard error means it's safe to close now. This deliberately gives the
// peer's in-flight data a bounded chance to be consumed before the FD
// disappears, avoiding an RST in the common short-response case.
//
// EAGAIN and EWOULDBLOCK are checked with a logical OR, not AND: the two
// constants can differ by platform, and an AND of the two would never be
// true on a platform where they do.
func (r *reactor) drainCloseSweep(buf []byte) {
	r.mu.Lock()
	if len(r.closingFDs) == 0 {
		r.mu.Unlock()
		return
	}
	fds := make([]int, 0, len(r.closingFDs))
	for fd := range r.closingFDs {
		fds = append(fds, fd)
	}
	r.mu.Unlock()

	for _, fd := range fds {
		n, err := unix.Read(fd, buf)
		switch {
		case err != nil && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)):
			// Nothing to drain yet; try again next sweep.
		case err != nil:
			r.closeDraining(fd)
		case n == 0:
			r.closeDraining(fd)
		default:
			// Bytes consumed; leave fd in the set for the next sweep.
		}
	}
}

func (r *reactor) closeDraining(fd int) {
	_ = unix.Close(fd)
	r.mu.Lock()
	delete(r.closingFDs, fd)
	r.mu.Unlock()
	r.drainClosesTotal.Add(1)
}
