package slava

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// listenBacklog is the backlog passed to listen(2).
const listenBacklog = 5

// TcpListener owns a non-blocking, SO_REUSEADDR listening socket bound to
// 0.0.0.0:<port>. Bind propagates bind(2)/fcntl(2)/setsockopt(2) failures
// rather than silently ignoring their return codes.
type TcpListener struct {
	fd     int
	closed atomic.Bool
}

// Bind creates a non-blocking IPv4 TCP listener on the given port across
// all interfaces, with SO_REUSEADDR set, and a backlog of 5.
func Bind(port uint16) (*TcpListener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("slava: socket: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("slava: set nonblocking: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("slava: setsockopt SO_REUSEADDR: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("slava: bind: %w", err)
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("slava: listen: %w", err)
	}

	l := &TcpListener{fd: fd}
	runtime.SetFinalizer(l, func(l *TcpListener) { _ = l.Close() })
	return l, nil
}

// Port reports the port the listener is actually bound to, useful after
// binding to port 0 to pick an ephemeral one.
func (l *TcpListener) Port() (uint16, error) {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return 0, fmt.Errorf("slava: getsockname: %w", err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(sa.Port), nil
	default:
		return 0, errors.New("slava: unexpected socket address family")
	}
}

// Accept suspends until a connection is pending, then returns it as a
// TcpStream. On EAGAIN, the current task registers as the listening FD's
// read-awaiter and parks; any other error is returned as an operation
// failure, leaving the caller free to keep accepting.
func (l *TcpListener) Accept(aw *Awaiter) (*TcpStream, error) {
	for {
		fd, _, err := unix.Accept(l.fd)
		if err == nil {
			if err := unix.SetNonblock(fd, true); err != nil {
				_ = unix.Close(fd)
				return nil, fmt.Errorf("slava: accept: set nonblocking: %w", err)
			}
			return newTcpStream(fd), nil
		}

		if !errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("slava: accept: %w", err)
		}

		aw.suspendRead(l.fd)
	}
}

// Close closes the listening FD immediately; unlike TcpStream, a listener
// is never handed off to the drain-and-close path since there is no peer
// transmission in flight to wait for.
func (l *TcpListener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	defaultReactor().closeNow(l.fd)
	return nil
}

// TcpStream owns a non-blocking, connected TCP socket.
type TcpStream struct {
	fd     int
	closed atomic.Bool
}

func newTcpStream(fd int) *TcpStream {
	s := &TcpStream{fd: fd}
	runtime.SetFinalizer(s, func(s *TcpStream) { _ = s.Close() })
	return s
}

// LocalAddr reports the local endpoint of the connection.
func (s *TcpStream) LocalAddr() (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, fmt.Errorf("slava: getsockname: %w", err)
	}
	return sockaddrToTCPAddr(sa)
}

// RemoteAddr reports the peer endpoint of the connection.
func (s *TcpStream) RemoteAddr() (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return nil, fmt.Errorf("slava: getpeername: %w", err)
	}
	return sockaddrToTCPAddr(sa)
}

func sockaddrToTCPAddr(sa unix.Sockaddr) (*net.TCPAddr, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}, nil
	default:
		return nil, errors.New("slava: unexpected socket address family")
	}
}

// ReadBytes suspends until at least one byte is available (or EOF, or
// error), then returns it. A zero-length buf completes immediately with 0
// and never registers a waiter. Reading 0 bytes on a non-empty buffer means
// EOF; callers decide what that means at a higher layer.
func (s *TcpStream) ReadBytes(aw *Awaiter, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(s.fd, buf)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
			return 0, fmt.Errorf("slava: read: %w", err)
		}
		aw.suspendRead(s.fd)
	}
}

// WriteBytes writes the entire buffer, looping over short writes and
// EAGAIN alike, and only returns once every byte has been handed to the
// kernel or a hard error occurs. A zero-length buf completes immediately
// with 0 and never registers a waiter.
func (s *TcpStream) WriteBytes(aw *Awaiter, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	written := 0
	for written < len(buf) {
		n, err := unix.Write(s.fd, buf[written:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				aw.suspendWrite(s.fd)
				continue
			}
			return written, fmt.Errorf("slava: write: %w", err)
		}

		written += n
		if written == len(buf) {
			return written, nil
		}
		aw.suspendWrite(s.fd)
	}
	return written, nil
}

// Close half-closes the write direction, removes both directional waiters
// for the FD, and hands it to the reactor's drain-and-close path so any
// data already in flight from the peer has a bounded chance to be consumed
// before the socket disappears.
func (s *TcpStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = unix.Shutdown(s.fd, unix.SHUT_WR)
	defaultReactor().markClosing(s.fd)
	return nil
}
