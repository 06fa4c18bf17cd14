//go:build unix

package aprs

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listener is a raw non-blocking TCP listening socket
type listener struct {
	fd   int
	addr string
}

// conn is one accepted connection
type conn struct {
	fd int
}

func listen(address string, port, backlog int) (*listener, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("invalid bind address %q", address)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		inet4 := &unix.SockaddrInet4{Port: port}
		copy(inet4.Addr[:], ip4)
		sa = inet4
	} else {
		domain = unix.AF_INET6
		inet6 := &unix.SockaddrInet6{Port: port}
		copy(inet6.Addr[:], ip.To16())
		sa = inet6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", net.JoinHostPort(address, strconv.Itoa(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	l := &listener{fd: fd, addr: net.JoinHostPort(address, strconv.Itoa(port))}
	if bound, err := unix.Getsockname(fd); err == nil {
		switch a := bound.(type) {
		case *unix.SockaddrInet4:
			l.addr = net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
		case *unix.SockaddrInet6:
			l.addr = net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
		}
	}
	return l, nil
}

func (l *listener) Addr() string {
	return l.addr
}

// accept returns ok=false without blocking when no connection is pending
func (l *listener) accept() (*conn, bool, error) {
	nfd, _, err := unix.Accept(l.fd)
	if err != nil {
		if wouldBlock(err) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("accept: %w", err)
	}
	unix.CloseOnExec(nfd)

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, false, fmt.Errorf("set non-blocking: %w", err)
	}
	return &conn{fd: nfd}, true, nil
}

func (l *listener) close() error {
	return unix.Close(l.fd)
}

// read performs a single non-blocking read; no data available yields 0
func (c *conn) read(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if wouldBlock(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read: %w", err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (c *conn) close() error {
	return unix.Close(c.fd)
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
