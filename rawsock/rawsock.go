//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Raw file descriptor sockets.
//

// Package rawsock adapts raw file descriptors to the
// [emucore.AppSocket] contract, so that sockets created outside the
// Go runtime, for example by a library under test calling socket(2)
// directly, can be redirected through the emulator.
//
// The package never owns the descriptors it is given: closing or
// otherwise disposing of them remains the caller's responsibility.
package rawsock

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/chargen/sockem/emucore"
	"golang.org/x/sys/unix"
)

// ErrNetworkNotSupported indicates that the network passed to
// [*Socket.Connect] is not a TCP network.
var ErrNetworkNotSupported = errors.New("network not supported")

// Socket is an [emucore.AppSocket] backed by a raw file descriptor.
//
// The descriptor also serves as the socket identity, so each
// descriptor can be emulated at most once at a time. The [Socket]
// never owns the descriptor.
type Socket struct {
	fd int
}

// New creates a [Socket] for the given file descriptor.
func New(fd int) *Socket {
	return &Socket{fd: fd}
}

// ID implements [emucore.AppSocket].
func (s *Socket) ID() emucore.SocketID {
	return emucore.SocketID(s.fd)
}

// Connect implements [emucore.AppSocket] by connecting the raw
// descriptor to the given address, which must be an IP literal with
// a port. Only TCP networks are supported.
//
// Interrupted attempts are retried. An attempt left in progress by a
// nonblocking descriptor is a success, since the loopback listener
// on the other side completes the handshake on its own.
func (s *Socket) Connect(ctx context.Context, network, address string) error {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("%w: %s", ErrNetworkNotSupported, network)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := netip.ParseAddrPort(address)
	if err != nil {
		return err
	}

	sa := sockaddr(addr)
	for {
		err := unix.Connect(s.fd, sa)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY):
			return nil
		case errors.Is(err, unix.EISCONN):
			// a retried attempt that had settled in the meantime
			return nil
		default:
			return err
		}
	}
}

// sockaddr maps the address to the matching socket address family.
func sockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(addr.Port())}
		sa.Addr = ip.Unmap().As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port())}
	sa.Addr = ip.As16()
	return sa
}
