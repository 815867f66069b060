//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Dialer redirecting new connections through the emulator.
//

package emudial

import (
	"context"
	"fmt"
	"net"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/chargen/sockem/emuconf"
	"github.com/chargen/sockem/emucore"
)

// EnvConfig names the environment variable providing default
// configuration options for every connection a [Dialer] creates. The
// variable uses the syntax documented by [emuconf.ParseOptions] and
// is read once, at the first dial.
const EnvConfig = "SOCKEM_CONF"

// Dialer emulates the TCP connections it dials.
//
// Dialing redirects the new connection through the manager's
// forwarding engine and returns a [Conn] whose Close also tears the
// emulation down. Networks other than TCP are dialed directly,
// without emulation.
//
// The zero value is not ready to use: the Manager field is mandatory.
// The other fields are optional.
type Dialer struct {
	// Manager owns the emulated connections. Mandatory.
	Manager *emucore.Manager

	// Options configures each new connection. These options are
	// applied after the [EnvConfig] defaults, so they win.
	Options []emuconf.Option

	// DialContextFunc optionally overrides how the dialer reaches
	// the loopback listener and the destinations of unemulated
	// networks. A nil value implies using a [net.Dialer] with
	// multipath TCP disabled.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// envOnce ensures the environment is read just once.
	envOnce sync.Once

	// envOpts caches the options parsed from the environment.
	envOpts []emuconf.Option

	// envErr caches the environment parse failure, if any.
	envErr error

	// nextID generates identities for emulated connections. They
	// are negative so they can never collide with the nonnegative
	// file descriptors used for raw sockets.
	nextID atomic.Int64
}

// dialSocket adapts a pending dial to the [emucore.AppSocket]
// contract: connecting means reaching the loopback listener through
// the underlying dialer.
type dialSocket struct {
	id   emucore.SocketID
	dial func(ctx context.Context, network, address string) (net.Conn, error)
	conn net.Conn
}

func (s *dialSocket) ID() emucore.SocketID {
	return s.id
}

func (s *dialSocket) Connect(ctx context.Context, network, address string) error {
	conn, err := s.dial(ctx, network, address)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// DialContext dials the given address and redirects the resulting
// connection through the emulator.
//
// For TCP networks the returned [net.Conn] is a [*Conn] carrying its
// emulation handle. For any other network the connection is dialed
// directly and returned as is.
//
// The configuration options come from [EnvConfig] first and from the
// Options field second. A malformed environment variable or an
// invalid option fails the dial.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return d.dial(ctx, network, address)
	}

	options, err := d.options()
	if err != nil {
		return nil, err
	}

	sock := &dialSocket{
		id:   emucore.SocketID(-d.nextID.Add(1)),
		dial: d.dial,
	}
	handle, err := d.Manager.Establish(ctx, sock, address, options...)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: sock.conn, handle: handle}, nil
}

// options returns the configuration options for a new connection:
// the environment defaults first, then the explicit options.
func (d *Dialer) options() ([]emuconf.Option, error) {
	d.envOnce.Do(func() {
		d.envOpts, d.envErr = emuconf.ParseOptions(os.Getenv(EnvConfig))
		if d.envErr != nil {
			d.envErr = fmt.Errorf("%s: %w", EnvConfig, d.envErr)
		}
	})
	if d.envErr != nil {
		return nil, d.envErr
	}
	return append(slices.Clone(d.envOpts), d.Options...), nil
}

// dial reaches an address through the underlying dialer.
func (d *Dialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	if d.DialContextFunc != nil {
		return d.DialContextFunc(ctx, network, address)
	}
	// Make sure we're not using multipath TCP.
	child := &net.Dialer{}
	child.SetMultipathTCP(false)
	return child.DialContext(ctx, network, address)
}
