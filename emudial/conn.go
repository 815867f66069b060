//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Emulated connection returned by the dialer.
//

package emudial

import (
	"errors"
	"net"
	"sync"

	"github.com/chargen/sockem/emucore"
)

// Conn is an emulated connection created by [*Dialer.DialContext].
//
// Reads and writes flow through the forwarding engine of the manager
// that established the connection. Closing the connection also tears
// its emulation down, synchronously.
type Conn struct {
	// Conn is the underlying connection to the loopback listener.
	net.Conn

	// handle is the emulation handle for this connection.
	handle *emucore.Handle

	// closeOnce ensures we close just once.
	closeOnce sync.Once

	// closeErr is the result of the close.
	closeErr error
}

// Handle returns the emulation handle, which a test can use to
// reconfigure or inspect the connection while it is in use.
func (c *Conn) Handle() *emucore.Handle {
	return c.handle
}

// Close tears the emulation down and closes the underlying
// connection. Subsequent calls return the result of the first one.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.handle.Close(), c.Conn.Close())
	})
	return c.closeErr
}
