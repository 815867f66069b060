//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Application socket abstraction.
//

package emucore

import "context"

// SocketID identifies an application socket inside the registry.
//
// The emulator never owns the socket behind an identity: it only
// uses the identity to find the corresponding [*Handle]. Adapters
// derive identities from whatever they manage, e.g. [rawsock] uses
// the file descriptor number while [emudial] synthesizes negative
// identities that cannot collide with descriptors.
type SocketID int64

// AppSocket is the application side of connection redirection.
//
// [*Manager.Establish] asks the socket to connect to the emulator's
// loopback listener instead of the real destination. Implementations
// wrap whatever connection primitive the application uses: a raw
// file descriptor, a dialer, or a test double.
type AppSocket interface {
	// ID returns the socket identity used as the registry key.
	ID() SocketID

	// Connect connects the application socket to the given address,
	// where network is the family-qualified TCP network name. A
	// connection still in progress when Connect returns is fine;
	// only an immediate failure should be reported.
	Connect(ctx context.Context, network, address string) error
}
