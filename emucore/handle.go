//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Per-connection emulation handle.
//

package emucore

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/chargen/sockem/emuconf"
	"github.com/chargen/sockem/netipx"
)

// runState tracks the lifecycle of the forwarding engine worker.
type runState int

const (
	// runInit means the handle exists but no worker was scheduled.
	runInit runState = iota

	// runStart means the worker was scheduled but its body has not
	// started executing yet.
	runStart

	// runRun means the worker body is executing.
	runRun

	// runTerm means the connection is terminating. The state is
	// monotonic: once a handle reaches runTerm it never leaves it.
	runTerm
)

// Handle is the per-connection emulation state.
//
// A handle is created by [*Manager.Establish] and disposed of by
// [*Handle.Close]. In between, [*Handle.Set] mutates the desired
// configuration, which the engine worker picks up at its next relay
// cycle boundary.
type Handle struct {
	// mgr is the manager owning this handle.
	mgr *Manager

	// id is the application socket identity. The handle never owns
	// the application socket, it only knows it by identity.
	id SocketID

	// target is the address passed to establish, kept for
	// diagnostics.
	target string

	// mu guards the mutable fields below.
	mu sync.Mutex

	// run is the engine worker lifecycle state.
	run runState

	// conf is the desired configuration.
	conf emuconf.Config

	// use is the effective configuration, refreshed from conf by
	// the engine at each relay cycle boundary.
	use emuconf.Config

	// lis is the loopback listener (owned).
	lis net.Listener

	// acc is the accepted local connection (owned).
	acc net.Conn

	// peer is the connection to the real destination (owned). The
	// background dial sets it once the connection settles.
	peer net.Conn

	// dialErr is the background dial failure, if any.
	dialErr error

	// dialReady is closed once the background dial settled.
	dialReady chan struct{}

	// cancelDial aborts an in-flight background dial.
	cancelDial context.CancelFunc

	// linked records registry membership. A handle is reachable
	// through the manager if and only if linked is true.
	linked bool

	// started records that the engine worker was spawned, which is
	// what makes joining it on teardown meaningful.
	started bool

	// done is closed when the engine worker has fully exited.
	done chan struct{}

	// doneOnce ensures done is closed just once.
	doneOnce sync.Once
}

// ID returns the emulated socket identity.
func (h *Handle) ID() SocketID {
	return h.id
}

// Target returns the destination address passed to establish.
func (h *Handle) Target() string {
	return h.target
}

// ListenerAddr returns the loopback listener address the application
// socket was redirected to, or the zero [netip.AddrPort] after the
// listener was closed.
func (h *Handle) ListenerAddr() netip.AddrPort {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lis == nil {
		return netip.AddrPort{}
	}
	return netipx.AddrToAddrPort(h.lis.Addr())
}

// Desired returns a copy of the desired configuration.
func (h *Handle) Desired() emuconf.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conf
}

// Effective returns a copy of the configuration the engine most
// recently adopted at a relay cycle boundary.
func (h *Handle) Effective() emuconf.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.use
}

// Done returns a channel that is closed once the engine worker has
// fully exited. For a handle torn down before its worker started,
// the channel is closed during [*Handle.Close].
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Set applies configuration options to the desired configuration.
//
// The engine adopts the change at its next relay cycle boundary,
// within one readiness wait, without disturbing the connection.
// On failure the desired configuration keeps the options applied
// before the failing one, as documented by [emuconf.Config.Apply].
func (h *Handle) Set(options ...emuconf.Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conf.Apply(options...)
}

// Close tears the emulated connection down.
//
// Close forces the engine worker out of its bounded waits, then
// joins it: when Close returns, the worker has fully exited, every
// socket owned by the handle is closed, and the handle is no longer
// reachable through the registry. There is deliberately no timeout
// on the join since the worker's own waits are bounded.
//
// Closing an already-closed handle is a no-op that again waits for
// the worker, so concurrent and repeated calls are all safe.
func (h *Handle) Close() error {
	t0 := h.mgr.timeNow()
	if h.mgr.Logger != nil {
		h.mgr.Logger.Info(
			"closeStart",
			slog.Int64("socketID", int64(h.id)),
			slog.String("target", h.target),
			slog.Time("t", t0),
		)
	}

	h.mu.Lock()
	switch h.run {
	case runStart, runRun:
		h.run = runTerm
		// Force the listener closed so a worker parked in Accept
		// unblocks. The worker owns its relay sockets and closes
		// them on the way out.
		h.closeListenerLocked()
	default:
		// The worker never ran or already exited, so closing
		// everything here cannot race with it.
		h.run = runTerm
		h.closeAllLocked()
	}
	cancel := h.cancelDial
	started := h.started
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-h.done
	} else {
		h.signalDone()
	}
	h.mgr.unlink(h)

	if h.mgr.Logger != nil {
		h.mgr.Logger.Info(
			"closeDone",
			slog.Int64("socketID", int64(h.id)),
			slog.String("target", h.target),
			slog.Time("t0", t0),
			slog.Time("t", h.mgr.timeNow()),
		)
	}
	return nil
}

// signalDone marks the engine worker as fully exited.
func (h *Handle) signalDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// closeListenerLocked force-closes the loopback listener. The caller
// must hold mu. Closing is idempotent: a cleared listener is skipped.
func (h *Handle) closeListenerLocked() {
	if h.lis != nil {
		h.lis.Close()
		h.lis = nil
	}
}

// closeAllLocked force-closes every socket owned by the handle. The
// caller must hold mu. Closing is idempotent: cleared sockets are
// skipped, so any combination of teardown paths may run it.
func (h *Handle) closeAllLocked() {
	if h.acc != nil {
		h.acc.Close()
		h.acc = nil
	}
	h.closeListenerLocked()
	if h.peer != nil {
		h.peer.Close()
		h.peer = nil
	}
}

// terminate forces the terminating state and closes the relay
// connections so that a shuttle blocked on the other side of the
// connection unblocks promptly.
func (h *Handle) terminate() {
	h.mu.Lock()
	h.run = runTerm
	acc, peer := h.acc, h.peer
	h.acc, h.peer = nil, nil
	h.mu.Unlock()
	if acc != nil {
		acc.Close()
	}
	if peer != nil {
		peer.Close()
	}
}
