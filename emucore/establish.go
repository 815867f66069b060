//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Connection redirection setup.
//

package emucore

import (
	"context"
	"log/slog"
	"net"
	"net/netip"

	"github.com/chargen/sockem/closepool"
	"github.com/chargen/sockem/emuconf"
	"github.com/chargen/sockem/netipx"
	"github.com/rbmk-project/common/errclass"
)

// Establish starts emulating the given application socket.
//
// The destination address must be in "host:port" form; a host that
// is not an IP literal is resolved first, and resolution failures
// fail the call. The manager then binds a loopback listener sharing
// the destination address family, starts dialing the destination in
// the background, spawns the forwarding engine worker, and redirects
// the application socket to the listener. A peer connection still in
// progress when Establish returns is not an error.
//
// The options are applied to the default configuration before the
// worker starts; an invalid option fails the call with the
// corresponding [emuconf] error.
//
// On failure nothing is left behind: every resource created before
// the failure is released, the worker (if started) is joined, and
// the returned error is the original failure rather than anything
// the cleanup produced. The handle becomes reachable through the
// registry only when Establish succeeds. Establishing an identity
// that is already emulated fails with [ErrSocketBusy].
func (m *Manager) Establish(ctx context.Context, app AppSocket,
	address string, options ...emuconf.Option) (*Handle, error) {
	t0 := m.timeNow()
	if m.Logger != nil {
		m.Logger.InfoContext(
			ctx,
			"establishStart",
			slog.Int64("socketID", int64(app.ID())),
			slog.String("target", address),
			slog.Time("t", t0),
		)
	}

	h, err := m.establish(ctx, app, address, options...)

	if m.Logger != nil {
		localAddr := ""
		if h != nil {
			if addr := h.ListenerAddr(); addr.IsValid() {
				localAddr = addr.String()
			}
		}
		m.Logger.InfoContext(
			ctx,
			"establishDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", localAddr),
			slog.Int64("socketID", int64(app.ID())),
			slog.String("target", address),
			slog.Time("t0", t0),
			slog.Time("t", m.timeNow()),
		)
	}
	return h, err
}

// establish implements [*Manager.Establish] without the logging.
func (m *Manager) establish(ctx context.Context, app AppSocket,
	address string, options ...emuconf.Option) (*Handle, error) {
	// Resolve the real destination upfront so an unresolvable
	// address fails before any resource exists.
	endpoints, err := m.lookupEndpoint(ctx, address)
	if err != nil {
		return nil, err
	}

	// The listener must share the destination address family, so
	// the application cannot tell the loopback apart from the
	// destination it asked for.
	first, err := netip.ParseAddrPort(endpoints[0])
	if err != nil {
		return nil, err
	}
	network := netipx.ListenNetwork(first.Addr())
	endpoints = sameFamilyEndpoints(first.Addr(), endpoints)

	// Resources created from here on are pooled so that a failure
	// below releases them all without masking the original error.
	var pool closepool.Pool
	lis, err := m.listen(network, net.JoinHostPort(netipx.Loopback(first.Addr()).String(), "0"))
	if err != nil {
		return nil, err
	}
	pool.Add(lis)

	h := &Handle{
		mgr:       m,
		id:        app.ID(),
		target:    address,
		run:       runInit,
		conf:      emuconf.Default(),
		lis:       lis,
		dialReady: make(chan struct{}),
		done:      make(chan struct{}),
	}
	if err := h.conf.Apply(options...); err != nil {
		pool.Close()
		return nil, err
	}

	// The peer dial proceeds in the background since a connection
	// still in progress is not an establishment error. It is bound
	// to the handle lifetime, not to the establish context.
	dialCtx, cancel := context.WithCancel(context.Background())
	h.cancelDial = cancel
	go h.dialPeer(dialCtx, network, endpoints)

	h.mu.Lock()
	h.run = runStart
	h.started = true
	h.mu.Unlock()
	go h.engineMain()

	// From here on the worker owns the handle's sockets, so
	// failures tear the whole handle down instead of unwinding
	// the pool.
	if err := app.Connect(ctx, network, lis.Addr().String()); err != nil {
		h.Close()
		return nil, err
	}

	// Linking is last: a partial failure must never leave a handle
	// reachable through the registry.
	if err := m.link(h); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// sameFamilyEndpoints filters the endpoints down to those sharing the
// address family of the given address, preserving their order. The
// relay sockets all live in one family, so mixed resolution results
// must not leak endpoints the peer dial could not use consistently.
func sameFamilyEndpoints(addr netip.Addr, endpoints []string) []string {
	network := netipx.ListenNetwork(addr)
	var keep []string
	for _, endpoint := range endpoints {
		parsed, err := netip.ParseAddrPort(endpoint)
		if err != nil {
			continue
		}
		if netipx.ListenNetwork(parsed.Addr()) == network {
			keep = append(keep, endpoint)
		}
	}
	return keep
}

// listen creates the loopback listener for redirecting the
// application socket.
func (m *Manager) listen(network, address string) (net.Listener, error) {
	if m.ListenFunc != nil {
		return m.ListenFunc(network, address)
	}
	return net.Listen(network, address)
}
