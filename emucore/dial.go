//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Peer connection dialing.
//

package emucore

import (
	"context"
	"errors"
	"net"
)

// dialPeer dials the real destination in the background and
// publishes the result into the handle. When the handle was torn
// down while the dial was in flight, the resulting connection, if
// any, has no owner anymore and is closed here.
func (h *Handle) dialPeer(ctx context.Context, network string, endpoints []string) {
	conn, err := h.mgr.sequentialDial(ctx, network, endpoints...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run == runTerm {
		if conn != nil {
			conn.Close()
		}
		close(h.dialReady)
		return
	}
	h.peer, h.dialErr = conn, err
	close(h.dialReady)
}

// sequentialDial attempts to dial the endpoints in sequence until one
// of them succeeds. It returns the first successfully established
// network connection, on success, and the union of all errors,
// otherwise.
func (m *Manager) sequentialDial(ctx context.Context,
	network string, endpoints ...string) (net.Conn, error) {
	var errv []error
	for _, endpoint := range endpoints {
		conn, err := m.dialNet(ctx, network, endpoint)
		if conn != nil && err == nil {
			return conn, nil
		}
		errv = append(errv, err)
	}
	return nil, errors.Join(errv...)
}

// dialNet dials a single endpoint using the configured dialer
// function or the default dialer with Multipath TCP disabled, which
// keeps connection behavior deterministic under emulation.
func (m *Manager) dialNet(ctx context.Context, network, address string) (net.Conn, error) {
	if m.DialContextFunc != nil {
		return m.DialContextFunc(ctx, network, address)
	}
	child := &net.Dialer{}
	child.SetMultipathTCP(false)
	return child.DialContext(ctx, network, address)
}
