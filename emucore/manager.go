//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Definition of Manager.
//

package emucore

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/common/runtimex"
)

// ErrSocketBusy indicates that a socket identity is already
// associated with a live emulated connection.
var ErrSocketBusy = errors.New("socket identity already emulated")

// Manager emulates network impairment on TCP connections and owns
// the registry mapping socket identities to their handles.
//
// The zero value is ready to use.
//
// A [*Manager] is safe for concurrent use by multiple goroutines as
// long as you don't modify its fields after construction and the
// underlying fields you may set (e.g., DialContextFunc) are also safe.
type Manager struct {
	// DialContextFunc is the optional dialer for reaching the real
	// destination. If this field is nil, the default dialer from
	// the [net] package will be used, with Multipath TCP disabled
	// to keep connection behavior deterministic.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// ListenFunc is the optional factory for the loopback listener
	// the application socket is redirected to. If this field is
	// nil, we use [net.Listen].
	ListenFunc func(network, address string) (net.Listener, error)

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// LookupHostFunc is the optional function to resolve a domain
	// name to IP addresses. If this field is nil, we use the
	// default [*net.Resolver] from the [net] package.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// mu protects the registry.
	mu sync.RWMutex

	// registry maps socket identities to their handles.
	registry map[SocketID]*Handle
}

// timeNow is a function that returns the current time.
func (m *Manager) timeNow() time.Time {
	if m.TimeNow != nil {
		return m.TimeNow()
	}
	return time.Now()
}

// Find returns the handle emulating the given socket identity, or
// nil when the identity is not currently emulated.
func (m *Manager) Find(id SocketID) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry[id]
}

// Len returns the number of currently emulated connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registry)
}

// link makes the handle reachable through the registry. It fails
// with [ErrSocketBusy] when the identity is already taken.
//
// A handle whose worker already terminated is left unlinked: the
// registry only tracks live connections, and the worker that would
// have removed the handle again is already gone. The worker flips
// the state to terminating under the handle lock before it unlinks,
// so observing a non-terminating state here guarantees the worker
// still has its unlink ahead of it.
func (m *Manager) link(h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.registry[h.id]; found {
		return ErrSocketBusy
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run == runTerm {
		return nil
	}
	runtimex.Assert(!h.linked, "handle is already linked")
	if m.registry == nil {
		m.registry = make(map[SocketID]*Handle)
	}
	m.registry[h.id] = h
	h.linked = true
	return nil
}

// unlink removes the handle from the registry if it is linked.
// Unlinking twice is fine: both teardown and the engine worker
// call this at the end of their respective paths.
func (m *Manager) unlink(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.linked {
		delete(m.registry, h.id)
		h.linked = false
	}
}

// CloseAll tears down every currently emulated connection, waiting
// for each engine worker to exit, and returns the join of all the
// teardown errors. Harnesses typically defer this on the manager
// they use for a test run.
func (m *Manager) CloseAll() error {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.registry))
	for _, h := range m.registry {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	var errv []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
