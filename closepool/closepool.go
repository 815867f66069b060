// SPDX-License-Identifier: GPL-3.0-or-later

// Package closepool allows pooling [io.Closer] instances
// and closing them in a single operation.
//
// The emulator uses a [Pool] to unwind partially-created
// resources when connection setup fails midway, and tests
// use it to tear down listeners, connections, and handles
// in a single deferred call.
package closepool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool allows pooling a set of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// handles contains the [io.Closer] to close.
	handles []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// Add adds a given [io.Closer] to the pool.
func (p *Pool) Add(conn io.Closer) {
	p.mu.Lock()
	p.handles = append(p.handles, conn)
	p.mu.Unlock()
}

// AddFunc adds a cleanup function to the pool. This makes it
// possible to pool cleanups that are not [io.Closer], such as
// a [context.CancelFunc] aborting an in-flight dial.
func (p *Pool) AddFunc(fn func() error) {
	p.Add(Func(fn))
}

// Func adapts a function to the [io.Closer] interface.
type Func func() error

// Close implements [io.Closer].
func (fn Func) Close() error {
	return fn()
}

// Close closes all the [io.Closer] inside the pool iterating
// in backward order. Therefore, if one registers a listener
// and then a connection accepted from it, the connection is
// closed first. The returned error is the join of all the
// errors that occurred when closing connections.
func (p *Pool) Close() error {
	// Lock and copy the [io.Closer] to close.
	p.mu.Lock()
	conns := p.handles
	p.handles = nil
	p.mu.Unlock()

	// Close all the [io.Closer].
	var errv []error
	for _, conn := range slices.Backward(conns) {
		if err := conn.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
