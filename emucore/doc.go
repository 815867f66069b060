//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Package documentation.
//

// Package emucore emulates network impairment on TCP connections.
//
// A [*Manager] owns a registry of emulated connections. Each call to
// [*Manager.Establish] redirects one application socket through a
// loopback relay: the manager binds a loopback listener matching the
// destination address family, dials the real destination in the
// background, asks the application socket to connect to the listener
// instead, and spawns a forwarding engine worker that relays bytes
// in both directions while injecting the configured latency.
//
// The application keeps using its socket normally. From its point of
// view it is talking to the destination; in reality every byte makes
// an extra hop through the engine, which is where delay, jitter, and
// diagnostics are applied.
//
// Each connection is represented by a [*Handle]. The handle carries
// two configurations: the desired one, mutated at any time through
// [*Handle.Set], and the effective one, which the engine refreshes
// from the desired one at every relay cycle boundary. Configuration
// changes therefore take effect within one cycle and never disturb
// the connection.
//
// [*Handle.Close] tears a connection down synchronously: it forces
// the engine out of its waits and then joins the worker, so when it
// returns no goroutine of that connection is left running. Closing
// twice is a no-op.
//
// The declared throughput caps (rx.throughput, tx.throughput) are
// carried through configuration and diagnostics but not enforced by
// the engine. See [emuconf.Config] for the full parameter set.
package emucore
