//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Package documentation.
//

// Package emuconf contains the emulation parameters data model.
//
// A [Config] describes how a single emulated connection should behave:
// how much latency to inject, how big the relay chunks are, and which
// throughput caps the connection declares. Parameters are addressed by
// string keys so that test harnesses can drive them from flags,
// environment variables, or wire protocols without recompiling.
//
// # Keys
//
// The recognized keys are:
//
//	rx.throughput  peer-to-application cap in bytes/second
//	rx.thruput     alias for rx.throughput
//	tx.throughput  application-to-peer cap in bytes/second
//	tx.thruput     alias for tx.throughput
//	delay          base one-way latency in milliseconds
//	jitter         additional latency range in milliseconds
//	rx.bufsz       relay chunk size in bytes
//	debug          nonzero enables per-chunk diagnostics
//	true           accepted and ignored
//
// The throughput caps are declared but not enforced by the forwarding
// engine. They are carried in the configuration, copied into the
// effective snapshot, and reported in diagnostics, yet no pacing
// happens. See the [Config] documentation for details.
//
// # Batch keys
//
// A key containing "=" is not a parameter name but a batch: a
// comma-separated list of key=value pairs that is expanded recursively
// under the same validation rules. This lets a whole configuration
// travel as one string, which is how environment-sourced defaults
// reach the emulator. The empty string is an empty batch and changes
// nothing.
//
// # Failure semantics
//
// Applying options stops at the first invalid entry and returns a
// structured error identifying it: [UnknownKeyError] for a key outside
// the table above, [InvalidValueError] for a value that is not an
// integer. Entries applied before the failing one remain applied; a
// caller that wants transactional behavior should apply the options
// to a copy of the [Config] first, since [Config] is a value type.
package emuconf
