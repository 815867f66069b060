//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Emulation parameters.
//

package emuconf

// Default throughput and buffering values assigned by [Default].
const (
	// DefaultThroughput is the default declared throughput cap in
	// bytes per second, high enough to never matter.
	DefaultThroughput = 1 << 30

	// DefaultBufferSize is the default relay chunk size in bytes.
	DefaultBufferSize = 1 << 20
)

// Config contains the emulation parameters of a single connection.
//
// The forwarding engine keeps two instances per connection: the
// desired configuration, which callers mutate through [Config.Set],
// and the effective configuration, which the engine refreshes from
// the desired one at each relay cycle boundary. Mutations therefore
// take effect within one cycle without disturbing the connection.
//
// All values are plain integers. Negative values are accepted by the
// parser and are not meaningful; they behave like zero or are ignored
// depending on the parameter.
type Config struct {
	// RxThroughput is the declared peer-to-application throughput
	// cap in bytes per second.
	//
	// The cap is declared, propagated, and reported, but the
	// forwarding engine does not enforce it. See the package
	// documentation for details on this known limitation.
	RxThroughput int

	// TxThroughput is the declared application-to-peer throughput
	// cap in bytes per second. Like RxThroughput, it is not
	// enforced by the forwarding engine.
	TxThroughput int

	// Delay is the base one-way latency in milliseconds injected
	// before each forwarded chunk.
	Delay int

	// Jitter is the additional latency range in milliseconds. The
	// engine deterministically injects half of it: every chunk
	// waits Delay + Jitter/2 milliseconds, with no randomness.
	Jitter int

	// BufferSize is the relay chunk size in bytes. The engine reads
	// it once when a connection starts relaying; later changes only
	// affect connections established afterwards.
	BufferSize int

	// Debug enables per-chunk relay diagnostics when nonzero.
	Debug int
}

// Default returns the configuration assigned to a connection
// before any option is applied.
func Default() Config {
	return Config{
		RxThroughput: DefaultThroughput,
		TxThroughput: DefaultThroughput,
		Delay:        0,
		Jitter:       0,
		BufferSize:   DefaultBufferSize,
		Debug:        0,
	}
}
