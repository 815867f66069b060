//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Package emudial provides a dialer that transparently redirects the
// TCP connections it creates through an [emucore.Manager], so that
// code written against a dialer-shaped dependency runs under network
// impairment without changes.
//
// The [Dialer.DialContext] method has the same shape as the standard
// library [net.Dialer.DialContext], which makes a [Dialer] a drop-in
// replacement wherever a dial function is injected.
//
// Connections inherit default configuration options from the
// [EnvConfig] environment variable and per-dialer options from the
// [Dialer.Options] field. Closing an emulated connection also tears
// its emulation down.
//

package emudial
