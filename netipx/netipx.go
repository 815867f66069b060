// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions.
package netipx

import (
	"net"
	"net/netip"
)

// AddrToAddrPort converts a [net.Addr] to a [netip.AddrPort].
//
// If the input is nil or neither a [*net.TCPAddr] nor [*net.UDPAddr],
// returns an unspecified IPv6 address with port 0.
//
// For [*net.TCPAddr] and [*net.UDPAddr] addresses, returns their
// corresponding [netip.AddrPort] representation.
func AddrToAddrPort(addr net.Addr) netip.AddrPort {
	if addr == nil {
		return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.AddrPort()
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.AddrPort()
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
}

// Loopback returns the loopback address belonging to the same
// address family as the given address.
//
// An IPv4 or IPv4-mapped-IPv6 address maps to 127.0.0.1 and
// any other address maps to ::1. The zero [netip.Addr] maps
// to ::1 as well, since it is neither Is4 nor Is4In6.
func Loopback(addr netip.Addr) netip.Addr {
	if addr.Is4() || addr.Is4In6() {
		return netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.IPv6Loopback()
}

// ListenNetwork returns the family-qualified TCP network name
// ("tcp4" or "tcp6") to use when listening for connections that
// must share the address family of the given address.
func ListenNetwork(addr netip.Addr) string {
	if addr.Is4() || addr.Is4In6() {
		return "tcp4"
	}
	return "tcp6"
}
