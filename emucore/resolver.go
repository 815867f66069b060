//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Destination address resolution.
//

package emucore

import (
	"context"
	"errors"
	"net"

	"github.com/rbmk-project/dnscore"
)

// errNoResolvedAddrs means the lookup succeeded but yielded nothing
// usable, which would otherwise surface as a confusing dial failure.
var errNoResolvedAddrs = errors.New("no resolved addresses")

// lookupEndpoint resolves the domain name inside an endpoint into a
// non-empty list of TCP endpoints. If the domain name is already an
// IP address, we short circuit the lookup.
func (m *Manager) lookupEndpoint(ctx context.Context, endpoint string) ([]string, error) {
	domain, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, err
	}

	addrs, err := m.lookupHost(ctx, domain)
	if err != nil {
		return nil, err
	}

	var endpoints []string
	for _, addr := range addrs {
		endpoints = append(endpoints, net.JoinHostPort(addr, port))
	}
	if len(endpoints) < 1 {
		return nil, errNoResolvedAddrs
	}
	return endpoints, nil
}

// lookupHost resolves a domain name to IP addresses unless the domain
// is already an IP address, in which case we short circuit the lookup.
func (m *Manager) lookupHost(ctx context.Context, domain string) ([]string, error) {
	if net.ParseIP(domain) != nil {
		return []string{domain}, nil
	}
	if m.LookupHostFunc != nil {
		return m.LookupHostFunc(ctx, domain)
	}
	reso := &net.Resolver{}
	return reso.LookupHost(ctx, domain)
}

// DNSLookupHostFunc returns a lookup function resolving domain names
// through the given DNS server rather than the system resolver. The
// result is assignable to the [Manager] LookupHostFunc field, which
// lets a harness point destination resolution at its own DNS server:
//
//	mgr := &emucore.Manager{}
//	mgr.LookupHostFunc = emucore.DNSLookupHostFunc(
//		dnscore.NewServerAddr(dnscore.ProtocolUDP, "127.0.0.1:5353"))
func DNSLookupHostFunc(server *dnscore.ServerAddr) func(ctx context.Context, domain string) ([]string, error) {
	reso := &dnscore.Resolver{}
	reso.Config = dnscore.NewConfig()
	reso.Config.AddServer(server)
	return reso.LookupHost
}
