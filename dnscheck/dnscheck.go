// Package dnscheck verifies, before certificate issuance, that the
// configured domain actually resolves to this host. A mismatch almost always
// means the ACME HTTP challenge will fail, so the certificate step can warn
// early instead of burning an issuance attempt.
package dnscheck

import (
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// DefaultResolverConfig is the system resolver configuration consulted for
// the nameserver address.
const DefaultResolverConfig = "/etc/resolv.conf"

// ResolveA queries the given nameserver for the domain's A records.
func ResolveA(domain, nameserver string) ([]string, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(domain),
		Qtype:  dns.TypeA,
		Qclass: dns.ClassINET,
	}}

	c := new(dns.Client)
	in, _, err := c.Exchange(m, nameserver)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if a, ok := answer.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	return addrs, nil
}

// SystemNameserver returns the first nameserver from the resolver config,
// as host:port.
func SystemNameserver(configPath string) (string, error) {
	conf, err := dns.ClientConfigFromFile(configPath)
	if err != nil {
		return "", fmt.Errorf("could not read resolver config: %w", err)
	}
	if len(conf.Servers) == 0 {
		return "", errors.New("no nameservers configured")
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

// VerifyPointsTo checks that domain has an A record equal to hostIP. An
// empty hostIP (public address unknown) verifies only that the domain
// resolves at all.
func VerifyPointsTo(domain, hostIP, nameserver string) error {
	addrs, err := ResolveA(domain, nameserver)
	if err != nil {
		return fmt.Errorf("could not resolve %s: %w", domain, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%s has no A records", domain)
	}
	if hostIP == "" {
		return nil
	}
	for _, addr := range addrs {
		if addr == hostIP {
			return nil
		}
	}
	return fmt.Errorf("%s resolves to %v, not to this host (%s)", domain, addrs, hostIP)
}
