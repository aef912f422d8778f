// Package cfaddr enumerates the local machine's IPv4 addresses and
// provides lazy DNS-name resolution and multicast group membership
// helpers for them -- the component SocketUtils::Initialize's
// "set global variables about local ip address" and IsLocalIPAddr /
// IsMulticastIPAddr correspond to
// (original_source/CFSocket/include/CF/Net/Socket/SocketUtils.h).
package cfaddr

import (
	"net"
	"strings"
	"sync"

	"golang.org/x/net/ipv4"
)

// Addr is one of the machine's local IPv4 addresses, with its reverse
// DNS name resolved on first request rather than eagerly -- a lookup
// that can block or fail shouldn't hold up address table construction.
type Addr struct {
	IP net.IP

	dnsOnce sync.Once
	dnsName string
}

// DNSName returns the reverse-DNS name for this address, or "" if the
// lookup fails. The result is cached after the first call.
func (a *Addr) DNSName() string {
	a.dnsOnce.Do(func() {
		names, err := net.LookupAddr(a.IP.String())
		if err != nil || len(names) == 0 {
			return
		}
		a.dnsName = strings.TrimSuffix(names[0], ".")
	})
	return a.dnsName
}

// Table is the set of local IPv4 addresses discovered at startup.
type Table struct {
	addrs []*Addr
}

// Discover enumerates every IPv4 address bound to a local interface. If
// lookupDNS is true, every address's DNS name is resolved immediately
// rather than left for the first DNSName call -- the lookupDNSName
// parameter SocketUtils::Initialize takes, and CFCORE_LOOKUP_DNS wires
// from configuration.
func Discover(lookupDNS bool) (*Table, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			t.addrs = append(t.addrs, &Addr{IP: ip4})
		}
	}

	if lookupDNS {
		for _, a := range t.addrs {
			a.DNSName()
		}
	}
	return t, nil
}

// Addrs returns every discovered local address.
func (t *Table) Addrs() []*Addr {
	out := make([]*Addr, len(t.addrs))
	copy(out, t.addrs)
	return out
}

// IsLocal reports whether ip matches one of the machine's discovered
// addresses, matching SocketUtils::IsLocalIPAddr.
func (t *Table) IsLocal(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	for _, a := range t.addrs {
		if a.IP.Equal(ip4) {
			return true
		}
	}
	return false
}

// IsMulticast reports whether ip is in the IPv4 multicast range,
// matching SocketUtils::IsMulticastIPAddr.
func IsMulticast(ip net.IP) bool { return ip.To4() != nil && ip.IsMulticast() }

// JoinMulticastGroup joins conn to group on iface, for sessions
// delivering RTP/RTCP over multicast. It is a thin wrapper over
// golang.org/x/net/ipv4's packet-connection group membership controls,
// which expose the setsockopt calls net.UDPConn has no portable way to
// reach directly.
func JoinMulticastGroup(conn *net.UDPConn, iface *net.Interface, group net.IP) error {
	pc := ipv4.NewPacketConn(conn)
	return pc.JoinGroup(iface, &net.UDPAddr{IP: group})
}

// LeaveMulticastGroup is JoinMulticastGroup's inverse.
func LeaveMulticastGroup(conn *net.UDPConn, iface *net.Interface, group net.IP) error {
	pc := ipv4.NewPacketConn(conn)
	return pc.LeaveGroup(iface, &net.UDPAddr{IP: group})
}
