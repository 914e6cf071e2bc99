// Package discovery finds printers on the local network via UDP broadcast,
// across the two dialects printers speak: a legacy ASCII request/JSON-reply
// dialect on port 3000, and a CC2 JSON-RPC dialect on port 52700. Adapted
// from sacp.Discover's per-interface broadcast fan-out (spec.md §4.3).
package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
)

// broadcastAddresses returns one IPv4 broadcast address per non-loopback
// interface, so a multi-homed host (e.g. WiFi + Ethernet) reaches printers
// on every attached subnet.
func broadcastAddresses() ([]string, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}

	seen := map[string]bool{}
	var out []string
	for _, iface := range ifs {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			n, ok := addr.(*net.IPNet)
			if !ok || n.IP.IsLoopback() {
				continue
			}
			v4 := n.IP.To4()
			if v4 == nil {
				continue
			}
			mask := n.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			if len(mask) != net.IPv4len {
				continue
			}
			bcast := make(net.IP, len(v4))
			binary.BigEndian.PutUint32(bcast, binary.BigEndian.Uint32(v4)|^binary.BigEndian.Uint32(mask))
			if s := bcast.String(); !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}
