//go:build linux

package fib

import (
	"context"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
)

// NetlinkReader reads the running kernel's route table via rtnetlink: the
// concrete implementation of the "OS-specific netlink reader" spec.md §6
// names and places out of the protocol core.
type NetlinkReader struct{}

// NewNetlinkReader returns the production Reader for Linux hosts.
func NewNetlinkReader() NetlinkReader { return NetlinkReader{} }

// Routes lists every destination prefix currently installed in the main
// routing table for af.
func (NetlinkReader) Routes(_ context.Context, af nlri.AF) ([]netip.Prefix, error) {
	family := netlink.FAMILY_V4
	if af.AFI == nlri.AFIIPv6 {
		family = netlink.FAMILY_V6
	}
	routes, err := netlink.RouteList(nil, family)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Prefix, 0, len(routes))
	for _, r := range routes {
		if r.Dst == nil {
			// The default route has no distinct destination prefix to
			// gate on; its reachability is carried by the gateway route.
			continue
		}
		addr, ok := netip.AddrFromSlice(r.Dst.IP)
		if !ok {
			continue
		}
		ones, _ := r.Dst.Mask.Size()
		out = append(out, netip.PrefixFrom(addr.Unmap(), ones))
	}
	return out, nil
}
