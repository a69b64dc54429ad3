package backend

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/vishvananda/netlink"

	"github.com/leshy-dns/leshy/internal/route"
)

// Netlink is a route.Backend that installs routes directly via RTNETLINK,
// using vishvananda/netlink — the standard Go library for this on Linux.
// Preferred over Shell when available since it avoids a fork+exec per
// route operation.
type Netlink struct{}

var _ route.Backend = (*Netlink)(nil)

// Install implements route.Backend.
func (n *Netlink) Install(prefix netip.Prefix, target route.Target) error {
	r, err := toNetlinkRoute(prefix, target)
	if err != nil {
		return fmt.Errorf("%w: %v", route.ErrTransient, err)
	}
	if err := netlink.RouteAdd(r); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			return route.ErrAlreadyExists
		}
		return fmt.Errorf("%w: netlink route add %s: %v", route.ErrTransient, prefix, err)
	}
	return nil
}

// Withdraw implements route.Backend.
func (n *Netlink) Withdraw(prefix netip.Prefix, target route.Target) error {
	r, err := toNetlinkRoute(prefix, target)
	if err != nil {
		return fmt.Errorf("%w: %v", route.ErrTransient, err)
	}
	if err := netlink.RouteDel(r); err != nil {
		if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.ENOENT) {
			return route.ErrNotFound
		}
		return fmt.Errorf("%w: netlink route del %s: %v", route.ErrTransient, prefix, err)
	}
	return nil
}

func toNetlinkRoute(prefix netip.Prefix, target route.Target) (*netlink.Route, error) {
	dst := toIPNet(prefix)
	r := &netlink.Route{Dst: dst}

	switch {
	case target.Device != "":
		link, err := netlink.LinkByName(target.Device)
		if err != nil {
			return nil, fmt.Errorf("resolve device %s: %w", target.Device, err)
		}
		r.LinkIndex = link.Attrs().Index
	case target.Gateway.IsValid():
		r.Gw = target.Gateway.AsSlice()
	default:
		return nil, fmt.Errorf("route target has neither device nor gateway")
	}

	return r, nil
}

func toIPNet(prefix netip.Prefix) *net.IPNet {
	addr := prefix.Masked().Addr()
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(prefix.Bits(), bits),
	}
}
