//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenTransparentTCP listens on addr with IP_TRANSPARENT (or
// IPV6_TRANSPARENT) set so the socket can accept redirected connections.
// This needs CAP_NET_ADMIN, plus the firewall rules that do the redirecting.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{
		KeepAliveConfig: ka,
		Control: func(network, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if network == "tcp6" {
					ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
					return
				}
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return ln, nil
}

// OriginalDst returns the destination c was addressed to before redirection.
func OriginalDst(c net.Conn) (netip.AddrPort, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, false
	}

	if ap, ok := natOriginalDst(tc); ok {
		return ap, true
	}

	// TPROXY keeps the original destination as the local address.
	la, ok := tc.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	return la.AddrPort(), true
}

// natOriginalDst asks conntrack for the pre-NAT IPv4 destination.
func natOriginalDst(tc *net.TCPConn) (netip.AddrPort, bool) {
	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, false
	}

	var (
		ap    netip.AddrPort
		found bool
	)
	_ = rc.Control(func(fd uintptr) {
		// The kernel fills a sockaddr_in; an IPv6Mreq is a convenient
		// 20-byte buffer for it.
		mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			return
		}
		raw := mreq.Multiaddr
		if binary.NativeEndian.Uint16(raw[0:2]) != unix.AF_INET {
			return
		}
		port := binary.BigEndian.Uint16(raw[2:4])
		ip := netip.AddrFrom4([4]byte(raw[4:8]))
		ap = netip.AddrPortFrom(ip, port)
		found = true
	})
	return ap, found
}
