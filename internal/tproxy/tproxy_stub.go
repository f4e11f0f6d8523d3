//go:build !linux

package tproxy

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

func ListenTransparentTCP(_ context.Context, _ string, _ net.KeepAliveConfig) (net.Listener, error) {
	return nil, errors.New("transparent proxy is only supported on linux")
}

func OriginalDst(_ net.Conn) (netip.AddrPort, bool) {
	return netip.AddrPort{}, false
}
