package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP listens on addr and applies ka to every accepted connection.
func ListenTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: ka}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return ln, nil
}
