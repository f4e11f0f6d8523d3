package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the handshake with an upstream proxy.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
