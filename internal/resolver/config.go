package resolver

import "time"

type Config struct {
	// Timeout bounds a single DNS exchange.
	Timeout time.Duration

	// Net is "udp" (default) or "tcp".
	Net string
}
