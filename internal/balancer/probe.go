package balancer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sstunnel/internal/dialer"
)

// Probe opens and closes one TCP connection to every server concurrently and
// feeds the outcomes into ReportFailure and ReportSuccess.
func (b *Balancer) Probe(ctx context.Context, d dialer.Dialer, log zerolog.Logger) {
	g := errgroup.Group{}
	for _, s := range b.servers {
		g.Go(func() error {
			b.probe(ctx, d, s, log)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Balancer) probe(ctx context.Context, d dialer.Dialer, s *Server, log zerolog.Logger) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		log.Debug().Err(err).Str("server", s.Addr).Msg("probe failed")
		b.ReportFailure(s)
		return
	}
	_ = conn.Close()
	b.ReportSuccess(s)
}

// RunProbes calls Probe every interval until ctx is done.
func (b *Balancer) RunProbes(ctx context.Context, d dialer.Dialer, interval time.Duration, log zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Probe(ctx, d, log)
		}
	}
}
