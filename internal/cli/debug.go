package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sstunnel/internal/cipher"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ServeDebug serves pprof and the metrics in reg on addr until ctx is done.
func ServeDebug(ctx context.Context, g *errgroup.Group, addr string, ka net.KeepAliveConfig, reg *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	debugSrv := &http.Server{Handler: mux} //nolint:gosec // Not concerned about timeouts on debug port.
	lc := net.ListenConfig{KeepAliveConfig: ka}
	debugLn, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("debug listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = debugSrv.Close()
		_ = debugLn.Close()
	})

	g.Go(func() error {
		if err := debugSrv.Serve(debugLn); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("debug serve: %w", err)
		}
		return nil
	})
	log.Info().Str("addr", addr).Msg("debug listening")
	return nil
}

// Serve runs serve in g and treats the error caused by ctx ending as a clean
// shutdown.
func Serve(ctx context.Context, g *errgroup.Group, name string, serve func() error) {
	g.Go(func() error {
		if err := serve(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("%s serve: %w", name, err)
		}
		return nil
	})
}

func methodList() string {
	return strings.Join(cipher.Methods(), ", ")
}
