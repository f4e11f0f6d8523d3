// Command sslocal runs the local SOCKS5 front-end, tunneling connections to
// one or more ssserver instances.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sstunnel/internal/balancer"
	"github.com/die-net/sstunnel/internal/cli"
	"github.com/die-net/sstunnel/internal/metrics"
	"github.com/die-net/sstunnel/internal/proxy"
	"github.com/die-net/sstunnel/internal/tproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var flags cli.Flags
	flags.Register(pflag.CommandLine)

	var (
		localAddr      = pflag.StringP("local-addr", "b", "", "SOCKS5 listen address host:port (default from config, else 127.0.0.1:1080)")
		tproxyListen   = pflag.String("tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")
		healthInterval = pflag.Duration("health-interval", 0, "Probe every server this often; 0 disables")
	)

	if runtime.GOOS != "linux" {
		_ = pflag.CommandLine.MarkHidden("tproxy-listen")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	log := flags.Logger()

	ka, err := flags.KeepAlive()
	if err != nil {
		return err
	}

	conf, err := flags.LoadConfig()
	if err != nil {
		return err
	}
	listenAddr := conf.LocalAddr()
	if *localAddr != "" {
		listenAddr = *localAddr
	}

	d, err := flags.Dialer(ka)
	if err != nil {
		return err
	}

	reg := cli.NewRegistry()
	m := metrics.New(reg)

	profiles, err := conf.Profiles()
	if err != nil {
		return err
	}
	opts := conf.BalancerOptions()
	opts.Metrics = m
	bal, err := balancer.New(profiles, opts)
	if err != nil {
		return err
	}

	cfg := proxy.Config{
		NegotiationTimeout: flags.NegotiationTimeout,
		DrainTimeout:       flags.DrainTimeout,
		Dialer:             d,
		Logger:             log,
		Metrics:            m,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.DebugListen != "" {
		if err := cli.ServeDebug(ctx, g, flags.DebugListen, ka, reg, log); err != nil {
			return err
		}
	}

	ln, err := proxy.ListenTCP(ctx, listenAddr, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	srv := proxy.NewLocalServer(ctx, cfg, bal)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	cli.Serve(ctx, g, "socks5", func() error { return srv.Serve(ln) })

	for _, s := range bal.Servers() {
		log.Info().Str("server", s.Addr).Str("method", s.Cipher.Method()).Int("weight", s.Weight).Msg("remote server")
	}
	log.Info().Str("addr", listenAddr).Msg("socks5 proxy listening")

	if *tproxyListen != "" {
		tln, err := tproxy.ListenTransparentTCP(ctx, *tproxyListen, ka)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(srv)
		context.AfterFunc(ctx, func() {
			_ = tln.Close()
		})
		cli.Serve(ctx, g, "tproxy", func() error { return tsrv.Serve(tln) })

		log.Info().Str("addr", *tproxyListen).Msg("tproxy listening")
	}

	if *healthInterval > 0 {
		g.Go(func() error {
			bal.RunProbes(ctx, d, *healthInterval, log)
			return nil
		})
		g.Go(func() error {
			logHealth(ctx, bal, *healthInterval, log)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	log.Info().Msg("shutting down")
	return err
}

// logHealth periodically logs servers that are cooling down.
func logHealth(ctx context.Context, bal *balancer.Balancer, interval time.Duration, log zerolog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		now := time.Now()
		for _, h := range bal.Snapshot() {
			if h.CooldownUntil.After(now) {
				log.Warn().
					Str("server", h.Addr).
					Int("failures", h.Failures).
					Time("until", h.CooldownUntil).
					Msg("server cooling down")
			}
		}
	}
}
