// Command ssserver terminates tunnels from sslocal and connects them to their
// destinations. It listens once per configured server entry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sstunnel/internal/cli"
	"github.com/die-net/sstunnel/internal/metrics"
	"github.com/die-net/sstunnel/internal/proxy"
	"github.com/die-net/sstunnel/internal/resolver"
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
		dnsServer   = pflag.String("dns-server", "", "DNS server host[:port] for destination lookups (default from config, else the system resolver)")
		dnsCacheTTL = pflag.Duration("dns-cache-ttl", 5*time.Minute, "Longest time a DNS answer is cached; 0 disables caching")
	)

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
	if *dnsServer != "" {
		conf.DNSServer = *dnsServer
	}

	d, err := flags.Dialer(ka)
	if err != nil {
		return err
	}

	var res resolver.Resolver = resolver.New(conf.DNSServer, resolver.Config{Timeout: flags.DialTimeout})
	if *dnsCacheTTL > 0 {
		res = resolver.NewCached(res, *dnsCacheTTL)
	}

	reg := cli.NewRegistry()

	cfg := proxy.Config{
		NegotiationTimeout: flags.NegotiationTimeout,
		DrainTimeout:       flags.DrainTimeout,
		Dialer:             d,
		Resolver:           res,
		ForbiddenIPs:       conf.ForbiddenIPs,
		Logger:             log,
		Metrics:            metrics.New(reg),
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.DebugListen != "" {
		if err := cli.ServeDebug(ctx, g, flags.DebugListen, ka, reg, log); err != nil {
			return err
		}
	}

	for _, s := range conf.Servers {
		ci, err := s.Cipher()
		if err != nil {
			return fmt.Errorf("server %s: %w", s.Addr(), err)
		}

		ln, err := proxy.ListenTCP(ctx, s.Addr(), ka)
		if err != nil {
			return err
		}
		srv := proxy.NewRemoteServer(ctx, cfg, ci, s.Timeout)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})
		cli.Serve(ctx, g, s.Addr(), func() error { return srv.Serve(ln) })

		log.Info().Str("addr", s.Addr()).Str("method", ci.Method()).Dur("timeout", s.Timeout).Msg("tunnel listening")
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	log.Info().Msg("shutting down")
	return err
}
