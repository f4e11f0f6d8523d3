// Package cli holds the flag handling and process setup shared by sslocal and
// ssserver.
package cli

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/die-net/sstunnel/internal/config"
	"github.com/die-net/sstunnel/internal/dialer"
	"github.com/die-net/sstunnel/internal/proxy"
)

// Flags are the options both binaries accept.
type Flags struct {
	ConfigPath string
	ServerAddr string
	Password   string
	Method     string

	Upstream           string
	DebugListen        string
	DialTimeout        time.Duration
	NegotiationTimeout time.Duration
	DrainTimeout       time.Duration
	TCPKeepAlive       string

	Verbose bool
	LogJSON bool
}

// Register adds the shared flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "Configuration file: .ini, anything else is JSON")
	fs.StringVarP(&f.ServerAddr, "server-addr", "s", "", "Remote server address host:port; adds a server entry together with -k and -m")
	fs.StringVarP(&f.Password, "password", "k", "", "Password for --server-addr")
	fs.StringVarP(&f.Method, "encrypt-method", "m", "", "Cipher method for --server-addr, one of "+methodList())

	fs.StringVar(&f.Upstream, "upstream", defaultUpstream(), "Outbound connections go through: direct:// | socks5://[user:pass@]host:port")
	fs.StringVar(&f.DebugListen, "debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
	fs.DurationVar(&f.DialTimeout, "dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
	fs.DurationVar(&f.NegotiationTimeout, "negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
	fs.DurationVar(&f.DrainTimeout, "drain-timeout", proxy.DefaultDrainTimeout, "How long a half-closed session may stay silent before it is closed")
	fs.StringVar(&f.TCPKeepAlive, "tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable per-connection debug logging")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Log JSON lines instead of console output")
}

// Logger builds the process logger writing to stderr.
func (f *Flags) Logger() zerolog.Logger {
	return NewLogger(os.Stderr, f.Verbose, f.LogJSON)
}

func NewLogger(w io.Writer, verbose, jsonOut bool) zerolog.Logger {
	if !jsonOut {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// LoadConfig reads --config, appends the --server-addr entry if given, and
// validates the result.
func (f *Flags) LoadConfig() (*config.Config, error) {
	c := &config.Config{}
	if f.ConfigPath != "" {
		var err error
		c, err = config.Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	if f.ServerAddr != "" || f.Password != "" || f.Method != "" {
		if f.ServerAddr == "" || f.Password == "" || f.Method == "" {
			return nil, errors.New("--server-addr, --password and --encrypt-method must be given together")
		}
		s, err := config.NewServer(f.ServerAddr, f.Password, f.Method)
		if err != nil {
			return nil, err
		}
		c.Servers = append(c.Servers, s)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// KeepAlive parses --tcp-keepalive.
func (f *Flags) KeepAlive() (net.KeepAliveConfig, error) {
	ka, err := config.ParseTCPKeepAlive(f.TCPKeepAlive)
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}
	return ka, nil
}

// Dialer builds the outbound dialer from --upstream.
func (f *Flags) Dialer(ka net.KeepAliveConfig) (dialer.Dialer, error) {
	d, err := dialer.New(dialer.Config{
		DialTimeout:        f.DialTimeout,
		NegotiationTimeout: f.NegotiationTimeout,
		KeepAlive:          ka,
	}, f.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid --upstream: %w", err)
	}
	return d, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
