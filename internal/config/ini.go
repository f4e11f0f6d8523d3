package config

import (
	"strings"
	"time"

	ini "gopkg.in/ini.v1"
)

// serverSectionPrefix marks INI sections that describe a server, as in
// [server.tokyo].
const serverSectionPrefix = "server"

type iniServer struct {
	Address  string        `ini:"address"`
	Port     int           `ini:"port"`
	Password string        `ini:"password"`
	Method   string        `ini:"method"`
	Timeout  time.Duration `ini:"timeout"`
	Weight   int           `ini:"weight"`
}

type iniLocal struct {
	Address string `ini:"address"`
	Port    int    `ini:"port"`
}

type iniRemote struct {
	ForbiddenIP      []string      `ini:"forbidden_ip" delim:","`
	DNSServer        string        `ini:"dns_server"`
	FailureThreshold int           `ini:"failure_threshold"`
	Cooldown         time.Duration `ini:"cooldown"`
	Timeout          time.Duration `ini:"timeout"`
}

// LoadINI reads an INI configuration file:
//
//	[local]
//	address = 127.0.0.1
//	port = 1080
//
//	[remote]
//	forbidden_ip = 127.0.0.1, ::1
//	dns_server = 1.1.1.1
//	failure_threshold = 3
//	cooldown = 30s
//	timeout = 5m
//
//	[server.tokyo]
//	address = 192.0.2.1
//	port = 8388
//	password = secret
//	method = aes-256-cfb
//	weight = 2
//
// Durations use Go syntax. A server without its own timeout inherits the one
// in [remote].
func LoadINI(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return parseINI(f)
}

// ParseINI parses INI configuration from b.
func ParseINI(b []byte) (*Config, error) {
	f, err := ini.Load(b)
	if err != nil {
		return nil, err
	}
	return parseINI(f)
}

func parseINI(f *ini.File) (*Config, error) {
	var local iniLocal
	if err := f.Section("local").MapTo(&local); err != nil {
		return nil, err
	}
	var remote iniRemote
	if err := f.Section("remote").MapTo(&remote); err != nil {
		return nil, err
	}

	c := &Config{
		LocalAddress:     local.Address,
		LocalPort:        local.Port,
		DNSServer:        remote.DNSServer,
		FailureThreshold: remote.FailureThreshold,
		Cooldown:         remote.Cooldown,
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name != serverSectionPrefix && !strings.HasPrefix(name, serverSectionPrefix+".") {
			continue
		}
		var s iniServer
		if err := sec.MapTo(&s); err != nil {
			return nil, err
		}
		if s.Timeout == 0 {
			s.Timeout = remote.Timeout
		}
		c.Servers = append(c.Servers, Server(s))
	}

	var err error
	c.ForbiddenIPs, err = ParseIPs(remote.ForbiddenIP)
	if err != nil {
		return nil, err
	}
	return c, nil
}
