package config

import (
	"encoding/json"
	"os"
	"time"
)

type jsonServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Method   string `json:"method"`
	Timeout  int    `json:"timeout"`
	Weight   int    `json:"weight"`
}

// jsonConfig is the shadowsocks configuration file layout. A top-level
// server/server_port entry and the servers list may be combined.
type jsonConfig struct {
	Server     string       `json:"server"`
	ServerPort int          `json:"server_port"`
	Password   string       `json:"password"`
	Method     string       `json:"method"`
	Timeout    int          `json:"timeout"`
	Servers    []jsonServer `json:"servers"`

	LocalAddress string `json:"local_address"`
	LocalPort    int    `json:"local_port"`

	ForbiddenIP []string `json:"forbidden_ip"`
	DNSServer   string   `json:"dns_server"`

	FailureThreshold int `json:"failure_threshold"`
	Cooldown         int `json:"cooldown"`
}

// LoadJSON reads a JSON configuration file. Durations are in seconds.
func LoadJSON(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(b)
}

func ParseJSON(b []byte) (*Config, error) {
	var jc jsonConfig
	if err := json.Unmarshal(b, &jc); err != nil {
		return nil, err
	}

	c := &Config{
		LocalAddress:     jc.LocalAddress,
		LocalPort:        jc.LocalPort,
		DNSServer:        jc.DNSServer,
		FailureThreshold: jc.FailureThreshold,
		Cooldown:         seconds(jc.Cooldown),
	}

	if jc.Server != "" {
		c.Servers = append(c.Servers, Server{
			Address:  jc.Server,
			Port:     jc.ServerPort,
			Password: jc.Password,
			Method:   jc.Method,
			Timeout:  seconds(jc.Timeout),
		})
	}
	for _, s := range jc.Servers {
		timeout := s.Timeout
		if timeout == 0 {
			timeout = jc.Timeout
		}
		c.Servers = append(c.Servers, Server{
			Address:  s.Address,
			Port:     s.Port,
			Password: s.Password,
			Method:   s.Method,
			Timeout:  seconds(timeout),
			Weight:   s.Weight,
		})
	}

	var err error
	c.ForbiddenIPs, err = ParseIPs(jc.ForbiddenIP)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
