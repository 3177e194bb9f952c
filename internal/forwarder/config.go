package forwarder

import (
	"fmt"
	"net"
	"time"

	"socksfwd/internal/socks5"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultLocalHost        = "127.0.0.1"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout      = 10 * time.Second
)

// Config describes one forwarder: where to listen and which authenticated
// upstream SOCKS5 proxy to relay through. It is validated by New and never
// mutated afterwards.
type Config struct {
	// Upstream SOCKS5 proxy and its credentials. Empty credentials are
	// allowed; they are only sent when the upstream asks for the
	// username/password method.
	RemoteHost string
	RemotePort int
	Username   string
	Password   string

	// Local listener. LocalHost defaults to loopback; LocalPort 0 picks an
	// ephemeral port, resolved during Start.
	LocalHost string
	LocalPort int

	// HandshakeTimeout bounds every handshake read on both legs.
	// DialTimeout bounds the upstream TCP connect, which usually deserves
	// longer than a single handshake read.
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration

	// IOTimeout bounds the relay phase. Zero leaves proxied sessions open
	// until either side closes, which long-lived browser tunnels rely on.
	IOTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}

// Validate rejects configurations the protocol cannot express. It runs
// before any socket is opened.
func (c Config) Validate() error {
	if len(c.Username) > socks5.MaxCredentialLen {
		return fmt.Errorf("username must be at most %d bytes, got %d", socks5.MaxCredentialLen, len(c.Username))
	}
	if len(c.Password) > socks5.MaxCredentialLen {
		return fmt.Errorf("password must be at most %d bytes, got %d", socks5.MaxCredentialLen, len(c.Password))
	}
	if c.RemoteHost == "" {
		return fmt.Errorf("remote host must not be empty")
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return fmt.Errorf("remote port must be in 1..65535, got %d", c.RemotePort)
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("local port must be in 0..65535, got %d", c.LocalPort)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.LocalHost == "" {
		c.LocalHost = DefaultLocalHost
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}
