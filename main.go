package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	ini "gopkg.in/ini.v1"

	"socksfwd/internal/forwarder"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen       = pflag.String("listen", "127.0.0.1:0", "Local SOCKS5 listen address. Port 0 picks an ephemeral port.")
		upstream     = pflag.String("upstream", "", "Upstream SOCKS5 proxy URL: socks5://[user:pass@]host:port")
		configPath   = pflag.String("config", "", "Path to an ini config file with [upstream] and [listen] sections. Flags take precedence.")
		verbose      = pflag.Bool("verbose", false, "Enable per-connection debug logging")
		tcpKeepAlive = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

		handshakeTimeout = pflag.Duration("handshake-timeout", forwarder.DefaultHandshakeTimeout, "Timeout for each SOCKS5 handshake read, on both legs")
		dialTimeout      = pflag.Duration("dial-timeout", forwarder.DefaultDialTimeout, "Timeout for the TCP connect to the upstream proxy")
		ioTimeout        = pflag.Duration("io-timeout", 0, "Deadline for established relays. 0 leaves sessions open until either side closes.")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var cfg forwarder.Config
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			return fmt.Errorf("invalid --config: %w", err)
		}
	}
	if *upstream != "" {
		if err := applyUpstreamURL(&cfg, *upstream); err != nil {
			return fmt.Errorf("invalid --upstream: %w", err)
		}
	}
	if cfg.RemoteHost == "" {
		return errors.New("no upstream proxy configured (set --upstream or --config)")
	}
	if pflag.CommandLine.Changed("listen") || cfg.LocalHost == "" {
		host, port, err := splitListen(*listen)
		if err != nil {
			return fmt.Errorf("invalid --listen: %w", err)
		}
		cfg.LocalHost, cfg.LocalPort = host, port
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	cfg.HandshakeTimeout = *handshakeTimeout
	cfg.DialTimeout = *dialTimeout
	cfg.IOTimeout = *ioTimeout
	cfg.KeepAlive = ka

	f, err := forwarder.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := f.Start(ctx); err != nil {
		return err
	}
	log.Info().Str("addr", f.Addr()).Str("proxy_url", f.ProxyURL()).Msg("socks5 forwarder ready")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	f.Stop()
	return nil
}

// applyUpstreamURL fills the remote proxy fields of cfg from a
// socks5://[user:pass@]host:port URL. A missing port defaults to 1080.
func applyUpstreamURL(cfg *forwarder.Config, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if s := strings.ToLower(u.Scheme); s != "socks5" {
		return fmt.Errorf("invalid url scheme: %q (only socks5 is supported)", u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return errors.New("invalid url: path should be empty")
	}
	if u.Hostname() == "" {
		return errors.New("invalid url: missing host")
	}

	port := 1080
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid url port: %w", err)
		}
	}

	cfg.RemoteHost = u.Hostname()
	cfg.RemotePort = port
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return nil
}

// loadConfigFile reads an ini file shaped like:
//
//	[upstream]
//	host = proxy.internal
//	port = 9050
//	username = alice
//	password = hunter2
//
//	[listen]
//	host = 127.0.0.1
//	port = 1081
func loadConfigFile(path string, cfg *forwarder.Config) error {
	file, err := ini.Load(path)
	if err != nil {
		return err
	}

	up := file.Section("upstream")
	cfg.RemoteHost = up.Key("host").String()
	cfg.RemotePort = up.Key("port").MustInt(1080)
	cfg.Username = up.Key("username").String()
	cfg.Password = up.Key("password").String()

	ls := file.Section("listen")
	cfg.LocalHost = ls.Key("host").String()
	cfg.LocalPort = ls.Key("port").MustInt(0)
	return nil
}

func splitListen(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port: %w", err)
	}
	return host, port, nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
