package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// Forwarder owns the local listener(s) and the accept loop, dispatching one
// independent connection handler per accepted browser connection. The only
// state shared across connections is the immutable Config.
type Forwarder struct {
	cfg Config

	// Overridable in tests.
	listen func(ctx context.Context, network, addr string) (net.Listener, error)
	lookup func(ctx context.Context, host string) ([]string, error)

	mu        sync.Mutex
	listeners []net.Listener
	port      int
	cancel    context.CancelFunc
	started   bool

	acceptWG sync.WaitGroup
}

// New validates cfg and returns a forwarder ready to Start. A username or
// password longer than 255 bytes is a configuration error raised here,
// before any socket exists.
func New(cfg Config) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Forwarder{cfg: cfg.withDefaults()}
	f.listen = func(ctx context.Context, network, addr string) (net.Listener, error) {
		return listenTCP(ctx, network, addr, f.cfg.KeepAlive)
	}
	f.lookup = lookupHost
	return f, nil
}

// Start binds the local address and begins accepting browser connections in
// the background. After it returns, Port and ProxyURL report where the
// browser should be pointed. Canceling ctx tears the forwarder down the same
// way Stop does.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.New("forwarder already started")
	}

	hosts, err := f.lookup(ctx, f.cfg.LocalHost)
	if err != nil {
		return fmt.Errorf("resolve local host %q: %w", f.cfg.LocalHost, err)
	}
	if len(hosts) == 0 {
		return fmt.Errorf("local host %q resolved to no addresses", f.cfg.LocalHost)
	}

	listeners, port, err := f.bindAll(ctx, hosts)
	if err != nil {
		return err
	}

	f.warnIfExposed()

	ctx, cancel := context.WithCancel(ctx)
	f.listeners = listeners
	f.port = port
	f.cancel = cancel
	f.started = true

	for _, ln := range listeners {
		log.Debug().Str("addr", ln.Addr().String()).Msg("socks5 forwarder listening")
		f.acceptWG.Add(1)
		go f.serve(ctx, ln)
	}
	return nil
}

// bindAll binds one listener per resolved address. An ephemeral port is
// resolved on the first bind and requested for the rest; listeners that
// still land on divergent ports make the listening port ambiguous, which is
// a configuration error rather than something to warn about.
func (f *Forwarder) bindAll(ctx context.Context, hosts []string) ([]net.Listener, int, error) {
	closeAll := func(listeners []net.Listener) {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}

	port := f.cfg.LocalPort
	listeners := make([]net.Listener, 0, len(hosts))
	for _, host := range hosts {
		ln, err := f.listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			closeAll(listeners)
			return nil, 0, fmt.Errorf("listen on %s: %w", host, err)
		}
		listeners = append(listeners, ln)
		if port == 0 {
			port = boundPort(ln)
		}
	}

	for _, ln := range listeners {
		if p := boundPort(ln); p != port {
			closeAll(listeners)
			return nil, 0, fmt.Errorf("listeners bound to different ports: %d and %d", port, p)
		}
	}
	return listeners, port, nil
}

// warnIfExposed logs when the forwarder is told to listen beyond loopback.
// The local side accepts unauthenticated connections, so anything able to
// reach it can relay through the upstream proxy; that is worth a warning but
// never an error.
func (f *Forwarder) warnIfExposed() {
	host := f.cfg.LocalHost
	ip := net.ParseIP(host)
	if ip == nil {
		if host != "localhost" {
			log.Debug().Msgf("local host %q is not an IP literal; skipping loopback check", host)
		}
		return
	}
	if !ip.IsLoopback() {
		log.Warn().Msgf("socks5 forwarder bound to non-loopback address %s; anyone able to reach it can relay through the upstream proxy", host)
	}
}

func (f *Forwarder) serve(ctx context.Context, ln net.Listener) {
	defer f.acceptWG.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("accept failed; listener stopping")
			}
			return
		}
		go f.handleConn(ctx, conn)
	}
}

// Stop closes the listening sockets and force-closes in-flight relays
// through their usual close-once path. It does not wait for relays to drain
// and is safe to call more than once.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	listeners := f.listeners
	cancel := f.cancel
	f.listeners = nil
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ln := range listeners {
		_ = ln.Close()
	}
	f.acceptWG.Wait()
}

// Port returns the resolved listening port after a successful Start.
func (f *Forwarder) Port() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port
}

// Host returns the configured local host.
func (f *Forwarder) Host() string { return f.cfg.LocalHost }

// Addr returns host:port for a SOCKS5 client to connect to.
func (f *Forwarder) Addr() string {
	return net.JoinHostPort(f.Host(), strconv.Itoa(f.Port()))
}

// ProxyURL returns the literal value for the browser's --proxy-server flag.
func (f *Forwarder) ProxyURL() string { return "socks5://" + f.Addr() }

func lookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	// A hostname such as localhost may resolve dual-stack; bind them all.
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		hosts = append(hosts, a.IP.String())
	}
	return hosts, nil
}

func boundPort(ln net.Listener) int {
	if ta, ok := ln.Addr().(*net.TCPAddr); ok {
		return ta.Port
	}
	return 0
}
