package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"socksfwd/internal/socks5"
)

// handleConn drives one browser connection through its whole lifecycle:
// local handshake, upstream dial, remote handshake, reply, relay. Failures
// stay contained here; the listener and other connections never see them.
func (f *Forwarder) handleConn(ctx context.Context, client net.Conn) {
	logger := log.With().
		Str("conn", uuid.NewString()).
		Str("client", client.RemoteAddr().String()).
		Logger()

	clientEnd := newConnEnd(client)
	defer clientEnd.Close()

	dest, err := socks5.Accept(client, f.cfg.HandshakeTimeout)
	if err != nil {
		failHandshake(logger, client, err)
		return
	}
	logger.Debug().Stringer("dest", dest).Msg("connect requested")

	// The upstream connection is opened only once the client's request is
	// fully parsed.
	upstream, err := f.dialUpstream(ctx)
	if err != nil {
		failHandshake(logger, client, err)
		return
	}
	upstreamEnd := newConnEnd(upstream)
	defer upstreamEnd.Close()

	auth := socks5.Auth{Username: f.cfg.Username, Password: f.cfg.Password}
	if err := socks5.Handshake(upstream, auth, dest, f.cfg.HandshakeTimeout); err != nil {
		failHandshake(logger, client, err)
		return
	}

	if err := socks5.WriteReply(client, socks5.RepSuccess); err != nil {
		logger.Debug().Err(err).Msg("write success reply")
		return
	}

	// The handshake reads left deadlines behind; clear them so the relay is
	// unbounded unless IOTimeout says otherwise.
	_ = client.SetReadDeadline(time.Time{})
	_ = upstream.SetReadDeadline(time.Time{})

	logger.Debug().Msg("relaying")
	if err := relay(ctx, clientEnd, upstreamEnd, f.cfg.IOTimeout); err != nil {
		logger.Debug().Err(err).Msg("relay ended with error")
	}
}

// dialUpstream opens a fresh TCP connection to the upstream proxy. One per
// browser connection; never pooled or reused.
func (f *Forwarder) dialUpstream(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: f.cfg.DialTimeout}
	addr := net.JoinHostPort(f.cfg.RemoteHost, strconv.Itoa(f.cfg.RemotePort))

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", addr, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(f.cfg.KeepAlive)
	}
	return conn, nil
}

// failHandshake answers the browser with the SOCKS5 reply code mapped from
// err, unless the failure happened before any reply was meaningful, in which
// case the socket just closes.
func failHandshake(logger zerolog.Logger, client net.Conn, err error) {
	code, send := replyCode(err)
	logger.Debug().Err(err).Uint8("reply", code).Bool("send_reply", send).Msg("handshake failed")
	if !send {
		return
	}
	if werr := socks5.WriteReply(client, code); werr != nil && !isClosedErr(werr) {
		logger.Debug().Err(werr).Msg("write failure reply")
	}
}

// replyCode maps a handshake or dial error to the reply the browser gets.
// HandshakeError codes pass through verbatim, so an upstream REP byte
// arrives at the browser unchanged; a refused upstream TCP connect becomes
// CONNECTION REFUSED; everything else is a general failure.
func replyCode(err error) (code byte, send bool) {
	var he *socks5.HandshakeError
	if errors.As(err, &he) {
		return he.Reply, he.SendReply
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return socks5.RepConnectionRefused, true
	}
	return socks5.RepGeneralFailure, true
}

// connEnd gives a connection exactly-once close semantics, tolerating a
// peer that already reset or closed its side.
type connEnd struct {
	conn net.Conn
	once sync.Once
}

func newConnEnd(conn net.Conn) *connEnd { return &connEnd{conn: conn} }

func (e *connEnd) Close() {
	e.once.Do(func() {
		if err := e.conn.Close(); err != nil && !isClosedErr(err) {
			log.Debug().Err(err).Msg("close connection")
		}
	})
}

// isClosedErr reports whether err belongs to the narrow closed/reset class
// seen while tearing down a connection the peer already abandoned. Anything
// outside that class is a genuine failure and must not be masked.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
