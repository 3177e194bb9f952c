package socks5

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// Auth holds upstream proxy credentials for the RFC 1929 subnegotiation.
type Auth struct {
	Username string
	Password string
}

// Handshake performs the client side of the SOCKS5 handshake against the
// upstream proxy over an already-connected conn: method negotiation,
// username/password subnegotiation when the proxy asks for it, then a
// CONNECT request carrying dest's ATYP+ADDR+PORT bytes verbatim.
//
// When the upstream declines the CONNECT, the returned HandshakeError
// carries the upstream's REP byte unchanged so the browser sees the same
// failure the upstream reported.
func Handshake(conn net.Conn, auth Auth, dest Dest, timeout time.Duration) error {
	if _, err := conn.Write([]byte{Version5, 0x02, MethodNoAuth, MethodUserPass}); err != nil {
		return failf(RepGeneralFailure, "write greeting to remote proxy: %v", err)
	}

	sel, err := readExact(conn, 2, "remote proxy", timeout)
	if err != nil {
		return err
	}
	if sel[0] != Version5 {
		return failf(RepGeneralFailure, "unsupported SOCKS version 0x%02x from remote proxy", sel[0])
	}

	switch sel[1] {
	case MethodNoAuth:
	case MethodUserPass:
		if err := authenticate(conn, auth, timeout); err != nil {
			return err
		}
	default:
		return failf(RepGeneralFailure, "remote proxy selected incompatible auth method 0x%02x", sel[1])
	}

	req := make([]byte, 0, 3+len(dest.Raw))
	req = append(req, Version5, CmdConnect, 0x00)
	req = append(req, dest.Raw...)
	if _, err := conn.Write(req); err != nil {
		return failf(RepGeneralFailure, "write CONNECT to remote proxy: %v", err)
	}

	// Reply: VER REP RSV ATYP BND.ADDR BND.PORT.
	rep, err := readExact(conn, 4, "remote proxy", timeout)
	if err != nil {
		return err
	}
	if rep[1] != RepSuccess {
		return failf(rep[1], "remote proxy refused CONNECT for %s: rep=0x%02x", dest, rep[1])
	}
	return skipBoundAddr(conn, rep[3], "remote proxy", timeout)
}

// authenticate runs the RFC 1929 username/password subnegotiation. Only the
// credential byte lengths are ever logged.
func authenticate(conn net.Conn, auth Auth, timeout time.Duration) error {
	user, pass := []byte(auth.Username), []byte(auth.Password)
	log.Debug().Msgf("authenticating with remote proxy: ulen=%d plen=%d", len(user), len(pass))

	frame := make([]byte, 0, 3+len(user)+len(pass))
	frame = append(frame, UserPassVersion, byte(len(user)))
	frame = append(frame, user...)
	frame = append(frame, byte(len(pass)))
	frame = append(frame, pass...)
	if _, err := conn.Write(frame); err != nil {
		return failf(RepGeneralFailure, "write auth to remote proxy: %v", err)
	}

	status, err := readExact(conn, 2, "remote proxy", timeout)
	if err != nil {
		return err
	}
	if status[1] != UserPassStatusSuccess {
		return failf(RepGeneralFailure, "remote proxy rejected credentials: status=0x%02x", status[1])
	}
	return nil
}
