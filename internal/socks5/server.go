package socks5

import (
	"net"
	"time"
)

// Accept performs the server side of the SOCKS5 handshake toward the
// connecting browser and returns the requested destination. The local side
// never requires browser credentials: whatever methods the client offers,
// no-auth is selected.
//
// Failures before the method selection is written (greeting EOF, wrong
// version byte) come back with SendReply=false since no valid reply exists
// at that point. An unsupported command or address type returns the matching
// RFC 1928 reply code for the handler to send.
func Accept(conn net.Conn, timeout time.Duration) (Dest, error) {
	// Greeting: VER NMETHODS METHODS.
	hdr, err := readExact(conn, 2, "client", timeout)
	if err != nil {
		return Dest{}, withoutReply(err)
	}
	if hdr[0] != Version5 {
		return Dest{}, withoutReply(failf(RepGeneralFailure, "unsupported SOCKS version 0x%02x from client", hdr[0]))
	}
	if n := int(hdr[1]); n > 0 {
		if _, err := readExact(conn, n, "client", timeout); err != nil {
			return Dest{}, withoutReply(err)
		}
	}

	if _, err := conn.Write([]byte{Version5, MethodNoAuth}); err != nil {
		return Dest{}, withoutReply(failf(RepGeneralFailure, "write method selection to client: %v", err))
	}

	// Request: VER CMD RSV ATYP DST.ADDR DST.PORT.
	req, err := readExact(conn, 4, "client", timeout)
	if err != nil {
		return Dest{}, err
	}
	if req[0] != Version5 {
		return Dest{}, withoutReply(failf(RepGeneralFailure, "unsupported SOCKS version 0x%02x in client request", req[0]))
	}
	if req[1] != CmdConnect {
		return Dest{}, failf(RepCommandNotSupported, "unsupported command 0x%02x from client", req[1])
	}

	atyp := req[3]
	addr, err := readDestAddr(conn, atyp, timeout)
	if err != nil {
		return Dest{}, err
	}

	raw := make([]byte, 0, 1+len(addr))
	raw = append(raw, atyp)
	raw = append(raw, addr...)
	return Dest{Raw: raw}, nil
}
