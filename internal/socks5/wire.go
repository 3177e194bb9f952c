package socks5

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

// readExact reads exactly n bytes from conn, bounded by timeout. Short reads
// and expired deadlines both fold into a general-failure HandshakeError so
// the connection handler can answer the browser with a single reply code.
// The peer label ("client" or "remote proxy") only feeds error messages.
func readExact(conn net.Conn, n int, peer string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, failf(RepGeneralFailure, "set read deadline: %v", err)
		}
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, failf(RepGeneralFailure, "timed out reading %d bytes from %s", n, peer)
		}
		return nil, failf(RepGeneralFailure, "connection closed prematurely reading %d bytes from %s", n, peer)
	}
	return buf, nil
}

// Dest is the destination of a client CONNECT request, kept as the raw
// ATYP+ADDR+PORT bytes exactly as the client sent them.
type Dest struct {
	Raw []byte
}

// String renders the destination as host:port for logs. The wire bytes are
// never rebuilt from this form.
func (d Dest) String() string {
	if len(d.Raw) < 1 {
		return "<malformed>"
	}

	rest := d.Raw[1:]
	var host string
	switch d.Raw[0] {
	case ATYPIPv4:
		if len(rest) != net.IPv4len+2 {
			return "<malformed>"
		}
		host = net.IP(rest[:net.IPv4len]).String()
		rest = rest[net.IPv4len:]
	case ATYPIPv6:
		if len(rest) != net.IPv6len+2 {
			return "<malformed>"
		}
		host = net.IP(rest[:net.IPv6len]).String()
		rest = rest[net.IPv6len:]
	case ATYPDomain:
		if len(rest) < 1 || len(rest) != 1+int(rest[0])+2 {
			return "<malformed>"
		}
		host = string(rest[1 : 1+int(rest[0])])
		rest = rest[1+int(rest[0]):]
	default:
		return "<malformed>"
	}

	port := binary.BigEndian.Uint16(rest)
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// readDestAddr reads the DST.ADDR and DST.PORT fields that follow atyp in a
// request, returning them unparsed. Field widths per RFC 1928 section 4:
// IPv4 is 4 bytes, IPv6 is 16, a domain is a length byte plus that many.
func readDestAddr(conn net.Conn, atyp byte, timeout time.Duration) ([]byte, error) {
	switch atyp {
	case ATYPIPv4:
		return readExact(conn, net.IPv4len+2, "client", timeout)
	case ATYPIPv6:
		return readExact(conn, net.IPv6len+2, "client", timeout)
	case ATYPDomain:
		n, err := readExact(conn, 1, "client", timeout)
		if err != nil {
			return nil, err
		}
		rest, err := readExact(conn, int(n[0])+2, "client", timeout)
		if err != nil {
			return nil, err
		}
		return append(n, rest...), nil
	default:
		return nil, failf(RepAddressTypeNotSupported, "unsupported address type 0x%02x", atyp)
	}
}

// skipBoundAddr discards the BND.ADDR and BND.PORT fields of a reply. The
// forwarder never uses the upstream's bound address; it only needs the
// stream positioned after the reply.
func skipBoundAddr(conn net.Conn, atyp byte, peer string, timeout time.Duration) error {
	var n int
	switch atyp {
	case ATYPIPv4:
		n = net.IPv4len + 2
	case ATYPIPv6:
		n = net.IPv6len + 2
	case ATYPDomain:
		length, err := readExact(conn, 1, peer, timeout)
		if err != nil {
			return err
		}
		n = int(length[0]) + 2
	default:
		return failf(RepGeneralFailure, "unsupported bound address type 0x%02x from %s", atyp, peer)
	}

	_, err := readExact(conn, n, peer, timeout)
	return err
}

// WriteReply sends a SOCKS5 reply with a zero IPv4 bound address. Chrome's
// SOCKS5 client ignores BND.ADDR/BND.PORT on CONNECT replies, so a fixed
// 0.0.0.0:0 placeholder stands in for the upstream's true bound address.
func WriteReply(conn net.Conn, rep byte) error {
	_, err := conn.Write([]byte{Version5, rep, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0})
	return err
}
