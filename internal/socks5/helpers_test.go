package socks5

import (
	"io"
	"net"
	"time"
)

// readFull reads len(buf) bytes with a short deadline so a broken test fails
// instead of hanging on a pipe.
func readFull(conn net.Conn, buf []byte) (int, error) {
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	return io.ReadFull(conn, buf)
}
