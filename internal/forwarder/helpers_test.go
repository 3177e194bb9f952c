package forwarder

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

// readFull reads len(buf) bytes with a short deadline so a broken test fails
// instead of hanging.
func readFull(t *testing.T, conn net.Conn, buf []byte) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Time{})
}
