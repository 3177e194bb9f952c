package forwarder

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// relay pumps bytes in both directions until either side closes. There is no
// SOCKS5-aware logic past the CONNECT phase, and with a zero ioTimeout the
// session stays open for as long as the peers keep it.
//
// Cancellation of ctx force-closes both ends, routing through the same
// close-once path as normal termination.
func relay(ctx context.Context, client, upstream *connEnd, ioTimeout time.Duration) error {
	if ioTimeout > 0 {
		dl := time.Now().Add(ioTimeout)
		_ = client.conn.SetDeadline(dl)
		_ = upstream.conn.SetDeadline(dl)
	}

	stop := context.AfterFunc(ctx, func() {
		client.Close()
		upstream.Close()
	})
	defer stop()

	g := errgroup.Group{}
	g.Go(func() error { return pump(upstream, client) })
	g.Go(func() error { return pump(client, upstream) })
	return g.Wait()
}

// pump copies src to dst until EOF or a reset, then closes dst so the paired
// pump unblocks.
func pump(dst, src *connEnd) error {
	_, err := io.Copy(dst.conn, src.conn)
	dst.Close()
	if err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}
