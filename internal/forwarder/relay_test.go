package forwarder

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestRelayForwardsBothWays(t *testing.T) {
	browser, client := net.Pipe()
	upstream, remote := net.Pipe()
	defer remote.Close()

	done := make(chan error, 1)
	go func() {
		done <- relay(context.Background(), newConnEnd(client), newConnEnd(upstream), 0)
	}()

	g := errgroup.Group{}
	g.Go(func() error {
		_, err := browser.Write([]byte("hello"))
		return err
	})
	buf := make([]byte, 5)
	readFull(t, remote, buf)
	if !bytes.Equal(buf, []byte("hello")) {
		t.Fatalf("expected hello, got %q", buf)
	}

	g.Go(func() error {
		_, err := remote.Write([]byte("world"))
		return err
	})
	readFull(t, browser, buf)
	if !bytes.Equal(buf, []byte("world")) {
		t.Fatalf("expected world, got %q", buf)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	// Closing one side ends the relay and propagates to the other pump.
	_ = browser.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish after the client closed")
	}

	_ = remote.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := remote.Read(buf); err == nil {
		t.Fatal("expected the upstream side to be closed")
	}
}

func TestRelayCancelForceCloses(t *testing.T) {
	browser, client := net.Pipe()
	upstream, remote := net.Pipe()
	defer browser.Close()
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay(ctx, newConnEnd(client), newConnEnd(upstream), 0)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancellation")
	}
}

func TestRelayIOTimeout(t *testing.T) {
	browser, client := net.Pipe()
	upstream, remote := net.Pipe()
	defer browser.Close()
	defer remote.Close()

	done := make(chan error, 1)
	go func() {
		done <- relay(context.Background(), newConnEnd(client), newConnEnd(upstream), 50*time.Millisecond)
	}()

	select {
	case <-done:
		// Deadline fired and both pumps unblocked; idle sessions are only
		// bounded when a relay timeout is configured.
	case <-time.After(2 * time.Second):
		t.Fatal("relay ignored the configured timeout")
	}
}
