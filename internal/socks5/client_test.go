package socks5

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

var connectDest = Dest{Raw: []byte{ATYPIPv4, 127, 0, 0, 1, 0x00, 0x50}} // 127.0.0.1:80

func TestHandshakeUserPass(t *testing.T) {
	client, upstream := net.Pipe()
	defer client.Close()
	defer upstream.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		greeting := make([]byte, 4)
		if _, err := readFull(upstream, greeting); err != nil {
			return err
		}
		if !bytes.Equal(greeting, []byte{0x05, 0x02, 0x00, 0x02}) {
			t.Errorf("unexpected greeting: % x", greeting)
		}
		if _, err := upstream.Write([]byte{0x05, 0x02}); err != nil {
			return err
		}

		auth := make([]byte, 11)
		if _, err := readFull(upstream, auth); err != nil {
			return err
		}
		// RFC 1929 frame for user/pass, byte for byte.
		want := []byte{0x01, 0x04, 0x75, 0x73, 0x65, 0x72, 0x04, 0x70, 0x61, 0x73, 0x73}
		if !bytes.Equal(auth, want) {
			t.Errorf("expected auth frame % x, got % x", want, auth)
		}
		if _, err := upstream.Write([]byte{0x01, 0x00}); err != nil {
			return err
		}

		req := make([]byte, 3+len(connectDest.Raw))
		if _, err := readFull(upstream, req); err != nil {
			return err
		}
		wantReq := append([]byte{0x05, 0x01, 0x00}, connectDest.Raw...)
		if !bytes.Equal(req, wantReq) {
			t.Errorf("expected CONNECT % x, got % x", wantReq, req)
		}
		_, err := upstream.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return err
	})

	if err := Handshake(client, Auth{Username: "user", Password: "pass"}, connectDest, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestHandshakeNoAuth(t *testing.T) {
	client, upstream := net.Pipe()
	defer client.Close()
	defer upstream.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		greeting := make([]byte, 4)
		if _, err := readFull(upstream, greeting); err != nil {
			return err
		}
		if _, err := upstream.Write([]byte{0x05, 0x00}); err != nil {
			return err
		}

		req := make([]byte, 3+len(connectDest.Raw))
		if _, err := readFull(upstream, req); err != nil {
			return err
		}
		_, err := upstream.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return err
	})

	if err := Handshake(client, Auth{Username: "user", Password: "pass"}, connectDest, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestHandshakeRefusedPropagatesRep(t *testing.T) {
	client, upstream := net.Pipe()
	defer client.Close()
	defer upstream.Close()

	go func() {
		greeting := make([]byte, 4)
		if _, err := readFull(upstream, greeting); err != nil {
			return
		}
		if _, err := upstream.Write([]byte{0x05, 0x00}); err != nil {
			return
		}
		req := make([]byte, 3+len(connectDest.Raw))
		if _, err := readFull(upstream, req); err != nil {
			return
		}
		// Connection refused; a failed reply may be truncated after the header.
		_, _ = upstream.Write([]byte{0x05, 0x05, 0x00, 0x01})
	}()

	err := Handshake(client, Auth{}, connectDest, time.Second)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if he.Reply != RepConnectionRefused {
		t.Fatalf("expected upstream REP 0x05 to propagate, got 0x%02x", he.Reply)
	}
	if !strings.Contains(he.Error(), "rep=0x05") {
		t.Fatalf("unexpected message: %q", he.Error())
	}
}

func TestHandshakeIncompatibleMethod(t *testing.T) {
	client, upstream := net.Pipe()
	defer client.Close()
	defer upstream.Close()

	go func() {
		greeting := make([]byte, 4)
		if _, err := readFull(upstream, greeting); err != nil {
			return
		}
		_, _ = upstream.Write([]byte{0x05, 0x81})
	}()

	err := Handshake(client, Auth{Username: "user", Password: "pass"}, connectDest, time.Second)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if he.Reply != RepGeneralFailure {
		t.Fatalf("expected general failure, got 0x%02x", he.Reply)
	}
	if !strings.Contains(he.Error(), "incompatible auth method") {
		t.Fatalf("unexpected message: %q", he.Error())
	}
}

func TestHandshakeAuthRejected(t *testing.T) {
	client, upstream := net.Pipe()
	defer client.Close()
	defer upstream.Close()

	go func() {
		greeting := make([]byte, 4)
		if _, err := readFull(upstream, greeting); err != nil {
			return
		}
		if _, err := upstream.Write([]byte{0x05, 0x02}); err != nil {
			return
		}
		auth := make([]byte, 11)
		if _, err := readFull(upstream, auth); err != nil {
			return
		}
		_, _ = upstream.Write([]byte{0x01, 0x01})
	}()

	err := Handshake(client, Auth{Username: "user", Password: "pass"}, connectDest, time.Second)
	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if he.Reply != RepGeneralFailure {
		t.Fatalf("expected general failure, got 0x%02x", he.Reply)
	}
	if !strings.Contains(he.Error(), "rejected credentials") {
		t.Fatalf("unexpected message: %q", he.Error())
	}
}
