package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// tcpPair returns the two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	d := net.Dialer{}
	c, err := d.DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	s, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})
	return c, s
}

func TestRelayIdleTimeout(t *testing.T) {
	t.Parallel()

	client, a := net.Pipe()
	b, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	start := time.Now()
	_, err := Relay(context.Background(), a, b, 100*time.Millisecond, time.Second)
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("err=%v want ErrIdleTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("idle timeout took %v", elapsed)
	}

	// Both legs are closed.
	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("client read err=%v want io.EOF", err)
	}
	if _, err := server.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("server read err=%v want io.EOF", err)
	}
}

func TestRelayActivityInOneDirectionKeepsBothAlive(t *testing.T) {
	t.Parallel()

	client, a := net.Pipe()
	b, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	const idle = 150 * time.Millisecond

	g := errgroup.Group{}
	g.Go(func() error {
		// Only client -> server traffic, for well over idle.
		for range 8 {
			if _, err := client.Write([]byte("x")); err != nil {
				return err
			}
			time.Sleep(idle / 3)
		}
		return client.Close()
	})
	g.Go(func() error {
		_, err := io.Copy(io.Discard, server)
		return err
	})

	st, err := Relay(context.Background(), a, b, idle, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("relay err=%v", err)
	}
	if st.Up != 8 || st.Down != 0 {
		t.Fatalf("stats %+v", st)
	}
	_ = server.Close()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestRelayHalfClose(t *testing.T) {
	t.Parallel()

	client, a := tcpPair(t)
	b, server := tcpPair(t)

	request := []byte("request")
	response := []byte("response after the request was half-closed")

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := client.Write(request); err != nil {
			return err
		}
		if err := client.(*net.TCPConn).CloseWrite(); err != nil {
			return err
		}
		got, err := io.ReadAll(client)
		if err != nil {
			return err
		}
		if string(got) != string(response) {
			t.Errorf("client got %q", got)
		}
		return nil
	})
	g.Go(func() error {
		got, err := io.ReadAll(server)
		if err != nil {
			return err
		}
		if string(got) != string(request) {
			t.Errorf("server got %q", got)
		}
		if _, err := server.Write(response); err != nil {
			return err
		}
		return server.Close()
	})

	st, err := Relay(context.Background(), a, b, 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if st.Up != int64(len(request)) || st.Down != int64(len(response)) {
		t.Fatalf("stats %+v", st)
	}
}

func TestRelayDrainEndsSilentDirection(t *testing.T) {
	t.Parallel()

	client, a := tcpPair(t)
	b, server := tcpPair(t)

	// The server closes; the client never sends anything or closes.
	_ = server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := Relay(context.Background(), a, b, 0, 100*time.Millisecond)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish after the drain timeout")
	}

	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("client read err=%v want io.EOF", err)
	}
}

func TestRelayContextCancel(t *testing.T) {
	t.Parallel()

	_, a := net.Pipe()
	b, _ := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Relay(ctx, a, b, 0, time.Second)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay ignored context cancellation")
	}
}

// drainRaceConn starts the drain from inside the first SetReadDeadline call,
// so the caller's idle deadline lands after the drain deadline.
type drainRaceConn struct {
	net.Conn
	r         *relay
	started   bool
	deadlines []time.Time
}

func (c *drainRaceConn) SetReadDeadline(t time.Time) error {
	if !c.started {
		c.started = true
		c.r.startDrain(c)
	}
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *drainRaceConn) Read([]byte) (int, error) {
	last := c.deadlines[len(c.deadlines)-1]
	if last.After(time.Now().Add(time.Minute)) {
		return 0, errors.New("read armed with the idle deadline while draining")
	}
	return 0, io.EOF
}

func TestRelayDrainDeadlineNotOverwritten(t *testing.T) {
	t.Parallel()

	r := &relay{idle: time.Hour, drain: 10 * time.Millisecond}
	r.touch()

	src := &drainRaceConn{r: r}
	var dst struct{ net.Conn }
	var n atomic.Int64

	if err := r.pump(&dst, src, &n); err != nil {
		t.Fatalf("pump: %v (deadlines %v)", err, src.deadlines)
	}
}
