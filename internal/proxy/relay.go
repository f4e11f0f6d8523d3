package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrIdleTimeout is returned by Relay when neither direction moved a byte for
// the idle timeout. It is a normal way for a session to end.
var ErrIdleTimeout = errors.New("relay: idle timeout")

// Stats counts the bytes Relay copied in each direction.
type Stats struct {
	// Up is bytes copied from a to b.
	Up int64
	// Down is bytes copied from b to a.
	Down int64
}

type relay struct {
	idle  time.Duration
	drain time.Duration

	// lastActivity is unix nanoseconds of the last byte moved either way.
	lastActivity atomic.Int64
	draining     atomic.Bool
}

// Relay copies a to b and b to a until both directions end, either side
// fails, the session idles for idle, or ctx is done. Both connections are
// closed on return.
//
// When one direction reaches EOF its destination is half-closed and the other
// direction may continue for as long as it keeps moving data at least every
// drain. An idle of zero disables the idle timeout.
func Relay(ctx context.Context, a, b net.Conn, idle, drain time.Duration) (Stats, error) {
	r := &relay{idle: idle, drain: drain}
	r.touch()

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = a.Close()
			_ = b.Close()
		})
	}
	defer closeBoth()

	g, gctx := errgroup.WithContext(ctx)

	// If the context is canceled, close both sides to unblock the copies.
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	var up, down atomic.Int64
	g.Go(func() error {
		return r.pump(b, a, &up)
	})
	g.Go(func() error {
		return r.pump(a, b, &down)
	})

	err := g.Wait()
	return Stats{Up: up.Load(), Down: down.Load()}, err
}

// pump copies src to dst. On EOF it half-closes dst and starts the drain
// period for the opposite direction, which reads from dst.
func (r *relay) pump(dst, src net.Conn, n *atomic.Int64) error {
	bp := relayBuffers.Get()
	defer relayBuffers.Put(bp)
	buf := *bp

	for {
		draining := r.draining.Load()
		_ = src.SetReadDeadline(r.readDeadline(draining))
		if !draining && r.draining.Load() {
			// startDrain ran while the idle deadline was being armed and may
			// have been overwritten by it.
			continue
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			r.touch()
			if r.idle > 0 {
				_ = dst.SetWriteDeadline(time.Now().Add(r.idle))
			}
			nw, werr := dst.Write(buf[:nr])
			n.Add(int64(nw))
			if werr != nil {
				if errors.Is(werr, os.ErrDeadlineExceeded) {
					return ErrIdleTimeout
				}
				return werr
			}
			r.touch()
		}

		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, io.EOF):
			closeWrite(dst)
			r.startDrain(dst)
			return nil
		case errors.Is(rerr, os.ErrDeadlineExceeded):
			if r.draining.Load() {
				return nil
			}
			if r.idle > 0 && time.Since(r.last()) < r.idle {
				// The other direction is active.
				continue
			}
			return ErrIdleTimeout
		default:
			return rerr
		}
	}
}

func (r *relay) touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}

func (r *relay) last() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

func (r *relay) readDeadline(draining bool) time.Time {
	if draining {
		return time.Now().Add(r.drain)
	}
	if r.idle > 0 {
		return r.last().Add(r.idle)
	}
	return time.Time{}
}

// startDrain wakes a reader blocked on c so it picks up the drain deadline.
func (r *relay) startDrain(c net.Conn) {
	if r.draining.CompareAndSwap(false, true) {
		_ = c.SetReadDeadline(time.Now().Add(r.drain))
	}
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}
