package worker

import (
	"context"
	"sync"
	"time"
)

// flightTimeout bounds a detached upstream fetch so an abandoned flight
// cannot run forever.
const flightTimeout = 30 * time.Second

// flight is one upstream fetch in progress, shared by every interception of
// the same URL. done is closed exactly once, after resp and err are set.
type flight struct {
	done chan struct{}
	resp Response
	err  error
}

// coalescer deduplicates concurrent network fetches for the same URL. The
// first interception becomes the leader and starts the fetch; later
// interceptions wait on its result instead of hitting the origin again. The
// fetch itself runs on a context detached from every caller's cancellation
// (values preserved, timeout-bounded), so one aborted client can neither
// fail nor cancel the flight the others are riding.
type coalescer struct {
	mu       sync.Mutex
	inflight map[string]*flight
}

func newCoalescer() *coalescer {
	return &coalescer{inflight: make(map[string]*flight)}
}

// Do returns the result of fn for url, sharing a single execution across
// concurrent callers. shared reports whether this caller rode an existing
// fetch. Waiting respects ctx; a waiter giving up does not stop the fetch
// for the rest.
func (c *coalescer) Do(ctx context.Context, url string, fn func(context.Context) (Response, error)) (resp Response, shared bool, err error) {
	c.mu.Lock()
	if f, ok := c.inflight[url]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.resp, true, f.err
		case <-ctx.Done():
			return Response{}, true, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[url] = f
	c.mu.Unlock()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
	go func() {
		defer cancel()
		f.resp, f.err = fn(fctx)
		c.mu.Lock()
		delete(c.inflight, url)
		c.mu.Unlock()
		close(f.done)
	}()

	select {
	case <-f.done:
		return f.resp, false, f.err
	case <-ctx.Done():
		return Response{}, false, ctx.Err()
	}
}
