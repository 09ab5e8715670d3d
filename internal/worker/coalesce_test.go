package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arabweather/taqs/internal/cache"
)

// gatedFetcher blocks every Fetch until release is closed, so the test can
// pile up concurrent interceptions behind one in-flight request.
type gatedFetcher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) (Response, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	return Response{URL: url, StatusCode: 200, ContentType: "application/json", Body: []byte("shared")}, nil
}

// TestFetch_CoalescesConcurrentRequests verifies that simultaneous fetches of
// the same API URL share a single upstream call and all receive its result.
func TestFetch_CoalescesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	fetcher := &gatedFetcher{release: make(chan struct{})}
	m := newTestManager(fetcher, cache.NewMemoryStore())

	const waiters = 8
	url := "/api/weather?lat=30&lon=31"

	var wg sync.WaitGroup
	results := make([]Response, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Fetch(ctx, url)
		}(i)
	}

	// Let the goroutines queue up behind the leader before releasing it.
	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("leader fetch never started")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("Fetch[%d] error = %v", i, errs[i])
		}
		if string(results[i].Body) != "shared" {
			t.Errorf("Fetch[%d] body = %q, want shared", i, results[i].Body)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

// TestFetch_LeaderCancellationSparesWaiters verifies that a client aborting
// the request that started a flight only fails that client: the upstream
// fetch continues on a detached context, and a waiter with a healthy context
// still gets the live response.
func TestFetch_LeaderCancellationSparesWaiters(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{})}
	m := newTestManager(fetcher, cache.NewMemoryStore())
	url := "/api/weather?lat=30&lon=31"

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := m.Fetch(leaderCtx, url)
		leaderErr <- err
	}()

	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("leader fetch never started")
		case <-time.After(time.Millisecond):
		}
	}

	waiterResp := make(chan Response, 1)
	waiterErr := make(chan error, 1)
	go func() {
		resp, err := m.Fetch(context.Background(), url)
		waiterResp <- resp
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the waiter join the flight

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled leader Fetch() error = %v, want context.Canceled", err)
	}

	close(fetcher.release)
	if err := <-waiterErr; err != nil {
		t.Fatalf("healthy waiter Fetch() error = %v", err)
	}
	if resp := <-waiterResp; string(resp.Body) != "shared" || resp.FromCache {
		t.Errorf("healthy waiter got body=%q fromCache=%v, want live shared response", resp.Body, resp.FromCache)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

// TestCoalescer_WaiterCancellation verifies a cancelled waiter gets its
// context error while the underlying fetch keeps running for the rest.
func TestCoalescer_WaiterCancellation(t *testing.T) {
	c := newCoalescer()
	release := make(chan struct{})

	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		resp, shared, err := c.Do(context.Background(), "/api/x", func(context.Context) (Response, error) {
			<-release
			return Response{StatusCode: 200, Body: []byte("ok")}, nil
		})
		if err != nil || shared || string(resp.Body) != "ok" {
			t.Errorf("leader Do() = %q shared=%v err=%v", resp.Body, shared, err)
		}
	}()

	// Wait for the leader's flight to register.
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		n := len(c.inflight)
		c.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("leader never registered in-flight")
		case <-time.After(time.Millisecond):
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, shared, err := c.Do(ctx, "/api/x", nil); err == nil || !shared {
		t.Errorf("cancelled waiter Do() shared=%v err=%v, want shared with context error", shared, err)
	}

	close(release)
	<-leaderDone
}
