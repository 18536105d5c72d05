package toolcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mcpflow/pkg/chatmsg"
)

func newFetcher(tools []chatmsg.ServerTool) (CatalogueFetcher, *int32) {
	var calls int32
	return func(ctx context.Context) ([]chatmsg.ServerTool, error) {
		atomic.AddInt32(&calls, 1)
		return tools, nil
	}, &calls
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	tools := []chatmsg.ServerTool{{Server: "s1", Tool: chatmsg.Tool{Name: "a"}}}
	fetch, calls := newFetcher(tools)
	c := New(fetch, 10*time.Millisecond)

	if _, err := c.GetTools(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetTools(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected 1 fetch before TTL elapses, got %d", got)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := c.GetTools(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("expected 2 fetches after TTL elapses, got %d", got)
	}
}

func TestCacheConcurrentRefreshesCollapse(t *testing.T) {
	tools := []chatmsg.ServerTool{{Server: "s1", Tool: chatmsg.Tool{Name: "a"}}}
	fetch, calls := newFetcher(tools)
	c := New(fetch, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetTools(context.Background(), false); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected exactly 1 underlying fetch, got %d", got)
	}
}

func TestCacheTransportFailureLeavesStateUntouched(t *testing.T) {
	tools := []chatmsg.ServerTool{{Server: "s1", Tool: chatmsg.Tool{Name: "a"}}}
	c := New(func(ctx context.Context) ([]chatmsg.ServerTool, error) {
		return nil, errors.New("boom")
	}, time.Hour)
	c.Prime(tools)
	versionBefore := c.Version()

	if _, err := c.GetTools(context.Background(), true); err == nil {
		t.Fatal("expected error from failing fetch")
	}

	got, err := c.GetTools(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error reading stale cache: %v", err)
	}
	if len(got) != 1 || got[0].Tool.Name != "a" {
		t.Fatalf("expected previously primed tools to survive, got %+v", got)
	}
	if c.Version() != versionBefore {
		t.Fatalf("version must not change on failed refresh: before=%d after=%d", versionBefore, c.Version())
	}
}

func TestCachePrimeIncrementsVersion(t *testing.T) {
	fetch, _ := newFetcher(nil)
	c := New(fetch, time.Hour)
	v0 := c.Version()
	c.Prime([]chatmsg.ServerTool{{Server: "s1", Tool: chatmsg.Tool{Name: "a"}}})
	if c.Version() != v0+1 {
		t.Fatalf("expected version to increment by 1, got %d -> %d", v0, c.Version())
	}
}
