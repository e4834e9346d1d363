package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelMapWithLimit(t *testing.T) {
	var inFlight, peak atomic.Int32

	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := ParallelMapWithLimit(context.Background(), items, func(ctx context.Context, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		if n%4 == 0 {
			return 0, errors.New("boom")
		}
		return n * n, nil
	}, 3)

	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d", i, r.Index)
		}
		if items[i]%4 == 0 {
			if r.Error == nil {
				t.Errorf("item %d: expected error", items[i])
			}
			continue
		}
		if r.Value != items[i]*items[i] {
			t.Errorf("item %d: got %d", items[i], r.Value)
		}
	}

	values, errs := CollectResults(results)
	if len(values) != 6 || len(errs) != 2 {
		t.Errorf("collect: %d values, %d errors", len(values), len(errs))
	}
	if !HasErrors(results) {
		t.Error("HasErrors = false, want true")
	}
}

func TestParallelMapUntilDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	results := ParallelMapUntil(ctx, []string{"fast", "slow"}, func(ctx context.Context, s string) (string, error) {
		if s == "slow" {
			<-release
		}
		return s, nil
	}, 0)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("returned after %v, expected to honour the deadline", elapsed)
	}
	if results[0].Error != nil || results[0].Value != "fast" {
		t.Errorf("fast item: %+v", results[0])
	}
	if !errors.Is(results[1].Error, context.DeadlineExceeded) {
		t.Errorf("slow item error = %v, want deadline exceeded", results[1].Error)
	}
}

func TestParallelMapUntilEmpty(t *testing.T) {
	results := ParallelMapUntil(context.Background(), []int(nil), func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, 2)
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}
