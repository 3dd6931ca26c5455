package credentials

import (
	"context"
	"sync"
	"testing"
	"time"

	"server/internal/domain"
)

func TestAcquireSelectsLeastLoaded(t *testing.T) {
	pool := NewPool([]string{"a", "b"}, Options{PerCredCap: 2, Cooldown: time.Minute})

	first, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	second, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct least-loaded credentials, got %q twice", first.ID)
	}
}

func TestAcquireRespectsPerCredCap(t *testing.T) {
	pool := NewPool([]string{"a"}, Options{PerCredCap: 1, Cooldown: time.Minute, pollInterval: time.Millisecond})

	cred, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if cred.InFlight != 1 {
		t.Fatalf("InFlight = %d, want 1", cred.InFlight)
	}

	_, err = pool.Acquire(context.Background(), 20*time.Millisecond)
	if err != domain.ErrNoCapacity {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestReleaseRestoresCapacity(t *testing.T) {
	pool := NewPool([]string{"a"}, Options{PerCredCap: 1, Cooldown: time.Minute, pollInterval: time.Millisecond})

	cred, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	pool.Release(cred, false, false)

	st := pool.Status()
	if st.InFlightSum != 0 {
		t.Fatalf("InFlightSum = %d, want 0", st.InFlightSum)
	}

	again, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	if again.ID != cred.ID {
		t.Fatalf("expected to re-acquire %q, got %q", cred.ID, again.ID)
	}
}

func TestReleaseWithRateLimitAppliesCooldown(t *testing.T) {
	pool := NewPool([]string{"a", "b"}, Options{PerCredCap: 1, Cooldown: time.Hour, pollInterval: time.Millisecond})

	cred, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	pool.Release(cred, true, true)

	st := pool.Status()
	if st.CoolingDown != 1 {
		t.Fatalf("CoolingDown = %d, want 1", st.CoolingDown)
	}
	if st.Available != 1 {
		t.Fatalf("Available = %d, want 1 (the untouched second credential)", st.Available)
	}
}

func TestAcquireExcludesCoolingDownCredential(t *testing.T) {
	pool := NewPool([]string{"a"}, Options{PerCredCap: 1, Cooldown: time.Hour, pollInterval: time.Millisecond})

	cred, _ := pool.Acquire(context.Background(), time.Second)
	pool.Release(cred, true, true)

	_, err := pool.Acquire(context.Background(), 20*time.Millisecond)
	if err != domain.ErrNoCapacity {
		t.Fatalf("expected ErrNoCapacity while cooling down, got %v", err)
	}
}

func TestMaxConcurrency(t *testing.T) {
	pool := NewPool([]string{"a", "b", "c"}, Options{PerCredCap: 4})
	if got := pool.MaxConcurrency(); got != 12 {
		t.Fatalf("MaxConcurrency() = %d, want 12", got)
	}
}

func TestRunWithAllPreservesOrderAndBoundsConcurrency(t *testing.T) {
	pool := NewPool([]string{"a", "b"}, Options{PerCredCap: 1, pollInterval: time.Millisecond})

	var mu sync.Mutex
	active, peak := 0, 0
	tasks := make([]Task[int], 5)
	for i := range tasks {
		i := i
		tasks[i] = Task[int]{Fn: func(ctx context.Context, cred *domain.Credential) (int, error, bool) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return i * 10, nil, false
		}}
	}

	results, errs := RunWithAll(context.Background(), pool, tasks, 2, time.Second)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("task %d returned error: %v", i, err)
		}
	}
	for i, got := range results {
		if got != i*10 {
			t.Fatalf("results[%d] = %d, want %d", i, got, i*10)
		}
	}
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}
