package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "kid-1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "kid-1")
	rl.Check(ctx, "kid-1")
	result := rl.Check(ctx, "kid-1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "kid-1").Allowed)
	require.False(t, rl.Check(ctx, "kid-1").Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Check(ctx, "kid-1").Allowed)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	r1 := rl.Check(ctx, "key-a")
	r2 := rl.Check(ctx, "key-b")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestRateLimiter_DisabledWhenLimitZero(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Check(context.Background(), "kid-1").Allowed)
	}
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	result := cb.Check(context.Background(), "remote")
	assert.True(t, result.Allowed)
	assert.Equal(t, CircuitClosed, cb.State("remote"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "remote")
	cb.RecordFailure("remote")
	cb.RecordFailure("remote")

	result := cb.Check(ctx, "remote")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, CircuitOpen, cb.State("remote"))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "remote")
	cb.RecordFailure("remote")
	cb.RecordSuccess("remote")
	cb.RecordFailure("remote")

	result := cb.Check(ctx, "remote")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	cb.RecordFailure("remote")
	require.False(t, cb.Check(ctx, "remote").Allowed)

	now = now.Add(11 * time.Second)
	require.True(t, cb.Check(ctx, "remote").Allowed, "first probe after reset timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State("remote"))
	assert.False(t, cb.Check(ctx, "remote").Allowed, "only one probe in flight")

	t.Run("failed probe reopens", func(t *testing.T) {
		cb.RecordFailure("remote")
		assert.Equal(t, CircuitOpen, cb.State("remote"))
		assert.False(t, cb.Check(ctx, "remote").Allowed)
	})

	t.Run("successful probe closes", func(t *testing.T) {
		now = now.Add(11 * time.Second)
		require.True(t, cb.Check(ctx, "remote").Allowed)
		cb.RecordSuccess("remote")
		assert.Equal(t, CircuitClosed, cb.State("remote"))
	})
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("kid-1")
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, km.Len(), "idle keys are released")
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("kid-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("kid-b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
