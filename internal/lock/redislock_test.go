package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/lock"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockSerializesHolders(t *testing.T) {
	_, client := newClient(t)

	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Prefix: "lock:"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, "cart:1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstDone

	go func() {
		err := locker.WithLock(ctx, "cart:1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockTimesOut(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("lock:cart:2", "someone-else"))

	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Prefix: "lock:"}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	called := false
	err := locker.WithLock(ctx, "cart:2", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)
	require.True(t, mr.Exists("lock:cart:2"), "foreign lock must survive")
}

func TestWithLockReleasesOnError(t *testing.T) {
	mr, client := newClient(t)
	locker := lock.Locker{R: client}

	err := locker.WithLock(context.Background(), "cart:3", time.Second, func(context.Context) error {
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, mr.Exists("lock:cart:3"))
}

func TestWithLockZeroPrefixKeepsClearOfDataKeys(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("cart:4", `{"id":"4"}`))
	locker := lock.Locker{R: client, RetryBackoff: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ran := false
	err := locker.WithLock(ctx, "cart:4", time.Second, func(context.Context) error {
		ran = true
		require.True(t, mr.Exists("lock:cart:4"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, mr.Exists("lock:cart:4"))
	got, err := mr.Get("cart:4")
	require.NoError(t, err)
	require.Equal(t, `{"id":"4"}`, got)
}
