package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "OS-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak)
	assert.Equal(t, 0, l.size())
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	r1, err := l.Acquire(context.Background(), "OS-1")
	require.NoError(t, err)
	defer r1()

	r2, err := l.Acquire(context.Background(), "OS-2")
	require.NoError(t, err)
	r2()
}

func TestLocalTimesOut(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "OS-1")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "OS-1")
	assert.ErrorIs(t, err, ErrTimeout)

	release()
	release()
	assert.Equal(t, 0, l.size())
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal(0)
	release, err := l.Acquire(context.Background(), "OS-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "OS-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	l := NewRedis(client, 50*time.Millisecond, time.Second, nil)
	_, err := l.Acquire(context.Background(), "OS-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRedisRefreshInterval(t *testing.T) {
	assert.Equal(t, 10*time.Second, refreshInterval(30*time.Second))
	assert.Equal(t, 10*time.Millisecond, refreshInterval(9*time.Millisecond))
}

func TestRedisKeepAliveStopsOnCancel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 5 * time.Millisecond})
	defer client.Close()
	l := NewRedis(client, 0, 15*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(ctx, "OS-1", redisKeyPrefix+"OS-1", "token")
	}()
	time.Sleep(40 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not stop after cancel")
	}
}
