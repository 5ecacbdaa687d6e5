package data

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mandate-service/internal/conf"
	"mandate-service/internal/constants"
	mandateErrors "mandate-service/internal/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestLocker_SweepLockIsExclusive(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewLocker(NewRedsync(rdb), &conf.Bootstrap{}, log.DefaultLogger)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, constants.RedisKeySweepLock)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, constants.RedisKeySweepLock)
	require.Error(t, err)
	assert.True(t, mandateErrors.IsRetryable(err))

	unlock()
	unlock2, err := locker.Lock(ctx, constants.RedisKeySweepLock)
	require.NoError(t, err)
	unlock2()
}

func TestLocker_OrderLockSerializes(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewLocker(NewRedsync(rdb), &conf.Bootstrap{}, log.DefaultLogger)
	key := constants.RedisKeyOrderLock + "42"

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_DifferentOrdersDoNotBlock(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewLocker(NewRedsync(rdb), &conf.Bootstrap{}, log.DefaultLogger)
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, constants.RedisKeyOrderLock+"1")
	require.NoError(t, err)
	defer unlock1()

	unlock2, err := locker.Lock(ctx, constants.RedisKeyOrderLock+"2")
	require.NoError(t, err)
	unlock2()
}

func TestNewLocker_Expiry(t *testing.T) {
	c := &conf.Bootstrap{
		Twikey: &conf.Twikey{Timeout: conf.Duration{Duration: time.Minute}},
		Cron:   &conf.Cron{SweepTimeout: conf.Duration{Duration: 20 * time.Minute}},
	}
	l := NewLocker(nil, c, log.DefaultLogger).(*redisLocker)
	assert.Equal(t, 2*time.Minute, l.orderExpiry)
	assert.Equal(t, 20*time.Minute, l.sweepExpiry)

	l = NewLocker(nil, &conf.Bootstrap{}, log.DefaultLogger).(*redisLocker)
	assert.Equal(t, minOrderLockExpiry, l.orderExpiry)
	assert.Equal(t, conf.DefaultSweepTimeout, l.sweepExpiry)
}
