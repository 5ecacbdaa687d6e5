package data

import (
	"context"
	"time"

	"mandate-service/internal/biz"
	"mandate-service/internal/conf"
	"mandate-service/internal/constants"
	mandateErrors "mandate-service/internal/errors"
	"mandate-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// 订单锁需覆盖一次完整的扣款提交（读订单 + 服务商请求 + 写状态）
const minOrderLockExpiry = 30 * time.Second

// redisLocker 基于 redsync 的分布式锁（实现 biz.Locker）
type redisLocker struct {
	sync        *redsync.Redsync
	orderExpiry time.Duration
	sweepExpiry time.Duration
	log         *log.Helper
	metrics     *metrics.MandateMetrics
}

// NewLocker 创建分布式锁
func NewLocker(rs *redsync.Redsync, c *conf.Bootstrap, logger log.Logger) biz.Locker {
	orderExpiry := minOrderLockExpiry
	sweepExpiry := conf.DefaultSweepTimeout
	if c.Twikey != nil && 2*c.Twikey.Timeout.AsDuration() > orderExpiry {
		orderExpiry = 2 * c.Twikey.Timeout.AsDuration()
	}
	if c.Cron != nil && c.Cron.SweepTimeout.AsDuration() > 0 {
		sweepExpiry = c.Cron.SweepTimeout.AsDuration()
	}
	return &redisLocker{
		sync:        rs,
		orderExpiry: orderExpiry,
		sweepExpiry: sweepExpiry,
		log:         log.NewHelper(logger),
		metrics:     metrics.GetMetrics(),
	}
}

// Lock 获取锁
// 对账锁只尝试一次：其他实例正在对账时直接跳过本轮
func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	options := []redsync.Option{redsync.WithExpiry(l.orderExpiry)}
	if key == constants.RedisKeySweepLock {
		options = []redsync.Option{redsync.WithExpiry(l.sweepExpiry), redsync.WithTries(1)}
	}

	lockStartTime := time.Now()
	mutex := l.sync.NewMutex(key, options...)
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Warnf("Failed to acquire lock: key=%s, error=%v", key, err)
		l.metrics.LockAcquireTotal.WithLabelValues(constants.ResultFailed).Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		return nil, mandateErrors.LockUnavailable(key, err)
	}
	l.metrics.LockAcquireTotal.WithLabelValues(constants.ResultSuccess).Inc()
	l.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())

	return func() {
		// 解锁不使用请求 ctx，请求取消后仍需释放
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			l.log.Warnf("Failed to unlock: key=%s, error=%v", key, err)
		}
	}, nil
}
