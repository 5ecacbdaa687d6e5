package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"mandate-service/internal/biz"
	"mandate-service/internal/conf"
	"mandate-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
)

// TokenCache 授权令牌缓存
// 默认关闭（每组操作重新授权）；开启后令牌在 auth_token_ttl 内复用
type TokenCache struct {
	rdb     *redis.Client
	key     string
	ttl     time.Duration
	enabled bool
	log     *log.Helper
}

// NewTokenCache 创建授权令牌缓存
func NewTokenCache(data *Data, c *conf.Bootstrap, logger log.Logger) *TokenCache {
	tc := &TokenCache{log: log.NewHelper(logger)}
	if c.Twikey == nil || !c.Twikey.CacheAuthToken || data == nil || data.rdb == nil {
		return tc
	}

	// key 按 api token 区分账户，不在 redis 中保存 api token 本身
	sum := sha256.Sum256([]byte(c.Twikey.ApiToken))
	tc.rdb = data.rdb
	tc.key = constants.RedisKeyAuthToken + hex.EncodeToString(sum[:8])
	tc.ttl = c.Twikey.AuthTokenTtl.AsDuration()
	if tc.ttl <= 0 {
		tc.ttl = conf.DefaultAuthTokenTtl
	}
	tc.enabled = true
	return tc
}

// Enabled 是否开启缓存
func (tc *TokenCache) Enabled() bool {
	return tc != nil && tc.enabled
}

// Get 读取缓存的令牌，未命中返回 nil
func (tc *TokenCache) Get(ctx context.Context) *biz.AuthToken {
	if !tc.Enabled() {
		return nil
	}
	value, err := tc.rdb.Get(ctx, tc.key).Result()
	if err != nil {
		if err != redis.Nil {
			tc.log.Warnf("read auth token cache failed: %v", err)
		}
		return nil
	}
	ttl, err := tc.rdb.TTL(ctx, tc.key).Result()
	if err != nil || ttl <= 0 {
		return nil
	}
	return &biz.AuthToken{Value: value, ExpiresAt: time.Now().Add(ttl)}
}

// Set 缓存令牌（有效期取配置 TTL 与令牌剩余有效期的较小值）
func (tc *TokenCache) Set(ctx context.Context, token *biz.AuthToken) {
	if !tc.Enabled() || token == nil || token.Value == "" {
		return
	}
	ttl := tc.ttl
	if !token.ExpiresAt.IsZero() {
		if remaining := time.Until(token.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	if err := tc.rdb.Set(ctx, tc.key, token.Value, ttl).Err(); err != nil {
		tc.log.Warnf("write auth token cache failed: %v", err)
	}
}

// Invalidate 删除缓存的令牌（服务商拒绝令牌时调用）
func (tc *TokenCache) Invalidate(ctx context.Context) {
	if !tc.Enabled() {
		return
	}
	if err := tc.rdb.Del(ctx, tc.key).Err(); err != nil {
		tc.log.Warnf("invalidate auth token cache failed: %v", err)
	}
}
