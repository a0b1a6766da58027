package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderfeed/internal/config"
	"go.uber.org/zap"
)

const (
	keyWriteClient = "%s:ratelimit:writes:%s"
	keyProfileLock = "%s:lock:profile:%s"
)

var (
	ErrRedisRequired = errors.New("rate_limit_requires_redis")
	ErrProfileBusy   = errors.New("profile_busy")
)

// WriteLimiter throttles document writes and serializes profile updates
// across instances. A nil *WriteLimiter allows everything.
type WriteLimiter struct {
	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger

	prefix  string
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewWriteLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, ErrRedisRequired
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, ErrInvalidRate
	}
	if log == nil {
		log = zap.NewNop()
	}

	lockTTL := time.Duration(limitCfg.LockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	prefix := strings.TrimSpace(cfg.Cache.Prefix)
	if prefix == "" {
		prefix = "orderfeed"
	}

	return &WriteLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		log:     log.Named("ratelimit.writes"),
		prefix:  prefix,
		rate:    limitCfg.WriteRate,
		burst:   limitCfg.WriteBurst,
		lockTTL: lockTTL,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil
}

func (l *WriteLimiter) AllowClient(ctx context.Context, clientID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, l.clientKey(clientID), l.rate, l.burst)
}

// WithProfileLock runs fn while holding the owner's profile lock.
func (l *WriteLimiter) WithProfileLock(ctx context.Context, owner string, fn func(context.Context) error) error {
	if !l.Enabled() {
		return fn(ctx)
	}

	lock, err := l.locker.TryLock(ctx, l.profileKey(owner), l.lockTTL)
	if err != nil {
		return err
	}
	if lock == nil {
		return ErrProfileBusy
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			l.log.Warn("profile lock release failed", zap.String("owner_id", owner), zap.Error(err))
		}
	}()

	return fn(ctx)
}

func (l *WriteLimiter) clientKey(clientID string) string {
	return fmt.Sprintf(keyWriteClient, l.prefix, strings.TrimSpace(clientID))
}

func (l *WriteLimiter) profileKey(owner string) string {
	return fmt.Sprintf(keyProfileLock, l.prefix, strings.TrimSpace(owner))
}
