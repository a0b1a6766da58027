package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrEmptyLockKey   = errors.New("lock_key_empty")
	ErrInvalidLockTTL = errors.New("lock_ttl_invalid")
)

// Deletes the key only while it still holds the caller's token.
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out short-lived Redis locks keyed by name.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

// Lock is a held lock. It expires on its own after the TTL.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(lockReleaseScript)}
}

// TryLock returns a nil Lock when someone else holds key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, ErrNotConfigured
	case key == "":
		return nil, ErrEmptyLockKey
	case ttl <= 0:
		return nil, ErrInvalidLockTTL
	}

	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !acquired {
		return nil, err
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

func (k *Lock) Release(ctx context.Context) error {
	if k == nil {
		return nil
	}
	return k.locker.release.Run(ctx, k.locker.client, []string{k.key}, k.token).Err()
}
