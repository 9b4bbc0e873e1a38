package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultRedisLockTTL   = 10 * time.Second
	defaultRedisLockRetry = 25 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockerConfig configures a Locker shared by every process pointing at one Redis.
type RedisLockerConfig struct {
	Client        redis.UniversalClient
	TTL           time.Duration
	RetryInterval time.Duration
}

// RedisLocker serializes check-ins across processes with SET NX and a token-checked release.
// While a holder is alive its key is re-armed every TTL/3, so slow store calls keep the lock;
// the TTL only bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker validates the configuration and applies defaults.
func NewRedisLocker(cfg RedisLockerConfig) (*RedisLocker, error) {
	if cfg.Client == nil {
		return nil, errors.New("attendance: redis client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRedisLockTTL
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = defaultRedisLockRetry
	}
	return &RedisLocker{client: cfg.Client, ttl: ttl, retry: retry}, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	refreshed := make(chan struct{})
	go l.keepAlive(key, token, stop, refreshed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-refreshed
			releaseCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}

// keepAlive re-arms the key while it still carries token. A lost key is not re-acquired.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			kept, err := refreshScript.Run(refreshCtx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && kept == 0 {
				return
			}
		}
	}
}
