package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out short exclusive leases keyed by player. A lease that is
// never released expires after the locker's TTL.
type Locker interface {
	// TryLock does not wait: ok is false when someone else holds key.
	TryLock(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error)
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]lease
	ttl  time.Duration
	now  func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{held: map[string]lease{}, ttl: ttl, now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	tok := newToken()
	l.held[key] = lease{token: tok, expires: now.Add(l.ttl)}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == tok {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	k := l.prefix + key
	tok := newToken()
	ok, err := l.client.SetNX(ctx, k, tok, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{k}, tok).Err(); err != nil {
			return fmt.Errorf("redis release %s: %w", k, err)
		}
		return nil
	}, true, nil
}
