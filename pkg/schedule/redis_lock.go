package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLockProvider implements LockProvider using Redis SETNX with an owner
// token, so an expired lock re-acquired elsewhere is never released here.
type RedisLockProvider struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLockProvider(client *redis.Client, prefix string) *RedisLockProvider {
	return &RedisLockProvider{
		client: client,
		prefix: prefix,
		tokens: make(map[string]string),
	}
}

func (r *RedisLockProvider) key(name string) string {
	return r.prefix + "schedule_lock:" + name
}

func (r *RedisLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(name), token, duration).Result()
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	r.tokens[name] = token
	r.mu.Unlock()
	return true, nil
}

func (r *RedisLockProvider) ReleaseLock(ctx context.Context, name string) error {
	r.mu.Lock()
	token, ok := r.tokens[name]
	delete(r.tokens, name)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, r.client, []string{r.key(name)}, token).Err()
}
