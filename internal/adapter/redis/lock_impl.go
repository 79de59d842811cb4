package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLockPrefix = "doorplate:lock:"

// releaseScript deletes the lock only while this process still owns it, so a
// lock that expired and was taken over is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockRepoImpl provides a concrete implementation for the RunLockRepository interface using Redis.
type RunLockRepoImpl struct {
	client *redis.Client
	owner  string
}

// NewRunLockRepo creates a lock repository. owner is stored as the lock value
// so operators can see which process holds a lock.
func NewRunLockRepo(client *redis.Client, owner string) *RunLockRepoImpl {
	return &RunLockRepoImpl{client: client, owner: owner}
}

func (r *RunLockRepoImpl) generateKey(key string) string {
	return fmt.Sprintf("%s%s", runLockPrefix, key)
}

// Acquire sets the lock key only if it does not exist yet.
func (r *RunLockRepoImpl) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.generateKey(key), r.owner, ttl).Result()
}

// Release deletes the lock key if this owner still holds it.
func (r *RunLockRepoImpl) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, r.client, []string{r.generateKey(key)}, r.owner).Err()
}
