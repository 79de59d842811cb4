package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/doorplate-crawler/internal/entity"
)

func TestKeys(t *testing.T) {
	l := NewRunLockRepo(nil, "host-1")
	assert.Equal(t, "doorplate:lock:crawl:63000000", l.generateKey("crawl:63000000"))
	assert.Equal(t, "doorplate:jobs:status:abc", statusKey("abc"))
}

// Operations against an unreachable server surface the dial error instead of
// being mistaken for an empty queue or a missing job.
func TestUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	q := NewQueueRepo(client)
	job, err := q.Pop(ctx)
	require.Error(t, err)
	assert.Nil(t, job)

	_, err = q.GetStatus(ctx, "missing")
	require.Error(t, err)

	err = q.Push(ctx, &entity.BatchJob{ID: "j1"})
	require.Error(t, err)

	ok, err := NewRunLockRepo(client, "host-1").Acquire(ctx, "crawl:63000000", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
}
