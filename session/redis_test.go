package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaykit/relay/types"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "relay:", ttl, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	_, store := setupRedisStore(t, 0)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("hello")))
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewAssistantMessage("sales", "hi")))
	require.NoError(t, store.SetActiveAgent(ctx, sess.ID, "billing"))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", got.ActiveAgent)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
}

func TestRedisStore_ConcurrentAppendsKeepAllTurns(t *testing.T) {
	_, store := setupRedisStore(t, 0)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)

	// Simultaneous writers, as happens when multiple instances serve the
	// same session. Every append must survive: history is append-only and
	// a lost turn is silent data loss.
	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			msg := types.NewUserMessage(fmt.Sprintf("turn %d", n))
			assert.NoError(t, store.AppendMessage(ctx, sess.ID, msg))
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, writers)

	seen := make(map[string]bool, writers)
	for _, msg := range got.Messages {
		seen[msg.Content] = true
	}
	assert.Len(t, seen, writers)
}

func TestRedisStore_NotFound(t *testing.T) {
	_, store := setupRedisStore(t, 0)
	ctx := context.Background()

	_, err := store.Get(ctx, "sess_missing")
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))

	err = store.AppendMessage(ctx, "sess_missing", types.NewUserMessage("x"))
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))

	err = store.Delete(ctx, "sess_missing")
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestRedisStore_TTLRefreshedOnWrite(t *testing.T) {
	mr, store := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("still here")))

	// The append reset the expiry, so the session survives past the
	// original deadline.
	mr.FastForward(45 * time.Second)
	_, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)

	mr.FastForward(time.Hour)
	_, err = store.Get(ctx, sess.ID)
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestRedisStore_List(t *testing.T) {
	_, store := setupRedisStore(t, 0)
	ctx := context.Background()

	a, err := store.Create(ctx, "sales")
	require.NoError(t, err)
	b, err := store.Create(ctx, "billing")
	require.NoError(t, err)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, store.Delete(ctx, a.ID))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
}

func TestRedisStore_StoreUnavailable(t *testing.T) {
	mr, store := setupRedisStore(t, 0)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)

	mr.Close()

	_, err = store.Get(ctx, sess.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
