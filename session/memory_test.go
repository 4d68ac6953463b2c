package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaykit/relay/types"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "sales", sess.ActiveAgent)
	assert.Empty(t, sess.Messages)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "sales", got.ActiveAgent)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())

	_, err := store.Get(context.Background(), "sess_missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestMemoryStore_AppendMessagePreservesHistory(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("hello")))
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewAssistantMessage("sales", "hi there")))
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("payment problem")))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "hi there", got.Messages[1].Content)
	assert.Equal(t, "sales", got.Messages[1].Agent)
	assert.Equal(t, "payment problem", got.Messages[2].Content)
}

func TestMemoryStore_SetActiveAgent(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("payment problem")))

	require.NoError(t, store.SetActiveAgent(ctx, sess.ID, "billing"))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", got.ActiveAgent)
	// Handoff never touches history.
	require.Len(t, got.Messages, 1)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	sess, err := store.Create(ctx, "sales")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, sess.ID, types.NewUserMessage("hello")))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"
	got.ActiveAgent = "mutated"

	fresh, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", fresh.Messages[0].Content)
	assert.Equal(t, "sales", fresh.ActiveAgent)
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
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

	err = store.Delete(ctx, a.ID)
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}
