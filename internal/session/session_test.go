package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/storage/memory"
)

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	store := New(memory.New())
	now := time.Now()

	sess, err := store.Issue(ctx, "u1", now, time.Hour)
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)

	got, err := store.Verify(ctx, sess.Token, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestVerifyExpired(t *testing.T) {
	ctx := context.Background()
	store := New(memory.New())
	now := time.Now()

	sess, err := store.Issue(ctx, "u1", now, time.Minute)
	require.NoError(t, err)

	_, err = store.Verify(ctx, sess.Token, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyUnknownToken(t *testing.T) {
	ctx := context.Background()
	store := New(memory.New())

	_, err := store.Verify(ctx, "does-not-exist", time.Now())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	store := New(memory.New())
	now := time.Now()

	sess, err := store.Issue(ctx, "u1", now, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, sess.Token))
	_, err = store.Verify(ctx, sess.Token, now)
	assert.ErrorIs(t, err, ErrInvalid)
}
