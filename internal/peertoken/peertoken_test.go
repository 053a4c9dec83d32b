package peertoken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/storage/memory"
)

func TestIssueDefaultsPermissions(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New())
	now := time.Now()

	token, err := svc.Issue(ctx, "node-1", nil, now)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	peer, err := svc.Verify(ctx, token, now)
	require.NoError(t, err)
	assert.Equal(t, DefaultPermissions, peer.Permissions)
	assert.NotContains(t, peer.Permissions, "admin:all")
	assert.True(t, peer.Has("posts:read"))
	assert.False(t, peer.Has("admin:all"))
}

func TestVerifyRejectsRevoked(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New())
	now := time.Now()

	token, err := svc.Issue(ctx, "node-1", nil, now)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, token, now))

	_, err = svc.Verify(ctx, token, now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyWithinGracePeriodSucceeds(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New())
	now := time.Now()

	// Expired two minutes ago, well inside the five-minute grace period.
	token, err := svc.Issue(ctx, "node-1", nil, now.Add(-(renewTTL + 2*time.Minute)))
	require.NoError(t, err)

	_, err = svc.Verify(ctx, token, now)
	require.NoError(t, err)
}

func TestVerifyPastGracePeriodFails(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New())
	now := time.Now()

	token, err := svc.Issue(ctx, "node-1", nil, now.Add(-40*24*time.Hour))
	require.NoError(t, err)

	_, err = svc.Verify(ctx, token, now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyAutoRenewsNearExpiry(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store)
	now := time.Now()

	token, err := svc.Issue(ctx, "node-1", nil, now.Add(-(renewTTL - 24*time.Hour)))
	require.NoError(t, err)

	before, err := store.GetIssuedToken(ctx, token)
	require.NoError(t, err)
	require.True(t, before.ExpiresAt.Before(now.Add(renewThreshold)))

	_, err = svc.Verify(ctx, token, now)
	require.NoError(t, err)

	after, err := store.GetIssuedToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, after.ExpiresAt.After(now.Add(renewThreshold)), "token should have been pushed well past the renew threshold")
	require.NotNil(t, after.LastUsedAt)
}

func TestVerifyUnknownToken(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New())
	_, err := svc.Verify(ctx, "nope", time.Now())
	assert.ErrorIs(t, err, ErrInvalid)
}
