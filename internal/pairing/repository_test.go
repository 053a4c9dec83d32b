package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/storage"
	"github.com/dorky-robot/salita-mesh/storage/memory"
)

func TestRepositorySaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New())
	now := time.Now()

	state := CreatePairing("TOK1", now, 5*time.Minute)
	require.NoError(t, repo.Save(ctx, state, now))

	loaded, ok, err := repo.Load(ctx, "TOK1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateTokenCreated, loaded.Name)

	require.NoError(t, repo.Delete(ctx, "TOK1"))
	_, ok, err = repo.Load(ctx, "TOK1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryLoadMissingReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New())

	_, ok, err := repo.Load(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryPurgeExpiredRemovesFailedAndExpiredOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New())
	now := time.Now()

	live := CreatePairing("LIVE", now, time.Hour)
	require.NoError(t, repo.Save(ctx, live, now))

	expired := CreatePairing("EXPIRED", now.Add(-2*time.Hour), time.Minute)
	require.NoError(t, repo.Save(ctx, expired, now.Add(-2*time.Hour)))

	failed := expired.Fail(FailureTokenExpired, "", now)
	failed.Token = "FAILED"
	require.NoError(t, repo.Save(ctx, failed, now))

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, ok, err := repo.Load(ctx, "LIVE")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = repo.Load(ctx, "EXPIRED")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryLogEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewRepository(store)
	now := time.Now()

	require.NoError(t, repo.LogEvent(ctx, "TOK1", "token_created", nil, now))
}

func TestRepositoryRegisterNodeAtomic(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewRepository(store)
	now := time.Now()

	params := storage.RegisterNodeParams{
		NodeID:           "node-1",
		Name:             "phone",
		Hostname:         "phone.local",
		Port:             8443,
		Capabilities:     []string{"posts:read"},
		SessionToken:     "sess-1",
		SessionExpiresAt: now.Add(24 * time.Hour),
		PeerToken:        "peer-1",
		PeerPermissions:  []string{"posts:read", "posts:create"},
		PeerTokenExpiry:  now.Add(30 * 24 * time.Hour),
		RegisteredAt:     now,
	}
	require.NoError(t, repo.RegisterNodeAtomic(ctx, params))

	node, err := store.GetMeshNode(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, "phone", node.Name)
}
