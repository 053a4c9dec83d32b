package sql

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/pkg/log"
	"github.com/dorky-robot/salita-mesh/storage"
)

func testConn(t *testing.T) *conn {
	t.Helper()
	logger := log.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := Config{File: ":memory:"}.Open(logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMigrateIsIdempotent(t *testing.T) {
	c := testConn(t)
	require.NoError(t, c.migrate())
}

func TestUserCreateGet(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)

	u := storage.User{ID: "u1", Username: "owner", CreatedAt: time.Now()}
	require.NoError(t, c.CreateUser(ctx, u))
	require.ErrorIs(t, c.CreateUser(ctx, u), storage.ErrAlreadyExists)

	got, err := c.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "owner", got.Username)

	_, err = c.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMeshNodeUpsertAndList(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	n := storage.MeshNode{
		ID: "n1", Name: "kitchen-pi", Hostname: "kitchen.local", Port: 8443,
		Status: storage.NodeOffline, Capabilities: []string{"posts", "media"},
		LastSeen: now, CreatedAt: now,
	}
	require.NoError(t, c.UpsertMeshNode(ctx, n))

	got, err := c.GetMeshNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "media"}, got.Capabilities)

	n.Name = "kitchen-pi-renamed"
	require.NoError(t, c.UpsertMeshNode(ctx, n))
	got, err = c.GetMeshNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "kitchen-pi-renamed", got.Name)

	nodes, err := c.ListMeshNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestRegisterNodeAtomicCommitsAllThreeTables(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	params := storage.RegisterNodeParams{
		NodeID:           "n1",
		Name:             "bedroom-pi",
		Hostname:         "bedroom.local",
		Port:             8443,
		Capabilities:     []string{"posts"},
		SessionToken:     "sess-1",
		SessionExpiresAt: now.Add(24 * time.Hour),
		PeerToken:        "peer-1",
		PeerPermissions:  []string{"posts:read", "posts:create"},
		PeerTokenExpiry:  now.Add(30 * 24 * time.Hour),
		RegisteredAt:     now,
	}
	require.NoError(t, c.RegisterNodeAtomic(ctx, params))

	node, err := c.GetMeshNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "bedroom-pi", node.Name)

	tok, err := c.GetIssuedToken(ctx, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, "n1", tok.IssuedToNodeID)
	assert.Equal(t, params.PeerPermissions, tok.Permissions)

	var deviceSessionCount int
	row := c.db.QueryRowContext(ctx, `select count(*) from device_sessions where session_token = ?`, "sess-1")
	require.NoError(t, row.Scan(&deviceSessionCount))
	assert.Equal(t, 1, deviceSessionCount)
}

func TestIssuedTokenRevokeRenew(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	require.NoError(t, c.IssuePeerToken(ctx, storage.IssuedToken{
		Token: "tok-1", IssuedToNodeID: "n1", Permissions: []string{"posts:read"}, ExpiresAt: now.Add(30 * 24 * time.Hour),
	}))

	newExpiry := now.Add(60 * 24 * time.Hour)
	require.NoError(t, c.RenewIssuedToken(ctx, "tok-1", newExpiry, now))
	got, err := c.GetIssuedToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.WithinDuration(t, newExpiry, got.ExpiresAt, time.Second)

	require.NoError(t, c.RevokeIssuedToken(ctx, "tok-1", now))
	got, err = c.GetIssuedToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)

	assert.ErrorIs(t, c.RevokeIssuedToken(ctx, "missing", now), storage.ErrNotFound)
}

func TestPeerTokenUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	require.NoError(t, c.UpsertPeerToken(ctx, storage.PeerToken{PeerNodeID: "n1", Token: "a", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, c.UpsertPeerToken(ctx, storage.PeerToken{PeerNodeID: "n1", Token: "b", ExpiresAt: now.Add(2 * time.Hour)}))

	got, err := c.GetPeerToken(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Token)
}

func TestGarbageCollectSweepsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	require.NoError(t, c.CreateSession(ctx, storage.Session{ID: "s-expired", Token: "expired", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, c.CreateSession(ctx, storage.Session{ID: "s-live", Token: "live", ExpiresAt: now.Add(time.Hour)}))

	result, err := c.GarbageCollect(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Sessions)

	_, err = c.GetSession(ctx, "expired")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPairingStateSaveIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	now := time.Now()

	rec := storage.PairingStateRecord{Token: "tok", StateJSON: []byte(`{"state":"token_created"}`), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, c.SavePairingState(ctx, rec))

	updated := rec
	updated.StateJSON = []byte(`{"state":"device_connected"}`)
	updated.UpdatedAt = now.Add(time.Second)
	require.NoError(t, c.SavePairingState(ctx, updated))

	got, err := c.GetPairingState(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, updated.StateJSON, got.StateJSON)
}
