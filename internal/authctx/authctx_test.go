package authctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dorky-robot/salita-mesh/internal/origin"
	"github.com/dorky-robot/salita-mesh/internal/peertoken"
	"github.com/dorky-robot/salita-mesh/storage"
)

func TestOriginDefaultsToExternal(t *testing.T) {
	assert.Equal(t, origin.External, Origin(context.Background()))
}

func TestOriginRoundTrip(t *testing.T) {
	ctx := WithOrigin(context.Background(), origin.Lan)
	assert.Equal(t, origin.Lan, Origin(ctx))
}

func TestCurrentUserRoundTrip(t *testing.T) {
	_, ok := CurrentUser(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), storage.User{ID: "u1"})
	u, ok := CurrentUser(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", u.ID)
}

func TestCurrentPeerRoundTrip(t *testing.T) {
	_, ok := CurrentPeer(context.Background())
	assert.False(t, ok)

	ctx := WithPeer(context.Background(), peertoken.Peer{NodeID: "n1"})
	p, ok := CurrentPeer(ctx)
	assert.True(t, ok)
	assert.Equal(t, "n1", p.NodeID)
}
