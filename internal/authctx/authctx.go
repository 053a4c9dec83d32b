// Package authctx attaches and reads the per-request authentication
// facts every handler downstream of server/middleware.go needs: the
// classified origin, the current owner (if a valid session cookie or
// bearer token was presented), and the current peer node (if a valid
// peer bearer token was presented). Grounded on the Rust daemon's
// auth/request_context.rs extractor pattern, adapted to context.Context
// values the way dex's own request-scoped data rides along ctx rather
// than through a custom extractor trait.
package authctx

import (
	"context"

	"github.com/dorky-robot/salita-mesh/internal/origin"
	"github.com/dorky-robot/salita-mesh/internal/peertoken"
	"github.com/dorky-robot/salita-mesh/storage"
)

type contextKey string

const (
	originKey contextKey = "salita.origin"
	userKey   contextKey = "salita.user"
	peerKey   contextKey = "salita.peer"
)

// WithOrigin attaches the classified request origin to ctx.
func WithOrigin(ctx context.Context, o origin.Origin) context.Context {
	return context.WithValue(ctx, originKey, o)
}

// Origin returns the classified origin attached to ctx, defaulting to
// External if none was attached (fail closed).
func Origin(ctx context.Context) origin.Origin {
	o, ok := ctx.Value(originKey).(origin.Origin)
	if !ok {
		return origin.External
	}
	return o
}

// WithUser attaches the authenticated owner to ctx.
func WithUser(ctx context.Context, u storage.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// CurrentUser returns the authenticated owner attached to ctx, if any.
func CurrentUser(ctx context.Context) (storage.User, bool) {
	u, ok := ctx.Value(userKey).(storage.User)
	return u, ok
}

// WithPeer attaches the authenticated peer node to ctx.
func WithPeer(ctx context.Context, p peertoken.Peer) context.Context {
	return context.WithValue(ctx, peerKey, p)
}

// CurrentPeer returns the authenticated peer node attached to ctx, if
// any.
func CurrentPeer(ctx context.Context) (peertoken.Peer, bool) {
	p, ok := ctx.Value(peerKey).(peertoken.Peer)
	return p, ok
}
