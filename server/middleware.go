package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dorky-robot/salita-mesh/internal/authctx"
	"github.com/dorky-robot/salita-mesh/internal/logging"
	"github.com/dorky-robot/salita-mesh/internal/origin"
	"github.com/dorky-robot/salita-mesh/storage"
)

const sessionCookieName = "salita_session"

// withAuthContext derives the three per-request auth facts (Origin,
// CurrentUser, PeerNode) and attaches them via internal/authctx, the way
// dex's auth_middleware.go resolves a client from the Authorization
// header before a handler ever runs.
func (s *Server) withAuthContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := s.now()
		ctx := r.Context()

		o := origin.ClassifyAddr(r.RemoteAddr)
		ctx = authctx.WithOrigin(ctx, o)

		ctx = logging.WithRequest(ctx, r.RemoteAddr, uuid.NewString())

		if o == origin.Localhost && s.localhostBypass {
			ctx = authctx.WithUser(ctx, storage.User{ID: "localhost", IsAdmin: true})
		} else if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if sess, err := s.sessions.Verify(ctx, cookie.Value, now); err == nil {
				if user, err := s.db.GetUser(ctx, sess.UserID); err == nil {
					ctx = authctx.WithUser(ctx, user)
				}
			}
		}

		if token := bearerToken(r); token != "" {
			if peer, err := s.peerTokens.Verify(ctx, token, now); err == nil {
				ctx = authctx.WithPeer(ctx, peer)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// requireOwner rejects requests with no authenticated owner attached.
func requireOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authctx.CurrentUser(r.Context()); !ok {
			writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "authentication required"))
			return
		}
		next(w, r)
	}
}

// originGate enforces the per-endpoint origin policy: some handlers deny
// External entirely, some deny Lan too. allowed lists the origins
// permitted to reach the wrapped handler.
func originGate(allowed ...origin.Origin) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			o := authctx.Origin(r.Context())
			for _, a := range allowed {
				if o == a {
					next(w, r)
					return
				}
			}
			writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "origin not permitted for this endpoint"))
		}
	}
}

// requireAuthenticated rejects requests that carry neither an owner
// session nor a verified peer token, for read surfaces any authenticated
// caller may use, not just the owner.
func requireAuthenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, hasUser := authctx.CurrentUser(r.Context())
		_, hasPeer := authctx.CurrentPeer(r.Context())
		if !hasUser && !hasPeer {
			writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "authentication required"))
			return
		}
		next(w, r)
	}
}

// requirePeerPermission rejects requests whose peer token (if any) lacks
// the named permission. A request with no peer attached at all is left
// to the handler, which may allow owner-session auth instead.
func requirePeerPermission(permission string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			peer, ok := authctx.CurrentPeer(r.Context())
			if ok && !peer.Has(permission) {
				writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "peer lacks required permission"))
				return
			}
			next(w, r)
		}
	}
}
