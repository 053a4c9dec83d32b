// Package server implements the HTTP surface for first-owner setup and
// login via WebAuthn, QR+PIN device pairing, and the peer-token-gated
// mesh surface, the request pipeline (handler wrapping, mux routing,
// CORS, prometheus instrumentation) generalized from an OAuth2 issuer's
// shape to this module's opaque-bearer-token domain.
package server

import (
	"context"
	"net/http"
	"path"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dorky-robot/salita-mesh/internal/audit"
	"github.com/dorky-robot/salita-mesh/internal/jointoken"
	"github.com/dorky-robot/salita-mesh/internal/linking"
	"github.com/dorky-robot/salita-mesh/internal/origin"
	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/internal/passkey"
	"github.com/dorky-robot/salita-mesh/internal/peertoken"
	"github.com/dorky-robot/salita-mesh/internal/session"
	"github.com/dorky-robot/salita-mesh/pkg/log"
	"github.com/dorky-robot/salita-mesh/storage"
)

// Config holds everything NewServer needs to wire the HTTP surface,
// mirroring dex's server.Config shape (storage, Now, logger, CORS,
// prometheus registry, health checker) trimmed of every OAuth2/connector
// field this domain has no use for.
type Config struct {
	Storage storage.Storage

	SessionTTL      time.Duration
	LocalhostBypass bool

	AllowedOrigins []string
	AllowedHeaders []string

	Logger             log.Logger
	Now                func() time.Time
	PrometheusRegistry *prometheus.Registry
	HealthChecker      gosundheit.Health

	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// Server is the top-level HTTP handler.
type Server struct {
	db     storage.Storage
	logger log.Logger
	now    func() time.Time

	localhostBypass bool
	allowedOrigins  []string
	allowedHeaders  []string

	sessions    *session.Store
	peerTokens  *peertoken.Service
	joinTokens  *jointoken.Store
	pairingRepo *pairing.Repository
	passkeys    *passkey.Service
	linkCodes   *linking.Store
	audit       *audit.Logger

	sessionTTL time.Duration
	metrics    *metrics
	health     gosundheit.Health

	router *mux.Router
}

// NewServer builds the wired HTTP handler. It does not listen; callers
// (cmd/salitad) bind it to a net.Listener, the same split dex's
// server.NewServer / cmd/dex/serve.go keep.
func NewServer(ctx context.Context, c Config) (*Server, error) {
	now := c.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	passkeys, err := passkey.New(c.RPID, c.RPDisplayName, c.RPOrigins, c.Storage)
	if err != nil {
		return nil, err
	}

	sessionTTL := c.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = 720 * time.Hour
	}

	s := &Server{
		db:              c.Storage,
		logger:          c.Logger,
		now:             now,
		localhostBypass: c.LocalhostBypass,
		allowedOrigins:  c.AllowedOrigins,
		allowedHeaders:  c.AllowedHeaders,
		sessions:        session.New(c.Storage),
		peerTokens:      peertoken.New(c.Storage),
		joinTokens:      jointoken.New(),
		pairingRepo:     pairing.NewRepository(c.Storage),
		passkeys:        passkeys,
		linkCodes:       linking.New(),
		audit:           audit.New(c.Storage, c.Logger),
		sessionTTL:      sessionTTL,
		metrics:         newMetrics(c.PrometheusRegistry),
		health:          c.HealthChecker,
	}

	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()

	withCORS := func(h http.HandlerFunc) http.HandlerFunc {
		var handler http.Handler = h
		if len(s.allowedOrigins) > 0 {
			cors := handlers.CORS(
				handlers.AllowedOrigins(s.allowedOrigins),
				handlers.AllowedHeaders(s.allowedHeaders),
			)
			handler = cors(handler)
		}
		return handler.ServeHTTP
	}

	handle := func(p string, method string, handlerName string, h http.HandlerFunc) {
		instrumented := s.metrics.instrument(handlerName, withCORS(h))
		r.Handle(path.Join("/", p), s.withAuthContext(instrumented)).Methods(method)
	}

	// Setup and login.
	handle("/auth/setup", http.MethodGet, "setup_page", s.handleSetupPage)
	handle("/auth/setup/start", http.MethodPost, "setup_start", s.handleSetupStart)
	handle("/auth/setup/finish", http.MethodPost, "setup_finish", s.handleSetupFinish)
	handle("/auth/login", http.MethodGet, "login_page", s.handleLoginPage)
	handle("/auth/login/start", http.MethodPost, "login_start", s.handleLoginStart)
	handle("/auth/login/finish", http.MethodPost, "login_finish", s.handleLoginFinish)
	handle("/auth/logout", http.MethodPost, "logout", s.handleLogout)
	handle("/auth/context", http.MethodGet, "context", s.handleContext)

	// Pairing.
	handle("/auth/pair/start", http.MethodPost, "pair_start",
		originGate(origin.Localhost, origin.Lan)(requireOwner(s.handlePairStart)))
	handle("/auth/pair/connect", http.MethodPost, "pair_connect",
		originGate(origin.Localhost, origin.Lan)(s.handlePairConnect))
	handle("/auth/pair/verify", http.MethodPost, "pair_verify",
		originGate(origin.Localhost, origin.Lan)(s.handlePairVerify))
	handle("/auth/pair/status", http.MethodGet, "pair_status", s.handlePairStatus)

	// Read endpoint any authenticated caller (owner session or peer
	// token) can use to discover the rest of the mesh.
	handle("/mesh/nodes", http.MethodGet, "mesh_nodes", requireAuthenticated(s.handleListMeshNodes))

	handle("/healthz", http.MethodGet, "healthz", s.handleHealthz)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, newAPIError(errorNotFound, "not found"))
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy() {
		writeAPIError(w, http.StatusServiceUnavailable, newAPIError(errorServerError, "unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
