package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/authctx"
	"github.com/dorky-robot/salita-mesh/internal/jointoken"
	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/internal/peertoken"
	pkghttp "github.com/dorky-robot/salita-mesh/pkg/http"
	"github.com/dorky-robot/salita-mesh/storage"
)

// handlePairStart begins a pairing attempt: the owner mints a join
// token and the initial TokenCreated pairing state, returning the QR
// payload a second device will scan. Owner-only, and Localhost/LAN
// only: an external caller must be denied regardless of session, so a
// session cookie obtained over the internet can never reach this
// endpoint.
func (s *Server) handlePairStart(w http.ResponseWriter, r *http.Request) {
	user, _ := authctx.CurrentUser(r.Context())
	now := s.now()

	token := s.joinTokens.Generate(user.ID, now)
	state := pairing.CreatePairing(token, now, jointoken.TTL)
	if err := s.pairingRepo.Save(r.Context(), state, now); err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	s.audit.Event(r.Context(), token, "created", nil, now)
	s.metrics.recordPairingTransition(string(state.Name))

	qrURL := pkghttp.MergeQuery(url.URL{Path: "/auth/pair/connect"}, url.Values{"token": {token}})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"qrUrl":     qrURL.String(),
		"expiresAt": state.ExpiresAt,
	})
}

type pairConnectRequest struct {
	Token        string `json:"token"`
	DeviceNodeID string `json:"deviceNodeId"`
}

// handlePairConnect transitions TokenCreated -> DeviceConnected,
// generating the PIN the owner reads off the first device's screen and
// types into the second. Localhost/LAN only: an external caller has no
// business claiming a join token it didn't print itself.
func (s *Server) handlePairConnect(w http.ResponseWriter, r *http.Request) {
	var req pairConnectRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "malformed request body"))
		return
	}

	now := s.now()
	ctx := r.Context()

	state, ok, err := s.pairingRepo.Load(ctx, req.Token)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, newAPIError(errorNotFound, "unknown pairing token"))
		return
	}

	next, plaintext, err := state.ConnectDevice(remoteIP(r), now)
	if err != nil {
		s.failPairing(ctx, state, err, now)
		writeError(w, s.logErrorf, err)
		return
	}
	_, _ = s.joinTokens.Claim(req.Token, remoteIP(r), now)
	if req.DeviceNodeID != "" {
		next, err = next.SetDeviceNodeID(req.DeviceNodeID)
		if err != nil {
			writeError(w, s.logErrorf, err)
			return
		}
	}

	if err := s.pairingRepo.Save(ctx, next, now); err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	s.audit.Event(ctx, req.Token, "connected", map[string]string{"ip": remoteIP(r)}, now)
	s.metrics.recordPairingTransition(string(next.Name))

	writeJSON(w, http.StatusOK, map[string]string{"pin": plaintext})
}

type pairVerifyRequest struct {
	Token          string `json:"token"`
	Pin            string `json:"pin"`
	DeviceNodeID   string `json:"deviceNodeId"`
	DeviceName     string `json:"deviceName"`
	DeviceHostname string `json:"deviceHostname"`
	DevicePort     int    `json:"devicePort"`
}

// handlePairVerify checks the PIN, then atomically registers the
// device: mesh node row, device session, and the peer token the new
// node will present on every subsequent mesh request. Localhost/LAN
// only, matching handlePairConnect's gate.
func (s *Server) handlePairVerify(w http.ResponseWriter, r *http.Request) {
	var req pairVerifyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "malformed request body"))
		return
	}

	now := s.now()
	ctx := r.Context()

	state, ok, err := s.pairingRepo.Load(ctx, req.Token)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, newAPIError(errorNotFound, "unknown pairing token"))
		return
	}

	if req.DeviceNodeID != "" && state.DeviceNodeID == "" {
		state, err = state.SetDeviceNodeID(req.DeviceNodeID)
		if err != nil {
			writeError(w, s.logErrorf, err)
			return
		}
	}

	sessionToken := pairing.GenerateBearerToken()
	verified, err := state.VerifyPin(req.Pin, sessionToken, now)
	if err != nil {
		// VerifyPin returns the post-failure state (DeviceConnected with an
		// incremented counter, or Failed) alongside the error; persist
		// whichever it produced so the next attempt sees it.
		if verified.Token != "" {
			_ = s.pairingRepo.Save(ctx, verified, now)
			s.metrics.recordPairingTransition(string(verified.Name))
		}
		s.audit.Event(ctx, req.Token, "pin_verification_failed", nil, now)
		writeError(w, s.logErrorf, err)
		return
	}
	if err := s.pairingRepo.Save(ctx, verified, now); err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	s.metrics.recordPairingTransition(string(verified.Name))

	peerToken := pairing.GenerateBearerToken()
	registered, err := verified.RegisterDevice(peerToken)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}

	deviceSessionExpiry := now.Add(s.sessionTTL)
	peerTokenExpiry := now.Add(peertoken.DefaultTTL)

	err = s.pairingRepo.RegisterNodeAtomic(ctx, storage.RegisterNodeParams{
		NodeID:           registered.NodeID,
		Name:             req.DeviceName,
		Hostname:         req.DeviceHostname,
		Port:             req.DevicePort,
		SessionToken:     registered.SessionToken,
		SessionExpiresAt: deviceSessionExpiry,
		PeerToken:        peerToken,
		PeerPermissions:  peertoken.DefaultPermissions,
		PeerTokenExpiry:  peerTokenExpiry,
		RegisteredAt:     now,
	})
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	if err := s.pairingRepo.Save(ctx, registered, now); err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	s.audit.Event(ctx, req.Token, "registered", map[string]string{"nodeId": registered.NodeID}, now)
	s.metrics.recordPairingTransition(string(registered.Name))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionToken":       registered.SessionToken,
		"peerToken":          peerToken,
		"peerTokenExpiresAt": peerTokenExpiry,
		"permissions":        peertoken.DefaultPermissions,
	})
}

// handlePairStatus reports a pairing attempt's current state for the
// initiating device's polling loop. Any origin: the token itself is the
// only secret needed to read status.
func (s *Server) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "missing token"))
		return
	}

	now := s.now()
	state, ok, err := s.pairingRepo.Load(r.Context(), token)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, newAPIError(errorNotFound, "unknown pairing token"))
		return
	}

	resp := map[string]interface{}{
		"state":   string(state.Name),
		"expired": state.IsExpired(now),
		"failed":  state.IsFailed(),
	}
	if state.IsFailed() {
		resp["failureReason"] = string(state.FailureReason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// failPairing drives a state to Failed and persists it whenever a
// transition call returns an error with no usable next state of its own
// (ConnectDevice and RegisterDevice return a zero PairingState on
// failure, unlike VerifyPin's wrong-PIN retry path, which handles its
// own persistence).
func (s *Server) failPairing(ctx context.Context, state pairing.PairingState, cause error, now time.Time) {
	var reason pairing.FailureReason
	var perr *pairing.PairingError
	if errors.As(cause, &perr) {
		reason = failureReasonFor(perr.Kind)
	}
	failed := state.Fail(reason, cause.Error(), now)
	_ = s.pairingRepo.Save(ctx, failed, now)
	s.audit.Event(ctx, state.Token, "pairing_failed", map[string]string{"reason": string(reason)}, now)
	s.metrics.recordPairingTransition(string(failed.Name))
}

func failureReasonFor(kind pairing.PairingErrorKind) pairing.FailureReason {
	switch kind {
	case pairing.ErrTokenExpired:
		return pairing.FailureTokenExpired
	case pairing.ErrPinMismatch:
		return pairing.FailureInvalidPin
	case pairing.ErrDeviceAlreadyRegistered:
		return pairing.FailureDeviceAlreadyRegistered
	case pairing.ErrIPConflict:
		return pairing.FailureIPConflict
	default:
		return ""
	}
}

// remoteIP strips the port from r.RemoteAddr, falling back to the raw
// value if it isn't a host:port pair (e.g. in tests using httptest).
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
