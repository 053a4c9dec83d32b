package server

import (
	"encoding/json"
	"net/http"

	"github.com/dorky-robot/salita-mesh/internal/authctx"
	"github.com/dorky-robot/salita-mesh/internal/origin"
)

// handleSetupPage renders the first-owner setup page, allowed from
// Localhost or External but never from Lan: there's no pairing PIN
// involved here, so the LAN carve-out pairing relies on doesn't apply.
func (s *Server) handleSetupPage(w http.ResponseWriter, r *http.Request) {
	if authctx.Origin(r.Context()) == origin.Lan {
		writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "setup is not available from the LAN"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Set up Salita</title>"))
}

type setupStartRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleSetupStart(w http.ResponseWriter, r *http.Request) {
	if authctx.Origin(r.Context()) == origin.Lan {
		writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "setup is not available from the LAN"))
		return
	}

	var req setupStartRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "malformed request body"))
		return
	}

	ceremonyID, challenge, err := s.passkeys.StartRegistration(r.Context(), req.Username, req.DisplayName, s.now())
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}

	setCeremonyCookie(w, ceremonyID)
	writeJSON(w, http.StatusOK, challenge)
}

func (s *Server) handleSetupFinish(w http.ResponseWriter, r *http.Request) {
	ceremonyID, err := r.Cookie(ceremonyCookieName)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "missing ceremony cookie"))
		return
	}

	now := s.now()
	user, _, err := s.passkeys.FinishRegistration(r.Context(), ceremonyID.Value, r, now)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	clearCeremonyCookie(w)

	sess, err := s.sessions.Issue(r.Context(), user.ID, now, s.sessionTTL)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	setSessionCookie(w, sess.Token, sess.ExpiresAt, now)

	writeJSON(w, http.StatusOK, map[string]string{"userId": user.ID, "username": user.Username})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if authctx.Origin(r.Context()) == origin.Localhost && s.localhostBypass {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>Log in to Salita</title>"))
}

func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	ceremonyID, assertion, err := s.passkeys.StartLogin(r.Context(), s.now())
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	setCeremonyCookie(w, ceremonyID)
	writeJSON(w, http.StatusOK, assertion)
}

func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	ceremonyID, err := r.Cookie(ceremonyCookieName)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, "missing ceremony cookie"))
		return
	}

	now := s.now()
	user, err := s.passkeys.FinishLogin(r.Context(), ceremonyID.Value, r, now)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	clearCeremonyCookie(w)

	sess, err := s.sessions.Issue(r.Context(), user.ID, now, s.sessionTTL)
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}
	setSessionCookie(w, sess.Token, sess.ExpiresAt, now)

	writeJSON(w, http.StatusOK, map[string]string{"userId": user.ID, "username": user.Username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		_ = s.sessions.Revoke(r.Context(), cookie.Value)
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"origin": authctx.Origin(r.Context()).String()})
}

func (s *Server) logErrorf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Errorf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	// Request bodies are capped at 64 KiB.
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	return json.NewDecoder(r.Body).Decode(dst)
}
