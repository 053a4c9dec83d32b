package server

import (
	"net/http"
	"time"
)

const ceremonyCookieName = "salita_ceremony"

// setSessionCookie writes the owner's session cookie:
// HttpOnly, SameSite=Strict, Path=/, Max-Age in seconds until expiresAt.
func setSessionCookie(w http.ResponseWriter, token string, expiresAt, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(expiresAt.Sub(now).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// setCeremonyCookie writes the ceremony cookie backing an in-flight
// WebAuthn exchange, Max-Age 300.
func setCeremonyCookie(w http.ResponseWriter, ceremonyID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ceremonyCookieName,
		Value:    ceremonyID,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearCeremonyCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ceremonyCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
