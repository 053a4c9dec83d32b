// Package config loads and validates salitad's YAML configuration, the
// way cmd/dex/config.go loads dex's. There is no OAuth2/GRPC/connector
// surface here, since this server has a single owner, a single embedded
// storage engine, and opaque bearer tokens, so Config carries only the
// settings this server actually has: listen address, data directory,
// session/peer-token lifetimes, and logging.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration format for salitad.
type Config struct {
	Web      Web      `json:"web"`
	Storage  Storage  `json:"storage"`
	Logger   Logger   `json:"logger"`
	Expiry   Expiry   `json:"expiry"`
	WebAuthn WebAuthn `json:"webauthn"`

	// DataPassphrase, if set, encrypts node_identity.json's display name
	// at rest (internal/config/crypto.go). An optional hardening knob,
	// not a requirement.
	DataPassphrase string `json:"dataPassphrase"`
}

// WebAuthn configures the relying party identity the passkey ceremonies
// (internal/passkey) are scoped to. RPID must be a domain the owner's
// browser will actually navigate to, "localhost" for a bare loopback
// setup, the server's real hostname otherwise.
type WebAuthn struct {
	RPID          string   `json:"rpID"`
	RPDisplayName string   `json:"rpDisplayName"`
	RPOrigins     []string `json:"rpOrigins"`
}

// Web is the HTTP listener configuration.
type Web struct {
	HTTP string `json:"http"`

	// LocalhostBypass, when true, lets requests classified as
	// origin.Localhost skip session/peer-token auth entirely, a
	// loopback carve-out for the owner's own machine.
	LocalhostBypass bool `json:"localhostBypass"`
}

// Storage is the persistence configuration.
type Storage struct {
	// DataDir holds node_identity.json and, unless InMemory is set, the
	// SQLite database file.
	DataDir string `json:"dataDir"`

	// InMemory runs the in-memory storage backend instead of SQLite, for
	// development and tests, never production.
	InMemory bool `json:"inMemory"`
}

// Logger is the logging configuration.
type Logger struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Expiry overrides the default lifetime constants below, for tests that
// need shorter windows than production.
type Expiry struct {
	SessionTTL          time.Duration `json:"sessionTTL"`
	JoinTokenTTL        time.Duration `json:"joinTokenTTL"`
	PeerTokenTTL        time.Duration `json:"peerTokenTTL"`
	PeerTokenGrace      time.Duration `json:"peerTokenGrace"`
	PeerTokenRenewAfter time.Duration `json:"peerTokenRenewAfter"`
	PeerTokenRenewTTL   time.Duration `json:"peerTokenRenewTTL"`
}

const (
	defaultSessionTTL          = 30 * 24 * time.Hour
	defaultJoinTokenTTL        = 5 * time.Minute
	defaultPeerTokenTTL        = 30 * 24 * time.Hour
	defaultPeerTokenGrace      = 5 * time.Minute
	defaultPeerTokenRenewAfter = 7 * 24 * time.Hour
	defaultPeerTokenRenewTTL   = 30 * 24 * time.Hour
)

// Defaults fills in zero-valued fields with this server's defaults. Call
// after unmarshaling and before Validate.
func (c *Config) Defaults() {
	if c.Web.HTTP == "" {
		c.Web.HTTP = "127.0.0.1:8443"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "/var/lib/salitad"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.WebAuthn.RPID == "" {
		c.WebAuthn.RPID = "localhost"
	}
	if c.WebAuthn.RPDisplayName == "" {
		c.WebAuthn.RPDisplayName = "Salita"
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		c.WebAuthn.RPOrigins = []string{"https://" + c.WebAuthn.RPID}
	}
	if c.Expiry.SessionTTL == 0 {
		c.Expiry.SessionTTL = defaultSessionTTL
	}
	if c.Expiry.JoinTokenTTL == 0 {
		c.Expiry.JoinTokenTTL = defaultJoinTokenTTL
	}
	if c.Expiry.PeerTokenTTL == 0 {
		c.Expiry.PeerTokenTTL = defaultPeerTokenTTL
	}
	if c.Expiry.PeerTokenGrace == 0 {
		c.Expiry.PeerTokenGrace = defaultPeerTokenGrace
	}
	if c.Expiry.PeerTokenRenewAfter == 0 {
		c.Expiry.PeerTokenRenewAfter = defaultPeerTokenRenewAfter
	}
	if c.Expiry.PeerTokenRenewTTL == 0 {
		c.Expiry.PeerTokenRenewTTL = defaultPeerTokenRenewTTL
	}
}

// Validate checks the configuration for internal consistency, following
// dex's checks-slice pattern in cmd/dex/config.go.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		errMsg string
	}{
		{c.Web.HTTP == "", "must supply a web.http address to listen on"},
		{c.Storage.DataDir == "" && !c.Storage.InMemory, "must supply a storage.dataDir unless storage.inMemory is set"},
		{c.Logger.Level != "" && !validLevel(c.Logger.Level), "logger.level must be one of debug, info, warn, error"},
		{c.Logger.Format != "" && c.Logger.Format != "json" && c.Logger.Format != "text", "logger.format must be json or text"},
		{c.Expiry.PeerTokenRenewTTL != 0 && c.Expiry.PeerTokenRenewAfter != 0 && c.Expiry.PeerTokenRenewAfter > c.Expiry.PeerTokenTTL, "expiry.peerTokenRenewAfter cannot exceed expiry.peerTokenTTL"},
	}

	var checkErrors []string
	for _, check := range checks {
		if check.bad {
			checkErrors = append(checkErrors, check.errMsg)
		}
	}
	if len(checkErrors) != 0 {
		return fmt.Errorf("invalid config:\n\t-\t%s", strings.Join(checkErrors, "\n\t-\t"))
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
