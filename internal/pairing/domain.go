// Package pairing implements the device-pairing state machine: a pure,
// side-effect-free set of types and transitions describing how a join
// token moves from creation through PIN verification to a registered
// mesh node. Nothing in this file touches storage, the clock, or
// randomness beyond what's passed in: callers own persistence and time,
// the same separation dex keeps between its storage.AuthRequest records
// and the handlers that load/mutate/save them.
package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// joinTokenCharset matches the 32-character alphanumeric token the
// original join-token and pairing stores both generate.
const joinTokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateJoinToken returns a fresh 32-character CSPRNG token.
func GenerateJoinToken() string {
	return randomCharset(joinTokenCharset, 32)
}

// GenerateBearerToken returns a fresh 64-character hex token, used for
// both session tokens and peer tokens.
func GenerateBearerToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("pairing: reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// GeneratePin returns a random 6-digit PIN as plaintext, to be shown to
// the user once and never persisted in that form.
func GeneratePin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		panic(fmt.Sprintf("pairing: reading random int: %v", err))
	}
	return fmt.Sprintf("%d", n.Int64()+100000)
}

func randomCharset(charset string, n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("pairing: reading random int: %v", err))
		}
		out[i] = charset[idx.Int64()]
	}
	return string(out)
}

// HashPin hashes a plaintext PIN for storage.
func HashPin(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPin reports whether plaintext matches the stored bcrypt hash.
// bcrypt.CompareHashAndPassword runs in constant time with respect to
// the plaintext; this package never falls back to a non-constant-time
// compare.
func verifyPin(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// StateName identifies a PairingState's variant.
type StateName string

const (
	StateTokenCreated    StateName = "token_created"
	StateDeviceConnected StateName = "device_connected"
	StatePinVerified     StateName = "pin_verified"
	StateDeviceRegistered StateName = "device_registered"
	StateFailed          StateName = "failed"
)

// FailureReason identifies why a pairing attempt ended in Failed.
type FailureReason string

const (
	FailureTokenExpired           FailureReason = "token_expired"
	FailureInvalidPin             FailureReason = "invalid_pin"
	FailureDeviceAlreadyRegistered FailureReason = "device_already_registered"
	FailureIPConflict             FailureReason = "ip_conflict"
	FailureTooManyAttempts        FailureReason = "too_many_attempts"
)

// maxPinAttempts is the number of consecutive wrong PINs VerifyPin
// tolerates before driving the state to Failed. Not present in the
// original join_tokens.rs::verify_pin, which had no attempt counter at
// all; added here because a 6-digit PIN without rate limiting is
// brute-forceable in a few thousand requests.
const maxPinAttempts = 5

// PairingState is the persisted, tagged state of one pairing attempt.
// Exactly one of the State-specific field groups is meaningful at a
// time, selected by Name; this mirrors the Rust daemon's tagged enum
// without Go sum types, the way dex's storage records carry a status
// string alongside fields that are only valid in some statuses.
type PairingState struct {
	Name StateName

	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time

	DeviceIP        string
	DeviceNodeID    string
	PinHash         string
	FailedAttempts  int

	SessionToken string

	NodeID    string
	PeerToken string

	FailureReason   FailureReason
	FailureDetail   string
	FailedAt        time.Time
}

// PairingError is the taxonomy of transition failures.
type PairingError struct {
	Kind          PairingErrorKind
	Message       string
	ExistingDevice string
}

func (e *PairingError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// PairingErrorKind enumerates the ways a transition can fail.
type PairingErrorKind string

const (
	ErrInvalidTransition    PairingErrorKind = "invalid_transition"
	ErrTokenExpired         PairingErrorKind = "token_expired"
	ErrPinMismatch          PairingErrorKind = "pin_mismatch"
	ErrMissingNodeID        PairingErrorKind = "missing_node_id"
	ErrDeviceAlreadyRegistered PairingErrorKind = "device_already_registered"
	ErrIPConflict           PairingErrorKind = "ip_conflict"
)

func invalidTransition(from StateName, action string) error {
	return &PairingError{Kind: ErrInvalidTransition, Message: fmt.Sprintf("cannot %s from %s state", action, from)}
}

// CreatePairing returns the initial TokenCreated state for a fresh join
// token.
func CreatePairing(token string, now time.Time, ttl time.Duration) PairingState {
	return PairingState{
		Name:      StateTokenCreated,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the state is past its expiry. PinVerified
// and DeviceRegistered never expire on their own; Failed is always
// considered expired, matching the Rust daemon's is_expired.
func (s PairingState) IsExpired(now time.Time) bool {
	switch s.Name {
	case StateTokenCreated, StateDeviceConnected:
		return now.After(s.ExpiresAt)
	case StateFailed:
		return true
	default:
		return false
	}
}

// IsComplete reports whether the device finished registration.
func (s PairingState) IsComplete() bool {
	return s.Name == StateDeviceRegistered
}

// IsFailed reports whether the pairing attempt ended in failure.
func (s PairingState) IsFailed() bool {
	return s.Name == StateFailed
}

// ConnectDevice transitions TokenCreated -> DeviceConnected, generating
// a fresh PIN. It returns the new state and the plaintext PIN to display
// to the user exactly once; only the bcrypt hash is retained in the
// returned state.
func (s PairingState) ConnectDevice(deviceIP string, now time.Time) (PairingState, string, error) {
	if s.Name != StateTokenCreated {
		return PairingState{}, "", invalidTransition(s.Name, "connect device")
	}
	if now.After(s.ExpiresAt) {
		return PairingState{}, "", &PairingError{Kind: ErrTokenExpired}
	}

	plaintext := GeneratePin()
	hash, err := HashPin(plaintext)
	if err != nil {
		return PairingState{}, "", fmt.Errorf("hashing pin: %w", err)
	}

	return PairingState{
		Name:      StateDeviceConnected,
		Token:     s.Token,
		CreatedAt: now,
		ExpiresAt: s.ExpiresAt,
		DeviceIP:  deviceIP,
		PinHash:   hash,
	}, plaintext, nil
}

// SetDeviceNodeID records the device's persistent node id once it's sent
// its own identity, valid only from DeviceConnected.
func (s PairingState) SetDeviceNodeID(nodeID string) (PairingState, error) {
	if s.Name != StateDeviceConnected {
		return PairingState{}, invalidTransition(s.Name, "set node id")
	}
	next := s
	next.DeviceNodeID = nodeID
	return next, nil
}

// VerifyPin transitions DeviceConnected -> PinVerified on a correct PIN.
// On a wrong PIN it returns a DeviceConnected state with FailedAttempts
// incremented, or a Failed state once maxPinAttempts is exceeded.
func (s PairingState) VerifyPin(plaintext string, sessionToken string, now time.Time) (PairingState, error) {
	if s.Name != StateDeviceConnected {
		return PairingState{}, invalidTransition(s.Name, "verify pin")
	}
	if now.After(s.ExpiresAt) {
		return PairingState{}, &PairingError{Kind: ErrTokenExpired}
	}

	if !verifyPin(s.PinHash, plaintext) {
		attempts := s.FailedAttempts + 1
		if attempts >= maxPinAttempts {
			return s.Fail(FailureTooManyAttempts, "", now), &PairingError{Kind: ErrPinMismatch}
		}
		next := s
		next.FailedAttempts = attempts
		return next, &PairingError{Kind: ErrPinMismatch}
	}

	if s.DeviceNodeID == "" {
		return PairingState{}, &PairingError{Kind: ErrMissingNodeID}
	}

	return PairingState{
		Name:         StatePinVerified,
		Token:        s.Token,
		CreatedAt:    now,
		DeviceIP:     s.DeviceIP,
		DeviceNodeID: s.DeviceNodeID,
		SessionToken: sessionToken,
	}, nil
}

// RegisterDevice transitions PinVerified -> DeviceRegistered.
func (s PairingState) RegisterDevice(peerToken string) (PairingState, error) {
	if s.Name != StatePinVerified {
		return PairingState{}, invalidTransition(s.Name, "register device")
	}
	return PairingState{
		Name:         StateDeviceRegistered,
		Token:        s.Token,
		NodeID:       s.DeviceNodeID,
		PeerToken:    peerToken,
		SessionToken: s.SessionToken,
	}, nil
}

// Fail transitions any state to Failed. Unlike the other transitions
// this always succeeds, matching the Rust daemon's fail() which has no
// Result return type.
func (s PairingState) Fail(reason FailureReason, detail string, now time.Time) PairingState {
	return PairingState{
		Name:          StateFailed,
		Token:         s.Token,
		FailureReason: reason,
		FailureDetail: detail,
		FailedAt:      now,
	}
}
