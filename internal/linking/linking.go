// Package linking issues short, human-readable codes for adding a new
// passkey or pairing a device from a second screen, grounded on the
// Rust daemon's auth/linking.rs::LinkingCodeStore. This is a sibling
// ephemeral store to internal/jointoken, not a replacement for it: a
// join token drives the full device-pairing state machine, while a
// linking code is a lighter-weight "type this into the other device"
// handshake for actions like adding a second passkey to an existing
// owner account.
package linking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// TTL is how long a linking code remains claimable.
const TTL = 5 * time.Minute

// Purpose identifies what completing a linking code authorizes.
type Purpose string

const (
	PurposePairDevice Purpose = "pair_device"
	PurposeAddPasskey Purpose = "add_passkey"
)

var phoneticWords = []string{
	"ALPHA", "BRAVO", "CHARLIE", "DELTA", "ECHO", "FOXTROT", "GOLF", "HOTEL",
	"INDIA", "JULIET", "KILO", "LIMA", "MIKE", "NOVEMBER", "OSCAR", "PAPA",
	"QUEBEC", "ROMEO", "SIERRA", "TANGO",
}

// Code is one outstanding linking code.
type Code struct {
	UserID    string
	Value     string
	Purpose   Purpose
	ExpiresAt time.Time
}

// Store is an in-memory, mutex-guarded table of outstanding linking
// codes.
type Store struct {
	mu    sync.Mutex
	codes map[string]Code
}

// New returns an empty Store.
func New() *Store {
	return &Store{codes: make(map[string]Code)}
}

// Generate mints a human-readable WORD-WORD-NN code for userID and
// purpose, and records it as outstanding.
func (s *Store) Generate(userID string, purpose Purpose, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStaleLocked(now)

	value, err := generateHumanReadableCode()
	if err != nil {
		return "", err
	}
	s.codes[value] = Code{
		UserID:    userID,
		Value:     value,
		Purpose:   purpose,
		ExpiresAt: now.Add(TTL),
	}
	return value, nil
}

// Exists reports whether a code is outstanding and unexpired, without
// consuming it.
func (s *Store) Exists(value string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStaleLocked(now)

	_, ok := s.codes[value]
	return ok
}

// Verify consumes a code if it exists and hasn't expired, single use,
// matching the Rust daemon's HashMap::remove on success.
func (s *Store) Verify(value string, now time.Time) (Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearStaleLocked(now)

	code, ok := s.codes[value]
	if !ok {
		return Code{}, false
	}
	delete(s.codes, value)
	return code, true
}

func (s *Store) clearStaleLocked(now time.Time) {
	for k, c := range s.codes {
		if now.After(c.ExpiresAt) {
			delete(s.codes, k)
		}
	}
}

// generateHumanReadableCode returns a WORD-WORD-NN code drawn from the
// NATO phonetic alphabet plus a random two-digit number, matching the
// original's generate_human_readable_code.
func generateHumanReadableCode() (string, error) {
	first, err := randomWord()
	if err != nil {
		return "", err
	}
	second, err := randomWord()
	if err != nil {
		return "", err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%02d", first, second, n.Int64()), nil
}

func randomWord() (string, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(phoneticWords))))
	if err != nil {
		return "", err
	}
	return phoneticWords[idx.Int64()], nil
}
