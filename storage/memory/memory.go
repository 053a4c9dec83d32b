// Package memory provides an in-memory implementation of the storage
// interface, used by tests and as a fixture for the conformance suite
// shared with the SQLite backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dorky-robot/salita-mesh/storage"
)

var _ storage.Storage = (*memStorage)(nil)

// New returns an in-memory storage implementation.
func New() storage.Storage {
	return &memStorage{
		users:         make(map[string]storage.User),
		credentials:   make(map[string]storage.PasskeyCredential),
		sessions:      make(map[string]storage.Session),
		nodes:         make(map[string]storage.MeshNode),
		pairingStates: make(map[string]storage.PairingStateRecord),
		issuedTokens:  make(map[string]storage.IssuedToken),
		peerTokens:    make(map[string]storage.PeerToken),
	}
}

type memStorage struct {
	mu sync.Mutex

	users         map[string]storage.User
	credentials   map[string]storage.PasskeyCredential
	sessions      map[string]storage.Session
	nodes         map[string]storage.MeshNode
	currentNodeID string
	pairingStates map[string]storage.PairingStateRecord
	events        []storage.PairingEvent
	issuedTokens  map[string]storage.IssuedToken
	peerTokens    map[string]storage.PeerToken
}

func (s *memStorage) tx(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

func (s *memStorage) Close() error { return nil }

func (s *memStorage) CreateUser(ctx context.Context, u storage.User) (err error) {
	s.tx(func() {
		if _, ok := s.users[u.ID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.users[u.ID] = u
	})
	return
}

func (s *memStorage) GetUser(ctx context.Context, id string) (u storage.User, err error) {
	s.tx(func() {
		var ok bool
		if u, ok = s.users[id]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) GetUserByUsername(ctx context.Context, username string) (u storage.User, err error) {
	s.tx(func() {
		for _, candidate := range s.users {
			if candidate.Username == username {
				u = candidate
				return
			}
		}
		err = storage.ErrNotFound
	})
	return
}

func (s *memStorage) SoleUser(ctx context.Context) (u storage.User, err error) {
	s.tx(func() {
		for _, candidate := range s.users {
			u = candidate
			return
		}
		err = storage.ErrNotFound
	})
	return
}

func (s *memStorage) CreatePasskeyCredential(ctx context.Context, c storage.PasskeyCredential) (err error) {
	s.tx(func() {
		if _, ok := s.credentials[c.ID]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.credentials[c.ID] = c
	})
	return
}

func (s *memStorage) ListPasskeyCredentialsByUser(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	var out []storage.PasskeyCredential
	s.tx(func() {
		for _, c := range s.credentials {
			if c.UserID == userID {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStorage) UpdatePasskeyCredential(ctx context.Context, id string, updater func(storage.PasskeyCredential) (storage.PasskeyCredential, error)) (err error) {
	s.tx(func() {
		c, ok := s.credentials[id]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		c, err = updater(c)
		if err != nil {
			return
		}
		s.credentials[id] = c
	})
	return
}

func (s *memStorage) CreateSession(ctx context.Context, sess storage.Session) (err error) {
	s.tx(func() {
		if _, ok := s.sessions[sess.Token]; ok {
			err = storage.ErrAlreadyExists
			return
		}
		s.sessions[sess.Token] = sess
	})
	return
}

func (s *memStorage) GetSession(ctx context.Context, token string) (sess storage.Session, err error) {
	s.tx(func() {
		var ok bool
		if sess, ok = s.sessions[token]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) DeleteSession(ctx context.Context, token string) error {
	s.tx(func() {
		delete(s.sessions, token)
	})
	return nil
}

func (s *memStorage) UpsertMeshNode(ctx context.Context, n storage.MeshNode) error {
	s.tx(func() {
		if existing, ok := s.nodes[n.ID]; ok {
			n.CreatedAt = existing.CreatedAt
			n.IsCurrent = existing.IsCurrent
		}
		s.nodes[n.ID] = n
	})
	return nil
}

func (s *memStorage) GetMeshNode(ctx context.Context, id string) (n storage.MeshNode, err error) {
	s.tx(func() {
		var ok bool
		if n, ok = s.nodes[id]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) ListMeshNodes(ctx context.Context) ([]storage.MeshNode, error) {
	var out []storage.MeshNode
	s.tx(func() {
		for _, n := range s.nodes {
			out = append(out, n)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStorage) UpdateMeshNodeStatus(ctx context.Context, id string, status storage.NodeStatus, lastSeen time.Time) (err error) {
	s.tx(func() {
		n, ok := s.nodes[id]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		n.Status = status
		n.LastSeen = lastSeen
		s.nodes[id] = n
	})
	return
}

func (s *memStorage) CurrentNode(ctx context.Context) (n storage.MeshNode, err error) {
	s.tx(func() {
		if s.currentNodeID == "" {
			err = storage.ErrNotFound
			return
		}
		var ok bool
		if n, ok = s.nodes[s.currentNodeID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) SetCurrentNode(ctx context.Context, n storage.MeshNode) error {
	s.tx(func() {
		n.IsCurrent = true
		s.nodes[n.ID] = n
		s.currentNodeID = n.ID
	})
	return nil
}

func (s *memStorage) SavePairingState(ctx context.Context, r storage.PairingStateRecord) error {
	s.tx(func() {
		if existing, ok := s.pairingStates[r.Token]; ok {
			r.CreatedAt = existing.CreatedAt
		}
		s.pairingStates[r.Token] = r
	})
	return nil
}

func (s *memStorage) GetPairingState(ctx context.Context, token string) (r storage.PairingStateRecord, err error) {
	s.tx(func() {
		var ok bool
		if r, ok = s.pairingStates[token]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) DeletePairingState(ctx context.Context, token string) error {
	s.tx(func() {
		delete(s.pairingStates, token)
	})
	return nil
}

func (s *memStorage) ListPairingStates(ctx context.Context) ([]storage.PairingStateRecord, error) {
	var out []storage.PairingStateRecord
	s.tx(func() {
		for _, r := range s.pairingStates {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *memStorage) LogPairingEvent(ctx context.Context, e storage.PairingEvent) error {
	s.tx(func() {
		s.events = append(s.events, e)
	})
	return nil
}

// RegisterNodeAtomic is trivially atomic under the store's single mutex:
// no caller observes the map states mid-update.
func (s *memStorage) RegisterNodeAtomic(ctx context.Context, p storage.RegisterNodeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, existing := s.nodes[p.NodeID]
	if !existing {
		n = storage.MeshNode{
			ID:        p.NodeID,
			Status:    storage.NodeOffline,
			CreatedAt: p.RegisteredAt,
		}
	}
	n.Name = p.Name
	n.Hostname = p.Hostname
	n.Port = p.Port
	n.Capabilities = p.Capabilities
	n.LastSeen = p.RegisteredAt
	s.nodes[p.NodeID] = n

	s.sessions[p.SessionToken] = storage.Session{
		ID:        p.SessionToken,
		Token:     p.SessionToken,
		ExpiresAt: p.SessionExpiresAt,
	}

	s.issuedTokens[p.PeerToken] = storage.IssuedToken{
		Token:          p.PeerToken,
		IssuedToNodeID: p.NodeID,
		Permissions:    p.PeerPermissions,
		ExpiresAt:      p.PeerTokenExpiry,
	}

	return nil
}

func (s *memStorage) GetIssuedToken(ctx context.Context, token string) (t storage.IssuedToken, err error) {
	s.tx(func() {
		var ok bool
		if t, ok = s.issuedTokens[token]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) IssuePeerToken(ctx context.Context, t storage.IssuedToken) error {
	s.tx(func() {
		s.issuedTokens[t.Token] = t
	})
	return nil
}

func (s *memStorage) RevokeIssuedToken(ctx context.Context, token string, revokedAt time.Time) (err error) {
	s.tx(func() {
		t, ok := s.issuedTokens[token]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		t.RevokedAt = &revokedAt
		s.issuedTokens[token] = t
	})
	return
}

func (s *memStorage) RenewIssuedToken(ctx context.Context, token string, expiresAt time.Time, lastUsedAt time.Time) (err error) {
	s.tx(func() {
		t, ok := s.issuedTokens[token]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		t.ExpiresAt = expiresAt
		t.LastUsedAt = &lastUsedAt
		s.issuedTokens[token] = t
	})
	return
}

func (s *memStorage) TouchIssuedToken(ctx context.Context, token string, lastUsedAt time.Time) (err error) {
	s.tx(func() {
		t, ok := s.issuedTokens[token]
		if !ok {
			err = storage.ErrNotFound
			return
		}
		t.LastUsedAt = &lastUsedAt
		s.issuedTokens[token] = t
	})
	return
}

func (s *memStorage) UpsertPeerToken(ctx context.Context, t storage.PeerToken) error {
	s.tx(func() {
		s.peerTokens[t.PeerNodeID] = t
	})
	return nil
}

func (s *memStorage) GetPeerToken(ctx context.Context, peerNodeID string) (t storage.PeerToken, err error) {
	s.tx(func() {
		var ok bool
		if t, ok = s.peerTokens[peerNodeID]; !ok {
			err = storage.ErrNotFound
		}
	})
	return
}

func (s *memStorage) GarbageCollect(ctx context.Context, now time.Time) (result storage.GCResult, err error) {
	s.tx(func() {
		for token, sess := range s.sessions {
			if now.After(sess.ExpiresAt) {
				delete(s.sessions, token)
				result.Sessions++
			}
		}
		for token, r := range s.pairingStates {
			// internal/pairing purges states it knows to be expired or
			// failed via DeletePairingState; this sweep only catches
			// records so stale their owner never returned at all.
			if now.Sub(r.UpdatedAt) > 24*time.Hour {
				delete(s.pairingStates, token)
				result.PairingStates++
			}
		}
	})
	return
}
