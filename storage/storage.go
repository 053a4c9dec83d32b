// Package storage declares the persistence contract the pairing and mesh
// trust core imposes on its backing store, treating the relational engine
// itself as an external collaborator assumed to be an embedded SQL engine
// with foreign keys, JSON text columns, and datetime('now'); this package
// is only the contract, implemented by storage/sql (SQLite) and
// storage/memory (tests, conformance fixtures).
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a resource cannot be found.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a resource id is taken during a create.
var ErrAlreadyExists = errors.New("already exists")

// NodeStatus is a MeshNode's reachability state.
type NodeStatus string

const (
	NodeOnline   NodeStatus = "online"
	NodeOffline  NodeStatus = "offline"
	NodeDegraded NodeStatus = "degraded"
)

// User is the server's single owner.
type User struct {
	ID          string
	Username    string
	DisplayName *string
	IsAdmin     bool
	CreatedAt   time.Time
}

// PasskeyCredential is an opaque WebAuthn authenticator registration bound
// to a user.
type PasskeyCredential struct {
	ID             string
	UserID         string
	CredentialBlob []byte
	CreatedAt      time.Time
}

// Session is an opaque bearer token bound to the owner user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// MeshNode is a device participating in the mesh, including this server
// itself (IsCurrent = true for exactly one row).
type MeshNode struct {
	ID           string
	Name         string
	Hostname     string
	Port         int
	Status       NodeStatus
	Capabilities []string
	LastSeen     time.Time
	CreatedAt    time.Time
	Metadata     *string
	IsCurrent    bool
}

// PairingStateRecord is the opaque persisted form of a pairing state:
// storage only knows the tagged JSON blob and its timestamps; internal/pairing
// owns what the bytes mean.
type PairingStateRecord struct {
	Token     string
	StateJSON []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PairingEvent is an append-only audit record of a pairing lifecycle
// transition.
type PairingEvent struct {
	ID         string
	Token      string
	EventType  string
	EventData  *string
	OccurredAt time.Time
}

// IssuedToken is a peer token this server accepts from another node.
type IssuedToken struct {
	Token          string
	IssuedToNodeID string
	Permissions    []string
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	LastUsedAt     *time.Time
}

// PeerToken is the token this server uses to call another node, keyed by
// the peer so rotation can replace it atomically.
type PeerToken struct {
	PeerNodeID  string
	Token       string
	Permissions []string
	ExpiresAt   time.Time
}

// RegisterNodeParams is the input to the single atomic, multi-row write the
// pairing flow performs when a device finishes verifying its PIN.
type RegisterNodeParams struct {
	NodeID           string
	Name             string
	Hostname         string
	Port             int
	Capabilities     []string
	SessionToken     string
	SessionExpiresAt time.Time
	PeerToken        string
	PeerPermissions  []string
	PeerTokenExpiry  time.Time
	RegisteredAt     time.Time
}

// GCResult reports how many rows a garbage-collection sweep removed.
type GCResult struct {
	PairingStates  int64
	Sessions       int64
	DeviceSessions int64
}

// IsEmpty reports whether the sweep found nothing to do.
func (g GCResult) IsEmpty() bool {
	return g.PairingStates == 0 && g.Sessions == 0 && g.DeviceSessions == 0
}

// Storage is the persistence interface the pairing and mesh trust core
// requires of its backing store. Implementations must support atomic
// compare-and-swap style updates and standardize on UTC.
type Storage interface {
	Close() error

	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	// SoleUser returns the server's one owner row, or ErrNotFound before
	// first-owner setup has completed.
	SoleUser(ctx context.Context) (User, error)

	CreatePasskeyCredential(ctx context.Context, c PasskeyCredential) error
	ListPasskeyCredentialsByUser(ctx context.Context, userID string) ([]PasskeyCredential, error)
	UpdatePasskeyCredential(ctx context.Context, id string, updater func(PasskeyCredential) (PasskeyCredential, error)) error

	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error

	UpsertMeshNode(ctx context.Context, n MeshNode) error
	GetMeshNode(ctx context.Context, id string) (MeshNode, error)
	ListMeshNodes(ctx context.Context) ([]MeshNode, error)
	UpdateMeshNodeStatus(ctx context.Context, id string, status NodeStatus, lastSeen time.Time) error

	CurrentNode(ctx context.Context) (MeshNode, error)
	SetCurrentNode(ctx context.Context, n MeshNode) error

	SavePairingState(ctx context.Context, r PairingStateRecord) error
	GetPairingState(ctx context.Context, token string) (PairingStateRecord, error)
	DeletePairingState(ctx context.Context, token string) error
	ListPairingStates(ctx context.Context) ([]PairingStateRecord, error)

	LogPairingEvent(ctx context.Context, e PairingEvent) error

	// RegisterNodeAtomic upserts the node, inserts the device session,
	// and inserts the issued peer token as a single transaction. Any
	// failure must leave none of the three rows observable.
	RegisterNodeAtomic(ctx context.Context, p RegisterNodeParams) error

	GetIssuedToken(ctx context.Context, token string) (IssuedToken, error)
	IssuePeerToken(ctx context.Context, t IssuedToken) error
	RevokeIssuedToken(ctx context.Context, token string, revokedAt time.Time) error
	RenewIssuedToken(ctx context.Context, token string, expiresAt time.Time, lastUsedAt time.Time) error
	TouchIssuedToken(ctx context.Context, token string, lastUsedAt time.Time) error

	UpsertPeerToken(ctx context.Context, t PeerToken) error
	GetPeerToken(ctx context.Context, peerNodeID string) (PeerToken, error)

	// GarbageCollect deletes expired pairing states, sessions, and device
	// sessions. Best-effort; callers run it on a timer, not on the
	// request path.
	GarbageCollect(ctx context.Context, now time.Time) (GCResult, error)
}
