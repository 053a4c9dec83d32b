package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/idgen"
	"github.com/dorky-robot/salita-mesh/storage"
)

// Repository persists PairingState values and the events that accompany
// their transitions. Grounded on the Rust daemon's
// pairing/repository.rs::PairingRepository trait: load/save/delete by
// token, purge expired rows, log lifecycle events, and the one atomic
// multi-row registration write.
type Repository struct {
	store storage.Storage
}

// NewRepository returns a Repository backed by the given storage.
func NewRepository(store storage.Storage) *Repository {
	return &Repository{store: store}
}

// Load returns the pairing state for a token, or (PairingState{}, false,
// nil) if no such token exists.
func (r *Repository) Load(ctx context.Context, token string) (PairingState, bool, error) {
	rec, err := r.store.GetPairingState(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return PairingState{}, false, nil
	}
	if err != nil {
		return PairingState{}, false, err
	}
	var state PairingState
	if err := json.Unmarshal(rec.StateJSON, &state); err != nil {
		return PairingState{}, false, fmt.Errorf("decoding pairing state: %w", err)
	}
	return state, true, nil
}

// Save upserts a pairing state, matching the Rust daemon's ON CONFLICT DO
// UPDATE idempotent save.
func (r *Repository) Save(ctx context.Context, state PairingState, now time.Time) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding pairing state: %w", err)
	}
	return r.store.SavePairingState(ctx, storage.PairingStateRecord{
		Token:     state.Token,
		StateJSON: data,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Delete removes a pairing state.
func (r *Repository) Delete(ctx context.Context, token string) error {
	return r.store.DeletePairingState(ctx, token)
}

// PurgeExpired deletes every persisted state that is expired or failed
// as of now, matching the Rust daemon's purge_expired.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	records, err := r.store.ListPairingStates(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, rec := range records {
		var state PairingState
		if err := json.Unmarshal(rec.StateJSON, &state); err != nil {
			continue
		}
		if state.IsExpired(now) || state.IsFailed() {
			if err := r.store.DeletePairingState(ctx, rec.Token); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}

// LogEvent appends an audit record of a pairing lifecycle transition.
func (r *Repository) LogEvent(ctx context.Context, token, eventType string, data *string, now time.Time) error {
	return r.store.LogPairingEvent(ctx, storage.PairingEvent{
		ID:         idgen.New(),
		Token:      token,
		EventType:  eventType,
		EventData:  data,
		OccurredAt: now,
	})
}

// RegisterNodeAtomic performs the single atomic write that completes a
// pairing flow: upsert the mesh node, create the device session, and
// issue the peer token backing this server's own calls to that node.
// Any failure leaves none of the three rows observable, the same
// guarantee the Rust daemon's register_node_atomic gives via BEGIN IMMEDIATE.
func (r *Repository) RegisterNodeAtomic(ctx context.Context, params storage.RegisterNodeParams) error {
	return r.store.RegisterNodeAtomic(ctx, params)
}
