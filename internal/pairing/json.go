package pairing

import (
	"encoding/json"
	"time"
)

// wireState is the tagged-union JSON shape PairingState round-trips
// through, mirroring the Rust daemon's #[serde(tag = "state", rename_all =
// "snake_case")] PairingState enum so a stored row is self-describing
// about which fields are meaningful.
type wireState struct {
	State StateName `json:"state"`

	Token     string     `json:"token,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	DeviceIP       string `json:"device_ip,omitempty"`
	DeviceNodeID   string `json:"device_node_id,omitempty"`
	PinHash        string `json:"pin_hash,omitempty"`
	FailedAttempts int    `json:"failed_attempts,omitempty"`

	SessionToken string `json:"session_token,omitempty"`

	NodeID    string `json:"node_id,omitempty"`
	PeerToken string `json:"peer_token,omitempty"`

	FailureReason FailureReason `json:"reason,omitempty"`
	FailureDetail string        `json:"detail,omitempty"`
	FailedAt      *time.Time    `json:"failed_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s PairingState) MarshalJSON() ([]byte, error) {
	w := wireState{
		State:          s.Name,
		Token:          s.Token,
		DeviceIP:       s.DeviceIP,
		DeviceNodeID:   s.DeviceNodeID,
		PinHash:        s.PinHash,
		FailedAttempts: s.FailedAttempts,
		SessionToken:   s.SessionToken,
		NodeID:         s.NodeID,
		PeerToken:      s.PeerToken,
		FailureReason:  s.FailureReason,
		FailureDetail:  s.FailureDetail,
	}
	if !s.CreatedAt.IsZero() {
		w.CreatedAt = &s.CreatedAt
	}
	if !s.ExpiresAt.IsZero() {
		w.ExpiresAt = &s.ExpiresAt
	}
	if !s.FailedAt.IsZero() {
		w.FailedAt = &s.FailedAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PairingState) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = PairingState{
		Name:           w.State,
		Token:          w.Token,
		DeviceIP:       w.DeviceIP,
		DeviceNodeID:   w.DeviceNodeID,
		PinHash:        w.PinHash,
		FailedAttempts: w.FailedAttempts,
		SessionToken:   w.SessionToken,
		NodeID:         w.NodeID,
		PeerToken:      w.PeerToken,
		FailureReason:  w.FailureReason,
		FailureDetail:  w.FailureDetail,
	}
	if w.CreatedAt != nil {
		s.CreatedAt = *w.CreatedAt
	}
	if w.ExpiresAt != nil {
		s.ExpiresAt = *w.ExpiresAt
	}
	if w.FailedAt != nil {
		s.FailedAt = *w.FailedAt
	}
	return nil
}
