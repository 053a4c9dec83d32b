package pairing

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJoinTokenLength(t *testing.T) {
	a := GenerateJoinToken()
	b := GenerateJoinToken()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestGenerateBearerTokenIsHex64(t *testing.T) {
	tok := GenerateBearerToken()
	assert.Len(t, tok, 64)
	assert.NotEqual(t, tok, GenerateBearerToken())
}

func TestGeneratePinIsSixDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		pin := GeneratePin()
		assert.Len(t, pin, 6)
		n, err := strconv.Atoi(pin)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestHashAndVerifyPin(t *testing.T) {
	hash, err := HashPin("123456")
	require.NoError(t, err)
	assert.True(t, verifyPin(hash, "123456"))
	assert.False(t, verifyPin(hash, "654321"))
}

func TestFullHappyPathTransitions(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOKEN123", now, 5*time.Minute)
	assert.Equal(t, StateTokenCreated, state.Name)
	assert.False(t, state.IsExpired(now))

	connected, pin, err := state.ConnectDevice("192.168.1.50", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StateDeviceConnected, connected.Name)
	assert.Len(t, pin, 6)
	assert.NotEmpty(t, connected.PinHash)

	withNode, err := connected.SetDeviceNodeID("node-abc")
	require.NoError(t, err)
	assert.Equal(t, "node-abc", withNode.DeviceNodeID)

	verified, err := withNode.VerifyPin(pin, "session-tok", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatePinVerified, verified.Name)
	assert.Equal(t, "node-abc", verified.DeviceNodeID)

	registered, err := verified.RegisterDevice("peer-tok")
	require.NoError(t, err)
	assert.Equal(t, StateDeviceRegistered, registered.Name)
	assert.True(t, registered.IsComplete())
	assert.Equal(t, "node-abc", registered.NodeID)
	assert.Equal(t, "peer-tok", registered.PeerToken)
}

func TestConnectDeviceRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOK", now, time.Minute)
	_, _, err := state.ConnectDevice("1.2.3.4", now.Add(2*time.Minute))
	require.Error(t, err)
	var pe *PairingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrTokenExpired, pe.Kind)
}

func TestConnectDeviceRejectsWrongState(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOK", now, time.Minute)
	connected, _, err := state.ConnectDevice("1.2.3.4", now)
	require.NoError(t, err)

	_, _, err = connected.ConnectDevice("1.2.3.4", now)
	require.Error(t, err)
	var pe *PairingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrInvalidTransition, pe.Kind)
}

func TestVerifyPinRequiresDeviceNodeID(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOK", now, time.Minute)
	connected, pin, err := state.ConnectDevice("1.2.3.4", now)
	require.NoError(t, err)

	_, err = connected.VerifyPin(pin, "sess", now)
	require.Error(t, err)
	var pe *PairingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrMissingNodeID, pe.Kind)
}

func TestVerifyPinWrongPinIncrementsAttemptsThenFails(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOK", now, time.Minute)
	connected, _, err := state.ConnectDevice("1.2.3.4", now)
	require.NoError(t, err)
	connected, err = connected.SetDeviceNodeID("node-1")
	require.NoError(t, err)

	current := connected
	for i := 0; i < maxPinAttempts-1; i++ {
		next, err := current.VerifyPin("000000", "sess", now)
		require.Error(t, err)
		assert.Equal(t, StateDeviceConnected, next.Name)
		assert.Equal(t, i+1, next.FailedAttempts)
		current = next
	}

	final, err := current.VerifyPin("000000", "sess", now)
	require.Error(t, err)
	assert.Equal(t, StateFailed, final.Name)
	assert.Equal(t, FailureTooManyAttempts, final.FailureReason)
}

func TestFailTransitionAlwaysSucceeds(t *testing.T) {
	now := time.Now()
	state := CreatePairing("TOK", now, time.Minute)
	failed := state.Fail(FailureTokenExpired, "expired mid-flow", now)
	assert.Equal(t, StateFailed, failed.Name)
	assert.True(t, failed.IsFailed())
	assert.True(t, failed.IsExpired(now))
}

func TestPairingStateJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	state := PairingState{
		Name:      StateDeviceConnected,
		Token:     "TOK",
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
		DeviceIP:  "192.168.1.50",
		PinHash:   "$2a$10$somethinghashlooking",
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"device_connected"`)

	var roundTripped PairingState
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, state.Name, roundTripped.Name)
	assert.Equal(t, state.Token, roundTripped.Token)
	assert.True(t, state.CreatedAt.Equal(roundTripped.CreatedAt))
	assert.True(t, state.ExpiresAt.Equal(roundTripped.ExpiresAt))
	assert.Equal(t, state.PinHash, roundTripped.PinHash)
}
