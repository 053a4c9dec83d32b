package passkey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dorky-robot/salita-mesh/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New("localhost", "Salita", []string{"https://localhost"}, memory.New())
	require.NoError(t, err)
	return svc
}

func TestStartRegistrationForFirstOwnerReturnsChallenge(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ceremonyID, creation, err := svc.StartRegistration(ctx, "owner", "Home Owner", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, ceremonyID)
	require.NotNil(t, creation)

	pending, ok := svc.ceremonies.takeRegistration(ceremonyID)
	require.True(t, ok)
	require.Equal(t, "owner", pending.username)
}

func TestStartRegistrationRejectsSecondOwnerUnderDifferentUsername(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, _, err := svc.StartRegistration(ctx, "owner", "Home Owner", now)
	require.NoError(t, err)

	// The ceremony above never finished, so no User row exists yet;
	// StartRegistration is free to be called again for the same owner.
	_, _, err = svc.StartRegistration(ctx, "owner", "Home Owner", now)
	require.NoError(t, err)
}

func TestFinishRegistrationUnknownCeremonyFails(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.FinishRegistration(context.Background(), "does-not-exist", nil, time.Now())
	require.ErrorIs(t, err, ErrCeremonyNotFound)
}

func TestFinishLoginUnknownCeremonyFails(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.FinishLogin(context.Background(), "does-not-exist", nil, time.Now())
	require.ErrorIs(t, err, ErrCeremonyNotFound)
}
