package linking

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	s := New()
	code, err := s.Generate("u1", PurposeAddPasskey, time.Now())
	require.NoError(t, err)

	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Len(t, parts[2], 2)
}

func TestVerifyConsumesCodeOnce(t *testing.T) {
	s := New()
	now := time.Now()
	code, err := s.Generate("u1", PurposePairDevice, now)
	require.NoError(t, err)

	got, ok := s.Verify(code, now)
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, PurposePairDevice, got.Purpose)

	_, ok = s.Verify(code, now)
	assert.False(t, ok, "a code must be single-use")
}

func TestExpiredCodeIsRejected(t *testing.T) {
	s := New()
	now := time.Now()
	code, err := s.Generate("u1", PurposeAddPasskey, now)
	require.NoError(t, err)

	later := now.Add(TTL + time.Minute)
	assert.False(t, s.Exists(code, later))
	_, ok := s.Verify(code, later)
	assert.False(t, ok)
}
