package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(allowed []string) *UserService {
	return NewUserService(nil, nil, nil, NewSessionTracker(5*time.Minute), "test-secret", allowed)
}

func TestEmailAllowed(t *testing.T) {
	svc := newTestUserService([]string{"Alice@Example.com", " bob@example.com "})

	assert.True(t, svc.EmailAllowed("alice@example.com"))
	assert.True(t, svc.EmailAllowed("ALICE@EXAMPLE.COM"))
	assert.True(t, svc.EmailAllowed("bob@example.com"))
	assert.False(t, svc.EmailAllowed("mallory@example.com"))
}

func TestEmailAllowed_EmptyListDisablesGate(t *testing.T) {
	svc := newTestUserService(nil)
	assert.True(t, svc.EmailAllowed("anyone@example.com"))
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"abc", "user_123", "ABC_def", "a1234567890123456789"}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), u)
	}

	invalid := []string{"", "ab", "has space", "has-dash", "way_too_long_username_x", "émoji", "dot.name"}
	for _, u := range invalid {
		assert.Error(t, ValidateUsername(u), u)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	svc := newTestUserService(nil)

	token, err := svc.GenerateJWT("user-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := newTestUserService(nil).GenerateJWT("user-42")
	require.NoError(t, err)

	other := NewUserService(nil, nil, nil, NewSessionTracker(5*time.Minute), "other-secret", nil)
	_, err = other.ValidateJWT(token)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	svc := newTestUserService(nil)
	_, err := svc.ValidateJWT("not.a.jwt")
	assert.Error(t, err)
}
