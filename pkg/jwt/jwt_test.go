package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerIssueAndValidate(t *testing.T) {
	m, err := NewManager("secret", "livego", time.Minute)
	require.NoError(t, err)

	token, err := m.Issue("u1", "alice", []string{"admin"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestManagerRejectsForeignSecret(t *testing.T) {
	a, err := NewManager("secret-a", "livego", time.Minute)
	require.NoError(t, err)
	b, err := NewManager("secret-b", "livego", time.Minute)
	require.NoError(t, err)

	token, err := a.Issue("u1", "alice", nil)
	require.NoError(t, err)

	_, err = b.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerRejectsExpiredToken(t *testing.T) {
	m, err := NewManager("secret", "livego", -time.Minute)
	require.NoError(t, err)

	token, err := m.Issue("u1", "alice", nil)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", "livego", time.Minute)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
