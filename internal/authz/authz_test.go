package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("test-secret", "", 15*time.Minute)
	require.NoError(t, err)
	return s
}

func TestRegisterAuthenticateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key, err := s.RegisterAgent("agent-1", "Agent One", nil, nil, nil, nil)
	require.NoError(t, err)

	id, ok := s.Authenticate(key)
	require.True(t, ok)
	assert.Equal(t, "agent-1", id)

	_, ok = s.Authenticate("wrong-key-00000000000000000000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestIssueAndVerifyToken(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("agent-1", "Agent One", nil, nil, nil, nil)
	require.NoError(t, err)

	token, err := s.IssueToken("agent-1")
	require.NoError(t, err)

	id, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", id)
}

func TestVerifyTokenRejectsUnknownAgent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("agent-1", "Agent One", nil, nil, nil, nil)
	require.NoError(t, err)
	token, err := s.IssueToken("agent-1")
	require.NoError(t, err)

	other := newTestStore(t)
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestEmptyAllowListMeansAllAllowed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("agent-1", "Agent One", nil, nil, nil, nil)
	require.NoError(t, err)

	assert.True(t, s.IsAPIAllowed("agent-1", "any-api"))
	assert.True(t, s.IsCredentialAllowed("agent-1", "any-cred"))
	assert.True(t, s.IsOperationAllowed("agent-1", "ApiCall"))
}

func TestNonEmptyAllowListRestricts(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("agent-1", "Agent One", []string{"weather-api"}, nil, nil, nil)
	require.NoError(t, err)

	assert.True(t, s.IsAPIAllowed("agent-1", "weather-api"))
	assert.False(t, s.IsAPIAllowed("agent-1", "billing-api"))
}

func TestUnknownAgentDeniedEverything(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.IsAPIAllowed("ghost", "any-api"))
	assert.False(t, s.IsCredentialAllowed("ghost", "any-cred"))
	assert.False(t, s.IsOperationAllowed("ghost", "ApiCall"))
}

func TestPermissionsProjectionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterAgent("agent-1", "Agent One", []string{"a"}, []string{"b"}, []string{"c"}, nil)
	require.NoError(t, err)

	first, ok := s.Permissions("agent-1")
	require.True(t, ok)
	second, ok := s.Permissions("agent-1")
	require.True(t, ok)
	assert.Equal(t, first, second)
}
