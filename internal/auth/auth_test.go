package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, exp, err := mgr.IssueToken("ops@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Operator)
	assert.Equal(t, "kaizen", claims.Issuer)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	mgrA, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	mgrB, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgrA.IssueToken("ops@example.com")
	require.NoError(t, err)

	_, err = mgrB.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := HashAPIKey("kz_live_s3cret")
	require.NoError(t, err)

	ok, err := VerifyAPIKey("kz_live_s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("kz_live_wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyAPIKey("anything", "malformed")
	assert.Error(t, err)
}
