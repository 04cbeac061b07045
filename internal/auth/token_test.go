package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, ttl time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", ttl)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t, time.Hour)

	token, err := svc.Issue("user-42")
	require.NoError(t, err)

	userID, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	// Second verification exercises the cache path.
	userID, err = svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestVerifyRejectsTampering(t *testing.T) {
	svc := newTestService(t, time.Hour)

	token, err := svc.Issue("user-42")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)
	parts[1] = parts[1][:len(parts[1])-1] + "x"
	tampered := strings.Join(parts, ".")

	_, err = svc.Verify(tampered)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := newTestService(t, -time.Minute)

	token, err := svc.Issue("user-42")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "expired")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c", "wr1.x.y.z"} {
		_, err := svc.Verify(token)
		var authErr *AuthenticationError
		assert.True(t, errors.As(err, &authErr), "token %q should fail", token)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t, time.Hour)
	other, err := NewTokenService("different-secret", time.Hour)
	require.NoError(t, err)
	defer other.Close()

	token, err := other.Issue("user-42")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.Error(t, err)
}
