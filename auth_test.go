package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.now = testClock

	raw, err := issuer.Issue("user-42", roleUser)
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, roleUser, claims.Role)
}

func TestTokenExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.now = testClock
	raw, err := issuer.Issue("user-42", roleUser)
	require.NoError(t, err)

	issuer.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	_, err = issuer.Parse(raw)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{Subject: "user-42"})
	raw, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = issuer.Parse(raw)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenRequiresSubject(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	raw, err := issuer.Issue("", roleUser)
	require.NoError(t, err)
	_, err = issuer.Parse(raw)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserFromRequest(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	raw, err := issuer.Issue("user-42", roleUser)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ws?token="+raw, nil)
	user, err := issuer.userFromRequest(req, true)
	require.NoError(t, err)
	assert.Equal(t, "user-42", user)

	req = httptest.NewRequest("GET", "/api/me/progress?token="+raw, nil)
	_, err = issuer.userFromRequest(req, false)
	require.ErrorIs(t, err, ErrUnauthorized, "query token outside the websocket route")

	req = httptest.NewRequest("GET", "/api/me/progress", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	user, err = issuer.userFromRequest(req, false)
	require.NoError(t, err)
	assert.Equal(t, "user-42", user)

	req = httptest.NewRequest("GET", "/api/me/progress", nil)
	_, err = issuer.userFromRequest(req, false)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserFromRequestRejectsAdminRole(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	raw, err := issuer.Issue("ops@ecohop.test", roleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/me/progress", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	_, err = issuer.userFromRequest(req, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	req = httptest.NewRequest("GET", "/ws?token="+raw, nil)
	_, err = issuer.userFromRequest(req, true)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminStore(t *testing.T) {
	ctx := context.Background()
	admins := NewAdminStore(newRecordUpdater(NewMemoryStore(), 3, quietLogger()))

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	created, err := admins.Create(ctx, "Ops@EcoHop.test", string(hash))
	require.NoError(t, err)
	assert.True(t, created)
	created, err = admins.Create(ctx, "ops@ecohop.test", "other")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, admins.Authenticate(ctx, "ops@ecohop.test", "pw"))
	require.ErrorIs(t, admins.Authenticate(ctx, "ops@ecohop.test", "nope"), ErrUnauthorized)
	require.ErrorIs(t, admins.Authenticate(ctx, "ghost@ecohop.test", "pw"), ErrUnauthorized)
}
