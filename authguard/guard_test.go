package authguard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-dropship-gateway/authguard"
	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	valid map[string]string
}

func (f fakeVerifier) Verify(_ context.Context, raw string) (*oidc.IDToken, error) {
	if sub, ok := f.valid[raw]; ok {
		return &oidc.IDToken{Subject: sub}, nil
	}
	return nil, errors.New("bad id token")
}

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestOpenGuard(t *testing.T) {
	g := authguard.New(authguard.WithAdminKeyHash(""), authguard.WithHMACSecret(""))
	require.False(t, g.Enabled())

	id, err := g.Authenticate(request(nil))
	require.NoError(t, err)
	require.Equal(t, authguard.MethodOpen, id.Method)
}

func TestAdminKey(t *testing.T) {
	hash, err := authguard.HashAdminKey("let-me-in")
	require.NoError(t, err)
	g := authguard.New(authguard.WithAdminKeyHash(hash))
	require.True(t, g.Enabled())

	id, err := g.Authenticate(request(map[string]string{authguard.AdminKeyHeader: "let-me-in"}))
	require.NoError(t, err)
	require.Equal(t, authguard.MethodAdminKey, id.Method)

	_, err = g.Authenticate(request(map[string]string{authguard.AdminKeyHeader: "guess"}))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = g.Authenticate(request(nil))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestHMACBearer(t *testing.T) {
	g := authguard.New(authguard.WithHMACSecret("shh"))
	signer := authguard.NewHMACSigner("shh")

	tok, err := signer.Sign("ops", time.Hour)
	require.NoError(t, err)
	id, err := g.Authenticate(request(map[string]string{"Authorization": "Bearer " + tok}))
	require.NoError(t, err)
	require.Equal(t, authguard.Identity{Subject: "ops", Method: authguard.MethodHMAC}, id)

	expired, err := signer.Sign("ops", -time.Minute)
	require.NoError(t, err)
	_, err = g.Authenticate(request(map[string]string{"Authorization": "Bearer " + expired}))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	foreign, err := authguard.NewHMACSigner("other").Sign("ops", time.Hour)
	require.NoError(t, err)
	_, err = g.Authenticate(request(map[string]string{"Authorization": "Bearer " + foreign}))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestHMACRejectsOtherAlgorithms(t *testing.T) {
	signer := authguard.NewHMACSigner("shh")
	claims := jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Verify(none)
	require.Error(t, err)
}

func TestOIDCBearer(t *testing.T) {
	g := authguard.New(authguard.WithIDTokenVerifier(fakeVerifier{valid: map[string]string{"id-token": "user-7"}}))

	id, err := g.Authenticate(request(map[string]string{"Authorization": "bearer id-token"}))
	require.NoError(t, err)
	require.Equal(t, authguard.Identity{Subject: "user-7", Method: authguard.MethodOIDC}, id)

	_, err = g.Authenticate(request(map[string]string{"Authorization": "Bearer nope"}))
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
