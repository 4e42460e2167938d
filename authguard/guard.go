// Package authguard decides whether an inbound caller may use the operator
// routes: an admin key checked against a bcrypt hash, an HS256 bearer token,
// or an ID token from the configured OIDC issuer.
package authguard

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-dropship-gateway/internal/config"
	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the plain admin key.
const AdminKeyHeader = "X-Admin-Key"

// Methods by which a caller was identified.
const (
	MethodOpen     = "open"
	MethodAdminKey = "admin_key"
	MethodHMAC     = "hmac"
	MethodOIDC     = "oidc"
)

// Identity is the caller a request was authenticated as.
type Identity struct {
	Subject string
	Method  string
}

// IDTokenVerifier is satisfied by *oidc.IDTokenVerifier.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

type Guard struct {
	adminKeyHash []byte
	hmac         *HMACSigner
	oidc         IDTokenVerifier
}

type Option func(*Guard)

// WithAdminKeyHash accepts callers presenting the key behind a bcrypt hash.
func WithAdminKeyHash(hash string) Option {
	return func(g *Guard) {
		if hash != "" {
			g.adminKeyHash = []byte(hash)
		}
	}
}

// WithHMACSecret accepts HS256 bearer tokens signed with secret.
func WithHMACSecret(secret string) Option {
	return func(g *Guard) {
		if secret != "" {
			g.hmac = NewHMACSigner(secret)
		}
	}
}

// WithIDTokenVerifier accepts bearer ID tokens that v verifies.
func WithIDTokenVerifier(v IDTokenVerifier) Option {
	return func(g *Guard) {
		g.oidc = v
	}
}

func New(options ...Option) *Guard {
	g := &Guard{}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// FromConfig builds a guard from configuration, discovering the OIDC issuer
// when one is configured.
func FromConfig(ctx context.Context, c config.GuardConfig) (*Guard, error) {
	options := []Option{
		WithAdminKeyHash(c.GetAdminKeyHash()),
		WithHMACSecret(c.GetAdminJWTSecret()),
	}
	if issuer := c.GetOIDCIssuerURL(); issuer != "" {
		provider, err := oidc.NewProvider(ctx, issuer)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OIDC provider")
		}
		options = append(options, WithIDTokenVerifier(provider.Verifier(&oidc.Config{
			ClientID:          c.GetOIDCClientID(),
			SkipClientIDCheck: c.GetOIDCClientID() == "",
		})))
	}
	return New(options...), nil
}

// Enabled reports whether any credential is configured. A disabled guard
// lets every request through.
func (g *Guard) Enabled() bool {
	return g.adminKeyHash != nil || g.hmac != nil || g.oidc != nil
}

// Authenticate identifies the caller of r or returns an error wrapping
// ErrUnauthorized.
func (g *Guard) Authenticate(r *http.Request) (Identity, error) {
	if !g.Enabled() {
		return Identity{Method: MethodOpen}, nil
	}

	if key := r.Header.Get(AdminKeyHeader); key != "" && g.adminKeyHash != nil {
		if bcrypt.CompareHashAndPassword(g.adminKeyHash, []byte(key)) == nil {
			return Identity{Subject: "admin", Method: MethodAdminKey}, nil
		}
		return Identity{}, errors.Wrap(apperrors.ErrUnauthorized, "invalid admin key")
	}

	raw, ok := bearerToken(r)
	if !ok {
		return Identity{}, errors.Wrap(apperrors.ErrUnauthorized, "missing credentials")
	}
	if g.hmac != nil {
		if subject, err := g.hmac.Verify(raw); err == nil {
			return Identity{Subject: subject, Method: MethodHMAC}, nil
		}
	}
	if g.oidc != nil {
		if idToken, err := g.oidc.Verify(r.Context(), raw); err == nil {
			return Identity{Subject: idToken.Subject, Method: MethodOIDC}, nil
		}
	}
	return Identity{}, errors.Wrap(apperrors.ErrUnauthorized, "invalid bearer token")
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// HashAdminKey returns the bcrypt hash to configure as ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(hash), err
}
