package config

type GuardConfig interface {
	GetAdminKeyHash() string
	GetAdminJWTSecret() string
	GetOIDCIssuerURL() string
	GetOIDCClientID() string
}

type Guard struct {
	AdminKeyHash   string `env:"ADMIN_KEY_HASH"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	OIDCIssuerURL  string `env:"OIDC_ISSUER_URL"`
	OIDCClientID   string `env:"OIDC_CLIENT_ID"`
}

var _ GuardConfig = Guard{}

func (g Guard) GetAdminKeyHash() string {
	return g.AdminKeyHash
}

func (g Guard) GetAdminJWTSecret() string {
	return g.AdminJWTSecret
}

func (g Guard) GetOIDCIssuerURL() string {
	return g.OIDCIssuerURL
}

func (g Guard) GetOIDCClientID() string {
	return g.OIDCClientID
}
