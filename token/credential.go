package token

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the upstream access/refresh token pair plus the bookkeeping
// that throttles full authentication.
type Credential struct {
	Token        *oauth2.Token
	LastAuthAt   time.Time
	AuthAttempts int
}

func (c Credential) accessToken() string {
	if c.Token == nil {
		return ""
	}
	return c.Token.AccessToken
}

func (c Credential) refreshToken() string {
	if c.Token == nil {
		return ""
	}
	return c.Token.RefreshToken
}

func (c Credential) expiry() time.Time {
	if c.Token == nil {
		return time.Time{}
	}
	return c.Token.Expiry
}

// Record is the persisted form of a Credential. Times are epoch milliseconds.
type Record struct {
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken"`
	AccessTokenExpiry int64  `json:"accessTokenExpiry"`
	LastAuthAt        int64  `json:"lastAuthAt"`
	AuthAttempts      int    `json:"authAttempts"`
	Timestamp         int64  `json:"timestamp"`
}

func newRecord(c Credential, now time.Time) *Record {
	return &Record{
		AccessToken:       c.accessToken(),
		RefreshToken:      c.refreshToken(),
		AccessTokenExpiry: toMillis(c.expiry()),
		LastAuthAt:        toMillis(c.LastAuthAt),
		AuthAttempts:      c.AuthAttempts,
		Timestamp:         now.UnixMilli(),
	}
}

// Credential restores the in-memory form.
func (r *Record) Credential() Credential {
	c := Credential{
		LastAuthAt:   fromMillis(r.LastAuthAt),
		AuthAttempts: r.AuthAttempts,
	}
	if r.AccessToken != "" || r.RefreshToken != "" {
		c.Token = &oauth2.Token{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			Expiry:       fromMillis(r.AccessTokenExpiry),
		}
	}
	return c
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
