package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-dropship-gateway/authguard"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the authenticated authguard.Identity
const ContextKeyIdentity ContextKey = "identity"

// RequireAuth rejects requests the guard cannot identify. An unconfigured
// guard lets everything through.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := s.guard.Authenticate(r)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("rejected request")
				w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
				writeJSON(w, http.StatusUnauthorized, proxy.ErrorBody{Message: "Unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

// IdentityFromContext returns the caller identified by RequireAuth.
func IdentityFromContext(ctx context.Context) (authguard.Identity, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(authguard.Identity)
	return identity, ok
}
