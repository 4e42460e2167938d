package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/rs/zerolog"
)

// TokenResponse mirrors the upstream envelope for token endpoints.
type TokenResponse struct {
	Code    int       `json:"code"`
	Result  bool      `json:"result"`
	Message string    `json:"message,omitempty"`
	Data    TokenData `json:"data"`
}

type TokenData struct {
	AccessToken string `json:"accessToken"`
}

// AuthTokenHandler returns a valid access token, authenticating if needed.
// Throttle and cooldown refusals keep their message so the operator sees the wait.
func (s *Server) AuthTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.tokens.EnsureToken(context.WithoutCancel(r.Context()))
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("get access token failed")
			writeError(w, err, proxy.ErrorBody{Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, TokenResponse{Code: http.StatusOK, Result: true, Message: "Success", Data: TokenData{AccessToken: tok}})
	}
}

func (s *Server) AuthRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.tokens.Refresh(context.WithoutCancel(r.Context()))
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("refresh access token failed")
			if apperrors.Is(err, apperrors.ErrAuthFailed) {
				writeJSON(w, http.StatusBadRequest, proxy.ErrorBody{Message: "Refresh failed"})
				return
			}
			writeError(w, err, proxy.ErrorFor(err))
			return
		}
		writeJSON(w, http.StatusOK, TokenResponse{Code: http.StatusOK, Result: true, Data: TokenData{AccessToken: tok}})
	}
}

// AuthLogoutHandler relays the upstream logout answer. Local state is cleared
// whatever the upstream says.
func (s *Server) AuthLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.tokens.Logout(context.WithoutCancel(r.Context()))
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("logout failed")
			writeJSON(w, http.StatusInternalServerError, proxy.ErrorBody{Message: proxy.GenericErrorMessage})
			return
		}
		if resp == nil {
			writeJSON(w, http.StatusOK, map[string]any{"code": http.StatusOK, "result": true, "data": true})
			return
		}
		writeRaw(w, resp.Status, resp.Body)
	}
}

func (s *Server) AuthStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.tokens.Status())
	}
}

func (s *Server) AuthClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.tokens.Clear()
		logger := zerolog.Ctx(r.Context()).Info()
		if identity, ok := IdentityFromContext(r.Context()); ok {
			logger = logger.Str("by", identity.Subject).Str("auth_method", identity.Method)
		}
		logger.Msg("auth state cleared")
		writeJSON(w, http.StatusOK, proxy.ErrorBody{Result: true, Message: "Auth state cleared"})
	}
}
