package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-dropship-gateway/cache"
	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/jrsteele09/go-dropship-gateway/ratelimit"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "OK", Message: "API server is running"})
	}
}

// CacheStatsResponse reports the proxy result cache counters and the calls
// charged to each scope's current rate window.
type CacheStatsResponse struct {
	Enabled    bool                    `json:"enabled"`
	Stats      *cache.Stats            `json:"stats,omitempty"`
	RateWindow map[ratelimit.Scope]int `json:"rateWindow,omitempty"`
}

func (s *Server) CacheStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := CacheStatsResponse{Enabled: s.cache != nil}
		if s.cache != nil {
			stats := s.cache.Stats()
			resp.Stats = &stats
		}
		if s.limiter != nil {
			resp.RateWindow = s.limiter.Stats()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw relays an already encoded JSON body.
func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError reports err with the proxy's status mapping, adding Retry-After
// when the error carries a wait.
func writeError(w http.ResponseWriter, err error, body proxy.ErrorBody) {
	if wait, ok := apperrors.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	writeJSON(w, proxy.StatusFor(err), body)
}
