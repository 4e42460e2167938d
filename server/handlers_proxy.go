package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/rs/zerolog"
)

// CacheHeader reports whether a proxied answer came from the result cache.
const CacheHeader = "X-Cache"

// ProxyHandler relays /proxy/<upstream path> with its query and JSON body.
// The upstream call runs to completion even if the caller disconnects.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := proxy.Request{
			Method: r.Method,
			Path:   r.PathValue("path"),
			Query:  r.URL.Query(),
		}
		if r.Method == http.MethodPost {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeJSON(w, http.StatusRequestEntityTooLarge, proxy.ErrorBody{Message: "Request body too large"})
				return
			}
			if len(body) > 0 && !json.Valid(body) {
				writeJSON(w, http.StatusBadRequest, proxy.ErrorBody{Message: "Request body must be JSON"})
				return
			}
			req.Body = body
		}

		res, err := s.proxy.Forward(context.WithoutCancel(r.Context()), req)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("upstream_path", req.Path).Msg("proxy forward failed")
			writeError(w, err, proxy.ErrorFor(err))
			return
		}

		if res.Cached {
			w.Header().Set(CacheHeader, "HIT")
		} else {
			w.Header().Set(CacheHeader, "MISS")
		}
		writeRaw(w, res.Status, res.Body)
	}
}
