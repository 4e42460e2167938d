package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-dropship-gateway/catalog"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
)

// ProductsResponse is a served snapshot. UpdatedAt is epoch milliseconds, zero
// before the first refresh.
type ProductsResponse[T any] struct {
	UpdatedAt int64 `json:"updatedAt"`
	Count     int   `json:"count"`
	Products  []T   `json:"products"`
}

func newProductsResponse[T any](snap *catalog.Snapshot[T]) ProductsResponse[T] {
	return ProductsResponse[T]{
		UpdatedAt: millis(snap.RefreshedAt),
		Count:     len(snap.Items),
		Products:  snap.Items,
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// WinningProductsHandler serves the public snapshot without waiting on upstream.
func (s *Server) WinningProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newProductsResponse(s.public.Serve()))
	}
}

func (s *Server) ScoredProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scored == nil {
			writeJSON(w, http.StatusNotFound, proxy.ErrorBody{Message: "Scoring is disabled"})
			return
		}
		writeJSON(w, http.StatusOK, newProductsResponse(s.scored.Serve()))
	}
}

// RefreshResponse reports which engines started a refresh. An engine already
// refreshing is not started again.
type RefreshResponse struct {
	Result  bool            `json:"result"`
	Started map[string]bool `json:"started"`
}

func (s *Server) RefreshProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := map[string]bool{
			s.public.Name(): s.public.TriggerRefresh(catalog.TriggerManual),
		}
		if s.scored != nil {
			started[s.scored.Name()] = s.scored.TriggerRefresh(catalog.TriggerManual)
		}
		writeJSON(w, http.StatusAccepted, RefreshResponse{Result: true, Started: started})
	}
}
