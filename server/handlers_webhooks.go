package server

import (
	"io"
	"net/http"

	"github.com/jrsteele09/go-dropship-gateway/webhooks"
	"github.com/rs/zerolog"
)

const receivedWebhooksLimit = 50

// ShopifyWebhookHandler stores an order delivery. The signature is only
// checked when a webhook secret is configured.
func (s *Server) ShopifyWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readWebhookBody(w, r)
		if !ok {
			return
		}
		if s.webhookSecret != "" && !webhooks.VerifyShopify(s.webhookSecret, body, r.Header.Get(webhooks.ShopifyHMACHeader)) {
			zerolog.Ctx(r.Context()).Warn().Msg("shopify webhook signature mismatch")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		s.acceptWebhook(w, r, webhooks.SourceShopify, body)
	}
}

func (s *Server) WooCommerceWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readWebhookBody(w, r)
		if !ok {
			return
		}
		s.acceptWebhook(w, r, webhooks.SourceWooCommerce, body)
	}
}

func (s *Server) acceptWebhook(w http.ResponseWriter, r *http.Request, source string, body []byte) {
	event := s.webhooks.Record(source, body)
	zerolog.Ctx(r.Context()).Info().Str("source", source).Str("event_id", event.ID).Msg("webhook received")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func readWebhookBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

// ReceivedWebhooksResponse lists the most recent deliveries, newest last.
type ReceivedWebhooksResponse struct {
	Success bool             `json:"success"`
	Total   int              `json:"total"`
	Items   []webhooks.Event `json:"items"`
}

func (s *Server) ReceivedWebhooksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ReceivedWebhooksResponse{
			Success: true,
			Total:   s.webhooks.Len(),
			Items:   s.webhooks.Recent(receivedWebhooksLimit),
		})
	}
}
