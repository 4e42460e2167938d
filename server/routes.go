package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Token management, status stays open for monitoring
	s.RegisterRouteHandler("POST "+RouteAuthToken, ChainMiddleware(s.AuthTokenHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.AuthRefreshHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.AuthLogoutHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteAuthClear, ChainMiddleware(s.AuthClearHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteAuthStatus, ChainMiddleware(s.AuthStatusHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteWinningProducts, ChainMiddleware(s.WinningProductsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWinningProductsScored, ChainMiddleware(s.ScoredProductsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteWinningProductsRefresh, ChainMiddleware(s.RefreshProductsHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("GET "+RouteCacheStats, ChainMiddleware(s.CacheStatsHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("POST "+RouteWebhookShopifyOrders, ChainMiddleware(s.ShopifyWebhookHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteWebhookWooCommerceOrders, ChainMiddleware(s.WooCommerceWebhookHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteWebhookWooCommerceOrdersCreate, ChainMiddleware(s.WooCommerceWebhookHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWebhooksReceived, ChainMiddleware(s.ReceivedWebhooksHandler(), s.APIMiddleware(s.RequireAuth())...))

	s.RegisterRouteHandler("OPTIONS "+RoutePreflight, ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.CorsMiddleware))
}
