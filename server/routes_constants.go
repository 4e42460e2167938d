package server

// Route path constants
const (
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"

	// Upstream token management
	RouteAuthToken   = "/auth/token"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthLogout  = "/auth/logout"
	RouteAuthStatus  = "/auth/status"
	RouteAuthClear   = "/auth/clear"

	// Generic passthrough, the remainder of the path is the upstream path
	RouteProxy = "/proxy/{path...}"

	// Aggregation snapshots
	RouteWinningProducts        = "/winning-products"
	RouteWinningProductsScored  = "/winning-products/scored"
	RouteWinningProductsRefresh = "/winning-products/refresh"

	RouteCacheStats = "/cache/stats"

	// Store webhooks
	RouteWebhookShopifyOrders           = "/webhooks/shopify/orders"
	RouteWebhookWooCommerceOrders       = "/webhooks/woocommerce/orders"
	RouteWebhookWooCommerceOrdersCreate = "/webhooks/woocommerce/orders/create"
	RouteWebhooksReceived               = "/webhooks/received"

	RoutePreflight = "/{path...}"
)
