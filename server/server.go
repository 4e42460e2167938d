package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-dropship-gateway/authguard"
	"github.com/jrsteele09/go-dropship-gateway/cache"
	"github.com/jrsteele09/go-dropship-gateway/catalog"
	"github.com/jrsteele09/go-dropship-gateway/internal/config"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/jrsteele09/go-dropship-gateway/ratelimit"
	"github.com/jrsteele09/go-dropship-gateway/token"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/jrsteele09/go-dropship-gateway/webhooks"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Services are the components the HTTP surface exposes. Tokens, Proxy and
// Public are required; Scored is nil when scoring is disabled.
type Services struct {
	Tokens   *token.Manager
	Proxy    *proxy.Proxy
	Cache    *cache.Cache[*upstream.Response]
	Limiter  *ratelimit.Limiter
	Public   *catalog.Engine[catalog.PublicProduct]
	Scored   *catalog.Engine[catalog.ScoredProduct]
	Webhooks *webhooks.Log
	Guard    *authguard.Guard
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
}

type Server struct {
	env           string
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	webhookSecret string

	tokens   *token.Manager
	proxy    *proxy.Proxy
	cache    *cache.Cache[*upstream.Response]
	limiter  *ratelimit.Limiter
	public   *catalog.Engine[catalog.PublicProduct]
	scored   *catalog.Engine[catalog.ScoredProduct]
	webhooks *webhooks.Log
	guard    *authguard.Guard
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

func New(c config.Config, svc Services) (*Server, error) {
	if svc.Tokens == nil || svc.Proxy == nil || svc.Public == nil {
		return nil, errors.New("[Server New] token manager, proxy and public engine are required")
	}

	s := &Server{
		mux:           http.NewServeMux(),
		config:        c,
		env:           c.GetEnv(),
		webhookSecret: c.GetWebhookSecret(),
		tokens:        svc.Tokens,
		proxy:         svc.Proxy,
		cache:         svc.Cache,
		limiter:       svc.Limiter,
		public:        svc.Public,
		scored:        svc.Scored,
		webhooks:      svc.Webhooks,
		guard:         svc.Guard,
		gatherer:      svc.Gatherer,
		logger:        log.Logger,
	}
	if svc.Logger != nil {
		s.logger = *svc.Logger
	}
	if s.webhooks == nil {
		s.webhooks = webhooks.NewLog()
	}
	if s.guard == nil {
		s.guard = authguard.New()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if !s.guard.Enabled() && s.env != "DEV" {
		s.logger.Warn().Msg("no admin credentials configured, operator routes are open")
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
