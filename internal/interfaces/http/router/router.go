// Package router assembles the gin engine: global middleware, the webhook
// endpoints and the public invoice view.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/interfaces/http/handler"
	"github.com/tallyline/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup creates a route group for a specific domain
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{
		name:   name,
		prefix: prefix,
	}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// OPTIONS registers an OPTIONS route, used for CORS preflight
func (dg *DomainGroup) OPTIONS(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodOptions, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Config carries the handlers and cross-cutting settings of the engine
type Config struct {
	Logger *zap.Logger
	// Meter records HTTP metrics; nil disables them
	Meter       metric.Meter
	Tracing     middleware.TracingConfig
	MaxBodySize int64
	// TrustedProxies is passed to gin; nil trusts no proxy
	TrustedProxies []string
	CORS           middleware.CORSConfig
	// PublicLimiter guards the unauthenticated invoice lookup; nil disables it
	PublicLimiter *middleware.RateLimiter

	Health        *handler.HealthHandler
	Channel       *handler.ChannelWebhookHandler
	Payments      *handler.PaymentWebhookHandler
	PublicInvoice *handler.PublicInvoiceHandler
}

// New builds the engine with every route the service exposes
func New(cfg Config) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(cfg.Tracing),
		middleware.SpanMarker(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	engine.GET("/health", cfg.Health.Health)

	r := NewRouter(engine)

	r.Register(NewDomainGroup("channel", "/channel").
		GET("/webhook", cfg.Channel.Verify).
		POST("/webhook", cfg.Channel.Receive))

	r.Register(NewDomainGroup("payments", "/payments").
		POST("/webhook", cfg.Payments.Receive))

	public := NewDomainGroup("public", "/public").Use(middleware.CORS(cfg.CORS))
	if cfg.PublicLimiter != nil {
		public.Use(middleware.RateLimit(cfg.PublicLimiter))
	}
	public.GET("/invoices/:code", cfg.PublicInvoice.Get).
		OPTIONS("/invoices/:code", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Register(public)

	r.Setup()
	return engine, nil
}
