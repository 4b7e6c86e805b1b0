package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/config"
	"github.com/hongminglow/all-in-iam/internal/http/handlers"
	"github.com/hongminglow/all-in-iam/internal/http/respond"
	"github.com/hongminglow/all-in-iam/internal/logging"
	"github.com/hongminglow/all-in-iam/internal/middleware"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/observability"
)

// Deps are the collaborators the HTTP layer is built from. Redis, DB and
// Metrics are optional.
type Deps struct {
	Auth    *auth.Service
	Users   handlers.UserService
	Metrics *observability.Metrics
	Redis   redis.Cmdable
	DB      handlers.Pinger
	Logger  *slog.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	logger := logging.Resolve(deps.Logger)
	policy := auth.NewPolicy()
	authorizer := middleware.NewAuthorizer(deps.Auth, policy, deps.Metrics, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.SecureHeaders(cfg.IsProduction()))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(deps.Metrics.Middleware)
	r.Use(authorizer.Authenticate)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	rt := routes{r: r, policy: policy, authorizer: authorizer}

	health := handlers.NewHealthHandler(time.Now(), deps.DB)
	rt.handle(http.MethodGet, "/health", nil, health.Health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Metrics, logger)
	rt.handle(http.MethodPost, "/auth/login", nil, authHandler.Login, loginLimiter(cfg.LoginRateLimit))

	productCache := middleware.Cache(deps.Redis, middleware.CachePolicy{
		Key: middleware.RequestKey("products"),
		TTL: cfg.CacheTTL,
	}, logger)

	userHandler := handlers.NewUserHandler(deps.Users, logger)
	rt.handle(http.MethodPost, "/users", []string{models.RoleAdmin}, userHandler.Create)
	rt.handle(http.MethodGet, "/users", []string{models.RoleAdmin, models.RoleUser}, userHandler.List)
	rt.handle(http.MethodGet, "/users/{id}", []string{models.RoleAdmin, models.RoleUser}, userHandler.Get)
	rt.handle(http.MethodGet, "/users/public/products",
		[]string{models.RoleVisitor, models.RoleUser, models.RoleAdmin}, userHandler.PublicProducts, productCache)
	rt.handle(http.MethodPost, "/users/admin/products", []string{models.RoleAdmin}, userHandler.CreateProduct)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// routes registers a handler together with the roles allowed to call it.
type routes struct {
	r          chi.Router
	policy     *auth.Policy
	authorizer *middleware.Authorizer
}

// handle mounts h behind the role check. A nil roles slice leaves the route
// public.
func (rt routes) handle(method, pattern string, roles []string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
	if roles != nil {
		rt.policy.Require(method, pattern, roles...)
	}
	chain := append([]func(http.Handler) http.Handler{rt.authorizer.Require}, mws...)
	rt.r.With(chain...).Method(method, pattern, h)
}

func loginLimiter(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respond.Error(w, http.StatusTooManyRequests, "too many login attempts")
		}),
	)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
