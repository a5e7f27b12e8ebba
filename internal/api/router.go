package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/botfleet/internal/api/handlers"
	"github.com/nikhilbhutani/botfleet/internal/api/middleware"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/config"
	"github.com/nikhilbhutani/botfleet/internal/llm"
	"github.com/nikhilbhutani/botfleet/internal/tools"
)

// Deps are the collaborators the HTTP surface needs. Checks feed /readyz.
type Deps struct {
	Dispatcher *tools.Dispatcher
	Gateway    llm.Gateway
	Checks     map[string]handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	jwt  *auth.JWTMiddleware
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		jwt:  auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	}
}

// Setup wires middleware and routes. The rate limiter's background
// eviction stops when ctx is done.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	rl := middleware.NewRateLimiter(ctx, rt.cfg.RateLimit.RequestsPerMinute)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		toolH := handlers.NewToolHandler(rt.deps.Dispatcher)
		r.Route("/tools", func(r chi.Router) {
			r.Get("/", toolH.List)
			r.Post("/{name}", toolH.Call)
		})

		assistantH := handlers.NewAssistantHandler(rt.deps.Gateway, rt.deps.Dispatcher,
			rt.cfg.LLM.DefaultModel, rt.cfg.LLM.MaxAgentSteps)
		r.Route("/assistant", func(r chi.Router) {
			r.Post("/chat", assistantH.Chat)
			r.Get("/models", assistantH.Models)
		})

		webhookH := handlers.NewWebhookHandler(rt.deps.Dispatcher)
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/verify", webhookH.Verify)
			r.Delete("/{id}", webhookH.Delete)
		})
	})

	return r
}
