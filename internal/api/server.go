package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/claimwatch/internal/claims"
	"github.com/opensource-finance/claimwatch/internal/domain"
	"github.com/opensource-finance/claimwatch/internal/flags"
	"github.com/opensource-finance/claimwatch/internal/search"
)

// Dependencies are the services behind the HTTP API.
type Dependencies struct {
	Repo   domain.Repository
	Cache  domain.Cache
	Claims *claims.Service
	Flags  *flags.Service
	Search *search.Service
}

// Server serves the claims and fraud API over HTTP.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer wires the handlers and middleware. Every route except the health
// probes requires a session.
func NewServer(cfg *domain.Config, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(RequestInfoMiddleware)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(deps.Repo, []byte(cfg.Session.Secret), cfg.Session.CookieName))

		r.Route("/claims", func(r chi.Router) {
			r.Get("/", handler.ListClaims)
			r.Post("/", handler.CreateClaim)
			r.Get("/{id}", handler.GetClaim)
			r.Put("/{id}", handler.UpdateClaim)
			r.Delete("/{id}", handler.DeleteClaim)
			r.Post("/{id}/evaluate", handler.EvaluateClaim)
		})

		r.Route("/fraud", func(r chi.Router) {
			r.Get("/flags", handler.ListFlags)
			r.Put("/flags/{id}/review", handler.ReviewFlag)
			r.Get("/similar", handler.SearchSimilar)
		})
	})

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Start blocks serving requests until Shutdown is called, then returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
