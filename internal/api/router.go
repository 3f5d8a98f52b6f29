package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/api/middleware"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/handlers"
)

// Options configures NewRouter.
type Options struct {
	// ControlTokenHash guards mutating routes; empty leaves them open.
	ControlTokenHash string
	// Redis enables the shared rate limiter when set.
	Redis *redis.Client
	// Events serves the websocket stream at /events.
	Events http.Handler
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))
	r.Use(middleware.RequireJSON)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(opts.Redis, nil, logger)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewControlAuth(opts.ControlTokenHash, logger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Read-only routes
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)
	r.Get("/rooms/{id}/messages", h.GetRoomMessages)
	r.Get("/rooms/{id}/trades", h.GetRoomTrades)
	r.Get("/agents/{id}", h.GetAgent)
	r.Get("/pause", h.GetPause)
	if opts.Events != nil {
		r.Handle("/events", opts.Events)
	}

	// Control routes (require token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken)

		r.Post("/rooms", h.CreateRoom)
		r.Delete("/rooms/{id}", h.DestroyRoom)
		r.Post("/rooms/{id}/kick", h.KickRoom)
		r.Post("/pause", h.Pause)
		r.Delete("/pause", h.Resume)
	})

	return r
}
