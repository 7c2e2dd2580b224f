package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fenggwsx/roomcast/internal/auth"
	"github.com/fenggwsx/roomcast/internal/chat"
	"github.com/fenggwsx/roomcast/internal/storage"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Logger        zerolog.Logger
	Accounts      *auth.Service
	Authenticator auth.Authenticator
	Rooms         storage.RoomDirectory
	Messages      storage.MessageStore
	Registry      *chat.Registry
	HistoryLimit  int
	// Gateway serves websocket upgrades at /ws; nil disables the route.
	Gateway http.Handler
	// Pingers are checked by /health, keyed by dependency name.
	Pingers map[string]Pinger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := NewHandler(deps)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	r.Get("/rooms/{roomId}", h.GetRoom)
	r.Get("/messages/{roomId}", h.GetMessages)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(deps.Authenticator, h))

		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
	})

	if deps.Gateway != nil {
		r.Handle("/ws", deps.Gateway)
	}

	return r
}
