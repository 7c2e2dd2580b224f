package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fenggwsx/roomcast/internal/auth"
	"github.com/fenggwsx/roomcast/internal/chat"
	"github.com/fenggwsx/roomcast/internal/storage"
)

var validate = validator.New()

// Pinger is a dependency whose liveness /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	log          zerolog.Logger
	accounts     *auth.Service
	rooms        storage.RoomDirectory
	messages     storage.MessageStore
	registry     *chat.Registry
	historyLimit int
	pingers      map[string]Pinger
}

// NewHandler creates a Handler from the router dependencies.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		log:          deps.Logger,
		accounts:     deps.Accounts,
		rooms:        deps.Rooms,
		messages:     deps.Messages,
		registry:     deps.Registry,
		historyLimit: storage.NormalizeLimit(deps.HistoryLimit),
		pingers:      deps.Pingers,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// normalizer is implemented by request bodies that clean themselves up
// before validation.
type normalizer interface {
	normalize()
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// decodeJSON reads a JSON body into dst without validating it.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return nil
}
