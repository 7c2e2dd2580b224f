package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/fenggwsx/roomcast/internal/storage"
)

// CreateRoomRequest is the body of a room creation call.
type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (c *CreateRoomRequest) normalize() {
	c.Name = strings.TrimSpace(c.Name)
}

// RoomResponse describes a room in API responses.
type RoomResponse struct {
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	URL       string    `json:"url,omitempty"`
}

// MessageResponse describes a stored chat message.
type MessageResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateRoom handles room creation (authenticated).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateRoomRequest
	if err := decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Please provide room name (at most 100 characters)")
		return
	}

	room, err := h.rooms.Create(r.Context(), req.Name, userID)
	if err != nil {
		h.log.Error().Err(err).Str("owner", userID).Msg("create room failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.log.Info().Str("room", room.RoomID).Str("owner", userID).Msg("room created")

	h.JSON(w, http.StatusCreated, map[string]any{
		"message": "Room created successfully",
		"room":    toRoomResponse(room),
	})
}

// ListRooms returns the rooms created by the caller, newest first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	rooms, err := h.rooms.ListByOwner(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("owner", userID).Msg("list rooms failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"rooms": lo.Map(rooms, func(room storage.Room, _ int) RoomResponse {
			return toRoomResponse(room)
		}),
	})
}

// GetRoom looks a room up by its public id.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomId"))
	if roomID == "" {
		h.Error(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	room, err := h.rooms.FindByRoomID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "Room not found")
			return
		}
		h.log.Error().Err(err).Str("room", roomID).Msg("get room failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := toRoomResponse(room)
	resp.URL = ""
	h.JSON(w, http.StatusOK, map[string]any{"room": resp})
}

// GetMessages returns the stored history of a room, oldest first.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomId"))
	if roomID == "" {
		h.Error(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	messages, err := h.messages.ListByRoom(r.Context(), roomID, h.historyLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("list messages failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"messages": lo.Map(messages, func(m storage.ChatMessage, _ int) MessageResponse {
			return MessageResponse(m)
		}),
	})
}

func toRoomResponse(room storage.Room) RoomResponse {
	return RoomResponse{
		RoomID:    room.RoomID,
		Name:      room.Name,
		CreatedAt: room.CreatedAt,
		URL:       "/rooms/" + room.RoomID,
	}
}
