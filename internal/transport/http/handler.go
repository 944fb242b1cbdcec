package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/relay"
	httpmw "github.com/cwrk-planet/caption-relay/internal/transport/http/middleware"
)

// Rooms is the part of relay.Manager the handlers read from.
type Rooms interface {
	Status(ctx context.Context, code string) (domain.RoomStatus, error)
	Rooms() []string
}

type Handler struct {
	rooms Rooms
}

func NewHandler(rooms Rooms) *Handler {
	return &Handler{rooms: rooms}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RoomsListResponse struct {
	Items []string `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRoomCode):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrManagerClosed), errors.Is(err, relay.ErrRoomClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoomsListResponse{Items: h.rooms.Rooms()})
}

// GET /rooms/{code}/status
func (h *Handler) RoomStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.rooms.Status(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		status := errStatus(err)
		if status >= http.StatusInternalServerError {
			httpmw.L(r.Context()).Error("handler.RoomStatus", "err", err)
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
