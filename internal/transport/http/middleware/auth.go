package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/gate"
)

// RequireAccess checks the caller's token against the gate for the room in
// the {code} path parameter.
func RequireAccess(g *gate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			room, err := domain.NormalizeRoomCode(chi.URLParam(r, "code"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid room code")
				return
			}
			if err := g.Check(room, gate.TokenFromRequest(r)); err != nil {
				L(r.Context()).Warn("access denied", "room", room, "err", err)
				status := http.StatusUnauthorized
				if errors.Is(err, gate.ErrRoomMismatch) {
					status = http.StatusForbidden
				}
				writeError(w, status, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
