package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/relay"
	"github.com/cwrk-planet/caption-relay/internal/storage"
	"github.com/cwrk-planet/caption-relay/internal/transport/ws"
)

func newTestRouter(t *testing.T) (http.Handler, *relay.Manager) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := gate.New(gate.Config{Secret: "s3cret"})
	require.NoError(t, err)

	m := relay.NewManager(storage.NewMemory(), relay.Config{}, log)
	t.Cleanup(m.Close)
	wsSrv := ws.NewServer(m, g, ws.Config{}, log)
	t.Cleanup(wsSrv.Shutdown)

	return NewRouter(Deps{
		Handler:        NewHandler(m),
		WS:             wsSrv,
		Gate:           g,
		Log:            log,
		AllowedOrigins: []string{"https://captions.example"},
	}), m
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRoomStatus_RequiresToken(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/TALK47/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/TALK47/status?token=wrong", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoomStatus_ReturnsCounts(t *testing.T) {
	h, m := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/rooms/talk47/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.RoomStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "TALK47", st.RoomID)
	assert.True(t, st.IsEmpty)
	// A status query does not bring the room into memory.
	assert.Empty(t, m.Rooms())
}

func TestRoomStatus_InvalidCode(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/no.dots/status?token=s3cret", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRooms(t *testing.T) {
	h, m := newTestRouter(t)
	_, err := m.Get(t.Context(), "B2")
	require.NoError(t, err)
	_, err = m.Get(t.Context(), "A1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RoomsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"A1", "B2"}, resp.Items)
}

func TestCORS_Preflight(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "https://captions.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://captions.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebsocketThroughRouter(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/TALK47?token=s3cret"
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()
	if resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, c.WriteJSON(map[string]any{"type": "checkRoom"}))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var st map[string]any
	require.NoError(t, c.ReadJSON(&st))
	assert.Equal(t, "roomStatus", st["type"])
}
