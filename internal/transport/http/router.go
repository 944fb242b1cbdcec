package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/caption-relay/internal/gate"
	httpmw "github.com/cwrk-planet/caption-relay/internal/transport/http/middleware"
	"github.com/cwrk-planet/caption-relay/internal/transport/ws"
)

type Deps struct {
	Handler        *Handler
	WS             *ws.Server
	Gate           *gate.Gate
	Log            *slog.Logger
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.WithRequestLogger(log))
	r.Use(httpmw.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/ws/rooms/{code}", d.WS.HandleWS)
	r.Get("/ws/{code}", d.WS.HandleWS)

	r.Group(func(api chi.Router) {
		api.Use(middlewareChi.Timeout(10 * time.Second))

		api.Route("/rooms", func(rm chi.Router) {
			rm.Get("/", d.Handler.ListRooms)
			rm.With(httpmw.RequireAccess(d.Gate)).Get("/{code}/status", d.Handler.RoomStatus)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
