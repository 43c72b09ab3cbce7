package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/hub"
	"github.com/dewil-official/GeneralsGenniaMod/internal/store"
	"github.com/dewil-official/GeneralsGenniaMod/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Store          store.Store
	Rules          config.Rules
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, d.Logger))
	r.Get("/rooms", ListRooms(d.Hub))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(ws.Options{
		Hub:            d.Hub,
		Store:          d.Store,
		Rules:          d.Rules,
		Logger:         d.Logger,
		OriginPatterns: d.AllowedOrigins,
	}))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
