package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger, wsOpts ws.Options) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if wsOpts.Logger == nil {
		wsOpts.Logger = log
	}
	api := &handlers{hub: h, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, wsOpts))

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", api.listRooms)
		r.Post("/", api.createRoom)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", api.getRoom)
			r.Post("/actions", api.submitAction)
			r.Post("/pass", api.passTurn)
			r.Post("/hold", api.holdTurn)
			r.Post("/end", api.endGame)
			r.Post("/suggestions", api.postSuggestion)
			r.Post("/suggestions/{id}/confirm", api.confirmSuggestion)
			r.Post("/suggestions/{id}/cancel", api.cancelSuggestion)
			r.Post("/notifications", api.postNotification)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
