package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/client/internal/handler/control"
	"github.com/zhouzirui/z-tavern/client/internal/handler/events"
	middlewarePkg "github.com/zhouzirui/z-tavern/client/internal/middleware"
)

// NewRouter wires the local control API.
func NewRouter(client control.Client, source events.Source, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	controlHandler := control.New(client)
	eventsHandler := events.New(source)

	r.Route("/control", func(api chi.Router) {
		controlHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
	})

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	return r
}
