package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"comfybridge/internal/httpapi/handlers"
	"comfybridge/internal/metrics"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/pkg/middleware"
)

type Deps struct {
	Handlers           handlers.Deps
	Log                *logger.Logger
	CORSAllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	origins := d.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH / METRICS ----
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// ---- JOBS ----
	r.Post("/runsync", wrap(h.RunSync))
	if h.HasQueue() {
		r.Post("/run", wrap(h.Run))
		r.Get("/status/{id}", wrap(h.Status))
	}

	// ---- WORKFLOWS ----
	r.Get("/workflows", wrap(h.ListWorkflows))
	r.Get("/workflows/{name}", wrap(h.GetWorkflow))

	return r
}
