package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-sync/internal/appointment"
)

type RouterConfig struct {
	Store    *appointment.Store
	Mutator  *appointment.Mutator
	Checker  appointment.Checker
	Critical map[string]Check
	Optional map[string]Check
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Critical, cfg.Optional, cfg.Store, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/slots", availableSlotsHandler(cfg.Store, cfg.Checker))

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", listAppointmentsHandler(cfg.Store))
		r.Post("/", createAppointmentHandler(cfg.Mutator))
		r.Get("/{id}", getAppointmentHandler(cfg.Store))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Mutator))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Mutator))
		r.Put("/{id}/status", setStatusHandler(cfg.Mutator))
		r.Post("/{id}/reschedule", rescheduleHandler(cfg.Mutator))
	})

	return r
}
