package api

import (
	"context"
	"net/http"
	"time"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	critical map[string]Check
	optional map[string]Check
	store    interface{ Len() int }
	env      string
	version  string
}

func NewHealthHandler(critical, optional map[string]Check, store interface{ Len() int }, env, version string) *HealthHandler {
	return &HealthHandler{
		critical: critical,
		optional: optional,
		store:    store,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Cached       int               `json:"cached_appointments"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness is "error" when a critical dependency is down and "degraded"
// when only optional ones are.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	for name, check := range h.critical {
		if ping(ctx, check) {
			deps[name] = "ok"
			continue
		}
		deps[name] = "down"
		status = "error"
	}
	for name, check := range h.optional {
		if ping(ctx, check) {
			deps[name] = "ok"
			continue
		}
		deps[name] = "down"
		if status == "ok" {
			status = "degraded"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}
	if h.store != nil {
		resp.Cached = h.store.Len()
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}

func ping(ctx context.Context, check Check) bool {
	c, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return check(c) == nil
}
