// Package server exposes the temporary credential endpoints over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rescale/credvend/internal/constants"
)

// NewRouter mounts the credential endpoints under the catalog API prefix.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route(constants.APIPathPrefix, func(r chi.Router) {
		r.Use(limitBody)
		r.Post("/temporary-table-credentials", h.generateTableCredential)
		r.Post("/temporary-volume-credentials", h.generateVolumeCredential)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "Method "+r.Method+" not allowed")
	})
	return r
}
