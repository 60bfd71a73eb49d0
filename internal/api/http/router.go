package http

import (
	"net/http"

	"github.com/arkilian/catalogmeta/internal/lifecycle"
)

// RouterOption configures NewRouter.
type RouterOption func(*http.ServeMux)

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) RouterOption {
	return func(mux *http.ServeMux) { mux.Handle("GET "+path, h) }
}

// NewRouter wires every endpoint behind the default middleware chain.
func NewRouter(service *lifecycle.Service, opts ...RouterOption) http.Handler {
	kinds := NewKindsHandler(service.Registry())
	entities := NewEntitiesHandler(service)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/kinds", kinds.List)
	api.HandleFunc("GET /v1/kinds/{kind}/properties", kinds.Properties)
	api.HandleFunc("POST /v1/kinds/{kind}/validate", kinds.Validate)

	api.HandleFunc("POST /v1/kinds/{kind}/entities/{entity}", entities.Create)
	api.HandleFunc("PATCH /v1/kinds/{kind}/entities/{entity}", entities.Alter)
	api.HandleFunc("GET /v1/kinds/{kind}/entities/{entity}", entities.Describe)
	api.HandleFunc("GET /v1/kinds/{kind}/entities/{entity}/history", entities.History)
	api.HandleFunc("GET /v1/entities", entities.List)
	api.HandleFunc("POST /v1/entities/{entity}/partitions", entities.AddPartition)
	api.HandleFunc("GET /v1/entities/{entity}/partitions", entities.Partitions)

	api.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux := http.NewServeMux()
	mux.Handle("/", DefaultMiddleware()(api))
	for _, opt := range opts {
		opt(mux)
	}
	return mux
}
