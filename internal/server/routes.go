package server

import (
	"log/slog"
	"net/http"
)

// Config holds the HTTP surface options of the render API.
type Config struct {
	// AllowedOrigins lists browser origins allowed to drive renders. "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig allows every origin.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter exposes the render service: submit, list, inspect, cancel and
// publish slideshow renders, plus a health check. Every route runs behind
// panic recovery, request logging and CORS, in that order.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /renders", h.CreateRender)
	mux.HandleFunc("GET /renders", h.ListRenders)
	mux.HandleFunc("GET /renders/{id}", h.GetRender)
	mux.HandleFunc("DELETE /renders/{id}", h.CancelRender)
	mux.HandleFunc("POST /renders/{id}/publish", h.PublishRender)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
