package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const homeNamespaceKey contextKey = "home_namespace"

// homeNamespace returns the authenticated tenant's namespace for a request.
func homeNamespace(r *http.Request) string {
	ns, _ := r.Context().Value(homeNamespaceKey).(string)
	return ns
}

// authenticate resolves the X-API-Key header to a tenant namespace and
// stores it on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ns, err := s.manager.Authenticate(r.Header.Get("X-API-Key"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), homeNamespaceKey, ns)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe records request metrics and a structured access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		took := time.Since(start)

		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, route, strconv.Itoa(ww.Status())).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, route).Observe(took.Seconds())
		}

		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", ww.Status()),
			slog.Duration("took", took))
	})
}
