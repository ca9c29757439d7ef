package handler

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Fi44er/invest_bot/internal/session"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// AdminFromContext returns the email of the authenticated administrator.
func AdminFromContext(ctx context.Context) string {
	email, _ := ctx.Value(ctxKey{}).(string)
	return email
}

func loggingMiddleware(logger *utils.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("incoming request")
		})
	}
}

func recoverer(logger *utils.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("panic: %v\n%s", rec, debug.Stack())
					utils.WriteError(w, http.StatusInternalServerError, "internal server error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin accepts a bearer token only while the administrator it was
// issued to is still signed in.
func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			utils.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization header", "")
			return
		}

		email, role, err := h.tokens.Parse(parts[1])
		if err != nil || role != session.RoleAdmin {
			utils.WriteError(w, http.StatusUnauthorized, "invalid token", "")
			return
		}

		current, err := h.auth.Current(r.Context())
		if err != nil {
			h.handleServiceError(w, err, "check admin session")
			return
		}
		if current == nil || !strings.EqualFold(current.Email, email) {
			utils.WriteError(w, http.StatusUnauthorized, "admin session ended", "")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, current.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
