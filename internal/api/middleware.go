package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/heimdex/edl-indexer/internal/logging"
	"github.com/heimdex/edl-indexer/internal/runs"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeTooLarge     = "TOO_LARGE"
	CodeInternal     = "INTERNAL_ERROR"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// inboundRequestID bounds what a client may pass in X-Request-ID before it
// ends up in our logs.
var inboundRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID returns the id assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// AuthMiddleware requires "Authorization: Bearer <token>" matching the token
// stored under runs.AuthTokenKey.
func AuthMiddleware(repo runs.Repository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			switch {
			case !found && scheme == "":
				WriteError(w, http.StatusUnauthorized, "missing authorization header", CodeUnauthorized)
				return
			case !found || !strings.EqualFold(scheme, "Bearer") || token == "":
				WriteError(w, http.StatusUnauthorized, "invalid authorization format", CodeUnauthorized)
				return
			}

			want, err := repo.GetConfig(r.Context(), runs.AuthTokenKey)
			if err != nil || want == "" {
				logger.Error("api token unavailable", "error", err)
				WriteError(w, http.StatusInternalServerError, "auth configuration error", CodeInternal)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
				logging.WithRequestID(logger, RequestID(r.Context())).
					Warn("rejected api token", "provided", logging.SanitizeToken(token))
				WriteError(w, http.StatusUnauthorized, "invalid token", CodeUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs one line per request. Frame fetches and metric
// scrapes are logged at debug.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if strings.HasPrefix(r.URL.Path, "/frames/") || r.URL.Path == "/metrics" {
				level = slog.LevelDebug
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logging.WithRequestID(logger, RequestID(r.Context())).Log(r.Context(), level, "http request",
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500. http.ErrAbortHandler
// is re-raised so the server aborts the connection as intended.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.WithRequestID(logger, RequestID(r.Context())).Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternal)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware tags each request with an id, reusing a well-formed
// X-Request-ID from the client.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if !inboundRequestID.MatchString(id) {
				id = uuid.NewString()[:8]
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
		})
	}
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
