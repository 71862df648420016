package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKey string

const userContextKey contextKey = "user"

// withLogging logs method, path, status, and duration for every request.
func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withCORS applies the configured allowed-origins list to every response.
func withCORS(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession resolves the session cookie, loading the user it names
// into the request context. Absent or expired sessions fail 401.
func (s *server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeError(w, unauthorized("Not authenticated"))
			return
		}

		data, err := loadSession(r.Context(), s.gateway, cookie.Value)
		if err != nil {
			s.log.Error("load session failed", "error", err)
			writeError(w, newAPIError(http.StatusInternalServerError, "Internal Server Error"))
			return
		}
		if data == nil {
			writeError(w, unauthorized("Not authenticated"))
			return
		}

		userID, _ := data["user_id"].(string)
		user, err := GetUserByID(r.Context(), s.gateway, userID)
		if err != nil {
			s.log.Error("load user failed", "error", err)
			writeError(w, newAPIError(http.StatusInternalServerError, "Internal Server Error"))
			return
		}
		if user == nil {
			writeError(w, unauthorized("Not authenticated"))
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func userFromContext(r *http.Request) *User {
	u, _ := r.Context().Value(userContextKey).(*User)
	return u
}
