package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"merchant-admin/internal/metrics"
	"merchant-admin/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	OperatorIDKey    contextKey = "operator_id"
	OperatorRoleKey  contextKey = "operator_role"
	OperatorEmailKey contextKey = "operator_email"
	RequestIDKey     contextKey = "request_id"
)

// SessionCookie carries the operator token for the HTML pages.
const SessionCookie = "merchant_admin_token"

// TokenValidator turns a raw token into verified claims.
type TokenValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func CORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	})
	return c.Handler
}

func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:")
			next.ServeHTTP(w, r)
		})
	}
}

type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(r, b),
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiter.Allow() {
				respondWithError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			r = r.WithContext(ctx)

			logger.Debug().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Authentication guards the JSON API. The token comes from a Bearer
// header or, failing that, the session cookie.
func Authentication(tokens TokenValidator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, code, message := extractToken(r)
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, code, message)
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				logger.Warn().Err(err).Msg("Invalid token")
				respondWithError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// SessionAuthentication guards the HTML pages and sends anonymous
// visitors to the login page.
func SessionAuthentication(tokens TokenValidator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			claims, err := tokens.ValidateToken(cookie.Value)
			if err != nil {
				logger.Debug().Err(err).Msg("Session token rejected")
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func extractToken(r *http.Request) (token, errorCode, message string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", "invalid_authorization", "Invalid authorization header format"
		}
		return parts[1], "", ""
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, "", ""
	}
	// browsers cannot set headers on websocket handshakes
	if websocket.IsWebSocketUpgrade(r) {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, "", ""
		}
	}
	return "", "missing_authorization", "Authorization header is required"
}

func withClaims(ctx context.Context, claims *services.Claims) context.Context {
	ctx = context.WithValue(ctx, OperatorIDKey, claims.OperatorID)
	ctx = context.WithValue(ctx, OperatorRoleKey, claims.Role)
	return context.WithValue(ctx, OperatorEmailKey, claims.Email)
}

func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetOperatorRole(r)
			if !ok {
				respondWithError(w, http.StatusForbidden, "forbidden", "Operator role not found")
				return
			}

			for _, allowed := range allowedRoles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondWithError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
		})
	}
}

// RequireRoleForWrites lets every authenticated role read and only the
// allowed roles mutate.
func RequireRoleForWrites(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := RequireRole(allowedRoles...)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				guarded.ServeHTTP(w, r)
			}
		})
	}
}

func RequestValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if r.ContentLength != 0 && !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
					respondWithError(w, http.StatusBadRequest, "invalid_content_type", "Content-Type must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ErrorHandling(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error().
						Interface("error", err).
						Str("path", r.URL.Path).
						Str("method", r.Method).
						Msg("Panic recovered")

					respondWithError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// PerformanceMonitoring records request metrics by route template and
// warns about slow requests.
func PerformanceMonitoring(m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := routeTemplate(r)

			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			if duration > 1*time.Second && wrapped.statusCode != http.StatusSwitchingProtocols {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Dur("duration", duration).
					Int("status", wrapped.statusCode).
					Msg("Slow request detected")
			}
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func GetOperatorID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(OperatorIDKey).(int)
	return id, ok
}

func GetOperatorRole(r *http.Request) (string, bool) {
	role, ok := r.Context().Value(OperatorRoleKey).(string)
	return role, ok
}

func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDKey).(string)
	return id
}

func respondWithError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
