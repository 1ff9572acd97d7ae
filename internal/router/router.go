package router

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
)

const (
	defaultAddr   = "0.0.0.0:8431"
	defaultPrefix = "/api/v1"
	requestIDKey  = "X-Request-ID"
)

// Config holds HTTP server settings.
type Config struct {
	Addr   string
	Prefix string
}

// ConfigFromEnv reads HTTP_ADDR and API_PREFIX.
func ConfigFromEnv() Config {
	cfg := Config{Addr: defaultAddr, Prefix: defaultPrefix}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("API_PREFIX"); ok {
		cfg.Prefix = "/" + strings.Trim(strings.TrimSpace(v), "/")
		if cfg.Prefix == "/" {
			cfg.Prefix = ""
		}
	}
	return cfg
}

// Deps are the handlers and collaborators mounted by RegisterRoutes.
type Deps struct {
	Users    *user.Handler
	Tasks    *task.Handler
	Resolver *auth.Resolver
	// Registry backs /metrics; nil leaves the endpoint and HTTP metrics off.
	Registry *prometheus.Registry
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

func (lrw *loggingResponseWriter) statusCode() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

type requestIDCtxKey struct{}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}

// RequestIDMiddleware propagates X-Request-ID, generating a KSUID when the
// client did not send one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDKey)
			if id == "" || len(id) > 64 {
				id = ksuid.New().String()
			}
			w.Header().Set(requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDCtxKey{}, id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", lrw.statusCode(),
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// HSTS only makes sense over TLS. 30 days.
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			// responses carry user data and bearer-protected content
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware counts requests and observes latency per route pattern.
// It must wrap the ServeMux directly so r.Pattern is visible after dispatch.
func MetricsMiddleware(reg prometheus.Registerer) func(http.Handler) http.Handler {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskapp",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskapp",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	reg.MustRegister(requests, latency)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			requests.WithLabelValues(route, r.Method, strconv.Itoa(lrw.statusCode())).Inc()
			latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, cfg Config, deps Deps) http.Handler {
	mux := http.NewServeMux()
	p := cfg.Prefix
	protect := auth.RequireAuth(deps.Resolver, logger)

	mux.HandleFunc("GET "+p+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// auth
	mux.HandleFunc("POST "+p+"/auth/register", deps.Users.Register)
	mux.HandleFunc("POST "+p+"/auth/login", deps.Users.Login)

	// current user
	mux.Handle("GET "+p+"/users/me", protect(http.HandlerFunc(deps.Users.Me)))
	mux.Handle("PUT "+p+"/users/me", protect(http.HandlerFunc(deps.Users.UpdateMe)))
	mux.Handle("DELETE "+p+"/users/me", protect(http.HandlerFunc(deps.Users.DeleteMe)))

	// tasks
	mux.Handle("GET "+p+"/tasks", protect(http.HandlerFunc(deps.Tasks.List)))
	mux.Handle("POST "+p+"/tasks", protect(http.HandlerFunc(deps.Tasks.Create)))
	mux.Handle("GET "+p+"/tasks/{id}", protect(http.HandlerFunc(deps.Tasks.Get)))
	mux.Handle("PUT "+p+"/tasks/{id}", protect(http.HandlerFunc(deps.Tasks.Update)))
	mux.Handle("DELETE "+p+"/tasks/{id}", protect(http.HandlerFunc(deps.Tasks.Delete)))

	var handler http.Handler = mux
	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
		handler = MetricsMiddleware(deps.Registry)(handler)
	}

	// request id outermost so the logger sees it
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	return RequestIDMiddleware()(handler)
}
