// Package httpserver provides the HTTP/HTTPS server for DotVault.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/swapdotz/dotvault/internal/core/service"
	"github.com/swapdotz/dotvault/internal/server/httpserver/handler"
	"github.com/swapdotz/dotvault/internal/storage"
	"github.com/swapdotz/dotvault/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// TransferService drives transfer sessions.
	TransferService *service.TransferService

	// TokenService handles registry operations.
	TokenService *service.TokenService

	// AuthService handles authentication and API key operations.
	AuthService *service.AuthService

	// Engine backs admin status and backup endpoints. Optional.
	Engine *storage.Engine

	// Metrics receives request counters and latencies. Defaults to
	// the global registry.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// AdminAllowList is the IP/CIDR allowlist for the admin API
	// (empty = no restriction).
	AdminAllowList []string

	// MetricsAuthRequired indicates if /metrics requires authentication.
	MetricsAuthRequired bool

	// CORSAllowedOrigins is the list of allowed CORS origins
	// (empty = CORS disabled).
	CORSAllowedOrigins []string
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metric.Global()
	}

	h := handler.New(&handler.Config{
		Transfer: cfg.TransferService,
		Tokens:   cfg.TokenService,
		Auth:     cfg.AuthService,
		Engine:   cfg.Engine,
		Logger:   log,
	})

	// chainFor builds this route group's middleware stack, outermost
	// first: Recover -> RequestID -> Metrics -> [CORS] -> extra.
	chainFor := func(group string, extra ...Middleware) http.Handler {
		middlewares := []Middleware{
			Recover(log),
			RequestID(),
			Metrics(reg, group),
		}
		if len(cfg.CORSAllowedOrigins) > 0 {
			middlewares = append(middlewares, CORS(cfg.CORSAllowedOrigins))
		}
		middlewares = append(middlewares, extra...)
		return Chain(h, middlewares...)
	}

	mux := http.NewServeMux()

	// Health endpoints, no authentication.
	healthHandler := chainFor("health")
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /ready", healthHandler)

	// Metrics endpoint in Prometheus exposition format.
	mux.Handle("GET /metrics", Chain(
		reg.Handler(),
		Recover(log),
		RequestID(),
		MetricsAuth(cfg.AuthService, cfg.MetricsAuthRequired),
	))

	// Transfer endpoints.
	transferHandler := chainFor("transfers", Auth(cfg.AuthService), RequestLog(log))
	mux.Handle("POST /v1/transfers", transferHandler)
	mux.Handle("POST /v1/transfers/{id}/continue-auth", transferHandler)
	mux.Handle("POST /v1/transfers/{id}/rotate", transferHandler)
	mux.Handle("POST /v1/transfers/{id}/confirm", transferHandler)
	mux.Handle("POST /v1/transfers/{id}/finalize", transferHandler)

	// Token registry endpoints.
	tokenHandler := chainFor("tokens", Auth(cfg.AuthService), RequestLog(log))
	mux.Handle("POST /v1/tokens", tokenHandler)
	mux.Handle("GET /v1/tokens", tokenHandler)
	mux.Handle("GET /v1/tokens/{id}", tokenHandler)
	mux.Handle("GET /v1/tokens/{id}/history", tokenHandler)
	mux.Handle("POST /v1/tokens/{id}/retire", tokenHandler)

	// Admin endpoints, optionally fenced by network ACL.
	adminExtra := []Middleware{Auth(cfg.AuthService), RequestLog(log)}
	if len(cfg.AdminAllowList) > 0 {
		adminExtra = append([]Middleware{NetworkACL(&NetworkACLConfig{
			AllowList: cfg.AdminAllowList,
			Logger:    log,
		})}, adminExtra...)
	}
	adminHandler := chainFor("admin", adminExtra...)
	mux.Handle("GET /admin/v1/status/summary", adminHandler)
	mux.Handle("POST /admin/v1/sweep/trigger", adminHandler)
	mux.Handle("GET /admin/v1/audit/logs", adminHandler)
	mux.Handle("GET /admin/v1/backup", adminHandler)
	mux.Handle("POST /admin/v1/keys", adminHandler)
	mux.Handle("GET /admin/v1/keys", adminHandler)
	mux.Handle("POST /admin/v1/keys/{key_id}/status", adminHandler)
	mux.Handle("POST /admin/v1/keys/{key_id}/rotate", adminHandler)
	mux.Handle("DELETE /admin/v1/keys/{key_id}", adminHandler)

	return mux
}
