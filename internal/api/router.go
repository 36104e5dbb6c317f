package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"pkt.systems/pslog"

	"github.com/bterminal/bterminal/internal/audit"
	"github.com/bterminal/bterminal/internal/auth"
	"github.com/bterminal/bterminal/internal/events"
	"github.com/bterminal/bterminal/internal/logx"
	"github.com/bterminal/bterminal/internal/metrics"
	"github.com/bterminal/bterminal/internal/session"
)

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

// Options configures a Server.
type Options struct {
	Registry *session.Registry
	// Bus feeds /api/events; nil disables the endpoint.
	Bus *events.Bus
	// Audit backs /api/audit; nil disables the endpoint.
	Audit  audit.Store
	APIKey string
	// ServeMetrics mounts /metrics on this server.
	ServeMetrics bool
	// KeepAlive overrides DefaultKeepAlive.
	KeepAlive time.Duration
	Logger    pslog.Logger
}

// Server holds the API server dependencies.
type Server struct {
	echo      *echo.Echo
	registry  *session.Registry
	bus       *events.Bus
	audit     audit.Store
	keepAlive time.Duration
	log       pslog.Logger
}

// NewServer creates a new API server with all routes configured.
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log := logx.OrDefault(opts.Logger)
	e.Server.ErrorLog = pslog.LogLoggerWithLevel(log, pslog.ErrorLevel)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	s := &Server{
		echo:      e,
		registry:  opts.Registry,
		bus:       opts.Bus,
		audit:     opts.Audit,
		keepAlive: keepAlive,
		log:       log,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(middleware.CORS())
	e.Use(metrics.EchoMiddleware())

	// Health check (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.ServeMetrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// API routes (with auth)
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(opts.APIKey))

	// Session lifecycle
	api.GET("/api/sessions", s.listSessions)
	api.POST("/api/sessions", s.createSession)
	api.GET("/api/sessions/:id", s.getSession)
	api.DELETE("/api/sessions/:id", s.deleteSession)

	// Streaming protocol
	api.GET("/ws/:id", s.terminalWebSocket)

	// Notifications and history
	if s.bus != nil {
		api.GET("/api/events", s.streamEvents)
	}
	if s.audit != nil {
		api.GET("/api/audit", s.listAudit)
	}

	return s
}

// requestLogger binds a request-scoped logger to the request context and
// logs each completed request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log := s.log.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(pslog.ContextWithLogger(req.Context(), log)))

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			log.Debug("http request",
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"duration", time.Since(start).String(),
			)
			return err
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked WebSocket connections are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Close immediately closes all listeners and connections.
func (s *Server) Close() error {
	return s.echo.Close()
}
